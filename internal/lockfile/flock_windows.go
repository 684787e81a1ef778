//go:build windows

package lockfile

import "os"

// FlockExclusiveNonBlocking is not supported for the console's filesystem
// namespace socket on Windows (spec.md targets the platform-appropriate
// equivalent); callers on Windows rely on file rename atomicity alone.
func FlockExclusiveNonBlocking(f *os.File) error {
	return nil
}

// FlockUnlock is a no-op on Windows; see FlockExclusiveNonBlocking.
func FlockUnlock(f *os.File) error {
	return nil
}
