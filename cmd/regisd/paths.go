package main

import "path/filepath"

// Default on-disk layout (spec.md §6). All paths live under one root so
// a single --override-config-style escape hatch and a single directory
// permission sweep cover everything the daemon persists.
const defaultRoot = "/etc/regis/regisd"

func configPath(root string) string    { return filepath.Join(root, "config.json") }
func authDir(root string) string       { return filepath.Join(root, "auth") }
func userStorePath(root string) string { return filepath.Join(authDir(root), "users.json") }
func signingKeyPath(root string) string {
	return filepath.Join(authDir(root), "key")
}
func consoleSocketPath(root string) string { return filepath.Join(root, "console") }
func pidFilePath(root string) string       { return filepath.Join(root, "regisd.pid") }
