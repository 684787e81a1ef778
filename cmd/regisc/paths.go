package main

import "path/filepath"

// defaultRoot mirrors cmd/regisd's paths.go: the console socket lives
// alongside the daemon's other on-disk state, one well-known file name
// under the daemon's root.
const defaultRoot = "/etc/regis/regisd"

func consoleSocketPath(root string) string { return filepath.Join(root, "console") }
