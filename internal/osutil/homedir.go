// Package osutil has small filesystem helpers for flag handling.
package osutil

import "os"

// UserHomeDir is like os.UserHomeDir, but prefers $HOME when it is set.
func UserHomeDir() (string, error) {
	if h := os.Getenv("HOME"); h != "" {
		return h, nil
	}
	return os.UserHomeDir()
}
