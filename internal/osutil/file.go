package osutil

import (
	"os"
	"path/filepath"
	"strings"
)

// FileExists returns whether or not a file exists on the filesystem. Any
// error from os.Stat counts as the file not existing.
func FileExists(filename string) bool {
	_, err := os.Stat(filename)
	return err == nil
}

// NormalizeFilePath expands environment variables and a leading "~/" in
// path, and makes it absolute.
func NormalizeFilePath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	path = os.ExpandEnv(path)

	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}

	return filepath.Abs(path)
}
