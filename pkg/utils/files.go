package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetPathInfo resolves relPath to an absolute, cleaned path and the
// directory containing it.
func GetPathInfo(relPath string) (fullPath string, parentDir string, err error) {
	fullPath, err = filepath.Abs(relPath)
	if err != nil {
		return "", "", err
	}
	parentDir = filepath.Dir(fullPath)
	return fullPath, parentDir, nil
}

// OpenSource opens a source file for streaming and returns it with its
// absolute path. Directories are rejected.
func OpenSource(relPath string) (*os.File, string, error) {
	fullPath, _, err := GetPathInfo(relPath)
	if err != nil {
		return nil, "", err
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, fullPath, err
	}
	if info.IsDir() {
		return nil, fullPath, fmt.Errorf("%s is a directory", fullPath)
	}
	f, err := os.Open(fullPath)
	if err != nil {
		return nil, fullPath, err
	}
	return f, fullPath, nil
}
