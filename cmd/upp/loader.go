package main

import (
	"os"
	"path/filepath"
	"time"
)

// fsLoader is the concrete, OS-backed registry.Loader used outside tests:
// real files, real mtimes.
type fsLoader struct{}

func (fsLoader) ReadFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (fsLoader) Abs(path string) (string, error) {
	return filepath.Abs(path)
}

func (fsLoader) ModTime(path string) (time.Time, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}
