package registry

import (
	"os"
	"path/filepath"
	"time"
)

// OSLoader is the default Loader, reading from the real filesystem.
type OSLoader struct{}

func (OSLoader) ReadFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (OSLoader) Abs(path string) (string, error) {
	return filepath.Abs(path)
}

func (OSLoader) ModTime(path string) (time.Time, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}
