// Package dotdir manages the .chatmerge/ and ~/.chatmerge directories.
//
// The directory holds config.toml, credentials.toml, the default SQLite
// database, embedded vector stores and uploaded attachment blobs.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the chatmerge directory.
	dirName = ".chatmerge"

	// UploadsDir holds attachment blobs written by the local blob store.
	UploadsDir = "uploads"

	// VectorsDir holds embedded vector store files (chromem, sqlite-vec).
	VectorsDir = "vectors"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the target absolute path to a .chatmerge/ directory.
// Order of precedence is as follows:
//  1. Provided override
//  2. Local ./.chatmerge/ dir
//  3. Home ~/.chatmerge/ dir, created when missing
func (m *Manager) Target(overrideDir string) (string, error) {
	var dir string

	switch {
	case overrideDir != "":
		dir = overrideDir

	case m.localDirExists():
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		dir = filepath.Join(cwd, dirName)

	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, dirName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating chatmerge directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

// Sub resolves the target directory and returns the named subdirectory
// within it, creating it if needed.
func (m *Manager) Sub(overrideDir, name string) (string, error) {
	target, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(target, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s directory: %w", name, err)
	}

	return dir, nil
}

// localDirExists checks whether a .chatmerge/ directory exists in the current
// working directory.
func (m *Manager) localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}

	info, err := os.Stat(filepath.Join(cwd, dirName))
	return err == nil && info.IsDir()
}
