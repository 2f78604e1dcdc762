// Package dotdir manages the .careline/ and ~/.careline directories.
//
// The directory holds config.toml, credentials.toml, the saved conversation of
// the last chat session and, unless configured otherwise, recorded captures.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	dirName     = ".careline"
	capturesDir = "captures"

	// HomeEnvVar points careline at a directory to use instead of a local
	// or home .careline/ directory.
	HomeEnvVar = "CARELINE_HOME"
)

// Manager resolves the careline directory and the files stored in it.
type Manager struct {
	getwd   func() (string, error)
	homeDir func() (string, error)
}

func NewManager() *Manager {
	return &Manager{
		getwd:   os.Getwd,
		homeDir: os.UserHomeDir,
	}
}

// Target returns the absolute path of the careline directory, creating it if
// needed. The first of these wins:
//  1. overrideDir, usually from --config-dir
//  2. $CARELINE_HOME
//  3. ./.careline/ when it exists
//  4. ~/.careline/
func (m *Manager) Target(overrideDir string) (string, error) {
	dir, err := m.resolve(overrideDir)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating careline directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

// Path returns the path of name inside the careline directory.
func (m *Manager) Path(overrideDir, name string) (string, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// CapturesDir returns the default directory for recorded stream captures.
// It is not created until a capture is written.
func (m *Manager) CapturesDir(overrideDir string) (string, error) {
	return m.Path(overrideDir, capturesDir)
}

func (m *Manager) resolve(overrideDir string) (string, error) {
	if overrideDir != "" {
		return overrideDir, nil
	}
	if env := os.Getenv(HomeEnvVar); env != "" {
		return env, nil
	}

	cwd, err := m.getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	local := filepath.Join(cwd, dirName)
	if info, err := os.Stat(local); err == nil && info.IsDir() {
		return local, nil
	}

	home, err := m.homeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, dirName), nil
}
