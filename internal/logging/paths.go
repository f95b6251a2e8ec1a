package logging

import (
	"os"
	"path/filepath"
)

// HomeEnv overrides the knowbase home directory.
const HomeEnv = "KNOWBASE_HOME"

// HomeDir returns $KNOWBASE_HOME or ~/.knowbase, falling back to the temp
// directory when the user home is unavailable.
func HomeDir() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".knowbase")
	}
	return filepath.Join(home, ".knowbase")
}

// DefaultLogDir returns <home>/logs.
func DefaultLogDir() string {
	return filepath.Join(HomeDir(), "logs")
}

// DefaultLogPath returns <home>/logs/server.log.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "server.log")
}
