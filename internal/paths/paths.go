package paths

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.activityhub.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".activityhub")
}

// DataDir returns the daemon data directory.
func DataDir() string {
	return filepath.Join(BaseDir(), "data")
}

// LockPath returns the daemon lock file path.
func LockPath() string {
	return filepath.Join(DataDir(), "LOCK")
}

// LogDir returns the daemon log directory.
func LogDir() string {
	return filepath.Join(BaseDir(), "logs")
}

// LogPath returns the daemon log file path.
func LogPath() string {
	return filepath.Join(LogDir(), "hubd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDirs creates the data and log directories with proper permissions.
func EnsureDirs() error {
	for _, d := range []string{DataDir(), LogDir()} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
