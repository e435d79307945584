// Package config provides configuration loading and path management.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths holds the per-user directories turnwire writes to, following the
// XDG base directory spec on Unix.
type Paths struct {
	Data   string // ~/.local/share/turnwire
	Config string // ~/.config/turnwire
	Cache  string // ~/.cache/turnwire
	State  string // ~/.local/state/turnwire
}

// GetPaths resolves the standard paths, honoring the XDG_*_HOME overrides.
func GetPaths() *Paths {
	return &Paths{
		Data:   appDir("XDG_DATA_HOME", ".local", "share"),
		Config: appDir("XDG_CONFIG_HOME", ".config"),
		Cache:  appDir("XDG_CACHE_HOME", ".cache"),
		State:  appDir("XDG_STATE_HOME", ".local", "state"),
	}
}

// appDir resolves one XDG base directory and appends the app name. On
// Windows everything lands under APPDATA.
func appDir(envVar string, homeParts ...string) string {
	base := os.Getenv(envVar)
	if base == "" {
		if runtime.GOOS == "windows" {
			base = os.Getenv("APPDATA")
		} else {
			base = filepath.Join(append([]string{os.Getenv("HOME")}, homeParts...)...)
		}
	}
	return filepath.Join(base, "turnwire")
}

// EnsurePaths creates all required directories.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Data, p.Config, p.Cache, p.State} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// JournalPath returns the default directory for the journal sink.
func (p *Paths) JournalPath() string {
	return filepath.Join(p.Data, "journal")
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(GetPaths().Config, "turnwire.json")
}

// ProjectConfigPath returns the path to a project's config file.
func ProjectConfigPath(directory string) string {
	return filepath.Join(directory, ".turnwire", "turnwire.json")
}
