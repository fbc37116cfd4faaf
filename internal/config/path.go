package config

import (
	"os"
	"path/filepath"
	"strings"
)

// DataDir is the default home of the database, uploads and models:
// $XDG_DATA_HOME/spice when set, ~/.local/share/spice otherwise.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "spice")
	}
	return filepath.Join("~", ".local", "share", "spice")
}

// ExpandPath resolves $VAR references and a leading ~.
func ExpandPath(path string) string {
	path = os.ExpandEnv(path)
	if path != "~" && !strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
