package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Players lists the external players the process surface knows how to drive,
// in order of preference.
var Players = []string{"mpv", "ffplay", "vlc"}

// FindPlayer returns the path to a supported video player.
// If customPath is non-empty, it tries that path or looks it up in PATH.
func FindPlayer(customPath string) (string, error) {
	if customPath != "" {
		if _, err := os.Stat(customPath); err == nil {
			return customPath, nil
		}
		if p, err := exec.LookPath(customPath); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("could not find player at %q", customPath)
	}
	for _, name := range Players {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("could not find %s in PATH; install mpv or pass --no-player", strings.Join(Players, ", "))
}

// PlayerName maps a player path to one of Players, or "" if unknown.
func PlayerName(path string) string {
	base := strings.ToLower(filepath.Base(path))
	base = strings.TrimSuffix(base, ".exe")
	for _, name := range Players {
		if base == name {
			return name
		}
	}
	return ""
}
