// Package prefs handles scrapedeck user preferences persistence.
// Preferences are stored in ~/.config/scrapedeck/prefs.toml.
package prefs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Prefs holds the dashboard state remembered between runs.
type Prefs struct {
	Theme     string `toml:"theme"`
	Status    string `toml:"status_filter"`
	SortBy    string `toml:"sort_by"`
	SortOrder string `toml:"sort_order"`
}

const (
	defaultPrefsPath = "~/.config/scrapedeck/prefs.toml"
	defaultTheme     = "Nightfox"
	defaultSortBy    = "created"
	defaultSortOrder = "desc"
)

// DefaultPath returns the default preferences file path.
func DefaultPath() string {
	return defaultPrefsPath
}

// Default returns the preferences used when nothing is stored.
func Default() Prefs {
	return Prefs{Theme: defaultTheme, SortBy: defaultSortBy, SortOrder: defaultSortOrder}
}

// Load reads preferences from the given path. Any problem reading them
// yields the defaults: preferences are never worth refusing to start over.
func Load(path string) Prefs {
	resolved, err := resolvePath(path)
	if err != nil {
		return Default()
	}

	file, err := os.Open(resolved)
	if err != nil {
		return Default()
	}
	defer func() { _ = file.Close() }()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Default()
	}

	var p Prefs
	if err := toml.Unmarshal(bytes, &p); err != nil {
		return Default()
	}
	return p.normalized()
}

func (p Prefs) normalized() Prefs {
	def := Default()
	p.Theme = strings.TrimSpace(p.Theme)
	if p.Theme == "" {
		p.Theme = def.Theme
	}
	p.Status = strings.ToLower(strings.TrimSpace(p.Status))
	p.SortBy = strings.ToLower(strings.TrimSpace(p.SortBy))
	if p.SortBy == "" {
		p.SortBy = def.SortBy
	}
	switch strings.ToLower(strings.TrimSpace(p.SortOrder)) {
	case "asc":
		p.SortOrder = "asc"
	default:
		p.SortOrder = def.SortOrder
	}
	return p
}

// Save writes preferences to the given path, creating directories as needed.
func Save(path string, p Prefs) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}

	bytes, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}

	if err := os.WriteFile(resolved, bytes, 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}

	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultPrefsPath)
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", errors.New("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
