// Package entry persists the flowwatch config entry: the stable ID that
// prefixes every entity unique ID, plus user preferences.
// The entry is stored in ~/.config/flowwatch/entry.toml.
package entry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	toml "github.com/pelletier/go-toml/v2"
)

// Entry is one configured FileFlows server.
type Entry struct {
	ID        string    `toml:"id"`
	Title     string    `toml:"title"`
	Server    string    `toml:"server"` // host_port of the server the entry was created for
	Theme     string    `toml:"theme"`
	CreatedAt time.Time `toml:"created_at"`
}

const (
	defaultEntryPath = "~/.config/flowwatch/entry.toml"
	DefaultTheme     = "Nightfox"
)

// DefaultPath returns the default entry file path.
func DefaultPath() string {
	return defaultEntryPath
}

// Load reads the entry at path. A missing or unreadable file yields an
// entry without an ID and the default theme.
func Load(path string) Entry {
	e, err := read(path)
	if err != nil {
		return Entry{Theme: DefaultTheme}
	}
	return e
}

// read returns the stored entry. A missing file is not an error.
func read(path string) (Entry, error) {
	e := Entry{Theme: DefaultTheme}

	resolved, err := resolvePath(path)
	if err != nil {
		return e, fmt.Errorf("resolve path: %w", err)
	}
	bytes, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return e, nil
		}
		return e, fmt.Errorf("read entry: %w", err)
	}
	if err := toml.Unmarshal(bytes, &e); err != nil {
		return Entry{Theme: DefaultTheme}, fmt.Errorf("parse entry %s: %w", resolved, err)
	}
	if strings.TrimSpace(e.Theme) == "" {
		e.Theme = DefaultTheme
	}
	return e, nil
}

// LoadOrCreate returns the stored entry, creating and saving one with a fresh
// ID when none exists. title and server fill in blank fields. An existing file
// that cannot be read or parsed is an error and is left untouched.
func LoadOrCreate(path, title, server string) (Entry, error) {
	e, err := read(path)
	if err != nil {
		return Entry{}, err
	}
	changed := false
	if strings.TrimSpace(e.ID) == "" {
		e.ID = uuid.NewString()
		e.CreatedAt = time.Now().UTC().Truncate(time.Second)
		changed = true
	} else if _, err := uuid.Parse(e.ID); err != nil {
		return Entry{}, fmt.Errorf("entry id %q: %w", e.ID, err)
	}
	if strings.TrimSpace(e.Title) == "" && title != "" {
		e.Title = title
		changed = true
	}
	if e.Server == "" && server != "" {
		e.Server = server
		changed = true
	}
	if changed {
		if err := Save(path, e); err != nil {
			return Entry{}, err
		}
	}
	return e, nil
}

// Save writes the entry to path, creating directories as needed.
func Save(path string, e Entry) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create entry dir: %w", err)
	}

	bytes, err := toml.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	if err := os.WriteFile(resolved, bytes, 0o644); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultEntryPath)
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
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
