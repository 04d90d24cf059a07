// Package config loads and edits the declarative target-state document.
//
// The document is YAML with top-level sections: lock, set (preference
// assignments grouped by domain), vars (substitution variables for external
// commands), commands, packages, and remote.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrLocked is returned by mutating entry points while the document's lock
// flag is set.
var ErrLocked = errors.New("configuration is locked")

// ErrNotFound is returned when no document exists at the configured path.
var ErrNotFound = errors.New("configuration file not found")

// Remote describes the optional remote document source.
type Remote struct {
	URL      string `yaml:"url"`
	Autosync bool   `yaml:"autosync,omitempty"`
}

// Packages is the auxiliary package-list section.
type Packages struct {
	Formulae []string `yaml:"formulae,omitempty"`
	Casks    []string `yaml:"casks,omitempty"`
	Taps     []string `yaml:"taps,omitempty"`
	NoDeps   bool     `yaml:"no_deps,omitempty"`
}

// Document is the parsed target-state document.
type Document struct {
	Lock     bool                      `yaml:"lock,omitempty"`
	Set      map[string]map[string]any `yaml:"set,omitempty"`
	Vars     map[string]string         `yaml:"vars,omitempty"`
	Commands Commands                  `yaml:"commands,omitempty"`
	Packages *Packages                 `yaml:"packages,omitempty"`
	Remote   *Remote                   `yaml:"remote,omitempty"`
}

// EnsureUnlocked gates mutating operations on the lock flag.
func (d *Document) EnsureUnlocked() error {
	if d.Lock {
		return ErrLocked
	}
	return nil
}

// Config is a handle on the document at a fixed path. Loading is explicit so
// commands decide when to re-read after a remote refresh.
type Config struct {
	path string
}

func New(path string) *Config {
	return &Config{path: path}
}

func (c *Config) Path() string { return c.path }

func (c *Config) Exists() bool {
	_, err := os.Stat(c.path)
	return err == nil
}

// Load parses the document. The lock flag is returned, not enforced; callers
// gate on Document.EnsureUnlocked before mutating anything.
func (c *Config) Load() (*Document, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, c.path)
		}
		return nil, err
	}
	return Parse(data)
}

// Parse decodes document bytes.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &doc, nil
}

// Save writes the document back. Comments in the original file are not
// preserved by this path; lock toggling uses SetLock instead, which edits the
// raw document tree.
func (c *Config) Save(doc *Document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	return c.SaveRaw(data)
}

// SaveRaw writes raw document bytes, creating parent directories as needed.
func (c *Config) SaveRaw(data []byte) error {
	if dir := filepath.Dir(c.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(c.path, data, 0o644)
}

// Digest returns the hex SHA-256 of the document bytes. The snapshot records
// it so unapply can warn when the document changed since the last apply.
func (c *Config) Digest() (string, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// DefaultPath returns the first existing candidate location, or the primary
// candidate when none exists yet.
func DefaultPath() string {
	var candidates []string
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".config", "prefsync", "config.yaml"),
			filepath.Join(home, ".config", "prefsync.yaml"),
		)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		candidates = append(candidates,
			filepath.Join(xdg, "prefsync", "config.yaml"),
			filepath.Join(xdg, "prefsync.yaml"),
		)
	}
	if len(candidates) == 0 {
		return "config.yaml"
	}
	for _, cand := range candidates {
		if _, err := os.Stat(cand); err == nil {
			return cand
		}
	}
	return candidates[0]
}
