package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrLockUnchanged is returned when the lock flag already has the requested
// value.
var ErrLockUnchanged = errors.New("lock flag already in requested state")

// SetLock toggles the lock flag by editing the raw document tree, preserving
// comments and section layout. Setting removes nothing else; unsetting drops
// the key entirely.
func (c *Config) SetLock(locked bool) error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, c.path)
		}
		return err
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return fmt.Errorf("config is not a mapping document")
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return fmt.Errorf("config is not a mapping document")
	}

	idx := -1
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value == "lock" {
			idx = i
			break
		}
	}

	currently := false
	if idx >= 0 {
		currently = doc.Content[idx+1].Value == "true"
	}
	if currently == locked {
		return ErrLockUnchanged
	}

	if locked {
		key := &yaml.Node{Kind: yaml.ScalarNode, Value: "lock"}
		val := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: "true"}
		if idx >= 0 {
			doc.Content[idx+1] = val
		} else {
			doc.Content = append([]*yaml.Node{key, val}, doc.Content...)
		}
	} else if idx >= 0 {
		doc.Content = append(doc.Content[:idx], doc.Content[idx+2:]...)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return c.SaveRaw(buf.Bytes())
}
