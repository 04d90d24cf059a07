package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Command is one externally defined shell action. Immutable once loaded.
type Command struct {
	Name        string   `yaml:"-"`
	Run         string   `yaml:"run"`
	Sudo        bool     `yaml:"sudo,omitempty"`
	EnsureFirst bool     `yaml:"ensure_first,omitempty"`
	Flag        bool     `yaml:"flag,omitempty"`
	Required    []string `yaml:"required,omitempty"`
}

// Commands preserves document declaration order, which the serial execution
// phase depends on. A plain map would lose it.
type Commands []Command

func (c Commands) Get(name string) (Command, bool) {
	for _, cmd := range c {
		if cmd.Name == name {
			return cmd, true
		}
	}
	return Command{}, false
}

func (c *Commands) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("commands: expected a mapping, got %s", nodeKind(node))
	}
	out := make(Commands, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var cmd Command
		if err := node.Content[i+1].Decode(&cmd); err != nil {
			return fmt.Errorf("command %q: %w", node.Content[i].Value, err)
		}
		if cmd.Run == "" {
			return fmt.Errorf("command %q: run must not be empty", node.Content[i].Value)
		}
		cmd.Name = node.Content[i].Value
		out = append(out, cmd)
	}
	*c = out
	return nil
}

func (c Commands) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, cmd := range c {
		key := &yaml.Node{Kind: yaml.ScalarNode, Value: cmd.Name}
		val := &yaml.Node{}
		if err := val.Encode(cmd); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, key, val)
	}
	return node, nil
}

func nodeKind(node *yaml.Node) string {
	switch node.Kind {
	case yaml.ScalarNode:
		return "scalar"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	default:
		return "node"
	}
}
