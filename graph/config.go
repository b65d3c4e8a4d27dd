package graph

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/tool"
)

// EdgeConfig is the YAML declaration of one edge. From and To accept either
// a single node id or a list of ids.
type EdgeConfig struct {
	From           StringList `yaml:"from"`
	To             StringList `yaml:"to"`
	Kind           string     `yaml:"kind,omitempty"`
	Condition      string     `yaml:"condition,omitempty"`
	Prompt         string     `yaml:"prompt,omitempty"`
	PromptKey      string     `yaml:"promptKey,omitempty"`
	ExcludeResults bool       `yaml:"excludeResults,omitempty"`
	Description    string     `yaml:"description,omitempty"`
}

// NodeConfig is the YAML declaration of one node. Model and Tools name
// entries in the registries passed to Config.Realize.
type NodeConfig struct {
	ID            string   `yaml:"id"`
	Model         string   `yaml:"model,omitempty"`
	Instructions  string   `yaml:"instructions,omitempty"`
	Tools         []string `yaml:"tools,omitempty"`
	MaxModelCalls int      `yaml:"maxModelCalls,omitempty"`
}

// Config is the YAML declaration of a whole graph.
type Config struct {
	Entry string       `yaml:"entry"`
	Nodes []NodeConfig `yaml:"nodes"`
	Edges []EdgeConfig `yaml:"edges"`
}

// StringList unmarshals either a scalar string or a sequence of strings.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		*s = StringList{single}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*s = StringList(list)
		return nil
	default:
		return fmt.Errorf("expected string or string list, got yaml kind %d", value.Kind)
	}
}

// LoadConfig parses a graph declaration from YAML.
func LoadConfig(r io.Reader) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode graph config: %w", err)
	}
	return &cfg, nil
}

// LoadConfigFile parses a graph declaration from a YAML file.
func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open graph config: %w", err)
	}
	defer f.Close()
	return LoadConfig(f)
}

// Builder converts the declaration into a graph builder, resolving edge
// kinds. Node models and tools stay nil in the returned builder's nodes; the
// caller attaches them before Build, or uses nodes as pure routing
// scaffolding in tests.
func (c *Config) Builder() (*Builder, error) {
	b := NewBuilder(c.Entry)

	for _, nc := range c.Nodes {
		b.AddNode(&Node{
			ID:            nc.ID,
			Instructions:  nc.Instructions,
			MaxModelCalls: nc.MaxModelCalls,
		})
	}

	for i, ec := range c.Edges {
		kind, err := parseEdgeKind(ec.Kind)
		if err != nil {
			return nil, fmt.Errorf("edge %d: %w", i, err)
		}
		b.AddEdge(Edge{
			From:           []string(ec.From),
			To:             []string(ec.To),
			Kind:           kind,
			Condition:      ec.Condition,
			Prompt:         ec.Prompt,
			PromptKey:      ec.PromptKey,
			ExcludeResults: ec.ExcludeResults,
			Description:    ec.Description,
		})
	}

	return b, nil
}

// Realize builds the declared graph and resolves every node's model and tool
// names through the given registries. Declared names missing from a registry
// fail the build; nodes declaring no model stay nil for the caller to wire.
func (c *Config) Realize(models map[string]model.Model, tools map[string]tool.Tool) (*Graph, error) {
	b, err := c.Builder()
	if err != nil {
		return nil, err
	}
	g, err := b.Build()
	if err != nil {
		return nil, err
	}

	for _, nc := range c.Nodes {
		node, _ := g.Node(nc.ID)

		if nc.Model != "" {
			m, ok := models[nc.Model]
			if !ok {
				return nil, fmt.Errorf("node %s: unknown model %q", nc.ID, nc.Model)
			}
			node.Model = m
		}

		for _, name := range nc.Tools {
			t, ok := tools[name]
			if !ok {
				return nil, fmt.Errorf("node %s: unknown tool %q", nc.ID, name)
			}
			if node.Tools == nil {
				node.Tools = map[string]tool.Tool{}
			}
			node.Tools[t.Name()] = t
		}
	}

	return g, nil
}

func parseEdgeKind(s string) (EdgeKind, error) {
	switch s {
	case "":
		return EdgeUnset, nil
	case "handoff":
		return EdgeHandoff, nil
	case "direct":
		return EdgeDirect, nil
	default:
		return EdgeUnset, fmt.Errorf("unknown edge kind %q", s)
	}
}
