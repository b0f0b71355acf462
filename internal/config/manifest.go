package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EngineManifest describes how to launch the engine process. A YAML
// manifest keeps multi-argument commands and credentials out of flag
// strings.
type EngineManifest struct {
	Command        string            `yaml:"command"`
	Args           []string          `yaml:"args"`
	Env            map[string]string `yaml:"env"`
	Dir            string            `yaml:"dir"`
	AutoInitialize *bool             `yaml:"auto_initialize"`
}

// LoadEngineManifest reads and parses a YAML engine manifest.
func LoadEngineManifest(path string) (*EngineManifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m EngineManifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("engine manifest %s: %w", path, err)
	}
	if m.Command == "" {
		return nil, fmt.Errorf("engine manifest %s: command is required", path)
	}
	return &m, nil
}

func (m *EngineManifest) apply(c *Config) {
	c.EngineCommand = m.Command
	c.EngineArgs = m.Args
	c.EngineDir = m.Dir
	c.EngineEnv = nil
	for k, v := range m.Env {
		c.EngineEnv = append(c.EngineEnv, k+"="+v)
	}
	if m.AutoInitialize != nil {
		c.AutoInitialize = *m.AutoInitialize
	}
}
