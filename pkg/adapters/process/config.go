package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProcessConfig describes a local command that serves an exec: webhook.
type ProcessConfig struct {
	Name        string            `yaml:"name" json:"name"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
}

// ConfigFile represents the structure of processes.yaml
type ConfigFile struct {
	Processes []ProcessConfig `yaml:"processes" json:"processes"`
}

// LoadProcesses reads a configuration file (YAML or JSON) and returns the processes by name.
// A missing file yields an empty map.
func LoadProcesses(path string) (map[string]ProcessConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]ProcessConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read process config: %w", err)
	}

	var cfg ConfigFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	procs := make(map[string]ProcessConfig, len(cfg.Processes))
	for _, p := range cfg.Processes {
		if p.Name == "" || p.Command == "" {
			continue
		}
		procs[p.Name] = p
	}
	return procs, nil
}
