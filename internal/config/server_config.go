package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ChamsBouzaiene/dodo/internal/mcp"
)

// ServersFile is the on-disk shape of an MCP server config file: a mapping
// from server name to its stdio/sse settings.
type ServersFile struct {
	Servers map[string]*ServerEntry `yaml:"servers" json:"servers"`
}

// ServerEntry mirrors mcp.ServerConfig's fields for (de)serialization; the
// server name itself comes from the map key, not the entry body.
type ServerEntry struct {
	Transport   mcp.TransportKind `yaml:"transport" json:"transport,omitempty"`
	Disabled    bool              `yaml:"disabled" json:"disabled,omitempty"`
	Command     string            `yaml:"command" json:"command,omitempty"`
	Args        []string          `yaml:"args" json:"args,omitempty"`
	Env         map[string]string `yaml:"env" json:"env,omitempty"`
	Cwd         string            `yaml:"cwd" json:"cwd,omitempty"`
	URL         string            `yaml:"url" json:"url,omitempty"`
	Headers     map[string]string `yaml:"headers" json:"headers,omitempty"`
	ToolTimeout int               `yaml:"tool_timeout" json:"tool_timeout,omitempty"`
}

// LoadServers reads a YAML or JSON server config file (by extension) and
// returns the enabled+disabled entries as mcp.ServerConfig, sorted by name
// for determinism downstream. Disabled entries are kept (the pool skips
// them and logs), not dropped here.
func LoadServers(path string) ([]*mcp.ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mcp config %s: %w", path, err)
	}

	var file ServersFile
	if isYAML(path) {
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse yaml mcp config %s: %w", path, err)
		}
	} else {
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse json mcp config %s: %w", path, err)
		}
	}

	configs := make([]*mcp.ServerConfig, 0, len(file.Servers))
	for name, entry := range file.Servers {
		toolTimeout := mcp.DefaultToolTimeout
		if entry.ToolTimeout > 0 {
			toolTimeout = time.Duration(entry.ToolTimeout) * time.Second
		}
		cfg := &mcp.ServerConfig{
			Name:        name,
			Transport:   entry.Transport,
			Disabled:    entry.Disabled,
			Command:     entry.Command,
			Args:        entry.Args,
			Env:         entry.Env,
			Cwd:         expandHome(entry.Cwd),
			URL:         entry.URL,
			Headers:     entry.Headers,
			ToolTimeout: toolTimeout,
		}
		if !cfg.Disabled {
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid server %q: %w", name, err)
			}
		}
		configs = append(configs, cfg)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].Name < configs[j].Name })

	return configs, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// expandHome expands a leading "~" to $HOME, matching the stdio transport's
// argument expansion so cwd entries can use the same shorthand.
func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home := os.Getenv("HOME")
	if home == "" {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
