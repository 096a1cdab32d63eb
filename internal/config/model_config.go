package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ModelRecord is one entry in the model config file: a named, provider-bound
// set of options plus an optional system message. Exactly one record is
// "chosen" per interaction per SelectModel's rules.
type ModelRecord struct {
	Title              string `yaml:"title" json:"title"`
	Model              string `yaml:"model" json:"model"`
	Provider           string `yaml:"provider" json:"provider"`
	BaseURL            string `yaml:"base_url" json:"base_url,omitempty"`
	Default            bool   `yaml:"default" json:"default,omitempty"`
	IsReasoning        bool   `yaml:"is_reasoning" json:"is_reasoning,omitempty"`
	ReasoningEffort    string `yaml:"reasoning_effort" json:"reasoning_effort,omitempty"`
	SystemMessage      string `yaml:"systemMessage" json:"systemMessage,omitempty"`
	SystemMessageFile  string `yaml:"systemMessageFile" json:"systemMessageFile,omitempty"`
	SystemMessageFiles []string `yaml:"systemMessageFiles" json:"systemMessageFiles,omitempty"`
}

// ResolvedSystemMessage returns the record's system message, reading and
// concatenating SystemMessageFile/SystemMessageFiles when SystemMessage
// itself is empty. Files are joined with a blank line, in the order given,
// with SystemMessageFile first.
func (r *ModelRecord) ResolvedSystemMessage() (string, error) {
	if r.SystemMessage != "" {
		return r.SystemMessage, nil
	}

	var parts []string
	if r.SystemMessageFile != "" {
		data, err := os.ReadFile(r.SystemMessageFile)
		if err != nil {
			return "", fmt.Errorf("read systemMessageFile %s: %w", r.SystemMessageFile, err)
		}
		parts = append(parts, string(data))
	}
	for _, f := range r.SystemMessageFiles {
		data, err := os.ReadFile(f)
		if err != nil {
			return "", fmt.Errorf("read systemMessageFiles entry %s: %w", f, err)
		}
		parts = append(parts, string(data))
	}
	return strings.Join(parts, "\n\n"), nil
}

// LoadModels reads a YAML or JSON model config file into an ordered list of
// records.
func LoadModels(path string) ([]ModelRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model config %s: %w", path, err)
	}

	var records []ModelRecord
	if isYAML(path) {
		if err := yaml.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("parse yaml model config %s: %w", path, err)
		}
	} else {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("parse json model config %s: %w", path, err)
		}
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("model config %s: no records", path)
	}
	return records, nil
}

// SelectModel applies the selection rule: exact match on model or title,
// else the record marked default, else the first record, else error (the
// error case is unreachable once records is non-empty, since the first
// record always satisfies the last fallback). query is the --model CLI
// flag value; empty means "no explicit selection".
func SelectModel(records []ModelRecord, query string) (ModelRecord, error) {
	if len(records) == 0 {
		return ModelRecord{}, fmt.Errorf("no model records configured")
	}

	if query != "" {
		for _, r := range records {
			if r.Model == query || r.Title == query {
				return r, nil
			}
		}
	}

	for _, r := range records {
		if r.Default {
			return r, nil
		}
	}

	return records[0], nil
}
