// Package templates provides embedded prompt templates with user override support.
// Templates are loaded with resolution order:
// 1. User override: templatesDir/{name}.toml
// 2. Embedded default: internal/templates/{name}.toml
package templates

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed *.toml
var fs embed.FS

// AnalyzeStory is the prompt used by the story analysis worker
const AnalyzeStory = "analyze-story"

// Template represents a loaded prompt template.
// Prompt is a text/template body; System is prepended verbatim.
type Template struct {
	Name   string `toml:"name"`
	System string `toml:"system"`
	Prompt string `toml:"prompt"`
}

// GetTemplate loads a template by name with resolution order:
// 1. User override: templatesDir/{name}.toml
// 2. Embedded default: internal/templates/{name}.toml
func GetTemplate(name string, templatesDir string) (*Template, error) {
	if templatesDir != "" {
		userPath := filepath.Join(templatesDir, name+".toml")
		if data, err := os.ReadFile(userPath); err == nil {
			return parseTemplate(name, data)
		}
	}

	data, err := fs.ReadFile(name + ".toml")
	if err != nil {
		return nil, fmt.Errorf("template '%s' not found (checked user override and embedded)", name)
	}
	return parseTemplate(name, data)
}

// ListEmbeddedTemplates returns names of all embedded templates
func ListEmbeddedTemplates() ([]string, error) {
	entries, err := fs.ReadDir(".")
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".toml") {
			names = append(names, strings.TrimSuffix(entry.Name(), ".toml"))
		}
	}
	return names, nil
}

func parseTemplate(name string, data []byte) (*Template, error) {
	var t Template
	if err := toml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	if strings.TrimSpace(t.Prompt) == "" {
		return nil, fmt.Errorf("template %s has an empty prompt", name)
	}
	if t.Name == "" {
		t.Name = name
	}
	return &t, nil
}
