// Package models lists the model identifiers the research backend accepts.
package models

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Model is one selectable backend model.
type Model struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

// DefaultID is submitted when no model is chosen.
const DefaultID = "openai/gpt-4o-mini"

// Catalog is an ordered, id-unique list of models.
type Catalog []Model

// Default returns the built-in catalog.
func Default() Catalog {
	return Catalog{
		{ID: "openai/gpt-4o-mini", Name: "GPT-4o Mini", Description: "Fast & Affordable"},
		{ID: "openai/gpt-4o", Name: "GPT-4o", Description: "Most Capable"},
		{ID: "anthropic/claude-3.5-sonnet", Name: "Claude 3.5 Sonnet", Description: "Best Reasoning"},
	}
}

// Lookup finds a model by id.
func (c Catalog) Lookup(id string) (Model, bool) {
	for _, m := range c {
		if m.ID == id {
			return m, true
		}
	}
	return Model{}, false
}

// Index returns the position of id, or 0 when it is not listed.
func (c Catalog) Index(id string) int {
	for i, m := range c {
		if m.ID == id {
			return i
		}
	}
	return 0
}

// Validate checks that every entry has a unique, non-empty id.
func (c Catalog) Validate() error {
	if len(c) == 0 {
		return errors.New("catalog is empty")
	}
	seen := make(map[string]bool, len(c))
	for i, m := range c {
		if m.ID == "" {
			return fmt.Errorf("model %d has no id", i)
		}
		if seen[m.ID] {
			return fmt.Errorf("duplicate model id %q", m.ID)
		}
		seen[m.ID] = true
	}
	return nil
}

type catalogFile struct {
	Models Catalog `yaml:"models"`
}

// Load reads a catalog from a YAML file of the form
//
//	models:
//	  - id: openai/gpt-4o
//	    name: GPT-4o
//	    description: Most Capable
//
// An empty path yields the built-in catalog.
func Load(path string) (Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes catalog YAML.
func Parse(data []byte) (Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse model catalog: %w", err)
	}
	for i := range f.Models {
		if f.Models[i].Name == "" {
			f.Models[i].Name = f.Models[i].ID
		}
	}
	if err := f.Models.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model catalog: %w", err)
	}
	return f.Models, nil
}
