package tool

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Name is the tool name hosts address
const Name = "biomni_agent"

// Parameter describes one tool parameter
type Parameter struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description" yaml:"description"`
	Required    bool   `json:"required" yaml:"required"`
	Default     any    `json:"default,omitempty" yaml:"default,omitempty"`

	// accepts lists the JSON types the schema lets through before coercion
	accepts []string
}

// Definition is the tool declaration handed to hosts
type Definition struct {
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description" yaml:"description"`
	Parameters  []Parameter `json:"parameters" yaml:"parameters"`
}

// BiomniDefinition returns the biomni_agent declaration
func BiomniDefinition() Definition {
	return Definition{
		Name: Name,
		Description: "Run the Biomni biomedical research agent on a natural language query " +
			"and return its analysis, conclusions, recommendations and references.",
		Parameters: []Parameter{
			{
				Name:        "research_query",
				Type:        "string",
				Description: "The biomedical research question or task",
				Required:    true,
				accepts:     []string{"string"},
			},
			{
				Name:        "max_execution_time",
				Type:        "integer",
				Description: "Maximum execution time in seconds",
				Default:     600,
				accepts:     []string{"integer", "number", "string", "null"},
			},
			{
				Name:        "include_citations",
				Type:        "boolean",
				Description: "Include references in the formatted result",
				Default:     true,
				accepts:     []string{"boolean", "number", "string", "null"},
			},
		},
	}
}

// Schema builds the JSON Schema for the definition. Unknown parameters are
// allowed since hosts attach their own.
func (d Definition) Schema() (*gojsonschema.Schema, error) {
	properties := make(map[string]any)
	required := []string{}

	for _, p := range d.Parameters {
		types := p.accepts
		if len(types) == 0 {
			types = []string{p.Type}
		}
		prop := map[string]any{
			"type":        types,
			"description": p.Description,
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	doc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		doc["required"] = required
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s schema: %w", d.Name, err)
	}
	return schema, nil
}
