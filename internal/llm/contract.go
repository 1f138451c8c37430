package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Contract is a named structured-output contract: the JSON Schema a
// generation result must satisfy.
type Contract struct {
	Name     string
	Schema   json.RawMessage
	required []string
	compiled *jsonschema.Schema
}

// NewContract compiles a JSON Schema document into a contract.
func NewContract(name string, schemaJSON []byte) (*Contract, error) {
	if name == "" {
		return nil, fmt.Errorf("contract name is required")
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", name, err)
	}

	c := jsonschema.NewCompiler()
	resource := name + ".json"
	if err := c.AddResource(resource, doc); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", name, err)
	}
	compiled, err := c.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}

	var top struct {
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(schemaJSON, &top); err != nil {
		return nil, fmt.Errorf("read required fields of %s: %w", name, err)
	}

	return &Contract{
		Name:     name,
		Schema:   json.RawMessage(schemaJSON),
		required: top.Required,
		compiled: compiled,
	}, nil
}

// MustContract is like NewContract but panics on error. Use it only for
// schemas embedded at build time.
func MustContract(name string, schemaJSON []byte) *Contract {
	c, err := NewContract(name, schemaJSON)
	if err != nil {
		panic(err)
	}
	return c
}

// Required returns the top-level required field names.
func (c *Contract) Required() []string {
	return append([]string(nil), c.required...)
}

// Validate checks a raw JSON document against the contract.
func (c *Contract) Validate(raw []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return NewParseError(string(raw), err)
	}
	if err := c.compiled.Validate(inst); err != nil {
		return NewContractError(c.Name, err)
	}
	return nil
}

// SchemaMap returns the schema as a generic map, for SDKs that take the
// schema as a value rather than raw bytes.
func (c *Contract) SchemaMap() map[string]any {
	var m map[string]any
	if err := json.Unmarshal(c.Schema, &m); err != nil {
		return nil
	}
	return m
}

// Render appends the output instructions for this contract to prompt.
func (c *Contract) Render(prompt string) string {
	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\nReturn ONLY valid JSON (no prose, no code fences) that satisfies this JSON Schema:\n")
	sb.Write(c.Schema)
	if len(c.required) > 0 {
		sb.WriteString("\n\nEvery one of these fields is required and must be non-empty: ")
		sb.WriteString(strings.Join(c.required, ", "))
	}
	return sb.String()
}
