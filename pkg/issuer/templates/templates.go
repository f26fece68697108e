// Package templates loads the issuance template catalog: named seed
// values for allowed_vendors / blocked_categories / allowed_tools that
// a bare template_tag expands to when a caller's constraints don't
// override them.
package templates

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/Connerlevi/capnet/pkg/contracts"
)

// Template is one named seed of default constraints.
type Template struct {
	Tag                   string   `yaml:"tag"`
	Action                string   `yaml:"action"` // "spend" or "tool_call"
	MaxAmountCents        int64    `yaml:"max_amount_cents,omitempty"`
	AllowedVendors        []string `yaml:"allowed_vendors,omitempty"`
	BlockedCategories     []string `yaml:"blocked_categories,omitempty"`
	AllowedTools          []string `yaml:"allowed_tools,omitempty"`
	BlockedToolCategories []string `yaml:"blocked_tool_categories,omitempty"`
}

// Catalog is a loaded set of templates keyed by tag.
type Catalog struct {
	byTag map[string]Template
}

// Parse builds a Catalog from a YAML document of the shape:
//
//	templates:
//	  - tag: sandboxmart
//	    action: spend
//	    max_amount_cents: 5000
//	    allowed_vendors: [sandboxmart]
//	    blocked_categories: [alcohol, tobacco, gift_cards]
func Parse(doc []byte) (*Catalog, error) {
	var raw struct {
		Templates []Template `yaml:"templates"`
	}
	if err := yaml.Unmarshal(doc, &raw); err != nil {
		return nil, fmt.Errorf("templates: parse catalog: %w", err)
	}
	c := &Catalog{byTag: make(map[string]Template, len(raw.Templates))}
	for _, t := range raw.Templates {
		if t.Tag == "" {
			return nil, fmt.Errorf("templates: catalog entry missing tag")
		}
		c.byTag[t.Tag] = t
	}
	return c, nil
}

// Lookup returns the template for tag, if any.
func (c *Catalog) Lookup(tag string) (Template, bool) {
	t, ok := c.byTag[tag]
	return t, ok
}

// DefaultSpendConstraints returns tmpl's seed values as SpendConstraints,
// or nil if tmpl carries no spend defaults.
func (t Template) DefaultSpendConstraints() *contracts.SpendConstraints {
	if len(t.AllowedVendors) == 0 && t.MaxAmountCents == 0 {
		return nil
	}
	return &contracts.SpendConstraints{
		Currency:          "USD",
		MaxAmountCents:    t.MaxAmountCents,
		AllowedVendors:    append([]string(nil), t.AllowedVendors...),
		BlockedCategories: append([]string(nil), t.BlockedCategories...),
	}
}

// DefaultToolCallConstraints returns tmpl's seed values as
// ToolCallConstraints, or nil if tmpl carries no tool-call defaults.
func (t Template) DefaultToolCallConstraints() *contracts.ToolCallConstraints {
	if len(t.AllowedTools) == 0 {
		return nil
	}
	return &contracts.ToolCallConstraints{
		AllowedTools:          append([]string(nil), t.AllowedTools...),
		BlockedToolCategories: append([]string(nil), t.BlockedToolCategories...),
	}
}

// DefaultCatalog is the built-in catalog used when no external YAML file
// is configured, covering the scenarios the sandbox merchant and the
// tool-call demo collaborators exercise out of the box.
var DefaultCatalog = mustParseDefault()

func mustParseDefault() *Catalog {
	c, err := Parse([]byte(defaultCatalogYAML))
	if err != nil {
		panic(fmt.Sprintf("templates: default catalog is invalid: %v", err))
	}
	return c
}

const defaultCatalogYAML = `
templates:
  - tag: sandboxmart
    action: spend
    max_amount_cents: 5000
    allowed_vendors: [sandboxmart]
    blocked_categories: [alcohol, tobacco, gift_cards]
  - tag: generic_tool_access
    action: tool_call
    allowed_tools: [web_search, calculator]
    blocked_tool_categories: [filesystem, credential_access]
`
