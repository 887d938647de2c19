// Package catalog holds the per-document-type requirement catalog: which
// section keys a type requires, which context-conditional fields apply, and
// whether the type demands recommendations. The catalog is configuration
// consumed by the readiness validator, never mutated at runtime.
package catalog

import (
	dErrors "attest/pkg/domain-errors"
)

// Conditional is a declarative predicate over the document's context record:
// when WhenField equals Equals, RequireField must be present and non-empty.
type Conditional struct {
	WhenField    string `yaml:"when_field"`
	Equals       string `yaml:"equals"`
	RequireField string `yaml:"require_field"`
	Message      string `yaml:"message"`
}

// Applies evaluates the trigger half of the predicate.
func (c Conditional) Applies(docContext map[string]string) bool {
	return docContext[c.WhenField] == c.Equals
}

// Satisfied evaluates the requirement half of the predicate.
func (c Conditional) Satisfied(docContext map[string]string) bool {
	return docContext[c.RequireField] != ""
}

// Profile is one requirement sub-profile. Compound document types union
// several profiles.
type Profile struct {
	Name                   string        `yaml:"name"`
	RequiredSections       []string      `yaml:"required_sections"`
	Conditionals           []Conditional `yaml:"conditionals"`
	RequireRecommendations bool          `yaml:"require_recommendations"`
}

// Catalog maps document types to their requirement profiles.
type Catalog struct {
	types    map[string][]string
	profiles map[string]Profile
}

// Resolve returns the profiles for a document type, in catalog order.
// Compound types return more than one profile.
func (c *Catalog) Resolve(docType string) ([]Profile, error) {
	names, ok := c.types[docType]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "unknown document type")
	}
	profiles := make([]Profile, 0, len(names))
	for _, name := range names {
		p, ok := c.profiles[name]
		if !ok {
			return nil, dErrors.New(dErrors.CodeInternal, "document type references missing profile "+name)
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// HasType reports whether the catalog knows the document type.
func (c *Catalog) HasType(docType string) bool {
	_, ok := c.types[docType]
	return ok
}

// RequiredSections returns the deduplicated union of required section keys
// across a type's profiles, preserving first-seen order.
func (c *Catalog) RequiredSections(docType string) ([]string, error) {
	profiles, err := c.Resolve(docType)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var keys []string
	for _, p := range profiles {
		for _, key := range p.RequiredSections {
			if seen[key] {
				continue
			}
			seen[key] = true
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Default returns the built-in catalog used for development and tests.
// Production deployments load their own via Load.
func Default() *Catalog {
	return &Catalog{
		types: map[string][]string{
			"security_assessment":   {"security"},
			"privacy_assessment":    {"privacy"},
			"combined_assessment":   {"security", "privacy"},
			"procedural_assessment": {"procedural"},
		},
		profiles: map[string]Profile{
			"security": {
				Name:                   "security",
				RequiredSections:       []string{"scope", "methodology", "findings"},
				RequireRecommendations: true,
				Conditionals: []Conditional{
					{
						WhenField:    "scope",
						Equals:       "limited",
						RequireField: "scope_justification",
						Message:      "limited-scope assessments require a scope justification",
					},
				},
			},
			"privacy": {
				Name:                   "privacy",
				RequiredSections:       []string{"scope", "data_inventory", "findings"},
				RequireRecommendations: true,
				Conditionals: []Conditional{
					{
						WhenField:    "cross_border",
						Equals:       "true",
						RequireField: "transfer_mechanism",
						Message:      "cross-border processing requires a transfer mechanism",
					},
				},
			},
			"procedural": {
				Name:             "procedural",
				RequiredSections: []string{"scope", "procedures"},
			},
		},
	}
}
