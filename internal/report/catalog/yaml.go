package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// catalogFile is the on-disk YAML shape:
//
//	types:
//	  combined_assessment: [security, privacy]
//	profiles:
//	  security:
//	    required_sections: [scope, methodology, findings]
//	    require_recommendations: true
//	    conditionals:
//	      - when_field: scope
//	        equals: limited
//	        require_field: scope_justification
//	        message: limited-scope assessments require a scope justification
type catalogFile struct {
	Types    map[string][]string `yaml:"types"`
	Profiles map[string]Profile  `yaml:"profiles"`
}

// Load reads a catalog from a YAML file and verifies every type resolves.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(file.Types) == 0 {
		return nil, fmt.Errorf("catalog defines no document types")
	}

	c := &Catalog{types: file.Types, profiles: make(map[string]Profile, len(file.Profiles))}
	for name, p := range file.Profiles {
		p.Name = name
		c.profiles[name] = p
	}
	for docType, names := range file.Types {
		for _, name := range names {
			if _, ok := c.profiles[name]; !ok {
				return nil, fmt.Errorf("document type %q references missing profile %q", docType, name)
			}
		}
	}
	return c, nil
}
