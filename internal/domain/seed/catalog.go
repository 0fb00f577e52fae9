package seed

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is the fixed set of protocols, forms and questions the generator
// writes before producing client answers.
type Catalog struct {
	BaselineProtocol string         `yaml:"baseline_protocol"`
	Protocols        []ProtocolSpec `yaml:"protocols"`
	Forms            []FormSpec     `yaml:"forms"`
}

type ProtocolSpec struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Forms       []string `yaml:"forms"` // form keys
}

type FormSpec struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Type        string   `yaml:"type"`
	Questions   []string `yaml:"questions"`
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// ParseCatalog decodes and checks a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	keys := make(map[string]bool, len(c.Forms))
	for _, f := range c.Forms {
		if f.Key == "" || f.Name == "" {
			return fmt.Errorf("catalog: form needs key and name")
		}
		if keys[f.Key] {
			return fmt.Errorf("catalog: duplicate form key %q", f.Key)
		}
		if len(f.Questions) == 0 {
			return fmt.Errorf("catalog: form %q has no questions", f.Key)
		}
		keys[f.Key] = true
	}

	names := make(map[string]bool, len(c.Protocols))
	for _, p := range c.Protocols {
		if names[p.Name] {
			return fmt.Errorf("catalog: duplicate protocol %q", p.Name)
		}
		names[p.Name] = true
		for _, k := range p.Forms {
			if !keys[k] {
				return fmt.Errorf("catalog: protocol %q references unknown form %q", p.Name, k)
			}
		}
	}
	if !names[c.BaselineProtocol] {
		return fmt.Errorf("catalog: baseline protocol %q is not defined", c.BaselineProtocol)
	}
	return nil
}

// Form returns the form with the given key.
func (c *Catalog) Form(key string) (FormSpec, bool) {
	for _, f := range c.Forms {
		if f.Key == key {
			return f, true
		}
	}
	return FormSpec{}, false
}

// Optional lists the protocols other than the baseline, in catalog order.
func (c *Catalog) Optional() []ProtocolSpec {
	var out []ProtocolSpec
	for _, p := range c.Protocols {
		if p.Name != c.BaselineProtocol {
			out = append(out, p)
		}
	}
	return out
}

// QuestionDescription is the description stored with every question of a form.
func QuestionDescription(formKey string) string {
	return formKey + " Question"
}
