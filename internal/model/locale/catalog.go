package locale

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed catalogs.yaml
var seedYAML []byte

// Catalog holds the fixed user-facing sentences of one language.
type Catalog struct {
	Tag          string `yaml:"tag" json:"tag"`
	Name         string `yaml:"name" json:"name"`
	Welcome      string `yaml:"welcome" json:"welcome"`
	Apology      string `yaml:"apology" json:"apology"`
	SignInNotice string `yaml:"signInNotice" json:"signInNotice"`
	Fallback     string `yaml:"fallback" json:"fallback"`
	Placeholder  string `yaml:"placeholder" json:"placeholder"`
	SystemPrompt string `yaml:"systemPrompt" json:"-"`
}

// Parse decodes a YAML list of catalogs.
func Parse(data []byte) ([]Catalog, error) {
	var items []Catalog
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode catalogs: %w", err)
	}
	for i, item := range items {
		if item.Tag == "" {
			return nil, fmt.Errorf("catalog %d: tag is required", i)
		}
		if item.Welcome == "" || item.Apology == "" {
			return nil, fmt.Errorf("catalog %s: welcome and apology are required", item.Tag)
		}
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no catalogs defined")
	}
	return items, nil
}

// Seed returns the built-in catalogs. Vietnamese comes first and is the default.
func Seed() []Catalog {
	items, err := Parse(seedYAML)
	if err != nil {
		panic(err)
	}
	return items
}
