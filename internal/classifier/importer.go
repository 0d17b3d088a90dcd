package classifier

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

type keywordFile struct {
	Categories map[string][]keywordEntry `yaml:"categories"`
}

type keywordEntry struct {
	Keyword string `yaml:"keyword"`
	Weight  int    `yaml:"weight"`
	Active  *bool  `yaml:"active"`
}

// ParseKeywordFile reads a YAML keyword table of the form
//
//	categories:
//	  energia_solar:
//	    - keyword: painel solar
//	      weight: 10
//
// Entries are active unless they set active: false.
func ParseKeywordFile(r io.Reader) ([]Keyword, error) {
	var file keywordFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("classifier: parse keyword file: %w", err)
	}
	var out []Keyword
	for category, entries := range file.Categories {
		category = strings.TrimSpace(category)
		if category == "" {
			return nil, fmt.Errorf("classifier: keyword file has an empty category")
		}
		for _, e := range entries {
			kw := strings.TrimSpace(e.Keyword)
			if kw == "" {
				return nil, fmt.Errorf("classifier: empty keyword in category %s", category)
			}
			if e.Weight <= 0 {
				return nil, fmt.Errorf("classifier: keyword %q in %s needs a positive weight", kw, category)
			}
			active := true
			if e.Active != nil {
				active = *e.Active
			}
			out = append(out, Keyword{Category: category, Keyword: kw, Weight: e.Weight, IsActive: active})
		}
	}
	return out, nil
}
