package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source names one input file and the entity kind it holds. Delimiter, when
// set, overrides every other delimiter setting for this file.
type Source struct {
	Kind      string `yaml:"kind"`
	File      string `yaml:"file"`
	Delimiter string `yaml:"delimiter,omitempty"`
}

// DelimiterRune returns the entry's own delimiter, or 0 if it has none.
func (s Source) DelimiterRune() rune {
	d := unescapeDelimiter(s.Delimiter)
	if d == "" {
		return 0
	}
	return []rune(d)[0]
}

// Manifest lists the source files in processing order.
type Manifest struct {
	Delimiter string   `yaml:"delimiter"`
	Datasets  []Source `yaml:"datasets"`
}

// DefaultManifest returns the IMDB dataset layout.
func DefaultManifest() Manifest {
	return Manifest{
		Delimiter: `\t`,
		Datasets: []Source{
			{Kind: "film", File: "title.basics.tsv"},
			{Kind: "person", File: "name.basics.tsv"},
			{Kind: "cast_link", File: "title.principals.tsv"},
			{Kind: "rating", File: "title.ratings.tsv"},
		},
	}
}

// LoadManifest reads a YAML manifest. An empty path returns DefaultManifest.
//
// Example:
//
//	delimiter: "\t"
//	datasets:
//	  - kind: film
//	    file: title.basics.tsv
//	  - kind: person
//	    file: name.basics.tsv
//	  - kind: rating
//	    file: ratings.csv
//	    delimiter: ","
func LoadManifest(path string) (Manifest, error) {
	if path == "" {
		return DefaultManifest(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	if err := m.Validate(); err != nil {
		return Manifest{}, fmt.Errorf("manifest %s: %w", path, err)
	}

	if m.Delimiter == "" {
		m.Delimiter = DefaultManifest().Delimiter
	}

	return m, nil
}

// Validate checks the manifest shape. Kind names and order are checked by the
// pipeline, which owns the entity catalogue.
func (m Manifest) Validate() error {
	var errs []string

	if len(m.Datasets) == 0 {
		errs = append(errs, "no datasets listed")
	}

	seen := make(map[string]bool, len(m.Datasets))
	for i, ds := range m.Datasets {
		if ds.Kind == "" {
			errs = append(errs, fmt.Sprintf("datasets[%d]: kind is required", i))
		}
		if ds.File == "" {
			errs = append(errs, fmt.Sprintf("datasets[%d]: file is required", i))
		}
		if seen[ds.Kind] {
			errs = append(errs, fmt.Sprintf("datasets[%d]: kind %q listed twice", i, ds.Kind))
		}
		seen[ds.Kind] = true
		if d := unescapeDelimiter(ds.Delimiter); d != "" && len([]rune(d)) != 1 {
			errs = append(errs, fmt.Sprintf("datasets[%d]: delimiter %q must be a single character", i, ds.Delimiter))
		}
	}

	if d := unescapeDelimiter(m.Delimiter); d != "" && len([]rune(d)) != 1 {
		errs = append(errs, fmt.Sprintf("delimiter %q must be a single character", m.Delimiter))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid manifest:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// DelimiterRune returns the manifest delimiter as a rune.
func (m Manifest) DelimiterRune() rune {
	d := unescapeDelimiter(m.Delimiter)
	if d == "" {
		return '\t'
	}
	return []rune(d)[0]
}
