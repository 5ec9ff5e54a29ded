// Package reasoncode maps trace reason codes to human-readable labels.
package reasoncode

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var builtin []byte

// ErrInvalidCatalog is returned for catalogs that fail validation.
var ErrInvalidCatalog = errors.New("invalid reason-code catalog")

// Entry describes one reason code.
type Entry struct {
	Code      string `yaml:"code" json:"code"`
	Label     string `yaml:"label" json:"label"`
	LabelZH   string `yaml:"label_zh,omitempty" json:"label_zh,omitempty"`
	Rejection bool   `yaml:"rejection" json:"rejection"`
}

type document struct {
	Codes []Entry `yaml:"codes"`
}

// Catalog is an ordered, read-only set of entries.
type Catalog struct {
	entries []Entry
	index   map[string]int
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(builtin)
	if err != nil {
		panic(fmt.Sprintf("reasoncode: built-in catalog: %v", err))
	}
	return c
}

// Parse decodes a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	c := &Catalog{index: make(map[string]int, len(doc.Codes))}
	for i, e := range doc.Codes {
		e.Code = strings.TrimSpace(e.Code)
		if e.Code == "" {
			return nil, fmt.Errorf("%w: entry %d has no code", ErrInvalidCatalog, i)
		}
		c.put(e)
	}
	return c, nil
}

// Load returns the built-in catalog extended by the file at path.
// Entries in the file replace built-in entries with the same code.
// An empty path yields the built-in catalog.
func Load(path string) (*Catalog, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reason codes: %w", err)
	}
	extra, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, e := range extra.entries {
		c.put(e)
	}
	return c, nil
}

func (c *Catalog) put(e Entry) {
	if i, ok := c.index[e.Code]; ok {
		c.entries[i] = e
		return
	}
	c.index[e.Code] = len(c.entries)
	c.entries = append(c.entries, e)
}

// Lookup returns the entry for code.
func (c *Catalog) Lookup(code string) (Entry, bool) {
	i, ok := c.index[code]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Label returns the English label for code, or code itself when unknown.
func (c *Catalog) Label(code string) string {
	if e, ok := c.Lookup(code); ok && e.Label != "" {
		return e.Label
	}
	return code
}

// Entries returns a copy of all entries in catalog order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}
