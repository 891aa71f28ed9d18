// Package cargo holds the static catalog of tradeable goods.
package cargo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Good defines the static properties of a tradeable commodity loaded from YAML.
type Good struct {
	ID          string  `yaml:"id"`
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	// BaseValue is the value of one unit before any town pricing is applied.
	BaseValue float64 `yaml:"base_value"`
	// BaseCapacity is the hold space one unit occupies.
	BaseCapacity int `yaml:"base_capacity"`
}

// Validate checks that the Good satisfies its invariants.
//
// Postcondition: returns nil iff all fields are valid.
func (g Good) Validate() error {
	var errs []error
	if g.ID == "" {
		errs = append(errs, errors.New("ID must not be empty"))
	}
	if g.Name == "" {
		errs = append(errs, errors.New("Name must not be empty"))
	}
	if g.BaseValue <= 0 {
		errs = append(errs, fmt.Errorf("BaseValue must be > 0, got %g", g.BaseValue))
	}
	if g.BaseCapacity < 0 {
		errs = append(errs, fmt.Errorf("BaseCapacity must be >= 0, got %d", g.BaseCapacity))
	}
	if len(errs) > 0 {
		return fmt.Errorf("good validation failed: %v", errs)
	}
	return nil
}

// LoadGoods reads all *.yaml and *.yml files from dir, parses each as a Good,
// validates it, and returns the collected slice in file name order.
//
// Precondition: dir is a readable directory path.
// Postcondition: returns all valid Goods or the first encountered error.
func LoadGoods(dir string) ([]Good, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("LoadGoods: cannot read directory %q: %w", dir, err)
	}

	var goods []Good
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("LoadGoods: cannot read file %q: %w", path, err)
		}
		var g Good
		if err := yaml.Unmarshal(data, &g); err != nil {
			return nil, fmt.Errorf("LoadGoods: cannot parse file %q: %w", path, err)
		}
		if err := g.Validate(); err != nil {
			return nil, fmt.Errorf("LoadGoods: invalid good in %q: %w", path, err)
		}
		goods = append(goods, g)
	}
	return goods, nil
}

// Catalog is the immutable registry of Goods indexed by ID.
// Lookups return copies, so callers cannot alter reference data.
type Catalog struct {
	goods map[string]Good
}

// NewCatalog builds a Catalog from goods.
//
// Postcondition: returns an error if any good is invalid or an ID repeats.
func NewCatalog(goods ...Good) (*Catalog, error) {
	c := &Catalog{goods: make(map[string]Good, len(goods))}
	for _, g := range goods {
		if err := g.Validate(); err != nil {
			return nil, fmt.Errorf("cargo: NewCatalog: %w", err)
		}
		if _, exists := c.goods[g.ID]; exists {
			return nil, fmt.Errorf("cargo: NewCatalog: good ID %q already registered", g.ID)
		}
		c.goods[g.ID] = g
	}
	return c, nil
}

// LoadCatalog loads every good in dir into a new Catalog.
func LoadCatalog(dir string) (*Catalog, error) {
	goods, err := LoadGoods(dir)
	if err != nil {
		return nil, err
	}
	return NewCatalog(goods...)
}

// Good returns the Good for id and whether it was found.
func (c *Catalog) Good(id string) (Good, bool) {
	g, ok := c.goods[id]
	return g, ok
}

// Has reports whether id is registered.
func (c *Catalog) Has(id string) bool {
	_, ok := c.goods[id]
	return ok
}

// All returns every Good sorted by ID.
func (c *Catalog) All() []Good {
	out := make([]Good, 0, len(c.goods))
	for _, g := range c.goods {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered goods.
func (c *Catalog) Len() int {
	return len(c.goods)
}
