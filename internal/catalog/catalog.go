// Package catalog holds the read-only fortune database: the deities a user can
// consult and the ordered fortune sticks of each.
package catalog

import (
	"errors"
	"fmt"
)

var (
	ErrDeityNotFound = errors.New("deity not found")
	ErrEmptyCatalog  = errors.New("deity has no fortune entries")
)

// FortuneEntry is one fortune stick. Level and Explain may be empty when the
// source page could not be scraped.
type FortuneEntry struct {
	Title   string `json:"title" toml:"title"`
	Level   string `json:"level" toml:"level"`
	Poem    string `json:"poem" toml:"poem"`
	Explain string `json:"explain" toml:"explain"`
}

// Deity is one selectable fortune set.
type Deity struct {
	Key         string
	Name        string
	ShortName   string
	Theme       string
	Description string
	Entries     []FortuneEntry
}

// Len returns the number of fortune sticks of the deity.
func (d *Deity) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Entries)
}

// Catalog is an immutable, ordered set of deities. It is built once at
// startup and shared by every session without locking.
type Catalog struct {
	deities []*Deity
	byKey   map[string]*Deity
}

// New builds a catalog from deities, validating keys and entries.
func New(deities []Deity) (*Catalog, error) {
	c := &Catalog{
		deities: make([]*Deity, 0, len(deities)),
		byKey:   make(map[string]*Deity, len(deities)),
	}

	for i := range deities {
		d := deities[i]
		if d.Key == "" {
			return nil, fmt.Errorf("deity %d: empty key", i+1)
		}
		if _, dup := c.byKey[d.Key]; dup {
			return nil, fmt.Errorf("deity %q: duplicate key", d.Key)
		}
		if len(d.Entries) == 0 {
			return nil, fmt.Errorf("deity %q: %w", d.Key, ErrEmptyCatalog)
		}
		for j, e := range d.Entries {
			if e.Title == "" {
				return nil, fmt.Errorf("deity %q entry %d: empty title", d.Key, j+1)
			}
		}
		if d.Name == "" {
			d.Name = d.Key
		}
		if d.ShortName == "" {
			d.ShortName = d.Name
		}

		entries := make([]FortuneEntry, len(d.Entries))
		copy(entries, d.Entries)
		d.Entries = entries

		c.deities = append(c.deities, &d)
		c.byKey[d.Key] = &d
	}

	return c, nil
}

// Lookup returns the deity registered under key.
func (c *Catalog) Lookup(key string) (*Deity, error) {
	d, ok := c.byKey[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeityNotFound, key)
	}
	return d, nil
}

// Deities returns the deities in menu order.
func (c *Catalog) Deities() []*Deity {
	out := make([]*Deity, len(c.deities))
	copy(out, c.deities)
	return out
}

// Len returns the number of deities.
func (c *Catalog) Len() int {
	return len(c.deities)
}
