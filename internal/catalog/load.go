package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

//go:embed data/default.toml
var defaultCatalog []byte

// file is the on-disk TOML shape produced by the offline scrapers:
//
//	[[deity]]
//	key = "mazu"
//	  [[deity.entry]]
//	  title = "第一首 甲子"
type file struct {
	Deities []deityFile `toml:"deity"`
}

type deityFile struct {
	Key         string         `toml:"key"`
	Name        string         `toml:"name"`
	ShortName   string         `toml:"short_name"`
	Theme       string         `toml:"theme"`
	Description string         `toml:"description"`
	Entries     []FortuneEntry `toml:"entry"`
}

// Parse decodes a TOML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(f.Deities) == 0 {
		return nil, fmt.Errorf("catalog defines no deities")
	}

	deities := make([]Deity, len(f.Deities))
	for i, d := range f.Deities {
		deities[i] = Deity{
			Key:         d.Key,
			Name:        d.Name,
			ShortName:   d.ShortName,
			Theme:       d.Theme,
			Description: d.Description,
			Entries:     d.Entries,
		}
	}
	return New(deities)
}

// Load reads and parses the catalog file at path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Embedded returns the catalog compiled into the binary.
func Embedded() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// LoadOrEmbedded loads path, or the embedded catalog when path is empty.
func LoadOrEmbedded(path string) (*Catalog, error) {
	if path == "" {
		return Embedded()
	}
	return Load(path)
}
