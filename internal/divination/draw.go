package divination

import (
	"fmt"

	"github.com/bobmcallan/lingqian/internal/catalog"
)

// Draw picks one fortune entry of deity uniformly at random. Every call is
// independent: there is no memory of earlier draws and no exclusion.
func Draw(deity *catalog.Deity, rng RNG) (catalog.FortuneEntry, error) {
	if deity == nil {
		return catalog.FortuneEntry{}, ErrEmptyCatalog
	}
	n := deity.Len()
	if n == 0 {
		return catalog.FortuneEntry{}, fmt.Errorf("%s: %w", deity.Key, ErrEmptyCatalog)
	}
	return deity.Entries[rng.IntN(n)], nil
}
