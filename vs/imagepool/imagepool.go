// Package imagepool builds the per-voter shuffled image-filename pools the
// scheduler assigns one-per-slot. Filenames must be unique across the whole
// Bulletin Board, not just within one voter's schedule: the board keys its
// image table by filename, so each slot's token carries a uuid.
package imagepool

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
)

// pool is the fixed set of memorable picture names a slot token is drawn
// from; the uuid suffix keeps tokens board-unique while the prefix stays
// recognisable to the voter.
var pool = []string{
	"anchor", "balloon", "cactus", "dolphin", "evergreen",
	"falcon", "glacier", "harbor", "island", "juniper",
	"koala", "lantern", "meadow", "nutmeg", "orchid",
	"penguin", "quartz", "raven", "sailboat", "tulip",
}

// Generate returns n distinct image filenames, each pairing a pool name
// with a fresh uuid, e.g. "falcon-9f3c….png". Each call walks the pool
// names in its own freshly shuffled order, so every voter's schedule gets
// an independently shuffled list of pictures.
func Generate(n int) ([]string, error) {
	if n < 0 {
		return nil, fmt.Errorf("imagepool: negative pool size %d", n)
	}
	order := rand.Perm(len(pool))
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("%s-%s.png", pool[order[i%len(pool)]], uuid.NewString())
	}
	return names, nil
}
