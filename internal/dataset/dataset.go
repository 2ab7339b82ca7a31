// Package dataset enumerates matched gapped/complete point-cloud file pairs.
//
// Pairing is by identical filename across two sibling directories. The
// gapped directory drives enumeration; the complete counterpart of each file
// is resolved lazily at access time, so a missing counterpart only fails the
// run when that pair is actually used.
package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"sort"

	"github.com/banshee-data/cloudmend/internal/pointcloud"
)

// ErrPairMissing indicates a gapped file has no same-named file in the
// complete directory.
var ErrPairMissing = errors.New("no matching complete file")

// Paired is a dataset of (gapped, complete) point-cloud pairs.
type Paired struct {
	gappedDir   string
	completeDir string
	names       []string
	reg         *pointcloud.Registry
}

// NewPaired lists the regular files of gappedDir (non-recursive, sorted
// lexicographically for index stability across runs) and returns a dataset
// pairing each with the same-named file under completeDir. Only the gapped
// listing is validated here; complete files and decoder availability are
// checked when a pair is loaded.
func NewPaired(gappedDir, completeDir string, reg *pointcloud.Registry) (*Paired, error) {
	entries, err := os.ReadDir(gappedDir)
	if err != nil {
		return nil, fmt.Errorf("list gapped dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return &Paired{
		gappedDir:   gappedDir,
		completeDir: completeDir,
		names:       names,
		reg:         reg,
	}, nil
}

// Size returns the number of filename pairs.
func (d *Paired) Size() int { return len(d.names) }

// Name returns the filename of the i-th pair.
func (d *Paired) Name(i int) string { return d.names[i] }

// Pair loads the i-th (gapped, complete) pair. It fails with ErrPairMissing
// when the complete directory lacks the counterpart file, and with codec
// errors when either file cannot be decoded.
func (d *Paired) Pair(i int) (gapped, complete *pointcloud.Cloud, name string, err error) {
	if i < 0 || i >= len(d.names) {
		return nil, nil, "", fmt.Errorf("pair index %d out of range [0,%d)", i, len(d.names))
	}
	name = d.names[i]

	completePath := filepath.Join(d.completeDir, name)
	if _, statErr := os.Stat(completePath); statErr != nil {
		if errors.Is(statErr, fs.ErrNotExist) {
			return nil, nil, name, fmt.Errorf("%w: %q in %q", ErrPairMissing, name, d.completeDir)
		}
		return nil, nil, name, fmt.Errorf("stat complete %q: %w", name, statErr)
	}

	gapped, err = d.reg.Open(filepath.Join(d.gappedDir, name))
	if err != nil {
		return nil, nil, name, fmt.Errorf("load gapped %q: %w", name, err)
	}
	complete, err = d.reg.Open(completePath)
	if err != nil {
		return nil, nil, name, fmt.Errorf("load complete %q: %w", name, err)
	}
	return gapped, complete, name, nil
}

// Split partitions n indices into train and test sets with the given train
// fraction, shuffled once with rng. The assignment is fixed for the run;
// only batch-level sampling inside the train subset re-shuffles per epoch.
// The train set always gets at least one index when n >= 1, so a tiny
// dataset still trains (evaluation is optional and skipped when the test
// set comes up empty).
func Split(n int, trainFrac float64, rng *rand.Rand) (train, test []int) {
	idx := rng.Perm(n)
	cut := int(float64(n) * trainFrac)
	if cut == 0 && n >= 1 {
		cut = 1
	}
	return idx[:cut], idx[cut:]
}
