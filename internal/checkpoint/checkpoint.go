// Package checkpoint persists model parameters as a keyed binary blob.
//
// The on-disk format is a gob-encoded map of tensor name to dimensioned
// float64 buffer, gzip compressed. There is no schema or version metadata:
// the caller applies a loaded mapping to a freshly constructed model and an
// architecture mismatch surfaces as a key or shape error at apply time.
package checkpoint

import (
	"compress/gzip"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrShapeMismatch indicates a loaded tensor does not match the shape the
// model expects, or a required key is absent.
var ErrShapeMismatch = errors.New("checkpoint does not match model architecture")

// Tensor is one named parameter array. Cols is 1 for bias vectors.
type Tensor struct {
	Rows, Cols int
	Data       []float64
}

// Params maps parameter name (e.g. "enc1.weight") to its tensor.
type Params map[string]Tensor

// Save writes params to path, creating missing parent directories and
// overwriting any existing file.
func Save(path string, p Params) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create checkpoint %q: %w", path, err)
	}

	gz := gzip.NewWriter(f)
	if err := gob.NewEncoder(gz).Encode(p); err != nil {
		gz.Close()
		f.Close()
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := gz.Close(); err != nil {
		f.Close()
		return fmt.Errorf("flush checkpoint: %w", err)
	}
	return f.Close()
}

// Load reads a parameter mapping back from path.
func Load(path string) (Params, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint %q: %w", path, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %q: %w", path, err)
	}
	defer gz.Close()

	var p Params
	if err := gob.NewDecoder(gz).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode checkpoint %q: %w", path, err)
	}
	for name, t := range p {
		if len(t.Data) != t.Rows*t.Cols {
			return nil, fmt.Errorf("%w: tensor %q declares %dx%d but holds %d values",
				ErrShapeMismatch, name, t.Rows, t.Cols, len(t.Data))
		}
	}
	return p, nil
}
