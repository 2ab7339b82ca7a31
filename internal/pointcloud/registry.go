package pointcloud

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Sentinel errors for the codec layer.
var (
	// ErrUnsupportedFormat indicates no decoder is registered for a path's
	// extension and the fallback decoder also failed.
	ErrUnsupportedFormat = errors.New("unsupported point cloud format")

	// ErrWriteUnsupported indicates the selected codec can read but not
	// write its format (e.g. LAS, pcap captures).
	ErrWriteUnsupported = errors.New("format does not support writing")
)

// Decoder reads a point cloud from a stream.
type Decoder interface {
	Decode(r io.Reader) (*Cloud, error)
}

// Encoder writes a point cloud to a stream.
type Encoder interface {
	Encode(w io.Writer, c *Cloud) error
}

// Codec bundles the reader and optional writer for one file format.
type Codec struct {
	Name    string
	Decoder Decoder
	Encoder Encoder // nil when the format is read-only
}

// Registry maps file extensions to codecs. Availability is checked lazily,
// at the moment a specific file is opened or written, so a missing codec for
// an unused format never blocks a run.
type Registry struct {
	byExt    map[string]*Codec
	fallback *Codec
}

// NewRegistry returns an empty registry with no fallback.
func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]*Codec)}
}

// Register associates a codec with one or more extensions (with leading dot,
// matched case-insensitively).
func (r *Registry) Register(c *Codec, exts ...string) {
	for _, ext := range exts {
		r.byExt[strings.ToLower(ext)] = c
	}
}

// SetFallback sets the codec tried when no extension matches.
func (r *Registry) SetFallback(c *Codec) {
	r.fallback = c
}

// DefaultRegistry returns a registry with all built-in codecs: ASCII XYZ
// (also the fallback), PCD, PLY, the LAS reader and the Pandar40P pcap
// reader.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	asc := &Codec{Name: "xyz", Decoder: xyzDecoder{}, Encoder: xyzEncoder{}}
	r.Register(asc, ".xyz", ".asc", ".txt")
	r.SetFallback(asc)

	r.Register(&Codec{Name: "pcd", Decoder: pcdDecoder{}, Encoder: pcdEncoder{}}, ".pcd")
	r.Register(&Codec{Name: "ply", Decoder: plyDecoder{}, Encoder: plyEncoder{}}, ".ply")
	r.Register(&Codec{Name: "las", Decoder: lasDecoder{}}, ".las")
	r.Register(&Codec{Name: "pandar-pcap", Decoder: pcapDecoder{}}, ".pcap")

	return r
}

// Lookup returns the codec for a path, falling back to the generic codec for
// unknown extensions. Returns ErrUnsupportedFormat when neither exists.
func (r *Registry) Lookup(path string) (*Codec, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if c, ok := r.byExt[ext]; ok {
		return c, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, path)
}

// CanWrite reports whether the codec selected for path supports encoding.
// Used by callers that want to fail before doing any heavy work.
func (r *Registry) CanWrite(path string) error {
	c, err := r.Lookup(path)
	if err != nil {
		return err
	}
	if c.Encoder == nil {
		return fmt.Errorf("%w: %s (%q)", ErrWriteUnsupported, c.Name, path)
	}
	return nil
}

// Open decodes the point cloud at path using the codec selected by its
// extension. An unknown extension falls through to the generic decoder; if
// that also fails the error wraps ErrUnsupportedFormat.
func (r *Registry) Open(path string) (*Cloud, error) {
	c, err := r.Lookup(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	cloud, err := c.Decoder.Decode(f)
	if err != nil {
		if c == r.fallback {
			return nil, fmt.Errorf("%w: %q: %v", ErrUnsupportedFormat, path, err)
		}
		return nil, fmt.Errorf("decode %q with %s codec: %w", path, c.Name, err)
	}
	return cloud, nil
}

// Write encodes cloud to path using the codec selected by its extension,
// creating any missing parent directories.
func (r *Registry) Write(path string, cloud *Cloud) error {
	c, err := r.Lookup(path)
	if err != nil {
		return err
	}
	if c.Encoder == nil {
		return fmt.Errorf("%w: %s (%q)", ErrWriteUnsupported, c.Name, path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %q: %w", path, err)
	}
	if err := c.Encoder.Encode(f, cloud); err != nil {
		f.Close()
		return fmt.Errorf("encode %q with %s codec: %w", path, c.Name, err)
	}
	return f.Close()
}
