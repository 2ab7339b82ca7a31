// Package pointcloud provides the dense point-cloud buffer shared by the
// completion pipeline and the file codecs that read and write it.
//
// A Cloud is an ordered collection of (x, y, z) float32 triples. Order is
// significant: paired training files are compared row by row, and completed
// clouds are written back in input order.
package pointcloud

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Cloud is a dense, ordered buffer of 3D points. Coordinates are stored as a
// flat float32 slice (x0,y0,z0,x1,y1,z1,...) so decoders can fill it without
// per-point allocations.
type Cloud struct {
	coords []float32
}

// NewCloud returns a cloud pre-allocated for n points, all at the origin.
func NewCloud(n int) *Cloud {
	return &Cloud{coords: make([]float32, 3*n)}
}

// FromSlice wraps a flat coordinate slice (x,y,z per point) as a Cloud.
// The slice is owned by the returned cloud afterwards.
func FromSlice(xyz []float32) (*Cloud, error) {
	if len(xyz)%3 != 0 {
		return nil, fmt.Errorf("coordinate slice length %d is not a multiple of 3", len(xyz))
	}
	return &Cloud{coords: xyz}, nil
}

// Len returns the number of points.
func (c *Cloud) Len() int {
	if c == nil {
		return 0
	}
	return len(c.coords) / 3
}

// At returns the i-th point.
func (c *Cloud) At(i int) (x, y, z float32) {
	j := 3 * i
	return c.coords[j], c.coords[j+1], c.coords[j+2]
}

// Set overwrites the i-th point.
func (c *Cloud) Set(i int, x, y, z float32) {
	j := 3 * i
	c.coords[j], c.coords[j+1], c.coords[j+2] = x, y, z
}

// Append adds a point at the end of the cloud.
func (c *Cloud) Append(x, y, z float32) {
	c.coords = append(c.coords, x, y, z)
}

// ToMatrix converts the cloud to an N×3 float64 matrix for the regressor.
// Returns nil for an empty cloud (gonum matrices cannot have zero rows);
// callers handle the degenerate case before doing any matrix work.
func (c *Cloud) ToMatrix() *mat.Dense {
	n := c.Len()
	if n == 0 {
		return nil
	}
	m := mat.NewDense(n, 3, nil)
	for i := 0; i < n; i++ {
		j := 3 * i
		m.Set(i, 0, float64(c.coords[j]))
		m.Set(i, 1, float64(c.coords[j+1]))
		m.Set(i, 2, float64(c.coords[j+2]))
	}
	return m
}

// FromMatrix converts an N×3 matrix back to a float32 cloud.
func FromMatrix(m mat.Matrix) (*Cloud, error) {
	rows, cols := m.Dims()
	if cols != 3 {
		return nil, fmt.Errorf("matrix has %d columns, want 3", cols)
	}
	c := NewCloud(rows)
	for i := 0; i < rows; i++ {
		c.Set(i, float32(m.At(i, 0)), float32(m.At(i, 1)), float32(m.At(i, 2)))
	}
	return c, nil
}
