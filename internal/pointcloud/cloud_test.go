package pointcloud

import (
	"testing"
)

func TestCloudBasics(t *testing.T) {
	c := NewCloud(2)
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
	c.Set(0, 1, 2, 3)
	c.Set(1, -1, -2, -3)
	x, y, z := c.At(1)
	if x != -1 || y != -2 || z != -3 {
		t.Errorf("At(1) = (%f,%f,%f), want (-1,-2,-3)", x, y, z)
	}

	c.Append(4, 5, 6)
	if c.Len() != 3 {
		t.Errorf("Len after Append = %d, want 3", c.Len())
	}
}

func TestFromSliceRejectsRaggedInput(t *testing.T) {
	if _, err := FromSlice([]float32{1, 2, 3, 4}); err == nil {
		t.Error("expected error for slice length not divisible by 3")
	}
}

func TestMatrixRoundTrip(t *testing.T) {
	c := NewCloud(3)
	c.Set(0, 0.5, 1.5, 2.5)
	c.Set(1, -0.25, 0, 10)
	c.Set(2, 100, -100, 0.001)

	m := c.ToMatrix()
	rows, cols := m.Dims()
	if rows != 3 || cols != 3 {
		t.Fatalf("matrix is %dx%d, want 3x3", rows, cols)
	}

	back, err := FromMatrix(m)
	if err != nil {
		t.Fatalf("FromMatrix: %v", err)
	}
	for i := 0; i < c.Len(); i++ {
		x0, y0, z0 := c.At(i)
		x1, y1, z1 := back.At(i)
		if x0 != x1 || y0 != y1 || z0 != z1 {
			t.Errorf("point %d changed: (%f,%f,%f) -> (%f,%f,%f)", i, x0, y0, z0, x1, y1, z1)
		}
	}
}

func TestToMatrixEmptyCloud(t *testing.T) {
	if m := NewCloud(0).ToMatrix(); m != nil {
		t.Errorf("expected nil matrix for empty cloud, got %v", m)
	}
}
