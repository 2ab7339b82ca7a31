package dataset

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/cloudmend/internal/pointcloud"
)

// writePLY writes a minimal ascii PLY file with the given points.
func writePLY(t *testing.T, path string, points [][3]float32) {
	t.Helper()
	content := "ply\nformat ascii 1.0\n"
	content += fmt.Sprintf("element vertex %d\n", len(points))
	content += "property float x\nproperty float y\nproperty float z\nend_header\n"
	for _, p := range points {
		content += fmt.Sprintf("%g %g %g\n", p[0], p[1], p[2])
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func setupDirs(t *testing.T, gapped, complete []string) (gappedDir, completeDir string) {
	t.Helper()
	gappedDir = filepath.Join(t.TempDir(), "gapped")
	completeDir = filepath.Join(t.TempDir(), "complete")
	for _, d := range []string{gappedDir, completeDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	for _, name := range gapped {
		writePLY(t, filepath.Join(gappedDir, name), [][3]float32{{1, 2, 3}})
	}
	for _, name := range complete {
		writePLY(t, filepath.Join(completeDir, name), [][3]float32{{4, 5, 6}})
	}
	return gappedDir, completeDir
}

func TestPairingSortedOrder(t *testing.T) {
	// Write b before a to prove ordering comes from sorting, not listing.
	gappedDir, completeDir := setupDirs(t, []string{"b.ply", "a.ply"}, []string{"a.ply", "b.ply"})

	ds, err := NewPaired(gappedDir, completeDir, pointcloud.DefaultRegistry())
	if err != nil {
		t.Fatalf("NewPaired: %v", err)
	}
	if ds.Size() != 2 {
		t.Fatalf("Size = %d, want 2", ds.Size())
	}
	if ds.Name(0) != "a.ply" || ds.Name(1) != "b.ply" {
		t.Errorf("pair order = [%s, %s], want [a.ply, b.ply]", ds.Name(0), ds.Name(1))
	}

	gapped, complete, name, err := ds.Pair(0)
	if err != nil {
		t.Fatalf("Pair(0): %v", err)
	}
	if name != "a.ply" {
		t.Errorf("pair 0 name = %s, want a.ply", name)
	}
	if gapped.Len() != 1 || complete.Len() != 1 {
		t.Errorf("pair sizes = %d/%d, want 1/1", gapped.Len(), complete.Len())
	}
	gx, _, _ := gapped.At(0)
	cx, _, _ := complete.At(0)
	if gx != 1 || cx != 4 {
		t.Errorf("clouds swapped or wrong: gapped x=%g complete x=%g", gx, cx)
	}
}

func TestPairingMissingCounterpart(t *testing.T) {
	gappedDir, completeDir := setupDirs(t, []string{"a.ply", "c.ply"}, []string{"a.ply"})

	ds, err := NewPaired(gappedDir, completeDir, pointcloud.DefaultRegistry())
	if err != nil {
		t.Fatalf("NewPaired: %v", err)
	}
	// Construction succeeds: validation is lazy.
	if ds.Size() != 2 {
		t.Fatalf("Size = %d, want 2", ds.Size())
	}

	if _, _, _, err := ds.Pair(0); err != nil {
		t.Errorf("Pair(0) for matched file: %v", err)
	}
	_, _, _, err = ds.Pair(1)
	if !errors.Is(err, ErrPairMissing) {
		t.Errorf("Pair(1): expected ErrPairMissing, got %v", err)
	}
}

func TestPairIndexOutOfRange(t *testing.T) {
	gappedDir, completeDir := setupDirs(t, []string{"a.ply"}, []string{"a.ply"})
	ds, err := NewPaired(gappedDir, completeDir, pointcloud.DefaultRegistry())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := ds.Pair(5); err == nil {
		t.Error("expected error for out-of-range index")
	}
}

func TestNewPairedMissingDir(t *testing.T) {
	_, err := NewPaired(filepath.Join(t.TempDir(), "absent"), t.TempDir(), pointcloud.DefaultRegistry())
	if err == nil {
		t.Error("expected error for missing gapped directory")
	}
}

func TestSplit(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	train, test := Split(10, 0.8, rng)

	if len(train) != 8 || len(test) != 2 {
		t.Fatalf("split sizes = %d/%d, want 8/2", len(train), len(test))
	}
	seen := make(map[int]bool)
	for _, i := range append(append([]int{}, train...), test...) {
		if seen[i] {
			t.Errorf("index %d assigned twice", i)
		}
		seen[i] = true
		if i < 0 || i >= 10 {
			t.Errorf("index %d out of range", i)
		}
	}
	if len(seen) != 10 {
		t.Errorf("split covers %d indices, want 10", len(seen))
	}
}

func TestSplitSinglePairTrains(t *testing.T) {
	train, test := Split(1, 0.8, rand.New(rand.NewSource(3)))
	if len(train) != 1 {
		t.Fatalf("train size = %d, want 1", len(train))
	}
	if len(test) != 0 {
		t.Errorf("test size = %d, want 0", len(test))
	}
}

func TestPairStatErrorIsNotMissing(t *testing.T) {
	gappedDir := filepath.Join(t.TempDir(), "gapped")
	if err := os.MkdirAll(gappedDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writePLY(t, filepath.Join(gappedDir, "a.ply"), [][3]float32{{1, 2, 3}})

	// The "complete directory" is a regular file, so stat on a path under it
	// fails with ENOTDIR rather than not-exist.
	notADir := filepath.Join(t.TempDir(), "complete")
	if err := os.WriteFile(notADir, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	ds, err := NewPaired(gappedDir, notADir, pointcloud.DefaultRegistry())
	if err != nil {
		t.Fatal(err)
	}
	_, _, _, err = ds.Pair(0)
	if err == nil {
		t.Fatal("expected error for unreadable complete path")
	}
	if errors.Is(err, ErrPairMissing) {
		t.Errorf("stat failure misreported as missing pair: %v", err)
	}
}

func TestSplitDeterministicForSeed(t *testing.T) {
	a1, b1 := Split(20, 0.8, rand.New(rand.NewSource(7)))
	a2, b2 := Split(20, 0.8, rand.New(rand.NewSource(7)))
	for i := range a1 {
		if a1[i] != a2[i] {
			t.Fatal("train split differs for identical seed")
		}
	}
	for i := range b1 {
		if b1[i] != b2[i] {
			t.Fatal("test split differs for identical seed")
		}
	}
}
