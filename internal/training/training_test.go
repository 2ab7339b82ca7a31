package training

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cloudmend/internal/pointcloud"
	"github.com/banshee-data/cloudmend/internal/regress"
)

// memSource is an in-memory PairSource for loop tests.
type memSource struct {
	pairs [][2]*pointcloud.Cloud
	names []string
}

func (m *memSource) Size() int { return len(m.pairs) }

func (m *memSource) Pair(i int) (*pointcloud.Cloud, *pointcloud.Cloud, string, error) {
	return m.pairs[i][0], m.pairs[i][1], m.names[i], nil
}

func randomCloud(rng *rand.Rand, n int) *pointcloud.Cloud {
	c := pointcloud.NewCloud(n)
	for i := 0; i < n; i++ {
		c.Set(i, rng.Float32()*2-1, rng.Float32()*2-1, rng.Float32()*2-1)
	}
	return c
}

// identitySource builds pairs where gapped == complete, so the training
// target is the identity function.
func identitySource(rng *rand.Rand, pairs, pointsPer int) *memSource {
	src := &memSource{}
	for i := 0; i < pairs; i++ {
		c := randomCloud(rng, pointsPer)
		src.pairs = append(src.pairs, [2]*pointcloud.Cloud{c, c})
		src.names = append(src.names, "pair.ply")
	}
	return src
}

func newNet(t *testing.T, seed int64) *regress.Network {
	t.Helper()
	net, err := regress.New(regress.DefaultArch(), rand.New(rand.NewSource(seed)))
	require.NoError(t, err)
	return net
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero epochs", func(c *Config) { c.Epochs = 0 }, true},
		{"negative lr", func(c *Config) { c.LearningRate = -1 }, true},
		{"zero batch", func(c *Config) { c.BatchSize = 0 }, true},
		{"bad fraction", func(c *Config) { c.TrainFraction = 1.5 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestTrainerLearnsIdentity(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping training loop fit in short mode")
	}
	rng := rand.New(rand.NewSource(20))
	src := identitySource(rng, 1, 64)

	cfg := DefaultConfig()
	cfg.Epochs = 200
	cfg.Seed = 21

	net := newNet(t, 22)
	trainer := NewTrainer(net, cfg)
	require.NoError(t, trainer.Run(src, []int{0}))
	require.Len(t, trainer.EpochLosses, 200)

	mse, err := Evaluate(net, src, []int{0})
	require.NoError(t, err)
	require.Less(t, mse, 1e-2, "identity mapping should be learned after 200 epochs")

	// Loss trajectory should end well below where it started.
	require.Less(t, trainer.EpochLosses[199], trainer.EpochLosses[0])
}

func TestEvaluateDoesNotMutateModel(t *testing.T) {
	rng := rand.New(rand.NewSource(30))
	src := &memSource{
		pairs: [][2]*pointcloud.Cloud{{randomCloud(rng, 10), randomCloud(rng, 10)}},
		names: []string{"x.ply"},
	}

	net := newNet(t, 31)
	before := net.StateDict()

	first, err := Evaluate(net, src, []int{0})
	require.NoError(t, err)
	second, err := Evaluate(net, src, []int{0})
	require.NoError(t, err)

	require.Equal(t, first, second, "evaluation is not repeatable")
	if diff := cmp.Diff(before, net.StateDict()); diff != "" {
		t.Errorf("evaluation mutated parameters (-before +after):\n%s", diff)
	}
}

func TestMismatchedPointCountsFailBeforeLoss(t *testing.T) {
	rng := rand.New(rand.NewSource(40))
	src := &memSource{
		pairs: [][2]*pointcloud.Cloud{{randomCloud(rng, 10), randomCloud(rng, 7)}},
		names: []string{"bad.ply"},
	}

	cfg := DefaultConfig()
	cfg.Epochs = 1
	net := newNet(t, 41)

	err := NewTrainer(net, cfg).Run(src, []int{0})
	require.Error(t, err)
	require.Contains(t, err.Error(), "same number of points")

	_, err = Evaluate(net, src, []int{0})
	require.Error(t, err)
}

func TestRunRequiresTrainingPairs(t *testing.T) {
	net := newNet(t, 50)
	err := NewTrainer(net, DefaultConfig()).Run(&memSource{}, nil)
	require.Error(t, err)
}

func TestEvaluateRequiresPairs(t *testing.T) {
	net := newNet(t, 51)
	_, err := Evaluate(net, &memSource{}, nil)
	require.Error(t, err)
}

// recordingStore captures RunStore calls.
type recordingStore struct {
	epochs []int
	losses []float64
}

func (r *recordingStore) RecordEpoch(epoch int, avgLoss float64, _ time.Duration) error {
	r.epochs = append(r.epochs, epoch)
	r.losses = append(r.losses, avgLoss)
	return nil
}

func TestTrainerReportsEpochsToStore(t *testing.T) {
	rng := rand.New(rand.NewSource(60))
	src := identitySource(rng, 2, 8)

	cfg := DefaultConfig()
	cfg.Epochs = 3
	cfg.Seed = 61

	store := &recordingStore{}
	trainer := NewTrainer(newNet(t, 62), cfg)
	trainer.SetRunStore(store)

	require.NoError(t, trainer.Run(src, []int{0, 1}))
	require.Equal(t, []int{1, 2, 3}, store.epochs)
	require.Equal(t, trainer.EpochLosses, store.losses)
}
