// Package training drives the completion model's training and evaluation
// loops over a paired dataset.
//
// One run is strictly sequential: epochs iterate over the training pairs one
// cloud at a time, each cloud producing one optimizer step. There is no
// early stopping, learning-rate scheduling or gradient clipping; failures
// propagate to the caller and terminate the run.
package training

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/banshee-data/cloudmend/internal/pointcloud"
	"github.com/banshee-data/cloudmend/internal/regress"
)

// DefaultCheckpointName is the checkpoint filename used when no output path
// is configured.
const DefaultCheckpointName = "completion_model.ckpt"

// Config fixes the parameters of one training run. It is treated as
// immutable once the run starts.
type Config struct {
	Epochs         int
	LearningRate   float64
	BatchSize      int // kept for CLI compatibility; each step consumes one cloud
	CheckpointPath string
	TrainFraction  float64
	Seed           int64
}

// DefaultConfig returns the standard run configuration: 50 epochs, learning
// rate 1e-3, batch size 1, 80/20 train/test split.
func DefaultConfig() Config {
	return Config{
		Epochs:         50,
		LearningRate:   1e-3,
		BatchSize:      1,
		CheckpointPath: DefaultCheckpointName,
		TrainFraction:  0.8,
		Seed:           time.Now().UnixNano(),
	}
}

// Validate rejects configurations that cannot drive a run.
func (c Config) Validate() error {
	if c.Epochs < 1 {
		return fmt.Errorf("epochs must be >= 1, got %d", c.Epochs)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive, got %g", c.LearningRate)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be >= 1, got %d", c.BatchSize)
	}
	if c.TrainFraction <= 0 || c.TrainFraction > 1 {
		return fmt.Errorf("train fraction must be in (0,1], got %g", c.TrainFraction)
	}
	return nil
}

// PairSource supplies (gapped, complete) cloud pairs by index. Implemented
// by dataset.Paired and by in-memory sources in tests.
type PairSource interface {
	Size() int
	Pair(i int) (gapped, complete *pointcloud.Cloud, name string, err error)
}

// RunStore receives per-epoch results for persistence. Optional; see the
// rundb package for the SQLite implementation.
type RunStore interface {
	RecordEpoch(epoch int, avgLoss float64, elapsed time.Duration) error
}

// Trainer owns the model parameters for the duration of a run and is the
// only component allowed to mutate them.
type Trainer struct {
	net   *regress.Network
	opt   *regress.Adam
	cfg   Config
	rng   *rand.Rand
	store RunStore

	// EpochLosses holds the average training loss of each completed epoch,
	// in order. Used for the optional loss plot.
	EpochLosses []float64
}

// NewTrainer binds a network to a run configuration.
func NewTrainer(net *regress.Network, cfg Config) *Trainer {
	return &Trainer{
		net: net,
		opt: regress.NewAdam(net, cfg.LearningRate),
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
}

// SetRunStore attaches an optional per-epoch result sink.
func (t *Trainer) SetRunStore(s RunStore) { t.store = s }

// checkPair validates the equal-point-count precondition before any loss
// computation. Gapped and complete clouds with different point counts cannot
// be compared element-wise; this is rejected loudly rather than resampled.
func checkPair(name string, gapped, complete *pointcloud.Cloud) error {
	if gapped.Len() != complete.Len() {
		return fmt.Errorf("pair %q: gapped cloud has %d points but complete cloud has %d; paired files must contain the same number of points",
			name, gapped.Len(), complete.Len())
	}
	return nil
}

// Run trains for the configured number of epochs over the pairs named by
// trainIdx, logging one average-loss line per epoch. Pair order is
// re-shuffled each epoch; the train/test assignment itself never changes.
func (t *Trainer) Run(src PairSource, trainIdx []int) error {
	if len(trainIdx) == 0 {
		return fmt.Errorf("no training pairs")
	}
	if t.cfg.BatchSize != 1 {
		log.Printf("Batch size %d requested; completion training steps one cloud at a time", t.cfg.BatchSize)
	}

	order := make([]int, len(trainIdx))
	copy(order, trainIdx)

	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		start := time.Now()
		t.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		sum := 0.0
		for _, i := range order {
			gapped, complete, name, err := src.Pair(i)
			if err != nil {
				return fmt.Errorf("epoch %d: %w", epoch, err)
			}
			if err := checkPair(name, gapped, complete); err != nil {
				return err
			}
			if gapped.Len() == 0 {
				// An empty pair contributes nothing to the epoch.
				continue
			}
			loss, err := t.net.TrainStep(gapped.ToMatrix(), complete.ToMatrix(), t.opt)
			if err != nil {
				return fmt.Errorf("epoch %d pair %q: %w", epoch, name, err)
			}
			sum += loss
		}

		avg := sum / float64(len(order))
		elapsed := time.Since(start)
		t.EpochLosses = append(t.EpochLosses, avg)
		log.Printf("Epoch %d/%d: avg loss %.6f (%d pairs, %s)",
			epoch, t.cfg.Epochs, avg, len(order), elapsed.Round(time.Millisecond))

		if t.store != nil {
			if err := t.store.RecordEpoch(epoch, avg, elapsed); err != nil {
				return fmt.Errorf("record epoch %d: %w", epoch, err)
			}
		}
	}
	return nil
}

// Evaluate computes the mean pointwise MSE of net over the pairs named by
// idx with parameter updates disabled. It never mutates the network, so
// evaluating twice on the same data yields identical results.
func Evaluate(net *regress.Network, src PairSource, idx []int) (float64, error) {
	if len(idx) == 0 {
		return 0, fmt.Errorf("no evaluation pairs")
	}
	sum := 0.0
	for _, i := range idx {
		gapped, complete, name, err := src.Pair(i)
		if err != nil {
			return 0, err
		}
		if err := checkPair(name, gapped, complete); err != nil {
			return 0, err
		}
		if gapped.Len() == 0 {
			continue
		}
		loss, err := net.Loss(gapped.ToMatrix(), complete.ToMatrix())
		if err != nil {
			return 0, fmt.Errorf("pair %q: %w", name, err)
		}
		sum += loss
	}
	return sum / float64(len(idx)), nil
}
