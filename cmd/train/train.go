// Command train fits the point completion model on a directory pair of
// gapped and complete point clouds.
//
// Usage:
//
//	train [flags] <gapped-dir> <complete-dir>
//
// Files are paired by identical filename across the two directories. The run
// emits one average-loss line per epoch and a final held-out MSE line, then
// writes the trained parameters to the checkpoint path.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/banshee-data/cloudmend/internal/checkpoint"
	"github.com/banshee-data/cloudmend/internal/dataset"
	"github.com/banshee-data/cloudmend/internal/pointcloud"
	"github.com/banshee-data/cloudmend/internal/regress"
	"github.com/banshee-data/cloudmend/internal/rundb"
	"github.com/banshee-data/cloudmend/internal/training"
)

var (
	epochs    = flag.Int("epochs", 50, "Number of training epochs")
	lr        = flag.Float64("lr", 1e-3, "Adam learning rate")
	batchSize = flag.Int("batch", 1, "Batch size (each step consumes one cloud)")
	outPath   = flag.String("out", training.DefaultCheckpointName, "Output checkpoint path")
	seed      = flag.Int64("seed", 0, "Random seed for split and init (0 = time-based)")
	runDBPath = flag.String("rundb", "", "Optional SQLite database recording run history")
	plotPath  = flag.String("plot", "", "Optional loss-curve image path (.png or .svg)")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] <gapped-dir> <complete-dir>\n\nFlags:\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 2 {
		usage()
		os.Exit(2)
	}
	gappedDir, completeDir := flag.Arg(0), flag.Arg(1)

	cfg := training.DefaultConfig()
	cfg.Epochs = *epochs
	cfg.LearningRate = *lr
	cfg.BatchSize = *batchSize
	cfg.CheckpointPath = *outPath
	if *seed != 0 {
		cfg.Seed = *seed
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	reg := pointcloud.DefaultRegistry()
	ds, err := dataset.NewPaired(gappedDir, completeDir, reg)
	if err != nil {
		log.Fatalf("Failed to open dataset: %v", err)
	}
	if ds.Size() == 0 {
		log.Fatalf("No point cloud files found in %q", gappedDir)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	trainIdx, testIdx := dataset.Split(ds.Size(), cfg.TrainFraction, rng)
	log.Printf("Dataset: %d pairs (%d train, %d held out)", ds.Size(), len(trainIdx), len(testIdx))

	net, err := regress.New(regress.DefaultArch(), rng)
	if err != nil {
		log.Fatalf("Failed to build model: %v", err)
	}

	trainer := training.NewTrainer(net, cfg)

	var runID string
	var db *rundb.RunDB
	if *runDBPath != "" {
		db, err = rundb.Open(*runDBPath)
		if err != nil {
			log.Fatalf("Failed to open run database: %v", err)
		}
		defer db.Close()

		runID, err = db.StartRun(cfg.Epochs, cfg.LearningRate, cfg.BatchSize, cfg.CheckpointPath, len(trainIdx), len(testIdx))
		if err != nil {
			log.Fatalf("Failed to record run: %v", err)
		}
		trainer.SetRunStore(db.Recorder(runID))
		log.Printf("Recording run %s to %s", runID, *runDBPath)
	}

	start := time.Now()
	if err := trainer.Run(ds, trainIdx); err != nil {
		log.Fatalf("Training failed: %v", err)
	}
	log.Printf("Training complete in %s", time.Since(start).Round(time.Millisecond))

	var evalMSE float64
	if len(testIdx) > 0 {
		evalMSE, err = training.Evaluate(net, ds, testIdx)
		if err != nil {
			log.Fatalf("Evaluation failed: %v", err)
		}
		log.Printf("Held-out MSE: %.6f (%d pairs)", evalMSE, len(testIdx))
	} else {
		log.Printf("No held-out pairs; skipping evaluation")
	}

	if err := checkpoint.Save(cfg.CheckpointPath, net.StateDict()); err != nil {
		log.Fatalf("Failed to save checkpoint: %v", err)
	}
	log.Printf("Saved checkpoint to %s", cfg.CheckpointPath)

	if db != nil {
		if err := db.FinishRun(runID, evalMSE); err != nil {
			log.Printf("Warning: failed to finalise run record: %v", err)
		}
	}

	if *plotPath != "" {
		if err := training.WriteLossPlot(*plotPath, trainer.EpochLosses); err != nil {
			log.Printf("Warning: failed to write loss plot: %v", err)
		} else {
			log.Printf("Wrote loss plot to %s", *plotPath)
		}
	}
}
