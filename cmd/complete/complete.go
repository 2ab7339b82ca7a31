// Command complete applies a trained completion model to a single point
// cloud.
//
// Usage:
//
//	complete <checkpoint> <input-cloud> <output-cloud>
//
// The input and output formats are selected by file extension. Codec
// availability for both paths is checked up front, before the checkpoint is
// loaded, so an unsupported format fails fast.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"

	"github.com/banshee-data/cloudmend/internal/checkpoint"
	"github.com/banshee-data/cloudmend/internal/pointcloud"
	"github.com/banshee-data/cloudmend/internal/regress"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <checkpoint> <input-cloud> <output-cloud>\n", os.Args[0])
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 3 {
		usage()
		os.Exit(2)
	}
	ckptPath, inPath, outPath := flag.Arg(0), flag.Arg(1), flag.Arg(2)

	reg := pointcloud.DefaultRegistry()
	if _, err := reg.Lookup(inPath); err != nil {
		log.Fatalf("Cannot read %q: %v", inPath, err)
	}
	if err := reg.CanWrite(outPath); err != nil {
		log.Fatalf("Cannot write %q: %v", outPath, err)
	}

	net, err := regress.New(regress.DefaultArch(), rand.New(rand.NewSource(1)))
	if err != nil {
		log.Fatalf("Failed to build model: %v", err)
	}
	params, err := checkpoint.Load(ckptPath)
	if err != nil {
		log.Fatalf("Failed to load checkpoint: %v", err)
	}
	if err := net.LoadStateDict(params); err != nil {
		log.Fatalf("Checkpoint does not fit model: %v", err)
	}

	cloud, err := reg.Open(inPath)
	if err != nil {
		log.Fatalf("Failed to read point cloud: %v", err)
	}

	completed, err := net.Complete(cloud)
	if err != nil {
		log.Fatalf("Completion failed: %v", err)
	}

	if err := reg.Write(outPath, completed); err != nil {
		log.Fatalf("Failed to write output: %v", err)
	}
	log.Printf("Completed %d points: %s -> %s", completed.Len(), inPath, outPath)
}
