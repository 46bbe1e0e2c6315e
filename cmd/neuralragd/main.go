// Command neuralragd hosts the persistent neuron/synapse store and runs
// the Learner's background decay and prune jobs against a project root.
// It is a thin process harness, not a CLI front end: query and write
// access are exposed as the Go library API in pkg/retrieval and
// pkg/store, to be driven by an external indexer/CLI collaborator.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/denizumutdereli/neuralrag/pkg/core"
	"github.com/denizumutdereli/neuralrag/pkg/learner"
	"github.com/denizumutdereli/neuralrag/pkg/store"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (overrides NEURALRAG_CONFIG env)")
	projectRoot := flag.String("project-root", "", "Project root containing (or to contain) .neuralrag/brain.db (overrides storage.dataPath)")
	flag.Parse()

	if err := run(*configPath, *projectRoot); err != nil {
		log.Fatalf("neuralragd: %v", err)
	}
}

func run(configPath, projectRoot string) error {
	core.PrintBanner()

	if configPath == "" {
		configPath = os.Getenv("NEURALRAG_CONFIG")
	}

	cfg, err := core.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if projectRoot != "" {
		cfg.ApplyCLIOverrides(&core.CLIOverrides{DataPath: &projectRoot})
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s, err := store.Open(ctx, cfg.Storage.DataPath, &cfg.Storage)
	if err != nil {
		cancel()
		return fmt.Errorf("opening store: %w", err)
	}
	log.Printf("store opened at %s", s.Path())

	hebbian := learner.New(s)

	go hebbian.RunDecayLoop(ctx, cfg.Learner.DecayInterval, cfg.Learner.DecayDaysOld, cfg.Learner.DecayDelta)
	go hebbian.RunPruneLoop(ctx, cfg.Learner.PruneInterval, cfg.Learner.PruneFloor)

	log.Println("neuralragd is ready")
	log.Println("--------------------------------------------")

	core.WaitForShutdown(ctx, cancel)

	log.Println("initiating graceful shutdown...")

	if err := s.Close(); err != nil {
		log.Printf("store close error: %v", err)
	}

	log.Println("neuralragd shutdown complete")
	return nil
}
