// Package main provides the vraftd CLI entry point: a replicated vector
// search node built around a HNSW index driven by a Raft log.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vraft/vraft/pkg/config"
	"github.com/vraft/vraft/pkg/eval"
	"github.com/vraft/vraft/pkg/hnsw"
	"github.com/vraft/vraft/pkg/vraft"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vraftd",
		Short: "vraftd is a replicated approximate nearest-neighbor search node",
		Long: `vraftd serves vector similarity search backed by a HNSW index whose
mutations are replicated across a cluster via Raft consensus.`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("vraftd v%s (%s)\n", version, commit)
		},
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start a vraftd replica",
		RunE:  runServe,
	}
	serveCmd.Flags().String("cluster-file", "", "YAML file describing cluster peer addresses")
	rootCmd.AddCommand(serveCmd)

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a replica's data directory",
		RunE:  runInit,
	}
	rootCmd.AddCommand(initCmd)

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure recall@k of the configured index parameters against a random dataset",
		RunE:  runBench,
	}
	benchCmd.Flags().Int("vectors", 5000, "number of vectors in the synthetic dataset")
	benchCmd.Flags().Int("queries", 100, "number of random queries to run")
	benchCmd.Flags().Int("k", 10, "neighbors per query")
	benchCmd.Flags().Int64("seed", 1, "random seed")
	rootCmd.AddCommand(benchCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.LoadFromEnv()
	if clusterFile, _ := cmd.Flags().GetString("cluster-file"); clusterFile != "" {
		cf, err := config.LoadClusterFile(clusterFile)
		if err != nil {
			return fmt.Errorf("loading cluster file: %w", err)
		}
		cfg.ApplyClusterFile(cf, cfg.Node.ID)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := log.New(os.Stderr, fmt.Sprintf("[%s] ", cfg.Node.ID), log.LstdFlags)
	logger.Printf("starting vraftd v%s", version)
	logger.Print(cfg.String())

	if err := os.MkdirAll(cfg.Node.DataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	node, err := vraft.Open(cfg, logger, nil)
	if err != nil {
		return fmt.Errorf("opening node: %w", err)
	}

	logger.Printf("listening on %s (transport=%s)", cfg.Node.ListenAddress, cfg.Node.Transport)
	logger.Print("ready, press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Print("shutting down")
	if err := node.Close(); err != nil {
		return fmt.Errorf("closing node: %w", err)
	}
	logger.Print("stopped")
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg := config.LoadFromEnv()
	if err := os.MkdirAll(cfg.Node.DataDir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", cfg.Node.DataDir, err)
	}
	fmt.Printf("initialized data directory %s for node %s\n", cfg.Node.DataDir, cfg.Node.ID)
	return nil
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg := config.LoadFromEnv()
	numVectors, _ := cmd.Flags().GetInt("vectors")
	numQueries, _ := cmd.Flags().GetInt("queries")
	k, _ := cmd.Flags().GetInt("k")
	seed, _ := cmd.Flags().GetInt64("seed")

	idxCfg := hnsw.Config{
		Dimension:      cfg.Index.Dimension,
		M:              cfg.Index.M,
		EfConstruction: cfg.Index.EfConstruction,
		EfSearch:       cfg.Index.EfSearch,
		ML:             cfg.Index.ML,
		MaxElements:    cfg.Index.MaxElements,
	}
	idx, err := hnsw.New(idxCfg)
	if err != nil {
		return fmt.Errorf("building index: %w", err)
	}

	ds := eval.GenerateRandomDataset(numVectors, cfg.Index.Dimension, seed)
	start := time.Now()
	result, err := eval.RecallAtK(ds, idx, numQueries, k, seed+1)
	if err != nil {
		return fmt.Errorf("running benchmark: %w", err)
	}
	elapsed := time.Since(start)

	fmt.Printf("dataset:     %d vectors, dimension %d\n", numVectors, cfg.Index.Dimension)
	fmt.Printf("parameters:  M=%d efConstruction=%d efSearch=%d\n", idxCfg.M, idxCfg.EfConstruction, idxCfg.EfSearch)
	fmt.Printf("recall@%-3d  %.4f over %d queries\n", result.K, result.Recall, result.NumQueries)
	fmt.Printf("elapsed:     %v\n", elapsed)
	return nil
}
