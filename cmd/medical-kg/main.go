// Command medical-kg builds a medical knowledge graph from a MIMIC-style
// dataset directory, prints summary statistics, and optionally exports the
// graph in JSON, GraphML, or GEXF form.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	medicalkg "github.com/jafffy/medical-kg"
	"github.com/jafffy/medical-kg/graph"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		dataDir    = flag.String("data", "", "dataset root directory (overrides config)")
		maxN       = flag.Int("max-patients", 0, "cap patients processed, 0 = all")
		ckptPath   = flag.String("checkpoint", "", "SQLite checkpoint path (overrides config)")
		outPath    = flag.String("out", "", "write the graph to this file after the run")
		format     = flag.String("format", "json", "export format: json, graphml, gexf")
		noLLM      = flag.Bool("no-llm", false, "disable LLM extraction, rules only")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := medicalkg.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = medicalkg.LoadConfig(*configPath)
		if err != nil {
			fatal("loading config: %v", err)
		}
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *maxN > 0 {
		cfg.MaxPatients = *maxN
	}
	if *ckptPath != "" {
		cfg.CheckpointPath = *ckptPath
	}
	if *noLLM {
		cfg.UseLLM = false
	}
	if cfg.DataDir == "" {
		fatal("no dataset: pass -data or set data_dir in the config")
	}

	pipeline, err := medicalkg.NewPipeline(cfg)
	if err != nil {
		fatal("creating pipeline: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := pipeline.Run(ctx)
	if err != nil {
		fatal("run failed: %v", err)
	}

	g := pipeline.Graph()
	stats := g.ComputeStatistics()
	fmt.Printf("processed=%d skipped=%d failed=%d elapsed=%s\n",
		report.Processed, report.Skipped, len(report.Failed), report.Elapsed.Round(time.Millisecond))
	fmt.Printf("entities=%d relations=%d notes=%d components=%d density=%.4f\n",
		stats.Entities, stats.Relations, stats.Notes, stats.Components, stats.Density)

	if *outPath != "" {
		if err := writeGraph(g, *outPath, *format); err != nil {
			fatal("exporting graph: %v", err)
		}
		fmt.Printf("graph written to %s (%s)\n", *outPath, *format)
	}
}

func writeGraph(g *graph.KnowledgeGraph, path, format string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	switch strings.ToLower(format) {
	case "json":
		return g.WriteJSON(f)
	case "graphml":
		return g.WriteGraphML(f)
	case "gexf":
		return g.WriteGEXF(f)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
