package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/goccy/go-json"
	"github.com/tmc/langchaingo/embeddings"

	"askdb/internal/agent"
	"askdb/internal/config"
	"askdb/internal/database"
	"askdb/internal/llm"
	"askdb/internal/nouns"
	"askdb/internal/plot"
	"askdb/internal/router"
	"askdb/internal/sandbox"
	"askdb/internal/workflow"
)

// SetupLogger is set by main package
var SetupLogger func(path string, mirrorStderr bool) (*slog.Logger, error)

// HandleError prints error and exits
func HandleError(err error, message string) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", message, err)
	os.Exit(1)
}

// printJSON writes v as indented JSON to stdout
func printJSON(v interface{}) {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		HandleError(err, "Failed to encode JSON")
	}
	fmt.Println(string(output))
}

// openDatabase ingests src (a file path or URL) into the data directory and
// opens it read-only.
func openDatabase(ctx context.Context, src string) (*database.Handle, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	return database.IngestFile(ctx, src, cfg.DataDir, logger, database.WithMaxRows(cfg.MaxRows))
}

// pipeline holds the long-lived pieces shared by every database: the model
// client, the agent runner, the chart generator and the embedder.
type pipeline struct {
	model    *llm.Anthropic
	runner   *agent.FantasyRunner
	plotter  *plot.Generator
	embedder embeddings.Embedder
}

func newPipeline(ctx context.Context) (*pipeline, error) {
	model, err := llm.NewAnthropic(cfg.APIKey, llm.Config{Model: cfg.Model, Logger: logger})
	if err != nil {
		return nil, err
	}

	runner, err := agent.NewRunner(ctx,
		agent.WithAPIKey(cfg.APIKey),
		agent.WithModel(cfg.Model),
		agent.WithMaxSteps(cfg.MaxSteps),
		agent.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	exec, err := sandbox.New(sandbox.Config{
		Kind:        cfg.Sandbox.Kind,
		Interpreter: cfg.Sandbox.Interpreter,
		URL:         cfg.Sandbox.URL,
		Timeout:     cfg.Sandbox.Timeout,
		MaxOutput:   cfg.Sandbox.MaxOutput,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox: %w", err)
	}

	plotter, err := plot.NewGenerator(model, exec,
		plot.WithDataTokens(cfg.Plot.DataTokens),
		plot.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	p := &pipeline{model: model, runner: runner, plotter: plotter}
	if cfg.Nouns.Enabled {
		p.embedder, err = newEmbedder()
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

func newEmbedder() (embeddings.Embedder, error) {
	e, err := nouns.NewEmbedder(nouns.EmbedderConfig{
		Provider: cfg.Embeddings.Provider,
		Model:    cfg.Embeddings.Model,
		BaseURL:  cfg.Embeddings.BaseURL,
		APIKey:   cfg.Embeddings.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return e, nil
}

// newIndex returns an empty index, or nil when the index is disabled.
func (p *pipeline) newIndex() *nouns.Index {
	if p.embedder == nil {
		return nil
	}
	return nouns.NewIndex(p.embedder,
		nouns.WithBatchSize(cfg.Nouns.BatchSize),
		nouns.WithConcurrency(cfg.Nouns.Concurrency),
		nouns.WithLogger(logger))
}

// workflow wires a question workflow for h. ix may be nil.
func (p *pipeline) workflow(h *database.Handle, ix *nouns.Index) (*workflow.Workflow, error) {
	wcfg := workflow.Config{
		DB:      h,
		Router:  router.New(p.model, logger),
		Runner:  p.runner,
		Plotter: p.plotter,
		Checker: p.model,
		Logger:  logger.With("database", h.Path()),
	}
	if ix != nil {
		wcfg.Nouns = ix
		wcfg.NounsK = cfg.Nouns.K
	}
	return workflow.New(wcfg)
}

// loadConfig is shared by every command through the root PersistentPreRunE.
func loadConfig(mirrorStderr bool) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dataDir != "" {
		loaded.DataDir = dataDir
	}
	if err := os.MkdirAll(loaded.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger = slog.Default()
	if SetupLogger != nil {
		l, err := SetupLogger(loaded.LogPath(), mirrorStderr)
		if err != nil {
			return err
		}
		logger = l
		slog.SetDefault(l)
	}
	cfg = loaded
	return nil
}
