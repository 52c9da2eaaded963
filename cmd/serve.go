package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"askdb/internal/database"
	"askdb/internal/nouns"
	"askdb/internal/server"
)

var (
	addr     string
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server.

Databases are uploaded to POST /api/databases and questions are sent to
POST /api/databases/{id}/ask. Uploaded databases expire after the
configured TTL. Prometheus metrics are served on /metrics.`,
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&addr, "addr", "a", "", "Address to listen on (overrides config)")
}

func runServe() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := newPipeline(ctx)
	if err != nil {
		HandleError(err, "Failed to initialize pipeline")
	}

	srv, err := server.New(server.Config{
		DataDir:        cfg.DataDir,
		MaxRows:        cfg.MaxRows,
		RequestTimeout: cfg.Server.RequestTimeout,
		DatabaseTTL:    cfg.Server.DatabaseTTL,
		RateLimit:      cfg.Server.RateLimit,
		RateBurst:      cfg.Server.RateBurst,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		StripNumbers:   cfg.Nouns.StripNumbers,
		NewIndex:       p.newIndex,
		Logger:         logger,
	}, func(h *database.Handle, ix *nouns.Index) (server.Asker, error) {
		wf, err := p.workflow(h, ix)
		if err != nil {
			return nil, err
		}
		return wf, nil
	})
	if err != nil {
		HandleError(err, "Failed to create server")
	}

	listen := cfg.Server.Addr
	if addr != "" {
		listen = addr
	}

	fmt.Printf("Starting askdb API server...\n")
	fmt.Printf("Data directory: %s\n", cfg.DataDir)
	fmt.Printf("Address: %s\n\n", listen)

	if err := srv.ListenAndServe(ctx, listen); err != nil {
		HandleError(err, "Server failed")
	}
}
