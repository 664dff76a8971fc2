package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	appconfig "github.com/sopdeskhq/sopdesk/config"
	"github.com/sopdeskhq/sopdesk/internal/kb"
	srv "github.com/sopdeskhq/sopdesk/internal/server"
	"github.com/sopdeskhq/sopdesk/internal/store"
	openai_provider "github.com/sopdeskhq/sopdesk/provider/openai"
)

func main() {
	var configPath string
	root := &cobra.Command{Use: "sopdesk"}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file path")

	var serveAddr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := appconfig.LoadConfig(configPath)
			if serveAddr == "" {
				serveAddr = cfg.Server.Address
			}
			return srv.Run(serveAddr, cfg)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")

	var migDir string
	var direction string
	var steps int
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := appconfig.LoadConfig(configPath)
			dsn, err := cfg.Database.Postgres.DSN()
			if err != nil {
				dsn = "" // fall back to DATABASE_URL / POSTGRES_* env
			}
			return srv.Migrate(migDir, dsn, direction, steps)
		},
	}
	migrate.Flags().StringVar(&migDir, "dir", "file://migrations", "migrations source")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")

	var sourceDir string
	ingest := &cobra.Command{
		Use:   "ingest",
		Short: "Replace the corpus from a directory of procedure documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := appconfig.LoadConfig(configPath)
			if sourceDir == "" {
				sourceDir = cfg.KB.SourceDir
			}
			ctx := context.Background()
			dsn, err := cfg.Database.Postgres.DSN()
			if err != nil {
				return err
			}
			st, err := store.NewWithDSN(ctx, dsn)
			if err != nil {
				return err
			}
			defer st.DB.Close()

			var embedder kb.EmbeddingService = kb.NewOfflineEmbedder(cfg.KB.EmbeddingDimensions)
			if cfg.LLM.APIKey != "" {
				embedder = openai_provider.NewClient(
					cfg.LLM.APIKey,
					cfg.LLM.BaseURL,
					cfg.LLM.CompletionModel,
					cfg.LLM.EmbeddingModel,
					cfg.LLM.Temperature,
					cfg.LLM.Timeout,
				)
			}
			chunker := kb.NewChunker(kb.WithChunkSize(cfg.KB.ChunkSize), kb.WithChunkOverlap(cfg.KB.ChunkOverlap))
			ingestor := kb.NewIngestor(chunker, embedder, st, nil)
			docs, chunks, err := ingestor.IngestDir(ctx, sourceDir)
			if err != nil {
				return err
			}
			fmt.Printf("Ingested %d docs, %d chunks.\n", docs, chunks)
			return nil
		},
	}
	ingest.Flags().StringVar(&sourceDir, "source", "", "source directory (default from config)")

	root.AddCommand(serve, migrate, ingest)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
