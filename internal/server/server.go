// Package server wires the HTTP layer: the /ask and /inbound endpoints,
// health and metrics, and the migration entrypoint.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appconfig "github.com/sopdeskhq/sopdesk/config"
	"github.com/sopdeskhq/sopdesk/internal/kb"
	"github.com/sopdeskhq/sopdesk/internal/outbound"
	"github.com/sopdeskhq/sopdesk/internal/store"
	openai_provider "github.com/sopdeskhq/sopdesk/provider/openai"
)

// Run starts the HTTP server on addr. Only structural misconfiguration
// (no reachable Postgres) fails startup; the embedding and generation
// backends are optional and degrade at query time.
func Run(addr string, cfg *appconfig.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ctx := context.Background()
	dsn, err := cfg.Database.Postgres.DSN()
	if err != nil {
		return err
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}

	embedder, generator := buildBackends(cfg)
	retriever := kb.NewRetriever(st, embedder, nil)
	answerer := kb.NewAnswerGenerator(generator, nil)
	cache := NewAnswerCache(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB, cfg.Database.Redis.TTL, nil)
	webhook := outbound.NewClient(cfg.Outbound.WebhookURL, cfg.Outbound.Timeout)

	ask, err := NewAskHandler(retriever, answerer, st, webhook, cache, cfg.KB.TopK, cfg.KB.MinSimilarity, nil)
	if err != nil {
		return err
	}
	ask.Register(e)

	inbound, err := NewInboundHandler(retriever, answerer, st, webhook, cfg.KB.TopK, cfg.KB.MinSimilarity, nil)
	if err != nil {
		return err
	}
	inbound.Register(e)

	baseLogger.Printf("listening on %s", addr)
	return e.Start(addr)
}

// buildBackends selects the embedding and generation services. Without an
// API key the deterministic offline embedder keeps retrieval exercisable
// and generation degrades to the fixed fallback.
func buildBackends(cfg *appconfig.Config) (kb.EmbeddingService, kb.GenerationService) {
	if cfg.LLM.APIKey == "" {
		return kb.NewOfflineEmbedder(cfg.KB.EmbeddingDimensions), nil
	}
	client := openai_provider.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.BaseURL,
		cfg.LLM.CompletionModel,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.Temperature,
		cfg.LLM.Timeout,
	)
	return client, client
}
