package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/peruse-ai/peruse/pkg/config"
	"github.com/peruse-ai/peruse/pkg/httpclient"
	"github.com/peruse-ai/peruse/pkg/llm"
	"github.com/peruse-ai/peruse/pkg/logger"
	"github.com/peruse-ai/peruse/pkg/server"
	"github.com/peruse-ai/peruse/pkg/store"
	"github.com/peruse-ai/peruse/pkg/tasks"
	"github.com/peruse-ai/peruse/pkg/utils"
)

type appParts int

const (
	appServer appParts = 1 << iota
	appWorkers
)

// run wires the stores, the LLM stack, and the requested components, then
// blocks until ctx is canceled.
func run(ctx context.Context, cfg *config.Config, parts appParts) error {
	log := logger.GetLogger()

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	mongo, err := store.OpenMongo(connectCtx, cfg.MongoURL, cfg.MongoDatabase)
	cancel()
	if err != nil {
		return fmt.Errorf("connect mongodb: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := mongo.Close(closeCtx); err != nil {
			log.Error("mongodb close failed", "error", err)
		}
	}()

	indexCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = mongo.EnsureIndexes(indexCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

	submissions := mongo.Submissions()
	queue := mongo.Queue()

	caller := buildCaller(cfg, mongo.Cache(), log)
	service := tasks.NewService(submissions, queue, log)

	g, ctx := errgroup.WithContext(ctx)

	if parts&appServer != 0 {
		srv := server.New(service, submissions, queue, cfg.HTTPAddr, log)
		g.Go(func() error { return srv.Run(ctx) })
	}

	if parts&appWorkers != 0 {
		handlers := tasks.NewHandlers(tasks.Env{
			Submissions:   submissions,
			LLM:           caller,
			Logger:        log,
			MaxChunkChars: cfg.MaxChunkChars,
		})
		for i := 0; i < cfg.WorkerCount; i++ {
			worker := tasks.NewWorker(queue, submissions, handlers, cfg.PollInterval, log)
			g.Go(func() error { return worker.Run(ctx) })
		}
	}

	return g.Wait()
}

// buildCaller assembles the LLM call chain: HTTP client with retries, the
// chat API client, span tracing with token counts, and the Mongo-backed
// prompt cache.
func buildCaller(cfg *config.Config, cache store.CacheStore, log *slog.Logger) llm.Caller {
	hc := httpclient.New(httpclient.WithLogger(log))
	client := llm.NewClient(cfg.LLMURL,
		llm.WithModel(cfg.LLMModel),
		llm.WithToken(cfg.LLMToken),
		llm.WithHTTPClient(hc),
	)

	traced := llm.NewTracingCaller(client)
	if counter, err := utils.NewTokenCounter(cfg.LLMModel); err == nil {
		traced = traced.WithTokenCounter(counter)
	} else {
		log.Warn("token counter unavailable, using estimates", "error", err)
	}

	return llm.NewCachedCaller(traced, cache, log)
}
