// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/northbound/cil/internal/config"
	"github.com/northbound/cil/internal/consistency"
	"github.com/northbound/cil/internal/embeddings"
	"github.com/northbound/cil/internal/llm"
	"github.com/northbound/cil/internal/logger"
	"github.com/northbound/cil/internal/memory"
	"github.com/northbound/cil/internal/queue"
	"github.com/northbound/cil/internal/router"
	"github.com/northbound/cil/internal/server"
	"github.com/northbound/cil/internal/store"
	"github.com/northbound/cil/internal/vectordb"
	"github.com/northbound/cil/internal/websearch"
)

var configPath = flag.String("config", "", "Path to config.yaml (defaults to ./config.yaml, then env vars)")

func main() {
	if _, err := logger.Init("apiserver.log"); err != nil {
		log.Printf("failed to initialize logger: %v, using stdout only", err)
	} else {
		logger.Printf("logger initialized")
	}

	if err := godotenv.Load(); err != nil {
		logger.Printf("no .env file found, using environment variables: %v", err)
	} else {
		logger.Printf("loaded .env file")
	}

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	st, err := store.Open(cfg.StoreURL)
	if err != nil {
		logger.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	embedder, err := embeddings.New(cfg.EmbeddingProvider, embeddings.Config{
		APIKey: cfg.LLMAPIKeysByProvider[cfg.EmbeddingProvider],
		Model:  cfg.EmbeddingModel,
	})
	if err != nil {
		logger.Fatalf("failed to init embedder: %v", err)
	}
	logger.Printf("initialized embedder: %s (dimension: %d)", cfg.EmbeddingProvider, embedder.Dimension())

	vdb, qdrantConn := initVectorDB(cfg)
	if qdrantConn != nil {
		defer qdrantConn.Close()
	}
	ctx := context.Background()
	if err := vdb.EnsureCollections(ctx, embedder.Dimension()); err != nil {
		logger.Warnf("failed to ensure vector collections: %v", err)
	}

	sparse := embeddings.NewBM25Scorer()
	retriever := vectordb.NewRetriever(vdb, embedder, sparse, nil)

	llmClient, err := llm.New(cfg.LLMProvider, llm.Config{
		APIKey: cfg.LLMAPIKeysByProvider[cfg.LLMProvider],
		Model:  cfg.LLMModel,
	})
	if err != nil {
		logger.Fatalf("failed to init llm client: %v", err)
	}

	var searcher websearch.Searcher
	if cfg.WebSearchAPIKey != "" {
		searcher = websearch.NewHTMLSearcher("", cfg.WebSearchAPIKey)
	}

	mem := memory.New()
	rt := router.New(st, retriever, llmClient, searcher, mem, cfg.ThematicCacheDir)
	cs := consistency.New(st, vdb)

	settings, err := config.NewProviderSettingsStore(cfg.ProviderOverrideFile)
	if err != nil {
		logger.Fatalf("failed to open provider settings store: %v", err)
	}
	defer settings.Close()

	q := initQueue(ctx, cfg)

	srv := server.New(st, rt, cs, q, settings, cfg.ThematicCacheDir)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: srv.Routes(),
	}

	go func() {
		logger.Printf("HTTP server listening on %d", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("HTTP server error: %v", err)
		}
	}()

	waitForShutdown(httpServer)
}

// initVectorDB dials Qdrant at cfg.VectorIndexURL, falling back to the
// in-memory mock when the dial or the client construction fails (Design
// Note §9: degrade, don't crash). grpc.Dial does not wait for a connection,
// so an unreachable index is not detected here.
func initVectorDB(cfg *config.Config) (vectordb.VectorDB, *grpc.ClientConn) {
	conn, err := grpc.Dial(cfg.VectorIndexURL, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		logger.Warnf("failed to connect to vector index at %s: %v, using mock vector DB", cfg.VectorIndexURL, err)
		return vectordb.NewMockVectorDB(), nil
	}
	vdb, err := vectordb.NewQdrantVectorDB(conn)
	if err != nil {
		logger.Warnf("failed to init vector db client: %v, using mock vector DB", err)
		conn.Close()
		return vectordb.NewMockVectorDB(), nil
	}
	logger.Printf("connected to vector index at %s", cfg.VectorIndexURL)
	return vdb, conn
}

// initQueue connects to the broker at cfg.QueueBrokerURL, returning nil if
// unavailable. A nil queue means ingest endpoints accept writes to the
// store but cannot schedule indexing work until the broker returns.
func initQueue(ctx context.Context, cfg *config.Config) queue.Queue {
	client, err := queue.NewRedisClient(ctx, cfg.QueueBrokerURL)
	if err != nil {
		logger.Warnf("failed to connect to queue broker at %s: %v, work enqueueing disabled", cfg.QueueBrokerURL, err)
		return nil
	}
	q, err := queue.NewRedisQueue(client, "cil:work")
	if err != nil {
		logger.Warnf("failed to init work queue: %v, work enqueueing disabled", err)
		return nil
	}
	logger.Printf("connected to queue broker at %s", cfg.QueueBrokerURL)
	return q
}

func waitForShutdown(httpServer *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Println("shutting down apiserver...")
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Errorf("HTTP shutdown error: %v", err)
	}
	if err := logger.GetDefault().Close(); err != nil {
		log.Printf("failed to close logger: %v", err)
	}
}
