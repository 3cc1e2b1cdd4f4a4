// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/northbound/cil/internal/attachment"
	"github.com/northbound/cil/internal/config"
	"github.com/northbound/cil/internal/consistency"
	"github.com/northbound/cil/internal/embeddings"
	"github.com/northbound/cil/internal/llm"
	"github.com/northbound/cil/internal/logger"
	"github.com/northbound/cil/internal/memory"
	"github.com/northbound/cil/internal/queue"
	"github.com/northbound/cil/internal/router"
	"github.com/northbound/cil/internal/store"
	"github.com/northbound/cil/internal/vectordb"
	"github.com/northbound/cil/internal/websearch"
	"github.com/northbound/cil/internal/worker"
)

var configPath = flag.String("config", "", "Path to config.yaml (defaults to ./config.yaml, then env vars)")

func main() {
	if _, err := logger.Init("worker.log"); err != nil {
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

	vdb, qdrantConn := initVectorDB(cfg)
	if qdrantConn != nil {
		defer qdrantConn.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := vdb.EnsureCollections(ctx, embedder.Dimension()); err != nil {
		logger.Warnf("failed to ensure vector collections: %v", err)
	}

	client, err := queue.NewRedisClient(ctx, cfg.QueueBrokerURL)
	if err != nil {
		logger.Fatalf("failed to connect to queue broker at %s: %v", cfg.QueueBrokerURL, err)
	}
	q, err := queue.NewRedisQueue(client, "cil:work")
	if err != nil {
		logger.Fatalf("failed to init work queue: %v", err)
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

	visionClient, err := llm.NewVision(cfg.VisionProvider, llm.Config{
		APIKey: cfg.LLMAPIKeysByProvider[cfg.VisionProvider],
		Model:  cfg.VisionModel,
	})
	if err != nil {
		logger.Warnf("failed to init vision client: %v, image attachments will fail", err)
		visionClient = nil
	}

	var searcher websearch.Searcher
	if cfg.WebSearchAPIKey != "" {
		searcher = websearch.NewHTMLSearcher("", cfg.WebSearchAPIKey)
	}

	mem := memory.New()
	rt := router.New(st, retriever, llmClient, searcher, mem, cfg.ThematicCacheDir)
	cs := consistency.New(st, vdb)

	pipeline := attachment.NewPipeline(attachment.NewHTTPFetcher(), visionClient)

	handlers := &worker.Handlers{
		Store:              st,
		Queue:              q,
		VectorDB:           vdb,
		Embedder:           embedder,
		Sparse:             sparse,
		Consistency:        cs,
		Router:             rt,
		AttachmentPipeline: pipeline,
		ThematicCacheDir:   cfg.ThematicCacheDir,
	}

	pool := worker.NewPool(q, handlers.Build(), cfg.WorkerConcurrency)

	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Printf("starting %d workers", cfg.WorkerConcurrency)
		pool.Run(ctx)
	}()

	waitForShutdown(cancel, done)
}

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

// waitForShutdown blocks until a termination signal arrives, then cancels
// the pool's context and waits for Run to actually return so every
// in-flight work item finishes settling (retry, dead-letter, or ack) before
// the process exits.
func waitForShutdown(cancel context.CancelFunc, done <-chan struct{}) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Println("shutting down worker pool...")
	cancel()
	<-done

	if err := logger.GetDefault().Close(); err != nil {
		log.Printf("failed to close logger: %v", err)
	}
}
