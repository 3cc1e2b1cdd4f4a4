// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// thematic-rebuild is a standalone operator tool for forcing a thematic
// cluster rebuild for one tenant outside the worker's scheduled
// thematic_rebuild work kind, e.g. right after a bulk backfill.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/northbound/cil/internal/config"
	"github.com/northbound/cil/internal/store"
	"github.com/northbound/cil/internal/thematic"
)

var (
	configPath = flag.String("config", "", "Path to config.yaml")
	tenantID   = flag.Int64("tenant", 0, "Tenant id to rebuild topics for")
)

func main() {
	flag.Parse()
	if *tenantID == 0 {
		fmt.Fprintln(os.Stderr, "usage: thematic-rebuild -tenant <id> [-config path]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	st, err := store.Open(cfg.StoreURL)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	msgs, err := st.GetSampleMessages(ctx, *tenantID, 1000, 20)
	if err != nil {
		log.Fatalf("failed to sample messages: %v", err)
	}
	if len(msgs) == 0 {
		fmt.Printf("tenant %d has no eligible messages to cluster\n", *tenantID)
		return
	}

	texts := make([]string, len(msgs))
	for i, m := range msgs {
		texts[i] = m.Content
	}

	analyzer := thematic.NewAnalyzer(*tenantID, cfg.ThematicCacheDir)
	clusters, err := analyzer.Fit(texts)
	if err != nil {
		log.Fatalf("thematic rebuild failed: %v", err)
	}

	fmt.Printf("rebuilt %d topic clusters for tenant %d from %d messages\n", len(clusters), *tenantID, len(texts))
}
