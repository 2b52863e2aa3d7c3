package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/dvloznov/contract-tracker/internal/config"
	"github.com/dvloznov/contract-tracker/internal/contracts"
	"github.com/dvloznov/contract-tracker/internal/logger"
	"github.com/dvloznov/contract-tracker/internal/notionsync"
	"github.com/dvloznov/contract-tracker/internal/store"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fallback := logger.New()
		fallback.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Parse CLI flags
	bankID := flag.Int64("bank", 0, "Bank ID whose contracts are synced (required)")
	notionToken := flag.String("notion-token", cfg.NotionToken, "Notion API token (or set NOTION_TOKEN env)")
	notionDBID := flag.String("notion-db-id", cfg.NotionDatabaseID, "Notion database ID (or set NOTION_DB_ID env)")
	dryRun := flag.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	flag.Parse()

	log := cfg.Logger()

	// Validate required flags
	if *bankID <= 0 {
		log.Fatal().Msg("Error: --bank is required")
	}
	if *notionToken == "" {
		log.Fatal().Msg("Error: --notion-token is required")
	}
	if *notionDBID == "" {
		log.Fatal().Msg("Error: --notion-db-id is required")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	s, closeStore, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer closeStore()

	notionClient := notionsync.NewNotionClient(*notionToken)

	result, err := notionsync.SyncContracts(ctx, contracts.NewService(s), notionClient, *notionDBID, *bankID, *dryRun)
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Printf("Sync completed: %d created, %d updated, %d archived, %d failed.\n",
		result.Created, result.Updated, result.Archived, result.Failed)
}
