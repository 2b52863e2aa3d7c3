package notionsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/contract-tracker/internal/domain"
	"github.com/dvloznov/contract-tracker/internal/logger"
)

const (
	// PageSize is the number of pages requested per database query.
	PageSize = 100
)

// ContractSource provides the contracts to mirror.
// contracts.Service implements it.
type ContractSource interface {
	ContractsWithHistory(ctx context.Context, bankID int64) ([]domain.ContractWithHistory, error)
}

// SyncResult counts what a sync changed.
type SyncResult struct {
	Created  int
	Updated  int
	Archived int
	Failed   int
}

// SyncContracts mirrors the contracts of a bank into a Notion database.
// This function:
// 1. Queries all existing pages of the database
// 2. Archives the pages of this bank whose contract no longer exists (merged or deleted)
// 3. Updates the pages of existing contracts and creates pages for new ones
//
// Pages of other banks and pages without a Contract ID are left alone. Failures on
// single pages are logged and counted; the sync continues with the next page.
func SyncContracts(ctx context.Context, source ContractSource, notionClient NotionService, notionDBID string, bankID int64, dryRun bool) (SyncResult, error) {
	log := logger.FromContext(ctx).With().Int64("bank_id", bankID).Bool("dry_run", dryRun).Logger()

	log.Info().Msg("Starting contract sync to Notion")

	contracts, err := source.ContractsWithHistory(ctx, bankID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("SyncContracts: loading contracts: %w", err)
	}

	log.Info().Int("contract_count", len(contracts)).Msg("Retrieved contracts")

	notionPages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("SyncContracts: %w", err)
	}

	log.Info().Int("notion_page_count", len(notionPages)).Msg("Retrieved existing Notion pages")

	valid := make(map[int64]bool, len(contracts))
	for _, c := range contracts {
		valid[c.Contract.ID] = true
	}

	// Existing pages of this bank by contract ID. A contract mirrored twice keeps its
	// first page; the duplicates are archived.
	existing := make(map[int64]string)
	var result SyncResult

	for _, page := range notionPages {
		key, ok := extractPageKey(page)
		if !ok || key.bankID != bankID {
			continue
		}
		pageID := string(page.ID)

		if _, dup := existing[key.contractID]; !dup && valid[key.contractID] {
			existing[key.contractID] = pageID
			continue
		}

		pageLog := log.With().Int64("contract_id", key.contractID).Str("page_id", pageID).Logger()
		if dryRun {
			pageLog.Info().Msg("[DRY RUN] Would archive stale Notion page")
			result.Archived++
			continue
		}
		if err := notionClient.DeletePage(ctx, pageID); err != nil {
			pageLog.Warn().Err(err).Msg("Failed to archive stale Notion page")
			result.Failed++
			continue
		}
		pageLog.Info().Msg("Archived stale Notion page")
		result.Archived++
	}

	for _, c := range contracts {
		pageLog := log.With().Int64("contract_id", c.Contract.ID).Logger()
		props := ContractToNotionProperties(c)

		if pageID, ok := existing[c.Contract.ID]; ok {
			if dryRun {
				pageLog.Info().Str("page_id", pageID).Msg("[DRY RUN] Would update Notion page")
				result.Updated++
				continue
			}
			if _, err := notionClient.UpdatePage(ctx, pageID, props); err != nil {
				pageLog.Warn().Err(err).Str("page_id", pageID).Msg("Failed to update Notion page")
				result.Failed++
				continue
			}
			pageLog.Debug().Str("page_id", pageID).Msg("Updated Notion page")
			result.Updated++
			continue
		}

		if dryRun {
			pageLog.Info().Msg("[DRY RUN] Would create Notion page")
			result.Created++
			continue
		}
		page, err := notionClient.CreatePage(ctx, notionDBID, props)
		if err != nil {
			pageLog.Warn().Err(err).Msg("Failed to create Notion page")
			result.Failed++
			continue
		}
		pageLog.Info().Str("page_id", string(page.ID)).Msg("Created Notion page")
		result.Created++
	}

	log.Info().
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("archived", result.Archived).
		Int("failed", result.Failed).
		Msg("Contract sync completed")

	return result, nil
}

// queryAllNotionPages retrieves every page of a database, following the cursor.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: PageSize,
		}

		// Only set StartCursor if we have a cursor value
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}
