package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/dvloznov/contract-tracker/internal/config"
	"github.com/dvloznov/contract-tracker/internal/contracts"
	"github.com/dvloznov/contract-tracker/internal/csvimport"
	"github.com/dvloznov/contract-tracker/internal/domain"
	"github.com/dvloznov/contract-tracker/internal/gcs"
	"github.com/dvloznov/contract-tracker/internal/gcsuploader"
	infraBQ "github.com/dvloznov/contract-tracker/internal/infra/bigquery"
	"github.com/dvloznov/contract-tracker/internal/logger"
	"github.com/dvloznov/contract-tracker/internal/pipeline"
	"github.com/dvloznov/contract-tracker/internal/repository"
	"github.com/dvloznov/contract-tracker/internal/store"
)

type command struct {
	run   func(log zerolog.Logger, cfg config.Config, args []string)
	usage string
}

var commands = map[string]command{
	"scan":            {runScan, "Detect, link and close contracts of a bank"},
	"list":            {runList, "List the contracts of a bank with their history"},
	"merge":           {runMerge, "Merge contracts into one"},
	"rename":          {runRename, "Rename a contract"},
	"delete":          {runDelete, "Delete contracts, unlinking their transactions"},
	"add":             {runAdd, "Assign a transaction to a contract"},
	"remove":          {runRemove, "Remove a transaction from its contract"},
	"set-mapping":     {runSetMapping, "Store the CSV column mapping of a bank"},
	"import-csv":      {runImportCSV, "Import a CSV statement from a file or gs:// URI"},
	"import-bigquery": {runImportBigQuery, "Import an account's transactions from BigQuery"},
	"export-bigquery": {runExportBigQuery, "Export a snapshot of a bank's contracts to BigQuery"},
}

var commandOrder = []string{
	"scan", "list", "merge", "rename", "delete", "add", "remove",
	"set-mapping", "import-csv", "import-bigquery", "export-bigquery",
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := cfg.Logger()

	name := os.Args[1]
	if name == "help" || name == "-h" || name == "--help" {
		printUsage()
		return
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
		printUsage()
		os.Exit(1)
	}
	cmd.run(log, cfg, os.Args[2:])
}

func printUsage() {
	fmt.Println("Contract Tracker CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	for _, name := range commandOrder {
		fmt.Printf("  %-16s %s\n", name, commands[name].usage)
	}
	fmt.Println("  help             Show this help message")
	fmt.Println("\nStorage is Postgres when DB_DSN is set, otherwise an in-memory store.")
	fmt.Println("Run 'cli <command> -h' for more information on a command.")
}

// open builds the command context and the configured store. The context carries the
// logger and the scan budget.
func open(log zerolog.Logger, cfg config.Config, timeout time.Duration) (context.Context, repository.Store, func()) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = logger.WithContext(ctx, log)

	s, closeStore, err := store.Open(ctx, cfg)
	if err != nil {
		cancel()
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	return ctx, s, func() {
		if err := closeStore(); err != nil {
			log.Error().Err(err).Msg("Failed to close store")
		}
		cancel()
	}
}

func parseIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func requireBank(log zerolog.Logger, bankID int64) {
	if bankID <= 0 {
		log.Fatal().Msg("Error: --bank is required")
	}
}

func runScan(log zerolog.Logger, cfg config.Config, args []string) {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	bankID := fs.Int64("bank", 0, "Bank ID to scan")
	fs.Parse(args)
	requireBank(log, *bankID)

	ctx, s, done := open(log, cfg, cfg.RunTimeout+time.Minute)
	defer done()

	outcome, err := pipeline.NewRunner(s, pipeline.Config{RunTimeout: cfg.RunTimeout}).Run(ctx, *bankID)
	if err != nil {
		log.Fatal().Err(err).Msg("Scan failed")
	}
	fmt.Println(outcome.Message())
}

func runList(log zerolog.Logger, cfg config.Config, args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	bankID := fs.Int64("bank", 0, "Bank ID")
	fs.Parse(args)
	requireBank(log, *bankID)

	ctx, s, done := open(log, cfg, time.Minute)
	defer done()

	list, err := contracts.NewService(s).ContractsWithHistory(ctx, *bankID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list contracts")
	}

	fmt.Printf("\n=== Contracts of bank %d (%d) ===\n", *bankID, len(list))
	for _, c := range list {
		status := "open"
		if c.Contract.EndDate != nil {
			status = "closed " + c.Contract.EndDate.Format(domain.DateLayout)
		}
		fmt.Printf("\n%d. %s\n", c.Contract.ID, c.Contract.Name)
		fmt.Printf("   Counterparty: %s\n", c.Contract.ParseName)
		fmt.Printf("   Amount:       %s every %d month(s)\n", c.Contract.CurrentAmount, c.Contract.MonthsBetweenPayment)
		fmt.Printf("   Status:       %s\n", status)
		fmt.Printf("   Total paid:   %s\n", c.TotalAmountPaid)
		if c.LastPaymentDate != nil {
			fmt.Printf("   Last payment: %s\n", c.LastPaymentDate.Format(domain.DateLayout))
		}
		for _, h := range c.History {
			fmt.Printf("   %s  %s -> %s\n", h.ChangedAt.Format(domain.DateLayout), h.OldAmount, h.NewAmount)
		}
	}
	fmt.Println()
}

func runMerge(log zerolog.Logger, cfg config.Config, args []string) {
	fs := flag.NewFlagSet("merge", flag.ExitOnError)
	rawIDs := fs.String("ids", "", "Comma-separated contract IDs to merge")
	fs.Parse(args)

	ids, err := parseIDs(*rawIDs)
	if err != nil || len(ids) < 2 {
		log.Fatal().Err(err).Msg("Usage: cli merge -ids 1,2[,...]")
	}

	ctx, s, done := open(log, cfg, time.Minute)
	defer done()

	head, err := contracts.NewService(s).Merge(ctx, ids)
	if err != nil {
		log.Fatal().Err(err).Msg("Merge failed")
	}
	fmt.Printf("Merged into contract %d (%s, %s)\n", head.ID, head.Name, head.CurrentAmount)
}

func runRename(log zerolog.Logger, cfg config.Config, args []string) {
	fs := flag.NewFlagSet("rename", flag.ExitOnError)
	contractID := fs.Int64("contract", 0, "Contract ID")
	name := fs.String("name", "", "New display name")
	fs.Parse(args)

	if *contractID <= 0 || strings.TrimSpace(*name) == "" {
		log.Fatal().Msg("Usage: cli rename -contract ID -name NAME")
	}

	ctx, s, done := open(log, cfg, time.Minute)
	defer done()

	if err := contracts.NewService(s).RenameContract(ctx, *contractID, strings.TrimSpace(*name)); err != nil {
		log.Fatal().Err(err).Msg("Rename failed")
	}
	fmt.Println("Contract renamed.")
}

func runDelete(log zerolog.Logger, cfg config.Config, args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	rawIDs := fs.String("ids", "", "Comma-separated contract IDs to delete")
	fs.Parse(args)

	ids, err := parseIDs(*rawIDs)
	if err != nil || len(ids) == 0 {
		log.Fatal().Err(err).Msg("Usage: cli delete -ids 1[,...]")
	}

	ctx, s, done := open(log, cfg, time.Minute)
	defer done()

	if err := contracts.NewService(s).DeleteContracts(ctx, ids); err != nil {
		log.Fatal().Err(err).Msg("Delete failed")
	}
	fmt.Printf("Deleted %d contract(s).\n", len(ids))
}

func runAdd(log zerolog.Logger, cfg config.Config, args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	txID := fs.Int64("tx", 0, "Transaction ID")
	contractID := fs.Int64("contract", 0, "Contract ID")
	oldAmount := fs.Bool("old-amount", false, "Record the amount as a past change only")
	update := fs.Bool("update-amount", false, "Make the transaction's amount the contract's current amount")
	fs.Parse(args)

	if *txID <= 0 || *contractID <= 0 || (*oldAmount && *update) {
		log.Fatal().Msg("Usage: cli add -tx ID -contract ID [-old-amount | -update-amount]")
	}

	ctx, s, done := open(log, cfg, time.Minute)
	defer done()
	service := contracts.NewService(s)

	if *oldAmount {
		changed, err := service.SetOldAmount(ctx, *txID, *contractID)
		if err != nil {
			log.Fatal().Err(err).Msg("Set old amount failed")
		}
		fmt.Printf("History changed: %v\n", changed)
		return
	}

	add := service.AddTransaction
	if *update {
		add = service.UpdateAmount
	}
	res, err := add(ctx, *txID, *contractID)
	if err != nil {
		log.Fatal().Err(err).Msg("Add failed")
	}
	fmt.Printf("Amount changed: %v, history changed: %v, reopened: %v\n", res.AmountChanged, res.HistoryChanged, res.Reopened)
}

func runRemove(log zerolog.Logger, cfg config.Config, args []string) {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	txID := fs.Int64("tx", 0, "Transaction ID")
	fs.Parse(args)

	if *txID <= 0 {
		log.Fatal().Msg("Usage: cli remove -tx ID")
	}

	ctx, s, done := open(log, cfg, time.Minute)
	defer done()

	res, err := contracts.NewService(s).RemoveTransaction(ctx, *txID)
	if err != nil {
		log.Fatal().Err(err).Msg("Remove failed")
	}
	fmt.Printf("Removed from contract %d (contract deleted: %v)\n", res.ContractID, res.ContractDeleted)
}

func runSetMapping(log zerolog.Logger, cfg config.Config, args []string) {
	fs := flag.NewFlagSet("set-mapping", flag.ExitOnError)
	bankID := fs.Int64("bank", 0, "Bank ID")
	date := fs.Int("date", -1, "Zero-based column of the booking date")
	counterparty := fs.Int("counterparty", -1, "Zero-based column of the counterparty")
	amount := fs.Int("amount", -1, "Zero-based column of the amount")
	balance := fs.Int("balance", -1, "Zero-based column of the balance after booking")
	fs.Parse(args)
	requireBank(log, *bankID)

	ctx, s, done := open(log, cfg, time.Minute)
	defer done()

	saved, err := csvimport.SaveMapping(ctx, s, domain.CSVMapping{
		BankID:             *bankID,
		DateColumn:         date,
		CounterpartyColumn: counterparty,
		AmountColumn:       amount,
		BalanceAfterColumn: balance,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Saving mapping failed")
	}
	fmt.Printf("Mapping of bank %d saved (date=%d counterparty=%d amount=%d balance=%d)\n",
		saved.BankID, *saved.DateColumn, *saved.CounterpartyColumn, *saved.AmountColumn, *saved.BalanceAfterColumn)
}

func runImportCSV(log zerolog.Logger, cfg config.Config, args []string) {
	fs := flag.NewFlagSet("import-csv", flag.ExitOnError)
	bankID := fs.Int64("bank", 0, "Bank ID")
	source := fs.String("file", "", "Path of a local CSV file or gs:// URI")
	skipRows := fs.Int("skip-rows", csvimport.DefaultSkipRows, "Header rows before the first booking")
	scan := fs.Bool("scan", true, "Run a contract scan after the import")
	fs.Parse(args)
	requireBank(log, *bankID)

	if *source == "" {
		log.Fatal().Msg("Usage: cli import-csv -bank ID -file PATH|gs://bucket/object")
	}

	ctx, s, done := open(log, cfg, cfg.RunTimeout+5*time.Minute)
	defer done()

	var r io.Reader
	if strings.HasPrefix(*source, "gs://") {
		bucket, _, err := gcs.ParseURI(*source)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid GCS URI")
		}
		archive, err := gcsuploader.NewGCSStatementStore(ctx, bucket)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create storage client")
		}
		defer archive.Close()

		data, err := archive.FetchStatement(ctx, *source)
		if err != nil {
			log.Fatal().Err(err).Str("uri", *source).Msg("Failed to fetch statement")
		}
		r = bytes.NewReader(data)
		log.Info().Str("file", gcs.ExtractFilename(*source)).Msg("Fetched statement from GCS")
	} else {
		f, err := os.Open(*source)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open statement")
		}
		defer f.Close()
		r = f
	}

	opts := csvimport.DefaultOptions()
	opts.SkipRows = *skipRows

	result, err := csvimport.ImportWithStore(ctx, s, *bankID, r, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("Import failed")
	}
	fmt.Println(result.Message())

	if *scan && result.Inserted > 0 {
		outcome, err := pipeline.NewRunner(s, pipeline.Config{RunTimeout: cfg.RunTimeout}).Run(ctx, *bankID)
		if err != nil {
			log.Fatal().Err(err).Msg("Scan failed")
		}
		fmt.Println(outcome.Message())
	}
}

func runImportBigQuery(log zerolog.Logger, cfg config.Config, args []string) {
	fs := flag.NewFlagSet("import-bigquery", flag.ExitOnError)
	bankID := fs.Int64("bank", 0, "Bank ID the transactions are imported into")
	accountID := fs.String("account", "", "BigQuery account_id to read")
	sinceStr := fs.String("since", "", "First booking date in YYYY-MM-DD format (default: everything)")
	project := fs.String("project", cfg.BigQueryProject, "GCP project (or set BQ_PROJECT env)")
	dataset := fs.String("dataset", cfg.BigQueryDataset, "BigQuery dataset (or set BQ_DATASET env)")
	fs.Parse(args)
	requireBank(log, *bankID)

	if *accountID == "" {
		log.Fatal().Msg("Error: --account is required")
	}
	var since civil.Date
	if *sinceStr != "" {
		d, err := civil.ParseDate(*sinceStr)
		if err != nil {
			log.Fatal().Err(err).Str("since", *sinceStr).Msg("Error: invalid since date, expected YYYY-MM-DD")
		}
		since = d
	}

	ctx, s, done := open(log, cfg, 10*time.Minute)
	defer done()

	source, err := infraBQ.NewTransactionSource(ctx, infraBQ.Config{ProjectID: *project, DatasetID: *dataset})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer source.Close()

	txs, err := source.LoadTransactions(ctx, *accountID, *bankID, since)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load transactions")
	}

	result, err := csvimport.ImportTransactions(ctx, s, *bankID, txs)
	if err != nil {
		log.Fatal().Err(err).Msg("Import failed")
	}
	fmt.Println(result.Message())
}

func runExportBigQuery(log zerolog.Logger, cfg config.Config, args []string) {
	fs := flag.NewFlagSet("export-bigquery", flag.ExitOnError)
	bankID := fs.Int64("bank", 0, "Bank ID to export")
	project := fs.String("project", cfg.BigQueryProject, "GCP project (or set BQ_PROJECT env)")
	dataset := fs.String("dataset", cfg.BigQueryDataset, "BigQuery dataset (or set BQ_DATASET env)")
	fs.Parse(args)
	requireBank(log, *bankID)

	ctx, s, done := open(log, cfg, 10*time.Minute)
	defer done()

	views, err := contracts.NewService(s).ContractsWithHistory(ctx, *bankID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load contracts")
	}

	exporter, err := infraBQ.NewContractExporter(ctx, infraBQ.Config{ProjectID: *project, DatasetID: *dataset})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer exporter.Close()

	snapshotID, err := exporter.Export(ctx, *bankID, views)
	if err != nil {
		log.Fatal().Err(err).Msg("Export failed")
	}
	fmt.Printf("Exported %d contract(s) as snapshot %s\n", len(views), snapshotID)
}
