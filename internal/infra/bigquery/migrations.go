package bigquery

import (
	"context"
	"crypto/sha256"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/contract-tracker/internal/logger"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// migrationPattern matches migration files: 0001_name.sql
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// Migration is a single versioned SQL file.
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration is a migration recorded in schema_migrations.
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// Migrations returns the embedded migrations with placeholders resolved for cfg.
func Migrations(cfg Config) ([]Migration, error) {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("Migrations: %w", err)
	}
	return ReadMigrations(sub, cfg)
}

// ReadMigrations reads every migration file at the root of fsys, ordered by version.
// Files not matching NNNN_name.sql are skipped. The checksum is taken before
// placeholders are replaced, so it tracks the logical migration rather than the
// project it is applied to.
func ReadMigrations(fsys fs.FS, cfg Config) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("ReadMigrations: reading directory: %w", err)
	}

	seen := make(map[int]string)
	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matches := migrationPattern.FindStringSubmatch(entry.Name())
		if matches == nil {
			continue
		}
		version, err := strconv.Atoi(matches[1])
		if err != nil {
			continue
		}
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("ReadMigrations: version %04d used by %s and %s", version, prev, entry.Name())
		}
		seen[version] = entry.Name()

		content, err := fs.ReadFile(fsys, path.Clean(entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("ReadMigrations: reading %s: %w", entry.Name(), err)
		}

		sql := strings.ReplaceAll(string(content), "{{PROJECT_ID}}", cfg.ProjectID)
		sql = strings.ReplaceAll(sql, "{{DATASET_ID}}", cfg.DatasetID)

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     matches[2],
			Filename: entry.Name(),
			SQL:      sql,
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Pending returns the migrations not yet applied. A changed checksum of an applied
// migration is returned as drifted; it is never re-run.
func Pending(all []Migration, applied []AppliedMigration) (pending []Migration, drifted []Migration) {
	byVersion := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		byVersion[am.Version] = am
	}
	for _, m := range all {
		am, ok := byVersion[m.Version]
		switch {
		case !ok:
			pending = append(pending, m)
		case am.Checksum != "" && am.Checksum != m.Checksum:
			drifted = append(drifted, m)
		}
	}
	return pending, drifted
}

// MigrateWithClient applies every pending embedded migration and records it in
// schema_migrations. It returns the number of migrations applied.
func MigrateWithClient(ctx context.Context, client *bigquery.Client, cfg Config, appliedBy string) (int, error) {
	log := logger.FromContext(ctx)

	migrations, err := Migrations(cfg)
	if err != nil {
		return 0, fmt.Errorf("MigrateWithClient: %w", err)
	}
	if err := ensureSchemaMigrationsTable(ctx, client, cfg); err != nil {
		return 0, fmt.Errorf("MigrateWithClient: ensuring schema_migrations: %w", err)
	}
	applied, err := appliedMigrations(ctx, client, cfg)
	if err != nil {
		return 0, fmt.Errorf("MigrateWithClient: reading applied migrations: %w", err)
	}

	pending, drifted := Pending(migrations, applied)
	for _, m := range drifted {
		log.Warn().Int("version", m.Version).Str("name", m.Name).Msg("applied migration changed since it ran")
	}

	for _, m := range pending {
		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("applying migration")
		if err := runQuery(ctx, client.Query(m.SQL)); err != nil {
			return 0, fmt.Errorf("MigrateWithClient: executing %s: %w", m.Filename, err)
		}
		if err := recordMigration(ctx, client, cfg, m, appliedBy); err != nil {
			return 0, fmt.Errorf("MigrateWithClient: recording %s: %w", m.Filename, err)
		}
	}
	log.Info().Int("applied", len(pending)).Int("total", len(migrations)).Msg("warehouse migrations done")
	return len(pending), nil
}

func ensureSchemaMigrationsTable(ctx context.Context, client *bigquery.Client, cfg Config) error {
	return runQuery(ctx, client.Query(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version       INT64 NOT NULL,
			name          STRING NOT NULL,
			applied_at    TIMESTAMP NOT NULL,
			checksum      STRING,
			applied_by    STRING
		)
	`, cfg.table(migrationsTable))))
}

func appliedMigrations(ctx context.Context, client *bigquery.Client, cfg Config) ([]AppliedMigration, error) {
	it, err := client.Query(fmt.Sprintf(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM %s
		ORDER BY version ASC
	`, cfg.table(migrationsTable))).Read(ctx)
	if err != nil {
		if isNotFound(err) {
			return []AppliedMigration{}, nil
		}
		return nil, fmt.Errorf("reading query: %w", err)
	}

	var applied []AppliedMigration
	for {
		var row struct {
			Version   int64               `bigquery:"version"`
			Name      string              `bigquery:"name"`
			AppliedAt time.Time           `bigquery:"applied_at"`
			Checksum  bigquery.NullString `bigquery:"checksum"`
			AppliedBy bigquery.NullString `bigquery:"applied_by"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating results: %w", err)
		}
		applied = append(applied, AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		})
	}
	return applied, nil
}

func recordMigration(ctx context.Context, client *bigquery.Client, cfg Config, m Migration, appliedBy string) error {
	q := client.Query(fmt.Sprintf(`
		INSERT INTO %s
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`, cfg.table(migrationsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "version", Value: m.Version},
		{Name: "name", Value: m.Name},
		{Name: "checksum", Value: m.Checksum},
		{Name: "applied_by", Value: appliedBy},
	}
	return runQuery(ctx, q)
}

// runQuery runs a statement and waits for its job to finish.
func runQuery(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
