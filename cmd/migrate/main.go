// Command migrate applies the SQL migrations of the configured backend and
// records them in schema_migrations with a checksum of each file.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/family-bank/internal/config"
	"github.com/dvloznov/family-bank/internal/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/pflag"
)

// target is a database that migrations can be applied to.
type target interface {
	EnsureTable(ctx context.Context) error
	Applied(ctx context.Context) ([]AppliedMigration, error)
	Apply(ctx context.Context, m Migration, appliedBy string) error
	Close() error
}

func main() {
	var (
		configPath    = pflag.String("config", "", "Path to the YAML config file (or set "+config.EnvConfigPath+")")
		backend       = pflag.String("backend", "", "Backend to migrate: bigquery or postgres (default: config backend)")
		appliedBy     = pflag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
		migrationsDir = pflag.String("migrations", "migrations", "Path to the migrations root; the backend name is appended")
		dryRun        = pflag.Bool("dry-run", false, "List pending migrations without applying them")
	)
	pflag.Parse()

	log := logger.New()
	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *backend != "" {
		cfg.Backend = config.Backend(*backend)
	}

	t, replacements, err := openTarget(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect")
	}
	defer t.Close()

	dir, err := resolveDir(filepath.Join(*migrationsDir, string(cfg.Backend)))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to locate migrations")
	}

	if err := t.EnsureTable(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure schema_migrations table")
	}

	migrations, skipped, err := readMigrations(dir, replacements)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read migrations")
	}
	for _, name := range skipped {
		log.Warn().Str("file", name).Msg("Skipping file with invalid format")
	}
	log.Info().Int("count", len(migrations)).Str("dir", dir).Msg("Found migration files")

	applied, err := t.Applied(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get applied migrations")
	}
	log.Info().Int("count", len(applied)).Msg("Found already applied migrations")

	todo, err := pending(migrations, applied)
	if err != nil {
		log.Fatal().Err(err).Msg("Migration history does not match files")
	}

	for _, m := range todo {
		name := fmt.Sprintf("%04d_%s", m.Version, m.Name)
		if *dryRun {
			log.Info().Str("migration", name).Msg("Pending")
			continue
		}

		log.Info().Str("migration", name).Msg("Applying")
		if err := t.Apply(ctx, m, *appliedBy); err != nil {
			log.Fatal().Err(err).Str("migration", name).Msg("Failed to apply migration")
		}
	}

	switch {
	case len(todo) == 0:
		log.Info().Msg("No new migrations to apply. Database is up to date.")
	case *dryRun:
		log.Info().Int("pending", len(todo)).Msg("Dry run, nothing applied")
	default:
		log.Info().Int("applied", len(todo)).Msg("Successfully applied migrations")
	}
}

func openTarget(ctx context.Context, cfg *config.Config) (target, map[string]string, error) {
	switch cfg.Backend {
	case config.BackendBigQuery:
		if cfg.BigQuery.ProjectID == "" {
			return nil, nil, fmt.Errorf("bigquery.project_id or GCP_PROJECT is required")
		}
		client, err := bigquery.NewClient(ctx, cfg.BigQuery.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("creating BigQuery client: %w", err)
		}
		t := &bigQueryTarget{client: client, projectID: cfg.BigQuery.ProjectID, datasetID: cfg.BigQuery.Dataset}
		return t, map[string]string{
			"{{PROJECT_ID}}": cfg.BigQuery.ProjectID,
			"{{DATASET_ID}}": cfg.BigQuery.Dataset,
		}, nil

	case config.BackendPostgres:
		if cfg.Postgres.URL == "" {
			return nil, nil, fmt.Errorf("postgres.url or DATABASE_URL is required")
		}
		pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("creating pool: %w", err)
		}
		return &postgresTarget{pool: pool}, nil, nil

	default:
		return nil, nil, fmt.Errorf("backend %q has no migrations", cfg.Backend)
	}
}

func init() {
	pflag.CommandLine.SortFlags = false
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: migrate [flags]\n\n")
		pflag.PrintDefaults()
	}
}
