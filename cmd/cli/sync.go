package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/family-bank/internal/export"
	"github.com/dvloznov/family-bank/internal/gcsuploader"
	"github.com/dvloznov/family-bank/internal/notionsync"
	"github.com/rs/zerolog"
)

func runExport(log zerolog.Logger, args []string) {
	fs, c := newFlagSet("export")
	bucket := fs.String("bucket", "", "GCS bucket (overrides export.bucket / GCS_BUCKET)")
	fs.Parse(args)

	a, ctx, cancel := c.open(log, 5*time.Minute)
	defer cancel()
	defer a.Close()

	if *bucket == "" {
		*bucket = a.Config.Export.Bucket
	}
	if *bucket == "" {
		log.Fatal().Msg("Error: no bucket; set export.bucket, GCS_BUCKET or --bucket")
	}

	objects, err := gcsuploader.New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer objects.Close()

	uri, err := export.NewExporter(a.Repo, objects, *bucket, a.Clock, log).Export(ctx, c.household)
	if err != nil {
		log.Fatal().Err(err).Msg("Export failed")
	}
	fmt.Printf("Exported household %s to %s\n", c.household, uri)
}

func runFetchExport(log zerolog.Logger, args []string) {
	fs, c := newFlagSet("fetch-export")
	uri := fs.String("uri", "", "gs:// URI of the export (default: list exports)")
	bucket := fs.String("bucket", "", "GCS bucket to list (overrides export.bucket / GCS_BUCKET)")
	fs.Parse(args)

	a, ctx, cancel := c.open(log, 5*time.Minute)
	defer cancel()
	defer a.Close()

	if *bucket == "" {
		*bucket = a.Config.Export.Bucket
	}

	objects, err := gcsuploader.New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer objects.Close()

	exporter := export.NewExporter(a.Repo, objects, *bucket, a.Clock, log)

	if *uri == "" {
		if *bucket == "" {
			log.Fatal().Msg("Error: --uri or a bucket is required")
		}
		uris, err := exporter.List(ctx, c.household)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to list exports")
		}
		for _, u := range uris {
			fmt.Println(u)
		}
		return
	}

	snap, err := exporter.Fetch(ctx, *uri)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to fetch export")
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		log.Fatal().Err(err).Msg("Failed to print export")
	}
}

func runSyncNotion(log zerolog.Logger, args []string) {
	fs, c := newFlagSet("sync-notion")
	startDateStr := fs.String("start-date", "", "Only create or update entries from this date, YYYY-MM-DD")
	endDateStr := fs.String("end-date", "", "Only create or update entries before this date, YYYY-MM-DD")
	notionDBID := fs.String("notion-db-id", "", "Notion database ID (overrides notion.database_id / NOTION_DATABASE_ID)")
	dryRun := fs.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	fs.Parse(args)

	opts := notionsync.Options{DryRun: *dryRun}
	if *startDateStr != "" {
		d, err := civil.ParseDate(*startDateStr)
		if err != nil {
			log.Fatal().Err(err).Str("start_date", *startDateStr).Msg("Error: invalid start-date format, expected YYYY-MM-DD")
		}
		opts.From = d.In(time.UTC)
	}
	if *endDateStr != "" {
		d, err := civil.ParseDate(*endDateStr)
		if err != nil {
			log.Fatal().Err(err).Str("end_date", *endDateStr).Msg("Error: invalid end-date format, expected YYYY-MM-DD")
		}
		opts.To = d.In(time.UTC)
	}
	if !opts.From.IsZero() && !opts.To.IsZero() && opts.To.Before(opts.From) {
		log.Fatal().
			Time("start_date", opts.From).
			Time("end_date", opts.To).
			Msg("Error: end-date must be after start-date")
	}

	// Create context with timeout so CLI doesn't hang
	a, ctx, cancel := c.open(log, 10*time.Minute)
	defer cancel()
	defer a.Close()

	token := a.Config.Notion.Token
	if token == "" {
		log.Fatal().Msg("Error: NOTION_TOKEN is required")
	}
	if *notionDBID == "" {
		*notionDBID = a.Config.Notion.DatabaseID
	}
	if *notionDBID == "" {
		log.Fatal().Msg("Error: --notion-db-id is required")
	}

	syncer := notionsync.NewSyncer(a.Repo, notionsync.NewNotionClient(token), *notionDBID)
	report, err := syncer.Sync(ctx, c.household, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	prefix := ""
	if opts.DryRun {
		prefix = "[DRY RUN] "
	}
	fmt.Printf("%sCreated %d, updated %d, archived %d, unchanged %d, failed %d\n",
		prefix, report.Created, report.Updated, report.Archived, report.Skipped, report.Failed)
}
