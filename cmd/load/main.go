// Command load runs regional loads against the catalog database from the
// command line, without the HTTP server or the queue.
//
// Usage:
//
//	go run ./cmd/load -region all -dedupe
//	go run ./cmd/load -region cat -file data/ITV-CAT.xml -events
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandroruanova/itv-catalog-service/internal/app"
	"github.com/alejandroruanova/itv-catalog-service/internal/core/services/extraction"
	"github.com/alejandroruanova/itv-catalog-service/internal/infrastructure/queue"
	"github.com/alejandroruanova/itv-catalog-service/internal/pkg/config"
	"github.com/alejandroruanova/itv-catalog-service/internal/pkg/logger"
)

func main() {
	region := flag.String("region", "all", "region to load: cv, gal, cat or all")
	file := flag.String("file", "", "source file; only with a single region (default: SOURCE_<REGION>_PATH)")
	dedupe := flag.Bool("dedupe", false, "remove duplicate stations after loading")
	wipe := flag.Bool("wipe", false, "delete every station before loading")
	events := flag.Bool("events", false, "include per-record events in the output")
	flag.Parse()

	if *file != "" && *region == "all" {
		fmt.Fprintln(os.Stderr, "-file needs a single -region")
		flag.Usage()
		os.Exit(2)
	}

	os.Exit(run(*region, *file, *dedupe, *wipe, *events))
}

func run(region, file string, dedupe, wipe, events bool) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}
	logger.Initialize(cfg.Environment, cfg.LogLevel)
	log := logger.NewServiceLogger("itv-load")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	catalog, err := app.Build(cfg, nil, log)
	if err != nil {
		log.Error("failed to build catalog services", slog.Any("error", err))
		return 1
	}
	defer catalog.Close()

	if wipe {
		n, err := catalog.Catalog.DeleteAllStations(ctx)
		if err != nil {
			log.Error("failed to wipe stations", slog.Any("error", err))
			return 1
		}
		log.Warn("stations deleted before load", slog.Int64("count", n))
	}

	regions := []string{region}
	if region == "all" {
		regions = regions[:0]
		for _, src := range extraction.Sources() {
			regions = append(regions, src.Region())
		}
	}

	summaries := make([]*extraction.Summary, 0, len(regions))
	code := 0
	for _, r := range regions {
		summary, err := catalog.Runner.Run(ctx, queue.LoadPayload{Region: r, Path: file})
		if err != nil {
			log.Error("load failed", slog.String("region", r), slog.Any("error", err))
			code = 1
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if !events {
			summary.Events = nil
		}
		summaries = append(summaries, summary)
	}

	if dedupe && ctx.Err() == nil {
		res, err := catalog.Dedupe.RemoveDuplicates(ctx)
		if err != nil {
			log.Error("duplicate sweep failed", slog.Any("error", err))
			return 1
		}
		log.Info("duplicate sweep finished",
			slog.Int("groups", len(res.Groups)),
			slog.Int("removed", res.RemovedCount))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summaries); err != nil {
		log.Error("failed to write summary", slog.Any("error", err))
		return 1
	}
	return code
}
