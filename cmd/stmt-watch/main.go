package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stmtpipe/internal/blobstore"
	"stmtpipe/internal/common"
	"stmtpipe/internal/export"
	"stmtpipe/internal/ingest"
	"stmtpipe/internal/jobservice"
	"stmtpipe/internal/orchestrator"
	"stmtpipe/internal/registry"
	"stmtpipe/internal/repository"
	"stmtpipe/internal/run"
	"stmtpipe/internal/upload"
)

// stmt-watch watches a drop folder and runs the pipeline over each batch of
// newly arriving statement files. Files that land while a run is in flight
// queue up for the next batch.
func main() {
	var (
		dir      = flag.String("dir", "", "drop folder to watch (required)")
		debounce = flag.Duration("debounce", 2*time.Second, "settle time after the last file event before a batch starts")
		initial  = flag.Bool("initial-scan", true, "process files already present at startup")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "Error: -dir is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	db, err := repository.Open(ctx, cfg.Archive.DSN, logger)
	if err != nil {
		logger.Error("failed to open run archive", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	reg := registry.NewRegistry()
	tracker := run.NewTracker(logger)
	store := blobstore.NewClient(
		cfg.Storage.BaseURL,
		cfg.Storage.ClientName,
		blobstore.StaticToken(cfg.Storage.Token),
		&http.Client{Timeout: cfg.Storage.HTTPTimeout},
		logger,
	)
	jobs := jobservice.NewClient(
		cfg.Job.Endpoint,
		cfg.Storage.ClientName,
		cfg.Job.RemoteOutDir,
		jobservice.StaticKey(cfg.Job.APIKey),
		&http.Client{Timeout: cfg.Job.HTTPTimeout},
		logger,
	)
	uploads := upload.NewCoordinator(store, reg, nil, cfg.Pipeline.UploadConcurrency, logger)
	publisher := workbookPublisher{svc: export.NewService(cfg.Pipeline.OutputDir, logger)}
	orch := orchestrator.NewOrchestrator(
		cfg.Pipeline, cfg.Storage.ClientName,
		reg, uploads, jobs, store, publisher, tracker,
		repository.NewRunRepository(db, logger), logger,
	)

	scanner := ingest.NewScanner(reg, logger)
	idCh, errCh, err := scanner.Watch(ctx, ingest.WatchConfig{
		Roots:       []string{*dir},
		InitialScan: *initial,
		Debounce:    *debounce,
	})
	if err != nil {
		logger.Error("failed to start watcher", "dir", *dir, "error", err)
		os.Exit(1)
	}
	logger.Info("watching drop folder", "dir", *dir)

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case werr, ok := <-errCh:
			if ok {
				logger.Warn("watch error", "error", werr)
			}
		case id, ok := <-idCh:
			if !ok {
				return
			}
			batch := drain(idCh, id)
			logger.Info("starting batch", "items", len(batch))
			done, err := orch.Run(ctx, batch)
			switch {
			case errors.Is(err, context.Canceled):
				return
			case err != nil:
				id := "unknown"
				if done != nil {
					id = done.ID.String()
				}
				logger.Error("batch failed", "run_id", id, "error", err)
			default:
				logger.Info("batch complete", "run_id", done.ID, "published_id", done.PublishedID)
			}
		}
	}
}

// drain empties whatever ids are already buffered so one run covers the
// whole burst.
func drain(ch <-chan string, first string) []string {
	batch := []string{first}
	for {
		select {
		case id, ok := <-ch:
			if !ok {
				return batch
			}
			batch = append(batch, id)
		default:
			return batch
		}
	}
}

type workbookPublisher struct {
	svc *export.Service
}

func (p workbookPublisher) Publish(ctx context.Context, title string, sheets []orchestrator.Sheet) (string, error) {
	out := make([]export.Sheet, len(sheets))
	for i, s := range sheets {
		out[i] = export.Sheet{Name: s.Name, CSV: s.CSV}
	}
	return p.svc.Publish(ctx, title, out)
}
