package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"stmtpipe/internal/blobstore"
	"stmtpipe/internal/common"
	"stmtpipe/internal/entity"
	"stmtpipe/internal/export"
	"stmtpipe/internal/ingest"
	"stmtpipe/internal/jobservice"
	"stmtpipe/internal/orchestrator"
	"stmtpipe/internal/registry"
	"stmtpipe/internal/repository"
	"stmtpipe/internal/run"
	"stmtpipe/internal/upload"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

// workbookPublisher adapts the XLSX export service to the orchestrator's
// publish contract.
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

func main() {
	var (
		dir       = flag.String("dir", "", "directory to process statements from (required unless -resume)")
		out       = flag.String("out", "", "output directory for published workbooks (overrides OUTPUT_DIR)")
		resumeStr = flag.String("resume", "", "id of a previous run to resume")
		listRuns  = flag.Bool("list", false, "list archived runs and exit")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := common.LoadConfig()
	if *out != "" {
		cfg.Pipeline.OutputDir = *out
	}
	if err := cfg.Validate(); err != nil {
		printError("Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	db, err := repository.Open(ctx, cfg.Archive.DSN, logger)
	if err != nil {
		logger.Error("failed to open run archive", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	archive := repository.NewRunRepository(db, logger)

	if *listRuns {
		runs, err := archive.ListRuns(ctx, 20)
		if err != nil {
			logger.Error("failed to list runs", "error", err)
			os.Exit(1)
		}
		for _, r := range runs {
			fmt.Printf("%s  %-11s  %s  items=%d  published=%s\n",
				r.StartedAt.Format("2006-01-02 15:04:05"), r.Stage, r.ID, len(r.InputItems), r.PublishedID)
		}
		return
	}

	if *dir == "" && *resumeStr == "" {
		printError("Error: either -dir or -resume is required\n")
		os.Exit(1)
	}

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
		reg, uploads, jobs, store, publisher, tracker, archive, logger,
	)

	if *resumeStr != "" {
		resumeID, err := uuid.Parse(*resumeStr)
		if err != nil {
			printError("Error: invalid -resume id: %v\n", err)
			os.Exit(1)
		}
		done, err := orch.ResumeRun(ctx, resumeID)
		reportRun(done, err)
		return
	}

	scanner := ingest.NewScanner(reg, logger)
	items, stats, err := scanner.ScanDirectory(ctx, *dir)
	if err != nil {
		logger.Error("failed to scan directory", "dir", *dir, "error", err)
		os.Exit(1)
	}
	if len(items) == 0 {
		printError("Error: no statement files found under %s\n", *dir)
		os.Exit(1)
	}
	logger.Info("scan complete",
		"added", stats.Added,
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed)

	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	done, err := orch.Run(ctx, ids)
	reportRun(done, err)
}

func reportRun(done *entity.ProcessingRun, err error) {
	if err != nil {
		printError("Run failed: %v\n", err)
		if done != nil {
			printError("- Run id: %s (resume with -resume %s)\n", done.ID, done.ID)
		}
		os.Exit(1)
	}
	fmt.Printf("Run complete!\n")
	fmt.Printf("- Run id: %s\n", done.ID)
	fmt.Printf("- Items: %d\n", len(done.InputItems))
	fmt.Printf("- Statements extracted: %d\n", countStatements(done.ExtractionResult))
	if done.PublishedID != "" {
		fmt.Printf("- Published workbook: %s\n", done.PublishedID)
	} else {
		fmt.Printf("- Published workbook: none (no extraction output)\n")
	}
}

func countStatements(result map[string][]string) int {
	n := 0
	for _, artifacts := range result {
		n += len(artifacts)
	}
	return n
}
