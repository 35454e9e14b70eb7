// Command e57batch validates many compressed-vector sections concurrently
// against one shared prototype schema, bounded by a configurable worker
// count, following the teacher's errgroup-based AppServer.Start fan-out
// (server/app_server.go) and per-request correlation-id logging
// (cmd/snellerd's queryID pattern, in the retrieval pack).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/e57io/e57cv/config"
	"github.com/e57io/e57cv/internal/cvinspect"
	"github.com/e57io/e57cv/internal/diag"
	"github.com/e57io/e57cv/internal/obs"
)

func main() {
	var (
		configPath   = flag.String("config", "", "path to config YAML (optional)")
		schemaPath   = flag.String("schema", "", "path to the prototype schema YAML shared by every file")
		sectionStart = flag.Int64("section-offset", 0, "logical offset of the compressed vector SectionHeader")
		batchSize    = flag.Int("batch", 4096, "records pulled per Read call")
		concurrency  = flag.Int("concurrency", 0, "override config's batch.max_concurrency (0 keeps the config value)")
	)
	flag.Parse()

	files := flag.Args()
	if *schemaPath == "" || len(files) == 0 {
		fmt.Fprintln(os.Stderr, "usage: e57batch -schema <path> [-config <path>] [-section-offset N] [-batch N] [-concurrency N] file1.e57 file2.e57 ...")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	if *concurrency > 0 {
		cfg.Batch.MaxConcurrency = *concurrency
	}

	logger, closer, err := obs.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "building logger: %v\n", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}

	tp, shutdown, err := obs.NewTracerProvider(cfg.Tracing, logger)
	if err != nil {
		logger.Error("building tracer provider", "error", err)
		os.Exit(1)
	}
	defer shutdown()
	tracer := tp.Tracer("e57batch")

	diagServer := diag.New(cfg.Debug, logger)
	if cfg.Debug.Enabled {
		go func() {
			if err := diagServer.Start(); err != nil {
				logger.Error("diagnostics server exited", "error", err)
			}
		}()
		defer diagServer.Stop()
	}

	os.Exit(run(files, *schemaPath, *sectionStart, *batchSize, cfg, logger, tracer))
}

type jobResult struct {
	file   string
	jobID  string
	report *cvinspect.Report
	err    error
}

// run validates every file concurrently, bounded by cfg.Batch.MaxConcurrency,
// and returns the process exit code: 0 if every file validated cleanly, 1 if
// any failed.
func run(files []string, schemaPath string, sectionStart int64, batchSize int, cfg *config.Config, logger *slog.Logger, tracer trace.Tracer) int {
	g, ctx := errgroup.WithContext(context.Background())
	if cfg.Batch.MaxConcurrency > 0 {
		g.SetLimit(cfg.Batch.MaxConcurrency)
	}

	results := make([]jobResult, len(files))
	for i, f := range files {
		i, f := i, f
		jobID := uuid.New().String()
		results[i] = jobResult{file: f, jobID: jobID}
		g.Go(func() error {
			jobLogger := logger.With("job_id", jobID, "file", f)
			jobLogger.Info("validating file")
			report, err := cvinspect.Run(ctx, f, cvinspect.Options{
				SchemaPath:   schemaPath,
				SectionStart: sectionStart,
				BatchSize:    batchSize,
			}, cfg, jobLogger, tracer)
			results[i].report = report
			results[i].err = err
			if err != nil {
				jobLogger.Error("validation failed", "error", err)
				return nil // collected per-file; don't cancel siblings over one bad file
			}
			jobLogger.Info("validation succeeded", "records", report.Records)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		status := "OK"
		if r.err != nil {
			status = "FAIL: " + r.err.Error()
			failed++
		}
		records := uint64(0)
		if r.report != nil {
			records = r.report.Records
		}
		fmt.Printf("%-10s %-40s records=%-10d job=%s\n", status, r.file, records, r.jobID)
	}
	if failed > 0 {
		logger.Error("batch validation finished with failures", "failed", failed, "total", len(files))
		return 1
	}
	logger.Info("batch validation finished", "total", len(files))
	return 0
}
