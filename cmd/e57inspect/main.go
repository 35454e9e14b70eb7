// Command e57inspect opens a compressed-vector section against a
// user-supplied prototype schema, streams every record through it, and
// reports per-field coverage. It is the read-side counterpart to
// e57batch, structured after the teacher's cmd/server/main.go
// flag/logger/tracer-provider wiring.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/e57io/e57cv/config"
	"github.com/e57io/e57cv/internal/cvinspect"
	"github.com/e57io/e57cv/internal/diag"
	"github.com/e57io/e57cv/internal/obs"
)

func main() {
	var (
		configPath   = flag.String("config", "", "path to config YAML (optional)")
		filePath     = flag.String("file", "", "path to the E57 file to inspect")
		schemaPath   = flag.String("schema", "", "path to the prototype schema YAML")
		sectionStart = flag.Int64("section-offset", 0, "logical offset of the compressed vector SectionHeader")
		batchSize    = flag.Int("batch", 4096, "records pulled per Read call")
	)
	flag.Parse()

	if *filePath == "" || *schemaPath == "" {
		fmt.Fprintln(os.Stderr, "usage: e57inspect -file <path> -schema <path> [-config <path>] [-section-offset N] [-batch N]")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
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
	tracer := tp.Tracer("e57inspect")

	diagServer := diag.New(cfg.Debug, logger)
	if cfg.Debug.Enabled {
		go func() {
			if err := diagServer.Start(); err != nil {
				logger.Error("diagnostics server exited", "error", err)
			}
		}()
		defer diagServer.Stop()
	}

	report, err := cvinspect.Run(context.Background(), *filePath, cvinspect.Options{
		SchemaPath:   *schemaPath,
		SectionStart: *sectionStart,
		BatchSize:    *batchSize,
	}, cfg, logger, tracer)
	if err != nil {
		logger.Error("inspection failed", "error", err)
		os.Exit(1)
	}

	logger.Info("inspection complete", "records", report.Records, "fields", len(report.Fields))
	for _, f := range report.Fields {
		if f.Count == 0 {
			fmt.Printf("%-32s count=0\n", f.Path)
			continue
		}
		fmt.Printf("%-32s count=%-10d min=%-14.4f max=%-14.4f p50=%-14.4f p99=%.4f\n",
			f.Path, f.Count, f.Min, f.Max, f.Quantile(0.5), f.Quantile(0.99))
	}
}
