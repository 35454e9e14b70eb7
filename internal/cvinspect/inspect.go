// Package cvinspect drives a schema-described compressed-vector section
// end to end through cvreader and reports per-field coverage, shared by
// e57inspect (one file, human-readable) and e57batch (many files,
// concurrent, machine-summarized).
package cvinspect

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/caio/go-tdigest/v4"
	"go.opentelemetry.io/otel/trace"

	"github.com/e57io/e57cv/config"
	"github.com/e57io/e57cv/cvreader"
	"github.com/e57io/e57cv/imagefile"
	"github.com/e57io/e57cv/internal/protoschema"
	"github.com/e57io/e57cv/sdb"
)

// FieldReport summarizes one terminal's observed values across the section.
type FieldReport struct {
	Path     string
	Count    uint64
	Min, Max float64
	digest   *tdigest.TDigest
}

// Quantile reports the q-quantile (0..1) of this field's observed values.
// Meaningless (returns NaN) for string fields, which carry no digest.
func (f FieldReport) Quantile(q float64) float64 {
	if f.digest == nil {
		return math.NaN()
	}
	return f.digest.Quantile(q)
}

// Report is the outcome of walking one compressed-vector section.
type Report struct {
	FilePath string
	Records  uint64
	Fields   []FieldReport
}

// Options configures one Run.
type Options struct {
	SchemaPath   string
	SectionStart int64
	BatchSize    int
}

// Run opens filePath's checked file, builds the prototype from
// opts.SchemaPath, reads every record of the section at opts.SectionStart
// through cvreader in batches of opts.BatchSize, and returns per-field
// coverage stats.
func Run(ctx context.Context, filePath string, opts Options, cfg *config.Config, logger *slog.Logger, tracer trace.Tracer) (*Report, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 4096
	}

	schema, err := protoschema.Load(opts.SchemaPath)
	if err != nil {
		return nil, err
	}
	tree, err := schema.Build()
	if err != nil {
		return nil, err
	}

	cf, err := imagefile.OpenCheckedFile(filePath, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filePath, err)
	}
	imf := imagefile.NewImageFile(cf, false)
	defer imf.Close()

	buffers := make([]*sdb.Buffer, len(schema.Fields))
	fields := make([]FieldReport, len(schema.Fields))
	for i, f := range schema.Fields {
		fields[i] = FieldReport{Path: f.Path, Min: math.Inf(1), Max: math.Inf(-1)}

		if f.Kind == "string" {
			buf, err := sdb.NewStringBuffer(f.Path, make([]string, opts.BatchSize))
			if err != nil {
				return nil, err
			}
			buffers[i] = buf
			continue
		}
		td, err := tdigest.New()
		if err != nil {
			return nil, fmt.Errorf("allocating digest for %s: %w", f.Path, err)
		}
		fields[i].digest = td
		data := make([]byte, 8*opts.BatchSize)
		buf, err := sdb.NewFloat64Buffer(f.Path, data, opts.BatchSize, true, true, 8)
		if err != nil {
			return nil, err
		}
		buffers[i] = buf
	}

	reader, err := cvreader.New(imf, tree, imagefile.Section{LogicalStart: opts.SectionStart}, buffers, cvreader.Options{
		CacheCapacity: cfg.Cache.Capacity,
		Tracer:        tracer,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening compressed vector section: %w", err)
	}
	defer reader.Close()

	report := &Report{FilePath: filePath, Fields: fields}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := reader.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading records: %w", err)
		}
		if n == 0 {
			break
		}
		report.Records += uint64(n)
		for i, buf := range buffers {
			fr := &report.Fields[i]
			if buf.Rep == sdb.RepString {
				fr.Count += uint64(n)
				continue
			}
			for j := 0; j < n; j++ {
				v, err := sdb.GetFloat(buf, j, 64)
				if err != nil {
					return nil, fmt.Errorf("reading %s[%d]: %w", fr.Path, j, err)
				}
				fr.Count++
				if v < fr.Min {
					fr.Min = v
				}
				if v > fr.Max {
					fr.Max = v
				}
				_ = fr.digest.AddWeighted(v, 1)
			}
		}
	}
	return report, nil
}
