// Package groupby counts and sums an integer column of delimited text records
// per grouping key, using a parallel map stage, a partitioned shuffle and a
// parallel reduce stage.
package groupby

import (
	"context"
	"log/slog"
	"os"

	"github.com/prxssh/groupby/internal/agg"
	"github.com/prxssh/groupby/internal/driver"
	"github.com/prxssh/groupby/internal/record"
	"github.com/prxssh/groupby/internal/worker"
	"github.com/prxssh/groupby/pkg/fs"
	"github.com/prxssh/groupby/pkg/hash"
)

// Result is the outcome of a job.
type Result = driver.Result

// State is the stage a job is in.
type State = driver.State

const (
	StateInit        = driver.StateInit
	StateParsing     = driver.StateParsing
	StateGrouping    = driver.StateGrouping
	StateAggregating = driver.StateAggregating
	StateWriting     = driver.StateWriting
	StateDone        = driver.StateDone
	StateFailed      = driver.StateFailed
)

// LineError describes a line that failed to parse.
type LineError = record.LineError

var (
	// ErrParse classifies malformed input lines.
	ErrParse = &record.ErrParse

	// ErrPartition classifies keys routed outside the partition range.
	ErrPartition = &hash.ErrPartition

	// ErrSinkWrite classifies output the sink failed to accept.
	ErrSinkWrite = &worker.ErrSinkWrite

	// ErrOverflow classifies group totals outside the int64 range.
	ErrOverflow = &agg.ErrOverflow
)

// Run executes the job described by cfg. The returned error is the Result's
// Err; the Result is nil only when cfg is invalid.
func Run(ctx context.Context, cfg *Config) (*Result, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(
			slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	if err := cfg.validate(); err != nil {
		logger.Error("Failed to validate config", "err", err)
		return nil, err
	}

	src, sink := cfg.Source, cfg.Sink
	if src == nil || sink == nil {
		local := fs.NewLocalStorage()
		if src == nil {
			src = local
		}
		if sink == nil {
			sink = local
		}
	}

	d, err := driver.New(src, sink, &driver.Config{
		Inputs:        cfg.Inputs,
		OutputDir:     cfg.OutputDir,
		Partitions:    cfg.Partitions,
		SplitSize:     cfg.MapSplitSize.Int64(),
		MapWorkers:    cfg.MapWorkers,
		ReduceWorkers: cfg.ReduceWorkers,
		MaxAttempts:   cfg.MaxAttempts,
		Worker: worker.Config{
			Parser: &record.Parser{
				Delimiter:   cfg.Delimiter,
				KeyColumn:   cfg.KeyColumn,
				ValueColumn: cfg.ValueColumn,
				Columns:     cfg.Columns,
			},
			Policy:      cfg.MalformedPolicy,
			Partitioner: cfg.Partitioner,
			Combine:     cfg.Combine,
		},
	}, logger)
	if err != nil {
		return nil, err
	}

	logger.Info(
		"Starting job",
		"job-id", d.JobID(),
		"inputs", len(cfg.Inputs),
		"partitions", cfg.Partitions,
		"policy", cfg.MalformedPolicy,
		"combine", cfg.Combine,
	)

	res := d.Run(ctx)
	return res, res.Err
}
