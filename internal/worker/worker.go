package worker

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/zeebo/errs"

	"github.com/prxssh/groupby/api"
	"github.com/prxssh/groupby/internal/record"
	"github.com/prxssh/groupby/internal/shuffle"
)

// ErrSinkWrite marks an output shard the sink failed to accept.
var ErrSinkWrite = errs.Class("sink write")

// Config holds the runtime configuration a Worker executes tasks with.
type Config struct {
	// Parser turns input lines into key/value pairs.
	Parser *record.Parser

	// Policy decides what happens to lines the Parser rejects.
	Policy api.MalformedPolicy

	// Partitioner maps a key to a partition index. If nil, hash.FNV is used.
	Partitioner api.PartitionFunc

	// Combine enables map-side pre-aggregation of values sharing a key.
	Combine bool
}

// Worker executes map and reduce tasks in-process.
// It is stateless apart from its identity: map output goes to the Shuffle and
// reduce output to the Sink, so any task can be re-run by any worker.
type Worker struct {
	cfg    *Config
	logger *slog.Logger

	// id is a unique identifier generated at startup.
	id uuid.UUID

	// src reads input splits, sink receives output shards.
	src  api.Source
	sink api.Sink

	shuffle *shuffle.Shuffle
}

func New(
	src api.Source,
	sink api.Sink,
	shuf *shuffle.Shuffle,
	cfg *Config,
	logger *slog.Logger,
) (*Worker, error) {
	if cfg == nil {
		return nil, errors.New("worker: config can't be nil")
	}

	if cfg.Parser == nil {
		return nil, errors.New("worker: parser is required")
	}

	if !cfg.Policy.Valid() {
		return nil, errors.New("worker: malformed row policy must be skip or abort")
	}

	if src == nil || sink == nil {
		return nil, errors.New("worker: source and sink are required")
	}

	if shuf == nil {
		return nil, errors.New("worker: shuffle is required")
	}

	w := &Worker{
		cfg:     cfg,
		logger:  logger,
		id:      uuid.New(),
		src:     src,
		sink:    sink,
		shuffle: shuf,
	}
	if logger == nil {
		w.logger = slog.Default()
	}
	w.logger = w.logger.With("worker-id", w.id)

	return w, nil
}

// ID returns the identity of the worker.
func (w *Worker) ID() uuid.UUID {
	return w.id
}
