package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync"

	"github.com/google/uuid"

	"github.com/prxssh/groupby/api"
	"github.com/prxssh/groupby/internal/output"
	"github.com/prxssh/groupby/internal/shuffle"
	"github.com/prxssh/groupby/internal/task"
	"github.com/prxssh/groupby/internal/worker"
)

// Config holds the parameters of one job.
type Config struct {
	// Inputs are the files to aggregate.
	Inputs []string

	// OutputDir is where the shards and the success marker are written.
	OutputDir string

	// Partitions is the number of reduce partitions and output shards.
	Partitions int

	// SplitSize is the size (in bytes) of each map task input.
	SplitSize int64

	// MapWorkers and ReduceWorkers bound the parallelism of each stage.
	MapWorkers    int
	ReduceWorkers int

	// MaxAttempts is how many times a task is started before its failure
	// fails the job.
	MaxAttempts int

	// Worker configures how tasks are executed.
	Worker worker.Config
}

// Result is the outcome of a job.
type Result struct {
	JobID uuid.UUID
	State State

	// Parsed and Discarded count input lines over all map tasks.
	Parsed    int64
	Discarded int64

	// Keys is the number of output entries.
	Keys int

	// Shards lists the final output paths, in partition order.
	Shards []string

	// Err is the first fatal error; nil when State is StateDone.
	Err error
}

// Driver runs one job through its stages.
type Driver struct {
	cfg    *Config
	logger *slog.Logger

	src  api.Source
	sink api.Sink

	jobID   uuid.UUID
	shuffle *shuffle.Shuffle

	// mu guards state, which is read by observers while the job runs.
	mu    sync.RWMutex
	state State

	// mapTasks holds all map tasks generated from the input files.
	mapTasks []*task.Task

	// reduceTasks holds one reduce task per partition.
	reduceTasks []*task.Task
}

func New(src api.Source, sink api.Sink, cfg *Config, logger *slog.Logger) (*Driver, error) {
	if cfg == nil {
		return nil, errors.New("driver: config can't be nil")
	}

	if src == nil || sink == nil {
		return nil, errors.New("driver: source and sink are required")
	}

	if cfg.Partitions <= 0 {
		return nil, errors.New("driver: partitions must be greater than 0")
	}

	if cfg.MapWorkers <= 0 || cfg.ReduceWorkers <= 0 {
		return nil, errors.New("driver: worker counts must be greater than 0")
	}

	if cfg.MaxAttempts <= 0 {
		return nil, errors.New("driver: max attempts must be greater than 0")
	}

	d := &Driver{
		cfg:     cfg,
		logger:  logger,
		src:     src,
		sink:    sink,
		jobID:   uuid.New(),
		shuffle: shuffle.New(cfg.Partitions),
		state:   StateInit,
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	d.logger = d.logger.With("job-id", d.jobID)

	return d, nil
}

func (d *Driver) JobID() uuid.UUID {
	return d.jobID
}

// State returns the current stage of the job.
func (d *Driver) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.state
}

// Run executes the job to completion. It never returns a Result in
// StateDone unless every shard was written and committed.
func (d *Driver) Run(ctx context.Context) *Result {
	res := &Result{JobID: d.jobID}

	err := d.run(ctx, res)
	res.Parsed, res.Discarded = d.shuffle.Counts()

	if err != nil {
		d.abort()
		d.transition(StateFailed)
		res.Err = err
		d.logger.Error("job failed", "err", err, "discarded", res.Discarded)
	} else {
		d.logger.Info(
			"job done",
			"parsed", res.Parsed,
			"discarded", res.Discarded,
			"keys", res.Keys,
			"shards", len(res.Shards),
		)
	}
	res.State = d.State()

	return res
}

func (d *Driver) run(ctx context.Context, res *Result) error {
	if err := d.prepare(); err != nil {
		return err
	}

	d.transition(StateParsing)
	if err := d.runMaps(ctx); err != nil {
		return err
	}

	d.transition(StateGrouping)
	d.shuffle.Seal()
	parsed, discarded := d.shuffle.Counts()
	d.logger.Info("map phase complete", "parsed", parsed, "discarded", discarded)

	d.transition(StateAggregating)
	keys, err := d.runReduces(ctx)
	if err != nil {
		return err
	}

	d.transition(StateWriting)
	shards, err := d.commit()
	if err != nil {
		return err
	}

	res.Keys = keys
	res.Shards = shards
	d.transition(StateDone)

	return nil
}

// prepare generates every task up front, numbering map tasks first.
func (d *Driver) prepare() error {
	globalID := int64(1)

	mapTasks, err := task.Splits(d.src, d.cfg.Inputs, d.cfg.SplitSize, d.cfg.Partitions, &globalID)
	if err != nil {
		return fmt.Errorf("driver: failed to generate map tasks: %w", err)
	}
	d.mapTasks = mapTasks
	d.logger.Info("map tasks generated", "count", len(d.mapTasks))

	d.reduceTasks = task.Reduces(d.cfg.Partitions, &globalID)
	d.logger.Info("reduce tasks generated", "count", len(d.reduceTasks))

	if c, ok := d.sink.(api.Committer); ok {
		if err := c.RemoveAll(d.finalPath(output.SuccessMarker)); err != nil {
			return fmt.Errorf("driver: failed to clear stale success marker: %w", err)
		}
	}

	return nil
}

func (d *Driver) transition(to State) {
	d.mu.Lock()
	from := d.state
	d.state = to
	d.mu.Unlock()

	d.logger.Info("job state changed", "from", from, "to", to)
}

func (d *Driver) finalPath(name string) string {
	return path.Join(d.cfg.OutputDir, name)
}

func (d *Driver) stagingDir() string {
	return path.Join(d.cfg.OutputDir, "_temporary-"+d.jobID.String())
}

// shardPath is where a reduce task writes. Committers get a staging path
// that is promoted by commit; other sinks are written in place.
func (d *Driver) shardPath(partition int) string {
	if _, ok := d.sink.(api.Committer); ok {
		return path.Join(d.stagingDir(), output.ShardName(partition))
	}

	return d.finalPath(output.ShardName(partition))
}
