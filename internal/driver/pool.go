package driver

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/prxssh/groupby/api"
	"github.com/prxssh/groupby/internal/agg"
	"github.com/prxssh/groupby/internal/record"
	"github.com/prxssh/groupby/internal/shuffle"
	"github.com/prxssh/groupby/internal/task"
	"github.com/prxssh/groupby/internal/worker"
	"github.com/prxssh/groupby/pkg/hash"
)

type execFunc func(ctx context.Context, w *worker.Worker, t *task.Task) error

func (d *Driver) runMaps(ctx context.Context) error {
	return d.runPool(ctx, d.mapTasks, d.cfg.MapWorkers, func(ctx context.Context, w *worker.Worker, t *task.Task) error {
		return w.Map(ctx, t)
	})
}

func (d *Driver) runReduces(ctx context.Context) (int, error) {
	var keys atomic.Int64

	err := d.runPool(ctx, d.reduceTasks, d.cfg.ReduceWorkers, func(ctx context.Context, w *worker.Worker, t *task.Task) error {
		n, err := w.Reduce(ctx, t, d.shardPath(t.PartitionID))
		if err != nil {
			return err
		}
		keys.Add(int64(n))
		return nil
	})

	return int(keys.Load()), err
}

// runPool executes tasks on at most n workers. The first task that fails for
// good cancels the others and its error is returned.
func (d *Driver) runPool(ctx context.Context, tasks []*task.Task, n int, fn execFunc) error {
	n = min(n, max(len(tasks), 1))

	workers := make(chan *worker.Worker, n)
	for i := 0; i < n; i++ {
		w, err := worker.New(d.src, d.sink, d.shuffle, &d.cfg.Worker, d.logger)
		if err != nil {
			return err
		}
		workers <- w
	}

	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(n)

	for _, t := range tasks {
		grp.Go(func() error {
			w := <-workers
			defer func() { workers <- w }()

			return d.execute(ctx, w, t, fn)
		})
	}

	return grp.Wait()
}

// execute runs t until it succeeds, fails permanently, or runs out of
// attempts. Every attempt starts from scratch.
func (d *Driver) execute(ctx context.Context, w *worker.Worker, t *task.Task, fn execFunc) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		t.Start(w.ID())
		err := fn(ctx, w, t)
		if err == nil && !t.OwnedBy(w.ID()) {
			err = fmt.Errorf("driver: task %d no longer owned by worker %s", t.ID, w.ID())
		}
		if err == nil {
			t.State = task.StateCompleted
			d.logger.Debug(
				"task completed",
				"task-id", t.ID,
				"type", t.Type,
				"worker-id", t.WorkerID,
				"attempt", t.Attempts,
				"elapsed", t.Elapsed(),
			)
			return nil
		}

		if d.permanent(err) || ctx.Err() != nil || t.Attempts >= d.cfg.MaxAttempts {
			d.logger.Warn(
				"task failed",
				"task-id", t.ID,
				"type", t.Type,
				"worker-id", t.WorkerID,
				"attempts", t.Attempts,
				"elapsed", t.Elapsed(),
				"err", err,
			)
			t.State = task.StateFailed
			return err
		}

		d.logger.Warn(
			"task failed, resetting",
			"task-id", t.ID,
			"type", t.Type,
			"worker-id", t.WorkerID,
			"attempt", t.Attempts,
			"elapsed", t.Elapsed(),
			"err", err,
		)
		t.Reset()
	}
}

// permanent reports errors that re-execution cannot fix. A failed write to a
// sink without staging may already be visible downstream, so it is never
// retried.
func (d *Driver) permanent(err error) bool {
	if worker.ErrSinkWrite.Has(err) {
		if _, staged := d.sink.(api.Committer); !staged {
			return true
		}
	}

	return record.ErrParse.Has(err) ||
		hash.ErrPartition.Has(err) ||
		shuffle.Error.Has(err) ||
		agg.ErrOverflow.Has(err) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
