package worker

import (
	"context"
	"fmt"
	"io"

	"github.com/prxssh/groupby/internal/output"
	"github.com/prxssh/groupby/internal/shuffle"
	"github.com/prxssh/groupby/internal/task"
)

// aborter is implemented by shard writers that can discard what was written
// instead of publishing it on Close.
type aborter interface {
	Abort() error
}

// Reduce folds every group of the task's partition and writes the resulting
// entries, sorted by key, to path. It returns the number of entries written.
func (w *Worker) Reduce(ctx context.Context, t *task.Task, path string) (int, error) {
	if t.Type != task.TypeReduce {
		return 0, fmt.Errorf("worker: task %d is a %s task, want reduce", t.ID, t.Type)
	}

	groups, err := w.shuffle.Groups(t.PartitionID)
	if err != nil {
		return 0, err
	}

	wc, err := w.sink.OpenWrite(path)
	if err != nil {
		return 0, ErrSinkWrite.Wrap(fmt.Errorf("open %s: %w", path, err))
	}

	n, err := writeGroups(ctx, wc, groups)
	if err != nil {
		if a, ok := wc.(aborter); ok {
			a.Abort()
		} else {
			wc.Close()
		}
		return 0, err
	}

	if err := wc.Close(); err != nil {
		return 0, ErrSinkWrite.Wrap(fmt.Errorf("close %s: %w", path, err))
	}

	w.logger.Debug(
		"reduce task finished",
		"task-id", t.ID,
		"partition", t.PartitionID,
		"keys", n,
		"path", path,
	)

	return n, nil
}

func writeGroups(ctx context.Context, wc io.Writer, groups []shuffle.Group) (int, error) {
	ow := output.NewWriter(wc)

	for i := range groups {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}

		g := &groups[i]
		st := g.Stat()
		if err := st.Check(); err != nil {
			return 0, fmt.Errorf("worker: key %q: %w", g.Key, err)
		}
		if err := ow.Write(output.Entry{Key: g.Key, Stat: st}); err != nil {
			return 0, ErrSinkWrite.Wrap(err)
		}
	}

	if err := ow.Flush(); err != nil {
		return 0, ErrSinkWrite.Wrap(err)
	}

	return ow.Count(), nil
}
