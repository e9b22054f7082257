package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/prxssh/groupby/api"
	"github.com/prxssh/groupby/internal/record"
	"github.com/prxssh/groupby/internal/shuffle"
	"github.com/prxssh/groupby/internal/task"
)

// checkEvery is how many lines a map task parses between cancellation checks.
const checkEvery = 1024

// Map parses the split described by t and delivers the result to the
// Shuffle. A split owns every line that starts inside [Offset, Offset+Len);
// a split that does not start at the beginning of the file skips its leading
// partial line, which belongs to the previous split.
func (w *Worker) Map(ctx context.Context, t *task.Task) error {
	if t.Type != task.TypeMap {
		return fmt.Errorf("worker: task %d is a %s task, want map", t.ID, t.Type)
	}

	start := t.Offset
	if start > 0 {
		start--
	}

	rc, err := w.src.OpenRead(t.File, start, -1)
	if err != nil {
		return fmt.Errorf("worker: open %s: %w", t.File, err)
	}
	defer rc.Close()

	r := bufio.NewReader(rc)
	pos := start
	end := t.Offset + t.Len

	if t.Offset > 0 {
		skipped, err := r.ReadString('\n')
		pos += int64(len(skipped))
		if errors.Is(err, io.EOF) {
			return w.shuffle.Deliver(t.ID, shuffle.NewCollector(t.Partitions, w.cfg.Partitioner, w.cfg.Combine))
		}
		if err != nil {
			return fmt.Errorf("worker: read %s: %w", t.File, err)
		}
	}

	c := shuffle.NewCollector(t.Partitions, w.cfg.Partitioner, w.cfg.Combine)

	for n := 0; pos < end; n++ {
		if n%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		line, err := r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("worker: read %s: %w", t.File, err)
		}

		lineStart := pos
		pos += int64(len(line))

		if text := strings.TrimRight(line, "\r\n"); text != "" {
			if err := w.collect(c, text, t.File, lineStart); err != nil {
				return err
			}
		}

		if err != nil {
			break
		}
	}

	w.logger.Debug(
		"map task finished",
		"task-id", t.ID,
		"file", t.File,
		"offset", t.Offset,
		"parsed", c.Parsed(),
		"discarded", c.Discarded(),
	)

	return w.shuffle.Deliver(t.ID, c)
}

// collect parses one line into c. It returns an error only when the line must
// fail the task.
func (w *Worker) collect(c *shuffle.Collector, line, file string, offset int64) error {
	kv, err := w.cfg.Parser.Parse(line)
	if err == nil {
		return c.Collect(kv)
	}
	err = record.Locate(err, file, offset)

	if w.cfg.Policy == api.PolicyAbort {
		return err
	}

	c.Discard()
	w.logger.Debug("discarding malformed line", "err", err)

	return nil
}
