package driver

import (
	"fmt"

	"github.com/prxssh/groupby/api"
	"github.com/prxssh/groupby/internal/output"
	"github.com/prxssh/groupby/internal/worker"
)

// commit promotes staged shards to their final names and writes the success
// marker. Until the marker exists the output is not final.
func (d *Driver) commit() ([]string, error) {
	shards := make([]string, 0, len(d.reduceTasks))

	c, staged := d.sink.(api.Committer)
	for _, t := range d.reduceTasks {
		final := d.finalPath(output.ShardName(t.PartitionID))
		if staged {
			if err := c.Rename(d.shardPath(t.PartitionID), final); err != nil {
				return nil, worker.ErrSinkWrite.Wrap(fmt.Errorf("promote %s: %w", final, err))
			}
		}
		shards = append(shards, final)
	}

	marker := d.finalPath(output.SuccessMarker)
	wc, err := d.sink.OpenWrite(marker)
	if err != nil {
		return nil, worker.ErrSinkWrite.Wrap(fmt.Errorf("open %s: %w", marker, err))
	}
	if err := wc.Close(); err != nil {
		return nil, worker.ErrSinkWrite.Wrap(fmt.Errorf("close %s: %w", marker, err))
	}

	if staged {
		if err := c.RemoveAll(d.stagingDir()); err != nil {
			d.logger.Warn("failed to remove staging directory", "path", d.stagingDir(), "err", err)
		}
	}

	return shards, nil
}

// abort drops anything staged by a failed job.
func (d *Driver) abort() {
	c, ok := d.sink.(api.Committer)
	if !ok {
		return
	}

	if err := c.RemoveAll(d.stagingDir()); err != nil {
		d.logger.Warn("failed to remove staging directory", "path", d.stagingDir(), "err", err)
	}
}
