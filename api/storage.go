package api

import (
	"io"
)

// Source is the read side of a storage backend.
//
// It abstracts away the details of the underlying file system (e.g., local
// disk, HDFS, object store) so map tasks can read their input split without
// knowing where it lives.
type Source interface {
	// OpenRead opens a file for reading at a specific byte range.
	//
	// Parameters:
	//   path   - The file path or object key.
	//   offset - The byte offset to start reading from.
	//   length - The number of bytes to read, or -1 to read to the end.
	OpenRead(path string, offset, length int64) (io.ReadCloser, error)

	// Size returns the size in bytes of the object at path. It is used to cut
	// inputs into splits.
	Size(path string) (int64, error)
}

// Sink is the write side of a storage backend. Reduce tasks write their
// output shards through it.
type Sink interface {
	// OpenWrite opens a file for writing. The returned WriteCloser must be
	// closed to flush data and ensure persistence; an error from Close means
	// the shard was not written.
	OpenWrite(path string) (io.WriteCloser, error)
}

// Storer is a backend that can serve as both input and output.
type Storer interface {
	Source
	Sink
}

// Committer is implemented by sinks that can stage output and promote it
// afterwards. When the sink is a Committer, shards are written under a
// staging directory and only renamed into place once every shard succeeded.
type Committer interface {
	// Rename atomically moves a staged object to its final name.
	Rename(from, to string) error

	// RemoveAll deletes path and anything beneath it. Missing paths are not
	// an error.
	RemoveAll(path string) error
}
