package task

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/prxssh/groupby/api"
)

// Type represents the phase of the job a task belongs to.
type Type uint8

const (
	// TypeMap indicates a task that parses a split of an input file.
	TypeMap Type = iota

	// TypeReduce indicates a task that folds and writes one partition.
	TypeReduce
)

func (t Type) String() string {
	switch t {
	case TypeMap:
		return "map"
	case TypeReduce:
		return "reduce"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// State tracks the lifecycle of a task within the driver.
type State uint8

const (
	// StateIdle means the task has not been started, or is waiting to be
	// re-executed after a failed attempt.
	StateIdle State = iota

	// StateProgress means a worker is currently running the task.
	StateProgress

	// StateCompleted means the task finished and its output was delivered.
	StateCompleted

	// StateFailed means the task gave up; the job fails with it.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProgress:
		return "progress"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Task represents a single unit of work executed by a worker.
type Task struct {
	// ID is unique within a job. Map tasks are numbered first, then reduce
	// tasks.
	ID int64

	// File is the path to the input file being processed.
	File string

	// Offset is the byte offset where the split begins in the input file.
	Offset int64

	// Len is the length of the split in bytes.
	Len int64

	State State

	Type Type

	// Partitions is the total number of reduce partitions. Mappers need it to
	// route keys.
	Partitions int

	// PartitionID is the partition a reduce task is responsible for.
	PartitionID int

	// Attempts counts how many times the task has been started.
	Attempts int

	// StartTime is when the current attempt began.
	StartTime time.Time

	// WorkerID identifies the worker running the current attempt.
	WorkerID uuid.UUID
}

// Start marks the beginning of an attempt by worker.
func (t *Task) Start(worker uuid.UUID) {
	t.State = StateProgress
	t.Attempts++
	t.StartTime = time.Now()
	t.WorkerID = worker
}

// OwnedBy reports whether worker is running the current attempt.
func (t *Task) OwnedBy(worker uuid.UUID) bool {
	return t.State == StateProgress && t.WorkerID == worker
}

// Elapsed returns how long the current attempt has been running.
func (t *Task) Elapsed() time.Duration {
	if t.StartTime.IsZero() {
		return 0
	}
	return time.Since(t.StartTime)
}

// Reset returns the task to idle so it can be executed again from scratch.
func (t *Task) Reset() {
	t.State = StateIdle
	t.WorkerID = uuid.Nil
	t.StartTime = time.Time{}
}

// Splits cuts every file into map tasks of at most splitSize bytes, numbering
// them from *nextID. Empty files yield no task.
func Splits(src api.Source, files []string, splitSize int64, partitions int, nextID *int64) ([]*Task, error) {
	if splitSize <= 0 {
		return nil, fmt.Errorf("task: split size must be positive, got %d", splitSize)
	}

	var tasks []*Task
	for _, file := range files {
		fileSize, err := src.Size(file)
		if err != nil {
			return nil, fmt.Errorf("task: failed to size %s: %w", file, err)
		}

		numChunks := (fileSize + splitSize - 1) / splitSize
		for i := int64(0); i < numChunks; i++ {
			offset := i * splitSize
			tasks = append(tasks, &Task{
				ID:         *nextID,
				Type:       TypeMap,
				File:       file,
				Offset:     offset,
				Len:        min(splitSize, fileSize-offset),
				State:      StateIdle,
				Partitions: partitions,
			})
			*nextID++
		}
	}

	return tasks, nil
}

// Reduces returns one reduce task per partition, numbered from *nextID.
func Reduces(partitions int, nextID *int64) []*Task {
	tasks := make([]*Task, 0, partitions)
	for i := 0; i < partitions; i++ {
		tasks = append(tasks, &Task{
			ID:          *nextID,
			Type:        TypeReduce,
			State:       StateIdle,
			Partitions:  partitions,
			PartitionID: i,
		})
		*nextID++
	}

	return tasks
}
