package groupby

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"storj.io/common/memory"

	"github.com/prxssh/groupby/api"
)

const (
	defaultKeyColumn   = 7
	defaultValueColumn = 2
	defaultDelimiter   = ","
	defaultSplitSize   = 64 * memory.MiB
	defaultMaxAttempts = 3
)

// Config describes one aggregation job: where records come from, how they
// are parsed and grouped, and where the per-key statistics go.
type Config struct {
	// Inputs are the paths (or object keys) of the delimited text sources.
	Inputs []string

	// OutputDir receives one part-r-NNNNN shard per partition and, once every
	// shard is final, a _SUCCESS marker.
	OutputDir string

	// Partitions is the number of reduce partitions (and output shards).
	Partitions int

	// KeyColumn and ValueColumn are the 0-based field positions of the
	// grouping key and the integer measure.
	KeyColumn   int
	ValueColumn int

	// Columns, when positive, is the exact number of fields every line must
	// have. Lines with a different count are malformed.
	Columns int

	// Delimiter separates fields within a line.
	Delimiter string

	// MalformedPolicy decides whether lines that fail to parse are skipped or
	// abort the job. It has no default and must be set.
	MalformedPolicy api.MalformedPolicy

	// Partitioner is an optional function to determine which partition a key
	// belongs to. If nil, an FNV-1a hash of the key modulo Partitions is used.
	Partitioner api.PartitionFunc

	// Combine pre-aggregates values per key on the map side before the
	// shuffle. The result is the same either way.
	Combine bool

	// MapSplitSize is the size of each input split. Each split becomes one
	// map task.
	MapSplitSize memory.Size

	// MapWorkers and ReduceWorkers bound the parallelism of each stage.
	// Both default to the number of CPUs.
	MapWorkers    int
	ReduceWorkers int

	// MaxAttempts is how many times a failing task is started before the job
	// gives up. Malformed lines under the abort policy are never retried.
	MaxAttempts int

	// Source reads the inputs and Sink receives the output. Both default to
	// the local file system.
	Source api.Source
	Sink   api.Sink

	// Logger receives structured progress logs. If nil, a text logger on
	// stderr is used.
	Logger *slog.Logger
}

type Option func(*Config)

// WithInputs sets the input paths.
func WithInputs(paths ...string) Option {
	return func(c *Config) {
		c.Inputs = paths
	}
}

// WithOutputDir sets the directory for output shards.
func WithOutputDir(dir string) Option {
	return func(c *Config) {
		c.OutputDir = dir
	}
}

// WithPartitions sets the number of reduce partitions.
func WithPartitions(n int) Option {
	return func(c *Config) {
		c.Partitions = n
	}
}

// WithKeyColumn sets the field index of the grouping key.
func WithKeyColumn(i int) Option {
	return func(c *Config) {
		c.KeyColumn = i
	}
}

// WithValueColumn sets the field index of the integer value.
func WithValueColumn(i int) Option {
	return func(c *Config) {
		c.ValueColumn = i
	}
}

// WithColumns requires every line to have exactly n fields.
func WithColumns(n int) Option {
	return func(c *Config) {
		c.Columns = n
	}
}

// WithDelimiter sets the field separator.
func WithDelimiter(d string) Option {
	return func(c *Config) {
		c.Delimiter = d
	}
}

// WithMalformedPolicy sets what happens to lines that fail to parse.
func WithMalformedPolicy(p api.MalformedPolicy) Option {
	return func(c *Config) {
		c.MalformedPolicy = p
	}
}

// WithPartitioner sets the optional partition function.
func WithPartitioner(fn api.PartitionFunc) Option {
	return func(c *Config) {
		c.Partitioner = fn
	}
}

// WithCombiner toggles map-side pre-aggregation.
func WithCombiner(enabled bool) Option {
	return func(c *Config) {
		c.Combine = enabled
	}
}

// WithMapSplitSize sets the target size of map task inputs.
func WithMapSplitSize(size memory.Size) Option {
	return func(c *Config) {
		c.MapSplitSize = size
	}
}

// WithMapWorkers sets the number of concurrent map tasks.
func WithMapWorkers(n int) Option {
	return func(c *Config) {
		c.MapWorkers = n
	}
}

// WithReduceWorkers sets the number of concurrent reduce tasks.
func WithReduceWorkers(n int) Option {
	return func(c *Config) {
		c.ReduceWorkers = n
	}
}

// WithMaxAttempts sets how many times a task may be started.
func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		c.MaxAttempts = n
	}
}

// WithStorer uses s for both input and output.
func WithStorer(s api.Storer) Option {
	return func(c *Config) {
		c.Source = s
		c.Sink = s
	}
}

// WithSource sets the input backend.
func WithSource(s api.Source) Option {
	return func(c *Config) {
		c.Source = s
	}
}

// WithSink sets the output backend.
func WithSink(s api.Sink) Option {
	return func(c *Config) {
		c.Sink = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

func defaultConfig() *Config {
	return &Config{
		Partitions:    1,
		KeyColumn:     defaultKeyColumn,
		ValueColumn:   defaultValueColumn,
		Delimiter:     defaultDelimiter,
		MapSplitSize:  defaultSplitSize,
		MapWorkers:    runtime.NumCPU(),
		ReduceWorkers: runtime.NumCPU(),
		MaxAttempts:   defaultMaxAttempts,
	}
}

func NewConfig(opts ...Option) *Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return cfg
}

func (cfg *Config) validate() error {
	if len(cfg.Inputs) == 0 {
		return errors.New("groupby: at least one input is required")
	}

	if cfg.OutputDir == "" {
		return errors.New("groupby: OutputDir cannot be empty")
	}

	if cfg.Partitions <= 0 {
		return errors.New("groupby: Partitions must be greater than 0")
	}

	if cfg.KeyColumn < 0 || cfg.ValueColumn < 0 {
		return errors.New("groupby: column indexes cannot be negative")
	}

	if cfg.Columns < 0 {
		return errors.New("groupby: Columns cannot be negative")
	}

	if cfg.Columns > 0 && max(cfg.KeyColumn, cfg.ValueColumn) >= cfg.Columns {
		return fmt.Errorf(
			"groupby: key column %d and value column %d must be below Columns %d",
			cfg.KeyColumn, cfg.ValueColumn, cfg.Columns,
		)
	}

	if cfg.Delimiter == "" {
		return errors.New("groupby: Delimiter cannot be empty")
	}

	if !cfg.MalformedPolicy.Valid() {
		return fmt.Errorf(
			"groupby: invalid MalformedPolicy '%s' (must be '%s' or '%s')",
			cfg.MalformedPolicy, api.PolicySkip, api.PolicyAbort,
		)
	}

	if cfg.MapSplitSize <= 0 {
		return errors.New("groupby: MapSplitSize must be greater than 0")
	}

	if cfg.MapWorkers <= 0 || cfg.ReduceWorkers <= 0 {
		return errors.New("groupby: MapWorkers and ReduceWorkers must be greater than 0")
	}

	if cfg.MaxAttempts <= 0 {
		return errors.New("groupby: MaxAttempts must be greater than 0")
	}

	return nil
}
