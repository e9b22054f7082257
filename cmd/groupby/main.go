package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"storj.io/common/memory"

	"github.com/prxssh/groupby"
	"github.com/prxssh/groupby/api"
	"github.com/prxssh/groupby/pkg/amqpsink"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fset := flag.NewFlagSet("groupby", flag.ContinueOnError)

	var (
		input         = fset.String("input", "", "Comma-separated input files or glob patterns (e.g., 'data/*.csv')")
		outputDir     = fset.String("output", "", "Directory for output shards")
		partitions    = fset.Int("partitions", 1, "Number of reduce partitions (output shards)")
		keyColumn     = fset.Int("key-column", 7, "0-based index of the grouping key field")
		valueColumn   = fset.Int("value-column", 2, "0-based index of the integer value field")
		columns       = fset.Int("columns", 0, "Exact field count per line (0 disables the check)")
		delimiter     = fset.String("delimiter", ",", "Field delimiter")
		onMalformed   = fset.String("on-malformed", "", "What to do with malformed lines: 'skip' or 'abort' (required)")
		mapWorkers    = fset.Int("map-workers", runtime.NumCPU(), "Concurrent map tasks")
		reduceWorkers = fset.Int("reduce-workers", runtime.NumCPU(), "Concurrent reduce tasks")
		attempts      = fset.Int("max-attempts", 3, "Times a failing task is started before the job fails")
		combine       = fset.Bool("combine", false, "Pre-aggregate values per key on the map side")
		amqpURL       = fset.String("amqp-url", "", "Publish results to RabbitMQ instead of writing files")
		amqpQueue     = fset.String("amqp-queue", amqpsink.DefaultQueue, "Queue receiving results when -amqp-url is set")
		logLevel      = fset.String("log-level", "info", "Log level: debug, info, warn or error")
	)
	splitSize := 64 * memory.MiB
	fset.Var(&splitSize, "split-size", "Size of each map task input (e.g., '64MiB')")

	if err := fset.Parse(args); err != nil {
		return 1
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "groupby: invalid -log-level: %v\n", err)
		return 1
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	inputs, err := expandInputs(*input)
	if err != nil {
		logger.Error("invalid -input", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []groupby.Option{
		groupby.WithInputs(inputs...),
		groupby.WithOutputDir(*outputDir),
		groupby.WithPartitions(*partitions),
		groupby.WithKeyColumn(*keyColumn),
		groupby.WithValueColumn(*valueColumn),
		groupby.WithColumns(*columns),
		groupby.WithDelimiter(*delimiter),
		groupby.WithMalformedPolicy(api.MalformedPolicy(*onMalformed)),
		groupby.WithMapSplitSize(splitSize),
		groupby.WithMapWorkers(*mapWorkers),
		groupby.WithReduceWorkers(*reduceWorkers),
		groupby.WithMaxAttempts(*attempts),
		groupby.WithCombiner(*combine),
		groupby.WithLogger(logger),
	}

	if *amqpURL != "" {
		sink, err := amqpsink.Dial(ctx, *amqpURL, *amqpQueue, logger)
		if err != nil {
			logger.Error("failed to connect to broker", "err", err)
			return 1
		}
		defer sink.Close()
		opts = append(opts, groupby.WithSink(sink))
	}

	res, err := groupby.Run(ctx, groupby.NewConfig(opts...))
	if err != nil {
		if res != nil {
			logger.Error("job failed", "job-id", res.JobID, "state", res.State, "discarded", res.Discarded, "err", err)
		}
		return 1
	}

	for _, shard := range res.Shards {
		fmt.Println(shard)
	}

	return 0
}

// expandInputs splits a comma-separated list and expands glob patterns.
// Entries without glob metacharacters are kept even when they do not exist
// so the job reports them.
func expandInputs(list string) ([]string, error) {
	var inputs []string

	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		if !strings.ContainsAny(item, "*?[") {
			inputs = append(inputs, item)
			continue
		}

		matches, err := filepath.Glob(item)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("pattern %q matches no files", item)
		}
		inputs = append(inputs, matches...)
	}

	return inputs, nil
}
