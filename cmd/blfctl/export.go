package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"example.com/blfgate/internal/common"
	"example.com/blfgate/internal/sink"
)

func exportCmd(args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	in := fs.String("in", "", "input .blf files (comma-separated, globs allowed)")
	sinkName := fs.String("sink", "", "destination: clickhouse, influxdb or jsonl")
	out := fs.String("out", "", "jsonl output (default stdout)")
	batchSize := fs.Int("batch", 0, "rows per write (default from config)")
	rate := fs.Int("rate", -1, "maximum batches per second, 0 = unlimited (default from config)")
	g := addGlobalFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlag("in", *in); err != nil {
		return err
	}
	if err := requireFlag("sink", *sinkName); err != nil {
		return err
	}
	cfg, closeLogs, err := g.setup()
	if err != nil {
		return err
	}
	defer closeLogs()
	paths, err := common.ExpandInputs(*in)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("no input files")
	}
	size := *batchSize
	if size <= 0 {
		size = cfg.Export.BatchSize
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	w, err := openSink(ctx, *sinkName, *out, cfg.Export)
	if err != nil {
		return err
	}
	closeSink := sync.OnceValue(w.Close)
	defer closeSink()

	runID := uuid.New()
	batcher := sink.NewBatcher(w, size)
	if *rate >= 0 {
		batcher.SetRateLimit(*rate)
	} else {
		batcher.SetRateLimit(cfg.Export.RateLimit)
	}
	metrics := g.newMetrics()
	stop := g.track(metrics)
	for _, path := range paths {
		if err := exportFile(ctx, path, runID, batcher, metrics); err != nil {
			stop()
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	err = batcher.Flush(ctx)
	stop()
	if err != nil {
		return err
	}
	if err := closeSink(); err != nil {
		return fmt.Errorf("close sink: %w", err)
	}
	color.New(color.FgGreen).Fprintf(os.Stderr, "Exported %d rows in %d batches (run %s)\n", batcher.Written(), batcher.Batches(), runID)
	return nil
}

func openSink(ctx context.Context, name, out string, cfg exportConfig) (sink.Writer, error) {
	switch name {
	case "clickhouse":
		return sink.NewClickHouse(ctx, cfg.ClickHouse)
	case "influxdb":
		return sink.NewInflux(cfg.InfluxDB)
	case "jsonl":
		if out == "" {
			// Keep stdout open after the writer is closed.
			return sink.NewJSONLines(struct{ io.Writer }{stdout}), nil
		}
		f, err := os.Create(out)
		if err != nil {
			return nil, fmt.Errorf("create output: %w", err)
		}
		return sink.NewJSONLines(f), nil
	default:
		return nil, fmt.Errorf("unknown sink %q", name)
	}
}

func exportFile(ctx context.Context, path string, runID uuid.UUID, batcher *sink.Batcher, metrics *common.Metrics) error {
	d, err := openDecoder(path, metrics)
	if err != nil {
		return err
	}
	defer d.Close()
	start := d.Header().Start.Time()
	source := filepath.Base(path)
	for msg, err := range d.All() {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		row, ok := sink.RowFromMessage(msg, start, runID, source)
		if !ok {
			continue
		}
		if err := batcher.Add(ctx, row); err != nil {
			return err
		}
	}
	sum := d.Summary()
	if sum.SkippedObjects > 0 || sum.SkippedContainers > 0 {
		color.New(color.FgYellow).Fprintf(os.Stderr, "%s: %d object(s) and %d container(s) skipped\n", source, sum.SkippedObjects, sum.SkippedContainers)
	}
	return nil
}
