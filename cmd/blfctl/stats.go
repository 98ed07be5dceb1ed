package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/sync/errgroup"

	"example.com/blfgate/internal/blf"
	"example.com/blfgate/internal/common"
)

type fileStats struct {
	Path    string
	Summary blf.Summary
	// Gaps holds the intervals between consecutive bus frames in µs.
	Gaps *hdrhistogram.Histogram
	Err  error
}

// Frame intervals are tracked from 1 µs up to one hour with 3 significant
// figures.
const (
	minGapUs   = 1
	maxGapUs   = 3_600_000_000
	gapSigFigs = 3
)

func newGapHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(minGapUs, maxGapUs, gapSigFigs)
}

func statsCmd(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	in := fs.String("in", "", "input .blf files (comma-separated, globs allowed)")
	concurrency := fs.Int("concurrency", 0, "files decoded in parallel (default from config)")
	timing := fs.Bool("timing", false, "also print frame interval percentiles")
	g := addGlobalFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlag("in", *in); err != nil {
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
	limit := *concurrency
	if limit <= 0 {
		limit = cfg.Concurrency
	}

	metrics := g.newMetrics()
	var total int64
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil {
			total += info.Size()
		}
	}
	stop := g.track(metrics)
	results := collectStats(paths, limit, metrics, total)
	stop()

	renderStats(stdout, results)
	if *timing {
		renderTiming(stdout, results)
	}
	failed := 0
	warn := color.New(color.FgYellow)
	for _, r := range results {
		if r.Err != nil {
			failed++
			warn.Fprintf(os.Stderr, "%s: %v\n", r.Path, r.Err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) could not be decoded", failed, len(results))
	}
	return nil
}

// collectStats drains every file with at most limit decoders running at once.
// Results keep the order of paths.
func collectStats(paths []string, limit int, metrics *common.Metrics, totalBytes int64) []fileStats {
	results := make([]fileStats, len(paths))
	var eg errgroup.Group
	eg.SetLimit(limit)
	for i, path := range paths {
		eg.Go(func() error {
			results[i] = statFile(path, metrics, totalBytes)
			return nil
		})
	}
	eg.Wait()
	return results
}

func statFile(path string, metrics *common.Metrics, totalBytes int64) fileStats {
	res := fileStats{Path: path}
	d, err := openDecoder(path, metrics)
	if err != nil {
		res.Err = err
		return res
	}
	defer d.Close()
	if metrics != nil {
		metrics.SetTotalBytes(totalBytes)
	}
	res.Gaps = newGapHistogram()
	var last int64
	seen := false
	for msg, err := range d.All() {
		if err != nil {
			res.Err = err
			return res
		}
		if msg.Kind() == blf.KindOther {
			continue
		}
		ts := msg.Info().TimestampNs
		if seen && ts > last {
			gap := (ts - last) / 1000
			if gap < minGapUs {
				gap = minGapUs
			}
			if gap > maxGapUs {
				gap = maxGapUs
			}
			res.Gaps.RecordValue(gap)
		}
		last, seen = ts, true
	}
	res.Summary = d.Summary()
	return res
}

func renderStats(w io.Writer, results []fileStats) {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"File", "Containers", "Skipped Ctr", "Objects", "CAN", "CAN FD", "LIN", "Other", "Skipped Obj", "Resyncs", "Mislabeled", "Errors"})
	totals := blf.NewSummary()
	for _, r := range results {
		name := filepath.Base(r.Path)
		if r.Err != nil {
			t.AppendRow(table.Row{name, "-", "-", "-", "-", "-", "-", "-", "-", "-", "-", "failed"})
			continue
		}
		t.AppendRow(summaryRow(name, r.Summary))
		totals.Merge(r.Summary)
	}
	if len(results) > 1 {
		t.AppendFooter(summaryRow("Total", totals))
	}
	cfgs := []table.ColumnConfig{{Number: 1, AlignHeader: text.AlignCenter}}
	for i := 2; i <= 12; i++ {
		cfgs = append(cfgs, table.ColumnConfig{Number: i, Align: text.AlignRight, AlignHeader: text.AlignCenter, AlignFooter: text.AlignRight})
	}
	t.SetColumnConfigs(cfgs)
	t.SetStyle(table.StyleLight)
	t.SetOutputMirror(w)
	t.Render()
}

func summaryRow(name string, s blf.Summary) table.Row {
	errs := int64(len(s.Errors)) + s.ErrorsDropped
	return table.Row{
		name,
		s.Containers,
		s.SkippedContainers,
		s.Objects,
		s.Count(blf.KindCAN),
		s.Count(blf.KindCANFD),
		s.Count(blf.KindLIN),
		s.Count(blf.KindOther),
		s.SkippedObjects,
		s.Resyncs,
		s.MislabeledHeaders,
		errs,
	}
}

func renderTiming(w io.Writer, results []fileStats) {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"File", "Intervals", "Min µs", "P50 µs", "P99 µs", "Max µs", "Mean µs"})
	total := newGapHistogram()
	for _, r := range results {
		if r.Err != nil || r.Gaps == nil {
			continue
		}
		t.AppendRow(timingRow(filepath.Base(r.Path), r.Gaps))
		total.Merge(r.Gaps)
	}
	if len(results) > 1 {
		t.AppendFooter(timingRow("Total", total))
	}
	cfgs := []table.ColumnConfig{{Number: 1, AlignHeader: text.AlignCenter}}
	for i := 2; i <= 7; i++ {
		cfgs = append(cfgs, table.ColumnConfig{Number: i, Align: text.AlignRight, AlignHeader: text.AlignCenter, AlignFooter: text.AlignRight})
	}
	t.SetColumnConfigs(cfgs)
	t.SetStyle(table.StyleLight)
	t.SetOutputMirror(w)
	t.Render()
}

func timingRow(name string, h *hdrhistogram.Histogram) table.Row {
	if h.TotalCount() == 0 {
		return table.Row{name, 0, "-", "-", "-", "-", "-"}
	}
	return table.Row{
		name,
		h.TotalCount(),
		h.Min(),
		h.ValueAtQuantile(50),
		h.ValueAtQuantile(99),
		h.Max(),
		fmt.Sprintf("%.1f", h.Mean()),
	}
}
