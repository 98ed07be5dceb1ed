package main

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"example.com/blfgate/internal/blf"
	"example.com/blfgate/internal/report"
)

func headerCmd(args []string) error {
	fs := flag.NewFlagSet("header", flag.ContinueOnError)
	in := fs.String("in", "", "input .blf")
	asJSON := fs.Bool("json", false, "print the header as JSON")
	g := addGlobalFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlag("in", *in); err != nil {
		return err
	}
	_, closeLogs, err := g.setup()
	if err != nil {
		return err
	}
	defer closeLogs()

	d, err := blf.Open(*in)
	if err != nil {
		return err
	}
	defer d.Close()
	hdr := d.Header()
	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(hdr)
	}
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "File\t%s\n", *in)
	fmt.Fprintf(w, "Size\t%d\n", d.Size())
	fmt.Fprintf(w, "Header size\t%d\n", hdr.HeaderSize)
	fmt.Fprintf(w, "Application\t%d (%s)\n", hdr.ApplicationID, hdr.ApplicationVersion())
	fmt.Fprintf(w, "BinLog version\t%s\n", hdr.BinLogVersion())
	fmt.Fprintf(w, "Declared file size\t%d\n", hdr.FileSize)
	fmt.Fprintf(w, "Uncompressed size\t%d\n", hdr.UncompressedSize)
	fmt.Fprintf(w, "Object count\t%d\n", hdr.ObjectCount)
	fmt.Fprintf(w, "Start\t%s\n", formatMark(hdr.Start.Time()))
	fmt.Fprintf(w, "Stop\t%s\n", formatMark(hdr.Stop.Time()))
	return w.Flush()
}

func formatMark(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339Nano)
}

type messageRecord struct {
	Kind       blf.Kind    `json:"kind"`
	ObjectType string      `json:"objectType"`
	Message    blf.Message `json:"message"`
	DataHex    string      `json:"dataHex"`
}

type summaryRecord struct {
	Summary blf.Summary `json:"summary"`
}

func decodeCmd(args []string) error {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	in := fs.String("in", "", "input .blf")
	out := fs.String("out", "", "NDJSON output (default stdout)")
	limit := fs.Int("limit", 0, "stop after this many messages (0 = all)")
	kindsFlag := fs.String("kinds", "", "comma-separated message kinds to emit")
	g := addGlobalFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlag("in", *in); err != nil {
		return err
	}
	kinds, err := parseKinds(*kindsFlag)
	if err != nil {
		return err
	}
	_, closeLogs, err := g.setup()
	if err != nil {
		return err
	}
	defer closeLogs()

	var dst io.Writer = stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		dst = f
	}
	bw := bufio.NewWriter(dst)
	enc := json.NewEncoder(bw)

	metrics := g.newMetrics()
	d, err := openDecoder(*in, metrics)
	if err != nil {
		return err
	}
	defer d.Close()
	stop := g.track(metrics)
	written := 0
	for msg, err := range d.All() {
		if err != nil {
			stop()
			return err
		}
		if kinds != nil && !kinds[msg.Kind()] {
			continue
		}
		rec := messageRecord{
			Kind:       msg.Kind(),
			ObjectType: msg.Info().ObjectType.String(),
			Message:    msg,
			DataHex:    hex.EncodeToString(msg.Payload()),
		}
		if err := enc.Encode(rec); err != nil {
			stop()
			return fmt.Errorf("write message: %w", err)
		}
		written++
		if *limit > 0 && written >= *limit {
			break
		}
	}
	stop()
	if err := enc.Encode(summaryRecord{Summary: d.Summary()}); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return bw.Flush()
}

func parseKinds(list string) (map[blf.Kind]bool, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}
	known := make(map[blf.Kind]bool, len(blf.Kinds))
	for _, k := range blf.Kinds {
		known[k] = true
	}
	out := make(map[blf.Kind]bool)
	for _, part := range strings.Split(list, ",") {
		k := blf.Kind(strings.ToLower(strings.TrimSpace(part)))
		if k == "" {
			continue
		}
		if !known[k] {
			return nil, fmt.Errorf("unknown message kind %q", part)
		}
		out[k] = true
	}
	return out, nil
}

func reportCmd(args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	in := fs.String("in", "", "input .blf")
	jsonOut := fs.String("json", "", "JSON report output")
	pdfOut := fs.String("pdf", "", "PDF report output")
	langFlag := fs.String("lang", "", "PDF language (en, tr)")
	g := addGlobalFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlag("in", *in); err != nil {
		return err
	}
	if *jsonOut == "" && *pdfOut == "" {
		return errors.New("required: --json or --pdf")
	}
	cfg, closeLogs, err := g.setup()
	if err != nil {
		return err
	}
	defer closeLogs()
	langValue := *langFlag
	if langValue == "" {
		langValue = cfg.Report.Lang
	}
	lang, err := report.ParseLanguage(langValue)
	if err != nil {
		return err
	}

	metrics := g.newMetrics()
	d, err := openDecoder(*in, metrics)
	if err != nil {
		return err
	}
	defer d.Close()
	stop := g.track(metrics)
	sum, err := d.Drain()
	stop()
	if err != nil {
		return err
	}
	rep, err := report.Build(*in, d.Header(), sum)
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}
	if *jsonOut != "" {
		path := cfg.outputPath(*jsonOut)
		if err := report.SaveJSON(rep, path); err != nil {
			return fmt.Errorf("write json: %w", err)
		}
		fmt.Fprintf(stdout, "JSON report: %s\n", path)
	}
	if *pdfOut != "" {
		path := cfg.outputPath(*pdfOut)
		if err := report.SavePDF(rep, path, lang); err != nil {
			return fmt.Errorf("write pdf: %w", err)
		}
		fmt.Fprintf(stdout, "PDF report: %s\n", path)
	}
	fmt.Fprintf(stdout, "CLEAN=%v, messages=%d, skipped objects=%d, skipped containers=%d\n",
		rep.Clean(), sum.Messages, sum.SkippedObjects, sum.SkippedContainers)
	return nil
}
