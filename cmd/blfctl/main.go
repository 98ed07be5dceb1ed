package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"example.com/blfgate/internal/blf"
	"example.com/blfgate/internal/common"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// stdout receives command output; tests swap it for a buffer.
var stdout io.Writer = os.Stdout

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	cmd := os.Args[1]
	var err error
	switch cmd {
	case "header":
		err = headerCmd(os.Args[2:])
	case "decode":
		err = decodeCmd(os.Args[2:])
	case "stats":
		err = statsCmd(os.Args[2:])
	case "report":
		err = reportCmd(os.Args[2:])
	case "export":
		err = exportCmd(os.Args[2:])
	case "version":
		fmt.Printf("blfctl %s (built %s)\n", version, buildDate)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Printf(`blfctl %s (built %s) <command> [options]

Commands:
  header  --in <file.blf> [--json]
  decode  --in <file.blf> [--out <messages.ndjson>] [--limit <n>] [--kinds can,canfd,lin,other]
  stats   --in <file.blf>[,<file.blf>|<glob>] [--concurrency <n>]
  report  --in <file.blf> [--json <report.json>] [--pdf <report.pdf>] [--lang en|tr]
  export  --in <file.blf>[,...] --sink clickhouse|influxdb|jsonl [--out <rows.jsonl>] [--batch <n>]
  version

Global options (every command):
  --config <blfctl.yaml>  configuration file
  --progress              display decoding progress on stderr
  --metrics               print throughput metrics when done
  --quiet                 suppress per-object anomaly logs
`, version, buildDate)
}

// globalFlags are registered on every subcommand's flag set.
type globalFlags struct {
	config   *string
	progress *bool
	metrics  *bool
	quiet    *bool
}

func addGlobalFlags(fs *flag.FlagSet) *globalFlags {
	return &globalFlags{
		config:   fs.String("config", "", "configuration file (yaml)"),
		progress: fs.Bool("progress", false, "display decoding progress updates"),
		metrics:  fs.Bool("metrics", false, "print decoding throughput metrics"),
		quiet:    fs.Bool("quiet", false, "suppress per-object anomaly logs"),
	}
}

// setup loads the configuration and routes logging. The returned function
// closes the rotating log file, if any.
func (g *globalFlags) setup() (config, func(), error) {
	cfg, err := loadConfig(*g.config)
	if err != nil {
		return cfg, nil, fmt.Errorf("load config: %w", err)
	}
	closeLogs, err := setupLogging(cfg)
	if err != nil {
		return cfg, nil, fmt.Errorf("setup logging: %w", err)
	}
	common.SetQuiet(*g.quiet)
	return cfg, closeLogs, nil
}

// newMetrics returns nil unless --metrics or --progress was given.
func (g *globalFlags) newMetrics() *common.Metrics {
	if !*g.metrics && !*g.progress {
		return nil
	}
	return common.NewMetrics()
}

// track starts m and the progress printer. The returned function stops both
// and prints the throughput line for --metrics.
func (g *globalFlags) track(m *common.Metrics) func() {
	if m == nil {
		return func() {}
	}
	m.Start()
	stopProgress := func() {}
	if *g.progress {
		stopProgress = common.StartProgressPrinter(os.Stderr, m, 500*time.Millisecond)
	}
	return func() {
		stopProgress()
		m.Stop()
		if *g.metrics {
			printMetrics(os.Stderr, m.Snapshot())
		}
	}
}

func printMetrics(w io.Writer, snap common.MetricsSnapshot) {
	throughputBps := snap.ThroughputBytesPerSecond()
	fmt.Fprintf(w, "Metrics: duration=%s containers=%d objects=%d skipped=%d resyncs=%d processed=%s throughput=%.2f MB/s\n",
		snap.Duration.Round(10*time.Millisecond),
		snap.Containers,
		snap.Objects,
		snap.Skipped,
		snap.Resyncs,
		common.FormatBytes(snap.Bytes),
		throughputBps/1_000_000,
	)
}

func openDecoder(path string, m *common.Metrics) (*blf.Decoder, error) {
	d, err := blf.Open(path)
	if err != nil {
		return nil, err
	}
	if m != nil {
		d.SetMetrics(m)
	}
	return d, nil
}

func requireFlag(name, value string) error {
	if value == "" {
		return fmt.Errorf("required: --%s", name)
	}
	return nil
}
