package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"example.com/blfgate/internal/common"
	"example.com/blfgate/internal/sink"
)

type logConfig struct {
	Directory  string `yaml:"directory"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
}

type exportConfig struct {
	BatchSize  int                   `yaml:"batchSize"`
	RateLimit  int                   `yaml:"rateLimit"`
	ClickHouse sink.ClickHouseConfig `yaml:"clickhouse"`
	InfluxDB   sink.InfluxConfig     `yaml:"influxdb"`
}

type reportConfig struct {
	Lang      string `yaml:"lang"`
	OutputDir string `yaml:"outputDir"`
}

type config struct {
	Concurrency int          `yaml:"concurrency"`
	Logs        logConfig    `yaml:"logs"`
	Export      exportConfig `yaml:"export"`
	Report      reportConfig `yaml:"report"`
}

// loadConfig reads path, or returns the defaults when path is empty. Secrets
// may reference environment variables as ${NAME}.
func loadConfig(path string) (config, error) {
	var cfg config
	baseDir := "."
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		if err := dec.Decode(&cfg); err != nil && err != io.EOF {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
		baseDir = filepath.Dir(path)
	}
	resolvePath := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" {
			return ""
		}
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Clean(filepath.Join(baseDir, p))
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}
	cfg.Logs.Directory = resolvePath(cfg.Logs.Directory)
	if cfg.Logs.MaxSizeMB <= 0 {
		cfg.Logs.MaxSizeMB = 25
	}
	if cfg.Logs.MaxAgeDays <= 0 {
		cfg.Logs.MaxAgeDays = 7
	}
	if cfg.Logs.MaxBackups <= 0 {
		cfg.Logs.MaxBackups = 5
	}
	if cfg.Export.BatchSize <= 0 {
		cfg.Export.BatchSize = 1000
	}
	ch := &cfg.Export.ClickHouse
	if ch.Host == "" {
		ch.Host = "localhost"
	}
	if ch.Port == 0 {
		ch.Port = 9000
	}
	if ch.Database == "" {
		ch.Database = "default"
	}
	if ch.Username == "" {
		ch.Username = "default"
	}
	if ch.Table == "" {
		ch.Table = "bus_frames"
	}
	ch.Password = os.ExpandEnv(ch.Password)
	influx := &cfg.Export.InfluxDB
	if influx.URL == "" {
		influx.URL = "http://localhost:8181"
	}
	if influx.Measurement == "" {
		influx.Measurement = "bus_frames"
	}
	influx.Token = os.ExpandEnv(influx.Token)
	if cfg.Report.Lang == "" {
		cfg.Report.Lang = "en"
	}
	cfg.Report.OutputDir = resolvePath(cfg.Report.OutputDir)
	return cfg, nil
}

// setupLogging mirrors log output into a rotating file when a log directory
// is configured.
func setupLogging(cfg config) (func(), error) {
	if cfg.Logs.Directory == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(cfg.Logs.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Logs.Directory, "blfctl.log"),
		MaxSize:    cfg.Logs.MaxSizeMB,
		MaxAge:     cfg.Logs.MaxAgeDays,
		MaxBackups: cfg.Logs.MaxBackups,
		Compress:   cfg.Logs.Compress,
	}
	common.SetLogOutput(io.MultiWriter(os.Stderr, rotator))
	return func() {
		common.SetLogOutput(os.Stderr)
		rotator.Close()
	}, nil
}

// outputPath places relative report outputs under the configured directory.
func (c config) outputPath(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Report.OutputDir == "" {
		return p
	}
	return filepath.Join(c.Report.OutputDir, p)
}
