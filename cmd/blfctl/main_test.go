package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"example.com/blfgate/internal/blf"
	"example.com/blfgate/internal/blf/blftest"
	"example.com/blfgate/internal/report"
)

func writeSampleBLF(t *testing.T, path string) {
	t.Helper()
	obj := func(typ uint32, ts uint64, body []byte) []byte {
		return blftest.Object{Type: typ, Flags: blftest.FlagTimeOneNans, Timestamp: ts, Body: body}.Bytes()
	}
	payload := bytes.Join([][]byte{
		obj(blftest.TypeCANMessage, 1_000, blftest.CANBody(1, 0, 2, 0x123, []byte{0xde, 0xad})),
		obj(blftest.TypeCANFDMessage, 2_000, blftest.CANFDBody(2, 0, 9, 0x10, 0x3, make([]byte, 12))),
		obj(blftest.TypeLINMessage, 3_000, blftest.LINBody(3, 0x21, 2, []byte{0x01, 0x02}, 0x55, 1)),
		obj(200, 4_000, []byte{1, 2, 3, 4}),
		obj(blftest.TypeCANMessage, 5_000, blftest.CANBody(1, 1, 1, 0x456, []byte{0x07})),
	}, nil)
	data := blftest.File(blftest.Header{
		AppMajor: 12,
		Start:    blftest.SystemTime{Year: 2024, Month: 5, Day: 1, Hour: 8},
	}, blftest.Container(blftest.MethodZlib, payload))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = old })
	return &buf
}

func readLines(t *testing.T, data []byte) []map[string]json.RawMessage {
	t.Helper()
	var out []map[string]json.RawMessage
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var rec map[string]json.RawMessage
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		out = append(out, rec)
	}
	return out
}

func TestDecodeCmdStreamsMessages(t *testing.T) {
	in := filepath.Join(t.TempDir(), "capture.blf")
	writeSampleBLF(t, in)
	buf := captureStdout(t)

	if err := decodeCmd([]string{"--in", in, "--quiet"}); err != nil {
		t.Fatalf("decodeCmd: %v", err)
	}
	lines := readLines(t, buf.Bytes())
	if len(lines) != 6 {
		t.Fatalf("lines = %d, want 6", len(lines))
	}
	wantKinds := []string{`"can"`, `"canfd"`, `"lin"`, `"other"`, `"can"`}
	for i, want := range wantKinds {
		if got := string(lines[i]["kind"]); got != want {
			t.Fatalf("line %d kind = %s, want %s", i, got, want)
		}
	}
	if got := string(lines[0]["dataHex"]); got != `"dead"` {
		t.Fatalf("dataHex = %s, want \"dead\"", got)
	}
	var sum blf.Summary
	if err := json.Unmarshal(lines[5]["summary"], &sum); err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Messages != 5 || sum.Containers != 1 || sum.Count(blf.KindCAN) != 2 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestDecodeCmdFilters(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "capture.blf")
	writeSampleBLF(t, in)
	out := filepath.Join(dir, "messages.ndjson")

	tests := []struct {
		name  string
		args  []string
		lines int
	}{
		{name: "kinds", args: []string{"--kinds", "can,lin"}, lines: 4},
		{name: "limit", args: []string{"--limit", "2"}, lines: 3},
		{name: "kinds and limit", args: []string{"--kinds", "canfd", "--limit", "5"}, lines: 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			args := append([]string{"--in", in, "--out", out, "--quiet"}, tc.args...)
			if err := decodeCmd(args); err != nil {
				t.Fatalf("decodeCmd: %v", err)
			}
			data, err := os.ReadFile(out)
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			if got := len(readLines(t, data)); got != tc.lines {
				t.Fatalf("lines = %d, want %d", got, tc.lines)
			}
		})
	}

	if err := decodeCmd([]string{"--in", in, "--kinds", "flexray"}); err == nil {
		t.Fatalf("unknown kind accepted")
	}
}

func TestHeaderCmdJSON(t *testing.T) {
	in := filepath.Join(t.TempDir(), "capture.blf")
	writeSampleBLF(t, in)
	buf := captureStdout(t)
	if err := headerCmd([]string{"--in", in, "--json", "--quiet"}); err != nil {
		t.Fatalf("headerCmd: %v", err)
	}
	var hdr blf.FileHeader
	if err := json.Unmarshal(buf.Bytes(), &hdr); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if hdr.HeaderSize != 144 || hdr.ApplicationMajor != 12 || hdr.Start.Year != 2024 {
		t.Fatalf("header = %+v", hdr)
	}

	buf.Reset()
	if err := headerCmd([]string{"--in", in, "--quiet"}); err != nil {
		t.Fatalf("headerCmd: %v", err)
	}
	if !strings.Contains(buf.String(), "2024-05-01T08:00:00Z") {
		t.Fatalf("text header missing start mark:\n%s", buf.String())
	}
}

func TestHeaderCmdRejectsNonBLF(t *testing.T) {
	in := filepath.Join(t.TempDir(), "not.blf")
	if err := os.WriteFile(in, bytes.Repeat([]byte{0xff}, 200), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	captureStdout(t)
	if err := headerCmd([]string{"--in", in, "--quiet"}); err == nil {
		t.Fatalf("headerCmd accepted a non-BLF file")
	}
}

func TestStatsCmdMultipleFiles(t *testing.T) {
	dir := t.TempDir()
	writeSampleBLF(t, filepath.Join(dir, "alpha.blf"))
	writeSampleBLF(t, filepath.Join(dir, "beta.blf"))
	buf := captureStdout(t)

	if err := statsCmd([]string{"--in", filepath.Join(dir, "*.blf"), "--concurrency", "2", "--quiet"}); err != nil {
		t.Fatalf("statsCmd: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"alpha.blf", "beta.blf", "TOTAL"} {
		if !strings.Contains(strings.ToUpper(out), strings.ToUpper(want)) {
			t.Fatalf("stats output missing %q:\n%s", want, out)
		}
	}

	results := collectStats([]string{filepath.Join(dir, "alpha.blf"), filepath.Join(dir, "missing.blf")}, 2, nil, 0)
	if results[0].Err != nil || results[0].Summary.Messages != 5 {
		t.Fatalf("alpha = %+v", results[0])
	}
	if results[1].Err == nil {
		t.Fatalf("missing file decoded")
	}
	gaps := results[0].Gaps
	if gaps.TotalCount() != 3 || gaps.Min() != 1 || gaps.Max() != 2 {
		t.Fatalf("gaps: count = %d min = %d max = %d, want 3 1 2", gaps.TotalCount(), gaps.Min(), gaps.Max())
	}

	buf.Reset()
	if err := statsCmd([]string{"--in", filepath.Join(dir, "alpha.blf"), "--timing", "--quiet"}); err != nil {
		t.Fatalf("statsCmd --timing: %v", err)
	}
	if !strings.Contains(strings.ToUpper(buf.String()), "P99") {
		t.Fatalf("timing table missing:\n%s", buf.String())
	}
}

func TestReportCmdWritesOutputs(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "capture.blf")
	writeSampleBLF(t, in)
	jsonOut := filepath.Join(dir, "report.json")
	pdfOut := filepath.Join(dir, "report.pdf")
	captureStdout(t)

	if err := reportCmd([]string{"--in", in, "--json", jsonOut, "--pdf", pdfOut, "--lang", "tr", "--quiet"}); err != nil {
		t.Fatalf("reportCmd: %v", err)
	}
	rep, err := report.LoadJSON(jsonOut)
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if rep.File != "capture.blf" || rep.Summary.Messages != 5 || !rep.Clean() {
		t.Fatalf("report = %+v", rep)
	}
	if info, err := os.Stat(pdfOut); err != nil || info.Size() == 0 {
		t.Fatalf("pdf missing: %v", err)
	}

	if err := reportCmd([]string{"--in", in}); err == nil {
		t.Fatalf("reportCmd without outputs succeeded")
	}
}

func TestExportCmdJSONLines(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "capture.blf")
	writeSampleBLF(t, in)
	out := filepath.Join(dir, "rows.jsonl")

	if err := exportCmd([]string{"--in", in, "--sink", "jsonl", "--out", out, "--batch", "2", "--quiet"}); err != nil {
		t.Fatalf("exportCmd: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := readLines(t, data)
	if len(lines) != 4 {
		t.Fatalf("rows = %d, want 4", len(lines))
	}
	runID := string(lines[0]["runId"])
	for i, l := range lines {
		if string(l["runId"]) != runID {
			t.Fatalf("row %d runId = %s, want %s", i, l["runId"], runID)
		}
		if string(l["source"]) != `"capture.blf"` {
			t.Fatalf("row %d source = %s", i, l["source"])
		}
	}
	if got := string(lines[0]["time"]); got != `"2024-05-01T08:00:00.000001Z"` {
		t.Fatalf("time = %s", got)
	}

	if err := exportCmd([]string{"--in", in, "--sink", "kafka", "--quiet"}); err == nil {
		t.Fatalf("unknown sink accepted")
	}
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Concurrency <= 0 || cfg.Export.BatchSize != 1000 || cfg.Export.ClickHouse.Table != "bus_frames" || cfg.Report.Lang != "en" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.Logs.Directory != "" {
		t.Fatalf("Logs.Directory = %q, want empty", cfg.Logs.Directory)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "blfctl.yaml")
	t.Setenv("BLFCTL_TEST_TOKEN", "s3cret")
	yamlText := `concurrency: 3
logs:
  directory: logs
  maxSizeMB: 10
export:
  batchSize: 250
  clickhouse:
    host: ch.local
    table: frames
  influxdb:
    url: http://influx:8181
    database: bus
    token: ${BLFCTL_TEST_TOKEN}
report:
  lang: tr
  outputDir: reports
`
	if err := os.WriteFile(path, []byte(yamlText), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err = loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Concurrency != 3 || cfg.Export.BatchSize != 250 || cfg.Logs.MaxSizeMB != 10 || cfg.Logs.MaxBackups != 5 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Logs.Directory != filepath.Join(dir, "logs") {
		t.Fatalf("Logs.Directory = %q", cfg.Logs.Directory)
	}
	if cfg.Export.ClickHouse.Host != "ch.local" || cfg.Export.ClickHouse.Port != 9000 || cfg.Export.ClickHouse.Table != "frames" {
		t.Fatalf("clickhouse = %+v", cfg.Export.ClickHouse)
	}
	if cfg.Export.InfluxDB.Token != "s3cret" || cfg.Export.InfluxDB.Measurement != "bus_frames" {
		t.Fatalf("influxdb = %+v", cfg.Export.InfluxDB)
	}
	if got := cfg.outputPath("r.json"); got != filepath.Join(dir, "reports", "r.json") {
		t.Fatalf("outputPath = %q", got)
	}

	closeLogs, err := setupLogging(cfg)
	if err != nil {
		t.Fatalf("setupLogging: %v", err)
	}
	closeLogs()
	if info, err := os.Stat(cfg.Logs.Directory); err != nil || !info.IsDir() {
		t.Fatalf("log dir not created: %v", err)
	}
}
