package common

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestExpandInputs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.blf", "a.blf", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	tests := []struct {
		name string
		list string
		want []string
	}{
		{name: "glob sorted", list: filepath.Join(dir, "*.blf"), want: []string{filepath.Join(dir, "a.blf"), filepath.Join(dir, "b.blf")}},
		{name: "duplicates dropped", list: filepath.Join(dir, "a.blf") + ", " + filepath.Join(dir, "*.blf"), want: []string{filepath.Join(dir, "a.blf"), filepath.Join(dir, "b.blf")}},
		{name: "missing kept", list: "missing.blf", want: []string{"missing.blf"}},
		{name: "empty", list: " , ", want: nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExpandInputs(tc.list)
			if err != nil {
				t.Fatalf("ExpandInputs: %v", err)
			}
			if strings.Join(got, "|") != strings.Join(tc.want, "|") {
				t.Fatalf("ExpandInputs = %v, want %v", got, tc.want)
			}
		})
	}
	if _, err := ExpandInputs("[bad"); err == nil {
		t.Fatalf("malformed pattern accepted")
	}
}

func TestSha256OfFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abc")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	hash, size, err := Sha256OfFile(path)
	if err != nil {
		t.Fatalf("Sha256OfFile: %v", err)
	}
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if hash != want || size != 3 {
		t.Fatalf("Sha256OfFile = %s, %d, want %s, 3", hash, size, want)
	}
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.SetTotalBytes(200)
	m.Start()
	m.AddBytes(100)
	m.AddBytes(-5)
	m.AddContainer()
	m.AddObject()
	m.AddObject()
	m.IncSkipped()
	m.IncResync()
	m.Stop()
	snap := m.Snapshot()
	if snap.Bytes != 100 || snap.Containers != 1 || snap.Objects != 2 || snap.Skipped != 1 || snap.Resyncs != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if got := snap.Completion(); got != 0.5 {
		t.Fatalf("Completion = %v, want 0.5", got)
	}
	if line := formatProgressLine(snap); !strings.Contains(line, "50.00%") || !strings.Contains(line, "2 objects") {
		t.Fatalf("progress line = %q", line)
	}
}

func TestMetricsConcurrentUpdates(t *testing.T) {
	m := NewMetrics()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				m.AddObject()
				m.AddBytes(4)
			}
		}()
	}
	wg.Wait()
	snap := m.Snapshot()
	if snap.Objects != 800 || snap.Bytes != 3200 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Duration != 0 || snap.Completion() != 0 {
		t.Fatalf("Duration = %v Completion = %v, want 0 before Start", snap.Duration, snap.Completion())
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.00 KiB"},
		{5 * 1024 * 1024, "5.00 MiB"},
	}
	for _, tc := range tests {
		if got := FormatBytes(tc.in); got != tc.want {
			t.Fatalf("FormatBytes(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLogfQuiet(t *testing.T) {
	var buf bytes.Buffer
	SetLogOutput(&buf)
	defer SetLogOutput(os.Stderr)
	SetQuiet(true)
	Logf("hidden %d", 1)
	SetQuiet(false)
	Logf("shown %d", 2)
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "[blfgate] ") || !strings.Contains(out, "shown 2") {
		t.Fatalf("log output = %q", out)
	}
}

func TestStartProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	m := NewMetrics()
	m.Start()
	m.AddBytes(10)
	stop := StartProgressPrinter(&buf, m, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	stop()
	if !strings.Contains(buf.String(), "Processed:") {
		t.Fatalf("progress output = %q", buf.String())
	}
}
