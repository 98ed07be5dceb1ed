package common

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics counts decoding progress. The counters are shared by the decoders of
// a multi-file run, so all methods are safe for concurrent use.
type Metrics struct {
	bytes      atomic.Int64
	totalBytes atomic.Int64
	containers atomic.Int64
	objects    atomic.Int64
	skipped    atomic.Int64
	resyncs    atomic.Int64

	mu         sync.Mutex
	start, end time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// Start begins the clock. Later calls are ignored until Stop.
func (m *Metrics) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.start.IsZero() {
		m.start, m.end = time.Now(), time.Time{}
	}
}

func (m *Metrics) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.start.IsZero() && m.end.IsZero() {
		m.end = time.Now()
	}
}

func (m *Metrics) AddContainer() { m.containers.Add(1) }
func (m *Metrics) AddObject()    { m.objects.Add(1) }
func (m *Metrics) IncResync()    { m.resyncs.Add(1) }

// IncSkipped counts an object or container that could not be decoded.
func (m *Metrics) IncSkipped() { m.skipped.Add(1) }

// AddBytes advances the processed byte count; n <= 0 is ignored.
func (m *Metrics) AddBytes(n int64) {
	if n > 0 {
		m.bytes.Add(n)
	}
}

// SetTotalBytes sets the size used for completion; negative means unknown.
func (m *Metrics) SetTotalBytes(total int64) {
	m.totalBytes.Store(max(total, 0))
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	var d time.Duration
	switch {
	case m.start.IsZero():
	case m.end.IsZero():
		d = time.Since(m.start)
	default:
		d = m.end.Sub(m.start)
	}
	m.mu.Unlock()
	return MetricsSnapshot{
		Duration:   d,
		Bytes:      m.bytes.Load(),
		TotalBytes: m.totalBytes.Load(),
		Containers: m.containers.Load(),
		Objects:    m.objects.Load(),
		Skipped:    m.skipped.Load(),
		Resyncs:    m.resyncs.Load(),
	}
}

type MetricsSnapshot struct {
	Duration   time.Duration
	Bytes      int64
	TotalBytes int64
	Containers int64
	Objects    int64
	Skipped    int64
	Resyncs    int64
}

func (s MetricsSnapshot) ThroughputBytesPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Bytes) / s.Duration.Seconds()
}

// Completion is the processed share of TotalBytes in [0, 1], or 0 when the
// total is unknown.
func (s MetricsSnapshot) Completion() float64 {
	if s.TotalBytes <= 0 {
		return 0
	}
	return min(max(float64(s.Bytes)/float64(s.TotalBytes), 0), 1)
}

var byteUnits = []string{"KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}

// FormatBytes renders b with a binary unit, e.g. "2.00 KiB".
func FormatBytes(b int64) string {
	if b < 1024 {
		return fmt.Sprintf("%d B", b)
	}
	v := float64(b) / 1024
	i := 0
	for v >= 1024 && i < len(byteUnits)-1 {
		v /= 1024
		i++
	}
	return fmt.Sprintf("%.2f %s", v, byteUnits[i])
}

func formatProgressLine(s MetricsSnapshot) string {
	mibps := s.ThroughputBytesPerSecond() / (1 << 20)
	if s.TotalBytes <= 0 {
		return fmt.Sprintf("Processed: %s %d objects %.2f MiB/s", FormatBytes(s.Bytes), s.Objects, mibps)
	}
	return fmt.Sprintf("Progress: %6.2f%% (%s / %s) %d objects %.2f MiB/s",
		s.Completion()*100, FormatBytes(s.Bytes), FormatBytes(s.TotalBytes), s.Objects, mibps)
}

// StartProgressPrinter rewrites a single progress line on w every interval
// until the returned function is called, which clears the line.
func StartProgressPrinter(w io.Writer, m *Metrics, interval time.Duration) func() {
	if m == nil || w == nil {
		return func() {}
	}
	if interval <= 0 {
		interval = time.Second
	}
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		width := 0
		for {
			select {
			case <-ticker.C:
				line := formatProgressLine(m.Snapshot())
				// Blank out what is left of a longer previous line.
				fmt.Fprintf(w, "\r%-*s", width, line)
				width = max(width, len(line))
			case <-done:
				if width > 0 {
					fmt.Fprintf(w, "\r%s\r\n", strings.Repeat(" ", width))
				}
				return
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}
