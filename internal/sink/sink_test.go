package sink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"example.com/blfgate/internal/blf"
)

type memoryWriter struct {
	batches [][]Row
	failAt  int
	closed  bool
}

func (m *memoryWriter) Write(ctx context.Context, rows []Row) error {
	if m.failAt > 0 && len(m.batches)+1 == m.failAt {
		return errors.New("store unavailable")
	}
	m.batches = append(m.batches, append([]Row(nil), rows...))
	return nil
}

func (m *memoryWriter) Close() error {
	m.closed = true
	return nil
}

func TestRowFromMessage(t *testing.T) {
	start := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	run := uuid.MustParse("5f0c7a52-8f1e-4a0b-9d7e-2f6c1b3a4d5e")
	tests := []struct {
		name      string
		msg       blf.Message
		ok        bool
		wantID    uint32
		wantFlags uint32
		wantKind  blf.Kind
	}{
		{
			name:      "can",
			msg:       blf.CanFrame{Meta: blf.Meta{Channel: 2, TimestampNs: 1500}, ID: 0x123, DLC: 2, Data: []byte{1, 2}, Tx: true, Extended: true},
			ok:        true,
			wantID:    0x123,
			wantFlags: FlagTx | FlagExtended,
			wantKind:  blf.KindCAN,
		},
		{
			name:      "canfd",
			msg:       blf.CanFdFrame{ID: 0x10, DLC: 9, Data: make([]byte, 12), EDL: true, BRS: true},
			ok:        true,
			wantID:    0x10,
			wantFlags: FlagEDL | FlagBRS,
			wantKind:  blf.KindCANFD,
		},
		{
			name:      "lin crc error",
			msg:       blf.LinFrame{ID: 0x21, DLC: 2, Data: []byte{9, 9}, ChecksumError: true},
			ok:        true,
			wantID:    0x21,
			wantFlags: FlagChecksumError,
			wantKind:  blf.KindLIN,
		},
		{
			name: "other",
			msg:  blf.Other{Body: []byte{1}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			row, ok := RowFromMessage(tc.msg, start, run, "capture.blf")
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if !ok {
				return
			}
			if row.ID != tc.wantID || row.Flags != tc.wantFlags || row.Kind != tc.wantKind {
				t.Fatalf("row = %+v", row)
			}
			if row.RunID != run || row.Source != "capture.blf" {
				t.Fatalf("row = %+v", row)
			}
			want := start.Add(time.Duration(tc.msg.Info().TimestampNs))
			if !row.Time.Equal(want) {
				t.Fatalf("Time = %v, want %v", row.Time, want)
			}
		})
	}
}

func TestBatcher(t *testing.T) {
	w := &memoryWriter{}
	b := NewBatcher(w, 2)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := b.Add(ctx, Row{ID: uint32(i)}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if len(w.batches) != 2 || b.Written() != 4 {
		t.Fatalf("batches = %d written = %d", len(w.batches), b.Written())
	}
	if err := b.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(w.batches) != 3 || b.Written() != 5 || b.Batches() != 3 {
		t.Fatalf("batches = %d written = %d", len(w.batches), b.Written())
	}
	if len(w.batches[2]) != 1 || w.batches[2][0].ID != 4 {
		t.Fatalf("last batch = %+v", w.batches[2])
	}
	if err := b.Flush(ctx); err != nil || len(w.batches) != 3 {
		t.Fatalf("empty Flush wrote a batch: %v", err)
	}
}

func TestBatcherErrors(t *testing.T) {
	w := &memoryWriter{failAt: 1}
	b := NewBatcher(w, 1)
	if err := b.Add(context.Background(), Row{}); err == nil || !strings.Contains(err.Error(), "store unavailable") {
		t.Fatalf("err = %v", err)
	}
	if b.Written() != 0 {
		t.Fatalf("Written = %d, want 0", b.Written())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b = NewBatcher(&memoryWriter{}, 10)
	_ = b.Add(ctx, Row{})
	if err := b.Flush(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestJSONLinesWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLines(&buf)
	rows := []Row{
		{Source: "a.blf", Time: time.Unix(0, 5).UTC(), Kind: blf.KindCAN, ID: 0x7ff, DLC: 2, Data: []byte{0xca, 0xfe}},
		{Source: "a.blf", Time: time.Unix(1, 0).UTC(), Kind: blf.KindLIN, ID: 0x3c, DLC: 1, Data: []byte{0x01}, Flags: FlagTx},
	}
	if err := w.Write(context.Background(), rows); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	sc := bufio.NewScanner(&buf)
	var got []jsonRow
	for sc.Scan() {
		var r jsonRow
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		got = append(got, r)
	}
	if len(got) != 2 || got[0].Data != "cafe" || got[1].Kind != "lin" || got[1].Flags != FlagTx {
		t.Fatalf("rows = %+v", got)
	}
}

func TestJSONLinesWriterCloseTwice(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "rows.jsonl"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	w := NewJSONLines(f)
	row := Row{Source: "a.blf", Time: time.Unix(2, 0).UTC(), Kind: blf.KindCAN, ID: 0x10, DLC: 1, Data: []byte{0x01}}
	if err := w.Write(context.Background(), []Row{row}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close = %v, want nil", err)
	}
	data, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if n := bytes.Count(data, []byte("\n")); n != 1 {
		t.Fatalf("lines = %d, want 1", n)
	}
}

func TestStoreMappings(t *testing.T) {
	r := Row{RunID: uuid.New(), Source: "x.blf", Channel: 3, Kind: blf.KindCANFD, ID: 0x1ab, DLC: 9, Data: make([]byte, 12), Flags: FlagEDL}
	vals := clickHouseValues(r)
	if len(vals) != 9 {
		t.Fatalf("values = %d, want 9", len(vals))
	}
	if vals[4] != "canfd" {
		t.Fatalf("kind value = %v", vals[4])
	}
	if data, ok := vals[7].([]byte); !ok || len(data) != 12 {
		t.Fatalf("data value = %#v", vals[7])
	}
	if empty := clickHouseValues(Row{})[7].([]byte); empty == nil {
		t.Fatalf("nil data not replaced")
	}
	if q := createTableQuery("frames"); !strings.Contains(q, "CREATE TABLE IF NOT EXISTS frames") || !strings.Contains(q, "MergeTree") {
		t.Fatalf("query = %s", q)
	}
	for _, name := range []string{"frames", "db.frames", "_x1"} {
		if !tableNamePattern.MatchString(name) {
			t.Fatalf("table name %q rejected", name)
		}
	}
	for _, name := range []string{"", "1frames", "frames; DROP TABLE x", "a.b.c"} {
		if tableNamePattern.MatchString(name) {
			t.Fatalf("table name %q accepted", name)
		}
	}

	tags := pointTags(r)
	if tags["id"] != "0x1AB" || tags["channel"] != "3" || tags["kind"] != "canfd" || tags["run_id"] != r.RunID.String() {
		t.Fatalf("tags = %v", tags)
	}
	fields := pointFields(r)
	if fields["length"] != int64(12) || fields["id_decimal"] != int64(0x1ab) {
		t.Fatalf("fields = %v", fields)
	}
}

func TestBatcherRateLimit(t *testing.T) {
	w := &memoryWriter{}
	b := NewBatcher(w, 1)
	b.SetRateLimit(50)
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 4; i++ {
		if err := b.Add(ctx, Row{ID: uint32(i)}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	// The first batch passes immediately, the other three wait 20ms each.
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("4 batches at 50/s took %v", elapsed)
	}
	b.SetRateLimit(0)
	if err := b.Add(ctx, Row{}); err != nil || len(w.batches) != 5 {
		t.Fatalf("unlimited Add: %v, batches = %d", err, len(w.batches))
	}
}
