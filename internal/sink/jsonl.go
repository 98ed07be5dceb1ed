package sink

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"time"
)

// JSONLinesWriter writes one JSON object per row. It serves offline exports
// and dry runs of the database sinks.
type JSONLinesWriter struct {
	out    *bufio.Writer
	enc    *json.Encoder
	closer io.Closer
	closed bool
}

type jsonRow struct {
	RunID   string `json:"runId"`
	Source  string `json:"source"`
	Time    string `json:"time"`
	Channel uint16 `json:"channel"`
	Kind    string `json:"kind"`
	ID      uint32 `json:"id"`
	DLC     uint8  `json:"dlc"`
	Data    string `json:"data"`
	Flags   uint32 `json:"flags"`
}

// NewJSONLines writes to w. If w is an io.Closer, Close closes it.
func NewJSONLines(w io.Writer) *JSONLinesWriter {
	bw := bufio.NewWriter(w)
	jw := &JSONLinesWriter{out: bw, enc: json.NewEncoder(bw)}
	if c, ok := w.(io.Closer); ok {
		jw.closer = c
	}
	return jw
}

func (w *JSONLinesWriter) Write(ctx context.Context, rows []Row) error {
	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := w.enc.Encode(jsonRow{
			RunID:   r.RunID.String(),
			Source:  r.Source,
			Time:    r.Time.UTC().Format(time.RFC3339Nano),
			Channel: r.Channel,
			Kind:    string(r.Kind),
			ID:      r.ID,
			DLC:     r.DLC,
			Data:    hex.EncodeToString(r.Data),
			Flags:   r.Flags,
		})
		if err != nil {
			return err
		}
	}
	return w.out.Flush()
}

// Close flushes and closes the underlying writer. Later calls return nil.
func (w *JSONLinesWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.out.Flush()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
