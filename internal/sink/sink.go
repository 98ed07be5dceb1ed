// Package sink writes decoded bus frames to external stores in batches.
package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/ratelimit"

	"example.com/blfgate/internal/blf"
)

// Row flags.
const (
	FlagTx uint32 = 1 << iota
	FlagRemote
	FlagExtended
	FlagEDL
	FlagBRS
	FlagESI
	FlagChecksumError
)

// Row is one bus frame flattened for storage.
type Row struct {
	RunID   uuid.UUID
	Source  string
	Time    time.Time
	Channel uint16
	Kind    blf.Kind
	ID      uint32
	DLC     uint8
	Data    []byte
	Flags   uint32
}

// Writer stores rows. Write is called with whole batches.
type Writer interface {
	Write(ctx context.Context, rows []Row) error
	Close() error
}

// RowFromMessage flattens a bus frame. Messages without a bus frame, i.e.
// Other, report false.
func RowFromMessage(msg blf.Message, start time.Time, runID uuid.UUID, source string) (Row, bool) {
	row := Row{
		RunID:   runID,
		Source:  source,
		Time:    msg.Info().Time(start),
		Channel: msg.Info().Channel,
		Kind:    msg.Kind(),
		Data:    msg.Payload(),
	}
	switch f := msg.(type) {
	case blf.CanFrame:
		row.ID, row.DLC = f.ID, f.DLC
		row.Flags = flag(f.Tx, FlagTx) | flag(f.Remote, FlagRemote) | flag(f.Extended, FlagExtended)
	case blf.CanFdFrame:
		row.ID, row.DLC = f.ID, f.DLC
		row.Flags = flag(f.Tx, FlagTx) | flag(f.Remote, FlagRemote) | flag(f.Extended, FlagExtended) |
			flag(f.EDL, FlagEDL) | flag(f.BRS, FlagBRS) | flag(f.ESI, FlagESI)
	case blf.LinFrame:
		row.ID, row.DLC = uint32(f.ID), f.DLC
		row.Flags = flag(f.Tx, FlagTx) | flag(f.ChecksumError, FlagChecksumError)
	default:
		return Row{}, false
	}
	return row, true
}

func flag(set bool, bit uint32) uint32 {
	if set {
		return bit
	}
	return 0
}

// Batcher collects rows and hands them to a Writer once size rows are
// buffered. Flush writes whatever is left.
type Batcher struct {
	w       Writer
	size    int
	buf     []Row
	limiter ratelimit.Limiter
	written int64
	batches int64
}

func NewBatcher(w Writer, size int) *Batcher {
	if size <= 0 {
		size = 1000
	}
	return &Batcher{w: w, size: size, buf: make([]Row, 0, size), limiter: ratelimit.NewUnlimited()}
}

// SetRateLimit caps writes at perSecond batches per second. Zero or a
// negative value removes the cap.
func (b *Batcher) SetRateLimit(perSecond int) {
	if perSecond <= 0 {
		b.limiter = ratelimit.NewUnlimited()
		return
	}
	b.limiter = ratelimit.New(perSecond)
}

func (b *Batcher) Add(ctx context.Context, row Row) error {
	b.buf = append(b.buf, row)
	if len(b.buf) >= b.size {
		return b.Flush(ctx)
	}
	return nil
}

func (b *Batcher) Flush(ctx context.Context) error {
	if len(b.buf) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.limiter.Take()
	if err := b.w.Write(ctx, b.buf); err != nil {
		return fmt.Errorf("write batch of %d rows: %w", len(b.buf), err)
	}
	b.written += int64(len(b.buf))
	b.batches++
	b.buf = b.buf[:0]
	return nil
}

// Written is the number of rows accepted by the writer so far.
func (b *Batcher) Written() int64 {
	return b.written
}

func (b *Batcher) Batches() int64 {
	return b.batches
}
