package blf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"

	"example.com/blfgate/internal/common"
)

// Decoder produces the messages of one BLF file in file order. It reads one
// container at a time; nothing beyond the current container payload is held
// in memory.
type Decoder struct {
	source     dataSource
	size       int64
	header     FileHeader
	containers *containerReader
	scan       objectScanner
	current    LogContainer
	tail       []byte
	tailOffset int
	summary    Summary
	metrics    *common.Metrics
	done       bool
	err        error

	// tailResynced marks a tail that is the remainder of a counted resync.
	tailResynced bool
}

// Open opens the BLF file at path and validates its header.
func Open(path string) (*Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	d, err := newDecoder(f, f, info.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	return d, nil
}

// NewDecoder decodes size bytes read from r. Close does not close r.
func NewDecoder(r io.ReaderAt, size int64) (*Decoder, error) {
	return newDecoder(r, nil, size)
}

func newDecoder(r io.ReaderAt, closer io.Closer, size int64) (*Decoder, error) {
	hdr, err := ReadFileHeader(r, size)
	if err != nil {
		return nil, &DecodeError{Level: LevelFile, Container: -1, Offset: 0, Err: err}
	}
	src := newWindowSource(r, closer, size, windowSize)
	d := &Decoder{
		source:  src,
		size:    size,
		header:  hdr,
		summary: NewSummary(),
	}
	d.containers = newContainerReader(src, hdr)
	d.containers.stats = &d.summary
	d.scan.onResync = d.payloadResync
	d.scan.onMalformed = d.malformedObject
	return d, nil
}

// Header returns the validated file header.
func (d *Decoder) Header() FileHeader {
	return d.header
}

// Size is the number of input bytes.
func (d *Decoder) Size() int64 {
	return d.size
}

// SetMetrics attaches a metrics recorder to the decoder.
func (d *Decoder) SetMetrics(m *common.Metrics) {
	d.metrics = m
	d.containers.metrics = m
	if m != nil {
		m.SetTotalBytes(d.size)
	}
}

// Summary returns a copy of the counters accumulated so far. After Next has
// returned io.EOF it covers the whole file.
func (d *Decoder) Summary() Summary {
	return d.summary.Clone()
}

// Close releases the underlying file handle.
func (d *Decoder) Close() error {
	if d.source == nil {
		return nil
	}
	err := d.source.Close()
	d.source = nil
	d.scan.cur = nil
	d.tail = nil
	return err
}

// Next returns the next decoded message. It returns io.EOF after the last
// message. Recoverable problems never surface here: the affected object or
// container is skipped and recorded in the Summary. Any other error is an
// I/O failure of the source and is returned again on later calls.
func (d *Decoder) Next() (Message, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.source == nil || d.done {
		return nil, io.EOF
	}
	for {
		if d.scan.active() {
			start, obj, err := d.scan.next()
			if err == nil {
				if msg, ok := d.decodeObject(start, obj); ok {
					return msg, nil
				}
				continue
			}
			d.tailOffset = d.scan.cur.Pos()
			d.tail = bytes.Clone(d.scan.rest())
			d.tailResynced = d.scan.keptGarbage && len(d.tail) > 0
			d.scan.cur = nil
		}

		c, err := d.containers.next()
		if err != nil {
			var de *DecodeError
			switch {
			case errors.Is(err, io.EOF):
				d.dropTail()
				d.done = true
				return nil, io.EOF
			case errors.As(err, &de):
				d.summary.Containers++
				d.skipContainer(de)
				continue
			default:
				d.err = err
				return nil, err
			}
		}
		d.summary.Containers++
		payload, err := decompressContainer(c)
		if err != nil {
			d.skipContainer(&DecodeError{Level: LevelContainer, Container: c.Offset, Offset: -1, ObjectType: ObjectTypeLogContainer, Err: err})
			continue
		}
		if d.metrics != nil {
			d.metrics.AddContainer()
		}
		reported := 0
		if len(d.tail) > 0 {
			joined := make([]byte, 0, len(d.tail)+len(payload))
			joined = append(joined, d.tail...)
			payload = append(joined, payload...)
			if d.tailResynced {
				reported = len(d.tail)
			}
			d.tail = nil
			d.tailResynced = false
		}
		c.Payload = nil
		d.current = c
		d.scan.reset(payload, reported)
	}
}

// All adapts Next to a range-over-func sequence. Iteration stops after the
// first I/O error, which is yielded with a nil message.
func (d *Decoder) All() iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		for {
			msg, err := d.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(msg, nil) {
				return
			}
		}
	}
}

// Drain decodes the remaining messages without returning them and reports the
// final summary.
func (d *Decoder) Drain() (Summary, error) {
	for {
		_, err := d.Next()
		if errors.Is(err, io.EOF) {
			return d.Summary(), nil
		}
		if err != nil {
			return d.Summary(), err
		}
	}
}

func (d *Decoder) decodeObject(start int, obj []byte) (Message, bool) {
	d.summary.Objects++
	hdr, err := DecodeObjectHeader(obj)
	if err != nil {
		d.skipObject(start, hdr.Type, err)
		return nil, false
	}
	hdr.Offset = start
	d.summary.countHeader(hdr)
	msg, err := Dispatch(hdr, hdr.Body(obj))
	if err != nil {
		d.skipObject(start, hdr.Type, err)
		return nil, false
	}
	d.summary.countMessage(msg)
	if d.metrics != nil {
		d.metrics.AddObject()
	}
	return msg, true
}

func (d *Decoder) skipObject(start int, typ ObjectType, err error) {
	e := &DecodeError{Level: LevelObject, Container: d.current.Offset, Offset: int64(start), ObjectType: typ, Err: err}
	common.Logf("%v", e)
	d.summary.SkippedObjects++
	d.summary.recordError(e)
	if d.metrics != nil {
		d.metrics.IncSkipped()
	}
}

func (d *Decoder) skipContainer(e *DecodeError) {
	common.Logf("%v", e)
	d.summary.SkippedContainers++
	d.summary.recordError(e)
	if d.metrics != nil {
		d.metrics.IncSkipped()
	}
	// Objects carried over from the previous container cannot continue
	// across a lost one.
	d.dropTail()
}

// dropTail accounts for bytes carried from the last container that never got
// completed.
func (d *Decoder) dropTail() {
	tail := d.tail
	resynced := d.tailResynced
	d.tail = nil
	d.tailResynced = false
	switch {
	case len(tail) == 0, resynced:
	case hasObjectSignature(tail):
		var typ ObjectType
		if len(tail) >= baseHeaderSize {
			typ = ObjectType(binary.LittleEndian.Uint32(tail[12:16]))
		}
		d.summary.Objects++
		d.skipObject(d.tailOffset, typ, fmt.Errorf("%w: object cut off after %d bytes", ErrTruncatedData, len(tail)))
	case isZero(tail):
	default:
		d.payloadResync(d.tailOffset, len(tail))
	}
}

// malformedObject accounts for an object whose header carries the signature
// but an impossible size. The scanner resyncs past it afterwards.
func (d *Decoder) malformedObject(pos int, hdr []byte) {
	d.summary.Objects++
	size := binary.LittleEndian.Uint32(hdr[8:12])
	typ := ObjectType(binary.LittleEndian.Uint32(hdr[12:16]))
	d.skipObject(pos, typ, fmt.Errorf("%w: declared object size %d", ErrMalformedBody, size))
}

func (d *Decoder) payloadResync(pos, skipped int) {
	common.Logf("resync in container at offset %d: skipped %d bytes at payload offset %d", d.current.Offset, skipped, pos)
	d.summary.Resyncs++
	if d.metrics != nil {
		d.metrics.IncResync()
	}
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
