package blf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"example.com/blfgate/internal/common"
)

const (
	containerFieldsSize = 16
	defaultResyncWindow = 64 * 1024
	// maxContainerPayload bounds the declared inflated size of one container.
	maxContainerPayload = 64 << 20

	CompressionNone uint16 = 0
	CompressionZlib uint16 = 2
)

var errNoSignature = errors.New("no object signature within resync window")

// LogContainer is one top-level LOG_CONTAINER object as stored in the file.
type LogContainer struct {
	Offset           int64  `json:"offset"`
	ObjectSize       uint32 `json:"objectSize"`
	HeaderSize       uint16 `json:"headerSize"`
	Method           uint16 `json:"method"`
	CompressedSize   uint32 `json:"compressedSize"`
	UncompressedSize uint32 `json:"uncompressedSize"`
	Payload          []byte `json:"-"`
}

// containerReader walks the top-level objects of a file after its header.
type containerReader struct {
	source       dataSource
	end          int64
	offset       int64
	resyncWindow int64
	resyncBuf    []byte

	metrics *common.Metrics
	stats   *Summary
}

func newContainerReader(src dataSource, hdr FileHeader) *containerReader {
	end := src.Size()
	if declared := int64(hdr.FileSize); declared >= int64(hdr.HeaderSize) && declared > 0 && declared < end {
		end = declared
	}
	return &containerReader{
		source:       src,
		end:          end,
		offset:       int64(hdr.HeaderSize),
		resyncWindow: defaultResyncWindow,
		resyncBuf:    make([]byte, defaultResyncWindow),
	}
}

// next returns the next log container. It returns io.EOF once fewer than a
// base header remain. A *DecodeError at LevelContainer means the container was
// unusable and has been skipped; the caller may keep reading.
func (r *containerReader) next() (LogContainer, error) {
	for {
		if r.offset+baseHeaderSize > r.end {
			r.advance(r.end)
			return LogContainer{}, io.EOF
		}
		view, err := sliceExact(r.source, r.offset, baseHeaderSize)
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				r.advance(r.end)
				return LogContainer{}, io.EOF
			}
			return LogContainer{}, err
		}
		if !hasObjectSignature(view) {
			if n := r.padding(); n > 0 {
				r.advance(r.offset + int64(n))
				continue
			}
			if err := r.resync("object signature"); err != nil {
				if errors.Is(err, errNoSignature) {
					continue
				}
				return LogContainer{}, err
			}
			continue
		}
		headerSize := int64(binary.LittleEndian.Uint16(view[4:6]))
		objectSize := int64(peekObjectSize(view))
		objectType := ObjectType(binary.LittleEndian.Uint32(view[12:16]))
		if objectSize < baseHeaderSize {
			if err := r.resync("object size too small"); err != nil && !errors.Is(err, errNoSignature) {
				return LogContainer{}, err
			}
			continue
		}
		start := r.offset
		next := start + objectSize + objectSize%4
		if start+objectSize > r.end {
			common.Logf("object at offset %d runs %d bytes past end of file", start, start+objectSize-r.end)
			r.advance(r.end)
			if objectType == ObjectTypeLogContainer {
				return LogContainer{}, &DecodeError{Level: LevelContainer, Container: start, Offset: -1,
					ObjectType: objectType, Err: fmt.Errorf("%w: container of %d bytes cut off by end of file", ErrTruncatedData, objectSize)}
			}
			return LogContainer{}, io.EOF
		}
		if objectType != ObjectTypeLogContainer {
			common.Logf("skipping top-level %s object at offset %d", objectType, start)
			if r.stats != nil {
				r.stats.SkippedTopLevel++
			}
			r.advance(next)
			continue
		}

		c := LogContainer{
			Offset:     start,
			ObjectSize: uint32(objectSize),
			HeaderSize: uint16(headerSize),
		}
		r.advance(next)
		if headerSize < baseHeaderSize || headerSize+containerFieldsSize > objectSize {
			return c, &DecodeError{Level: LevelContainer, Container: start, Offset: -1, ObjectType: objectType,
				Err: fmt.Errorf("%w: container header size %d in %d byte object", ErrTruncatedData, headerSize, objectSize)}
		}
		fields, err := sliceExact(r.source, start+headerSize, containerFieldsSize)
		if err != nil {
			return c, err
		}
		c.Method = binary.LittleEndian.Uint16(fields[0:2])
		c.UncompressedSize = binary.LittleEndian.Uint32(fields[8:12])
		payloadOffset := start + headerSize + containerFieldsSize
		c.CompressedSize = uint32(objectSize - headerSize - containerFieldsSize)
		payload, err := sliceExact(r.source, payloadOffset, int(c.CompressedSize))
		if err != nil {
			return c, err
		}
		c.Payload = bytes.Clone(payload)
		return c, nil
	}
}

func (r *containerReader) advance(to int64) {
	if to > r.end {
		to = r.end
	}
	if r.metrics != nil && to > r.offset {
		r.metrics.AddBytes(to - r.offset)
	}
	r.offset = to
}

// padding returns the number of zero bytes (at most 3) in front of an object
// signature at the current offset, or 0.
func (r *containerReader) padding() int {
	view, err := r.source.Slice(r.offset, 3+len(objectSignature))
	if err != nil && !errors.Is(err, io.EOF) {
		return 0
	}
	return paddingBeforeSignature(view)
}

func paddingBeforeSignature(buf []byte) int {
	for n := 1; n <= 3 && n+len(objectSignature) <= len(buf); n++ {
		if buf[n-1] != 0 {
			return 0
		}
		if hasObjectSignature(buf[n:]) {
			return n
		}
	}
	return 0
}

func (r *containerReader) resync(reason string) error {
	common.Logf("resync at offset %d: %s", r.offset, reason)
	if r.metrics != nil {
		r.metrics.IncResync()
	}
	if r.stats != nil {
		r.stats.Resyncs++
	}
	start := r.offset + 1
	if start >= r.end {
		r.advance(r.end)
		return nil
	}
	limit := start + r.resyncWindow
	if limit > r.end {
		limit = r.end
	}
	window := limit - start
	if int64(len(r.resyncBuf)) < window {
		r.resyncBuf = make([]byte, window)
	}
	buf := r.resyncBuf[:window]
	n, err := r.source.ReadAt(buf, start)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if idx := bytes.Index(buf[:n], []byte(objectSignature)); idx >= 0 {
		r.advance(start + int64(idx))
		common.Logf("resync successful, new offset %d", r.offset)
		return nil
	}
	// Keep the last bytes of the window: a signature may straddle its end.
	keep := int64(len(objectSignature) - 1)
	if limit >= r.end || int64(n) <= keep {
		r.advance(limit)
		return nil
	}
	r.advance(start + int64(n) - keep)
	return errNoSignature
}

// decompressContainer inflates the payload of c and checks it against the
// declared uncompressed size.
func decompressContainer(c LogContainer) ([]byte, error) {
	switch c.Method {
	case CompressionNone:
		if int(c.UncompressedSize) != len(c.Payload) {
			return nil, fmt.Errorf("%w: stored payload has %d bytes, declared %d", ErrContainerSizeMismatch, len(c.Payload), c.UncompressedSize)
		}
		return c.Payload, nil
	case CompressionZlib:
		if c.UncompressedSize > maxContainerPayload {
			return nil, fmt.Errorf("%w: declared size %d exceeds limit %d", ErrContainerSizeMismatch, c.UncompressedSize, maxContainerPayload)
		}
		zr, err := zlib.NewReader(bytes.NewReader(c.Payload))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrContainerDecompressionFailed, err)
		}
		defer zr.Close()
		out := bytes.NewBuffer(make([]byte, 0, c.UncompressedSize))
		n, err := io.Copy(out, io.LimitReader(zr, int64(c.UncompressedSize)+1))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrContainerDecompressionFailed, err)
		}
		if n != int64(c.UncompressedSize) {
			return nil, fmt.Errorf("%w: inflated %d bytes, declared %d", ErrContainerSizeMismatch, n, c.UncompressedSize)
		}
		return out.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported compression method %d", ErrContainerDecompressionFailed, c.Method)
	}
}
