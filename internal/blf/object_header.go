package blf

import (
	"encoding/binary"
	"fmt"
)

const (
	objectSignature      = "LOBJ"
	baseHeaderSize       = 16
	extendedHeaderV1Size = 16
	fullHeaderV1Size     = baseHeaderSize + extendedHeaderV1Size
	headerVersion1       = 1
)

// ObjectHeader is the decoded header of one object. HeaderBytes is what the
// decoder actually consumed and may differ from the declared HeaderSize.
type ObjectHeader struct {
	HeaderSize    uint16     `json:"headerSize"`
	HeaderVersion uint16     `json:"headerVersion"`
	ObjectSize    uint32     `json:"objectSize"`
	Type          ObjectType `json:"type"`

	Flags         uint32 `json:"flags"`
	ClientIndex   uint16 `json:"clientIndex"`
	ObjectVersion uint16 `json:"objectVersion"`
	RawTimestamp  uint64 `json:"rawTimestamp"`

	Offset      int        `json:"offset"`
	HeaderBytes int        `json:"headerBytes"`
	Extended    bool       `json:"extended"`
	Annotations Annotation `json:"annotations"`
}

// TimestampNs is the normalized timestamp, or zero without an extended block.
func (h ObjectHeader) TimestampNs() int64 {
	if !h.Extended {
		return 0
	}
	return NormalizeTimestamp(h.RawTimestamp, h.Flags)
}

func (h ObjectHeader) TimeUnit() TimeUnit {
	return TimeUnitFromFlags(h.Flags)
}

// Body returns the object body from the bytes of the whole object.
func (h ObjectHeader) Body(obj []byte) []byte {
	end := int(h.ObjectSize)
	if end > len(obj) {
		end = len(obj)
	}
	if h.HeaderBytes >= end {
		return nil
	}
	return obj[h.HeaderBytes:end]
}

func hasObjectSignature(buf []byte) bool {
	return len(buf) >= len(objectSignature) && string(buf[:len(objectSignature)]) == objectSignature
}

// peekObjectSize reads the total size field of a base header at buf.
func peekObjectSize(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf[8:12])
}

// DecodeObjectHeader decodes the header at the start of obj, which holds the
// bytes of exactly one object. A declared 16-byte header followed by room for
// a full extended block is read as a mislabeled full header.
func DecodeObjectHeader(obj []byte) (ObjectHeader, error) {
	var hdr ObjectHeader
	c := NewCursor(obj)
	sig, err := c.ReadBytes(len(objectSignature))
	if err != nil {
		return hdr, err
	}
	if string(sig) != objectSignature {
		return hdr, fmt.Errorf("%w: got %q", ErrInvalidObjectSignature, sig)
	}
	if c.Remaining() < baseHeaderSize-len(objectSignature) {
		return hdr, fmt.Errorf("%w: base header needs %d bytes, have %d", ErrTruncatedData, baseHeaderSize, len(obj))
	}
	hdr.HeaderSize, _ = c.ReadU16()
	hdr.HeaderVersion, _ = c.ReadU16()
	hdr.ObjectSize, _ = c.ReadU32()
	typ, _ := c.ReadU32()
	hdr.Type = ObjectType(typ)

	if hdr.ObjectSize < baseHeaderSize {
		return hdr, fmt.Errorf("%w: object size %d smaller than base header", ErrMalformedBody, hdr.ObjectSize)
	}
	if int(hdr.ObjectSize) > len(obj) {
		return hdr, fmt.Errorf("%w: object size %d, have %d bytes", ErrTruncatedData, hdr.ObjectSize, len(obj))
	}
	// Everything below is bounded by the declared object size.
	c = NewCursor(obj[:hdr.ObjectSize])
	_ = c.SkipTo(baseHeaderSize)

	if hdr.HeaderVersion != headerVersion1 {
		hdr.Annotations |= AnnotationUnsupportedHeaderVersion
		if hdr.HeaderSize < baseHeaderSize || uint32(hdr.HeaderSize) > hdr.ObjectSize {
			return hdr, fmt.Errorf("%w %d: declared header size %d in %d byte object",
				ErrUnsupportedHeaderVersion, hdr.HeaderVersion, hdr.HeaderSize, hdr.ObjectSize)
		}
		hdr.HeaderBytes = int(hdr.HeaderSize)
		return hdr, nil
	}

	switch {
	case hdr.HeaderSize >= fullHeaderV1Size:
		if uint32(hdr.HeaderSize) > hdr.ObjectSize {
			return hdr, fmt.Errorf("%w: declared header size %d exceeds object size %d", ErrMalformedBody, hdr.HeaderSize, hdr.ObjectSize)
		}
		readExtendedHeader(c, &hdr)
		hdr.HeaderBytes = int(hdr.HeaderSize)
	case hdr.HeaderSize >= baseHeaderSize:
		if c.Remaining() >= extendedHeaderV1Size {
			readExtendedHeader(c, &hdr)
			hdr.Annotations |= AnnotationMislabeledHeader
		} else {
			hdr.Annotations |= AnnotationCompactHeader
		}
		hdr.HeaderBytes = c.Pos()
	default:
		return hdr, fmt.Errorf("%w: declared header size %d smaller than base header", ErrMalformedBody, hdr.HeaderSize)
	}
	return hdr, nil
}

func readExtendedHeader(c *Cursor, hdr *ObjectHeader) {
	hdr.Flags, _ = c.ReadU32()
	hdr.ClientIndex, _ = c.ReadU16()
	hdr.ObjectVersion, _ = c.ReadU16()
	hdr.RawTimestamp, _ = c.ReadU64()
	hdr.Extended = true
}
