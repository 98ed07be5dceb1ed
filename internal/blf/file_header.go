package blf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	fileSignature       = "LOGG"
	fileHeaderFixedSize = 72
	// fileHeaderMaxSize bounds the declared header size; writers use 144.
	fileHeaderMaxSize = 4096
	systemTimeSize    = 16
)

// SystemTime mirrors the Windows SYSTEMTIME stored in the file header.
type SystemTime struct {
	Year         uint16 `json:"year"`
	Month        uint16 `json:"month"`
	DayOfWeek    uint16 `json:"dayOfWeek"`
	Day          uint16 `json:"day"`
	Hour         uint16 `json:"hour"`
	Minute       uint16 `json:"minute"`
	Second       uint16 `json:"second"`
	Milliseconds uint16 `json:"milliseconds"`
}

func parseSystemTime(buf []byte) SystemTime {
	return SystemTime{
		Year:         binary.LittleEndian.Uint16(buf[0:2]),
		Month:        binary.LittleEndian.Uint16(buf[2:4]),
		DayOfWeek:    binary.LittleEndian.Uint16(buf[4:6]),
		Day:          binary.LittleEndian.Uint16(buf[6:8]),
		Hour:         binary.LittleEndian.Uint16(buf[8:10]),
		Minute:       binary.LittleEndian.Uint16(buf[10:12]),
		Second:       binary.LittleEndian.Uint16(buf[12:14]),
		Milliseconds: binary.LittleEndian.Uint16(buf[14:16]),
	}
}

// Time converts the mark to UTC. An unset mark (year 0) yields the zero time.
func (st SystemTime) Time() time.Time {
	if st.Year == 0 {
		return time.Time{}
	}
	return time.Date(int(st.Year), time.Month(st.Month), int(st.Day),
		int(st.Hour), int(st.Minute), int(st.Second), int(st.Milliseconds)*int(time.Millisecond), time.UTC)
}

// FileHeader is the "LOGG" block at the start of every BLF file.
type FileHeader struct {
	HeaderSize       uint32     `json:"headerSize"`
	ApplicationID    uint8      `json:"applicationId"`
	ApplicationMajor uint8      `json:"applicationMajor"`
	ApplicationMinor uint8      `json:"applicationMinor"`
	ApplicationBuild uint8      `json:"applicationBuild"`
	BinLogMajor      uint8      `json:"binLogMajor"`
	BinLogMinor      uint8      `json:"binLogMinor"`
	BinLogBuild      uint8      `json:"binLogBuild"`
	BinLogPatch      uint8      `json:"binLogPatch"`
	FileSize         uint64     `json:"fileSize"`
	UncompressedSize uint64     `json:"uncompressedSize"`
	ObjectCount      uint32     `json:"objectCount"`
	ObjectsRead      uint32     `json:"objectsRead"`
	Start            SystemTime `json:"start"`
	Stop             SystemTime `json:"stop"`
}

// ApplicationVersion formats the writer version as major.minor.build.
func (h FileHeader) ApplicationVersion() string {
	return fmt.Sprintf("%d.%d.%d", h.ApplicationMajor, h.ApplicationMinor, h.ApplicationBuild)
}

func (h FileHeader) BinLogVersion() string {
	return fmt.Sprintf("%d.%d.%d.%d", h.BinLogMajor, h.BinLogMinor, h.BinLogBuild, h.BinLogPatch)
}

// ParseFileHeader decodes the fixed part of the file header from buf.
func ParseFileHeader(buf []byte) (FileHeader, error) {
	var hdr FileHeader
	if len(buf) < len(fileSignature) {
		return hdr, fmt.Errorf("%w: %d bytes before file signature", ErrTruncatedData, len(buf))
	}
	if string(buf[:len(fileSignature)]) != fileSignature {
		return hdr, fmt.Errorf("%w: got %q", ErrInvalidFileSignature, buf[:len(fileSignature)])
	}
	if len(buf) < fileHeaderFixedSize {
		return hdr, fmt.Errorf("%w: file header needs %d bytes, have %d", ErrTruncatedData, fileHeaderFixedSize, len(buf))
	}
	c := NewCursor(buf[:fileHeaderFixedSize])
	_ = c.Skip(len(fileSignature))
	hdr.HeaderSize, _ = c.ReadU32()
	hdr.ApplicationID, _ = c.ReadU8()
	hdr.ApplicationMajor, _ = c.ReadU8()
	hdr.ApplicationMinor, _ = c.ReadU8()
	hdr.ApplicationBuild, _ = c.ReadU8()
	hdr.BinLogMajor, _ = c.ReadU8()
	hdr.BinLogMinor, _ = c.ReadU8()
	hdr.BinLogBuild, _ = c.ReadU8()
	hdr.BinLogPatch, _ = c.ReadU8()
	hdr.FileSize, _ = c.ReadU64()
	hdr.UncompressedSize, _ = c.ReadU64()
	hdr.ObjectCount, _ = c.ReadU32()
	hdr.ObjectsRead, _ = c.ReadU32()
	start, _ := c.ReadBytes(systemTimeSize)
	stop, _ := c.ReadBytes(systemTimeSize)
	hdr.Start = parseSystemTime(start)
	hdr.Stop = parseSystemTime(stop)
	if hdr.HeaderSize < fileHeaderFixedSize || hdr.HeaderSize > fileHeaderMaxSize {
		return hdr, fmt.Errorf("%w: declared header size %d", ErrCorruptFileHeader, hdr.HeaderSize)
	}
	return hdr, nil
}

// ReadFileHeader reads and validates the file header of a source holding
// size bytes.
func ReadFileHeader(r io.ReaderAt, size int64) (FileHeader, error) {
	n := int64(fileHeaderFixedSize)
	if size < n {
		n = size
	}
	if n < 0 {
		n = 0
	}
	buf := make([]byte, n)
	read, err := r.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return FileHeader{}, err
	}
	hdr, err := ParseFileHeader(buf[:read])
	if err != nil {
		return hdr, err
	}
	if int64(hdr.HeaderSize) > size {
		return hdr, fmt.Errorf("%w: declared header size %d exceeds %d byte input", ErrCorruptFileHeader, hdr.HeaderSize, size)
	}
	return hdr, nil
}
