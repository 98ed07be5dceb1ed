// Package blftest builds BLF byte streams for tests and sample generation.
package blftest

import (
	"bytes"
	"encoding/binary"

	"github.com/klauspost/compress/zlib"
)

const (
	FileHeaderSize  = 144
	BaseHeaderSize  = 16
	FullHeaderSize  = 32
	ContainerFields = 16

	TypeCANMessage     = 1
	TypeLogContainer   = 10
	TypeLINMessage     = 11
	TypeLINCRCError    = 12
	TypeLINMessage2    = 57
	TypeCANMessage2    = 86
	TypeCANFDMessage   = 100
	TypeCANFDMessage64 = 101

	MethodNone = 0
	MethodZlib = 2

	FlagTimeTenMics = 0x1
	FlagTimeOneNans = 0x2
)

// SystemTime is the 16 byte SYSTEMTIME mark of the file header.
type SystemTime struct {
	Year, Month, DayOfWeek, Day, Hour, Minute, Second, Milliseconds uint16
}

func (st SystemTime) bytes() []byte {
	out := make([]byte, 16)
	for i, v := range []uint16{st.Year, st.Month, st.DayOfWeek, st.Day, st.Hour, st.Minute, st.Second, st.Milliseconds} {
		binary.LittleEndian.PutUint16(out[i*2:], v)
	}
	return out
}

// Header describes the file header. Zero HeaderSize means 144.
type Header struct {
	HeaderSize       uint32
	ApplicationID    uint8
	AppMajor         uint8
	AppMinor         uint8
	AppBuild         uint8
	ObjectCount      uint32
	UncompressedSize uint64
	Start            SystemTime
	Stop             SystemTime
	// KeepFileSize leaves the declared file size at zero.
	KeepFileSize bool
}

// File assembles a header and the given top-level objects.
func File(h Header, objects ...[]byte) []byte {
	size := h.HeaderSize
	if size == 0 {
		size = FileHeaderSize
	}
	var body bytes.Buffer
	for _, obj := range objects {
		body.Write(obj)
	}
	hdr := make([]byte, size)
	copy(hdr, "LOGG")
	binary.LittleEndian.PutUint32(hdr[4:], size)
	hdr[8] = h.ApplicationID
	hdr[9] = h.AppMajor
	hdr[10] = h.AppMinor
	hdr[11] = h.AppBuild
	hdr[12] = 4
	hdr[13] = 1
	hdr[14] = 1
	hdr[15] = 0
	if !h.KeepFileSize {
		binary.LittleEndian.PutUint64(hdr[16:], uint64(int(size)+body.Len()))
	}
	binary.LittleEndian.PutUint64(hdr[24:], h.UncompressedSize)
	binary.LittleEndian.PutUint32(hdr[32:], h.ObjectCount)
	binary.LittleEndian.PutUint32(hdr[36:], 0)
	copy(hdr[40:56], h.Start.bytes())
	copy(hdr[56:72], h.Stop.bytes())
	return append(hdr, body.Bytes()...)
}

// Object describes one object. Zero values select a regular v1 object with a
// 32 byte header.
type Object struct {
	Type          uint32
	HeaderSize    uint16
	HeaderVersion uint16
	Flags         uint32
	ClientIndex   uint16
	ObjectVersion uint16
	Timestamp     uint64
	Body          []byte
	// Compact writes only the 16 byte base header.
	Compact bool
	// SizeDelta is added to the declared object size.
	SizeDelta int
}

// Bytes encodes the object header followed by its body.
func (o Object) Bytes() []byte {
	headerSize := o.HeaderSize
	version := o.HeaderVersion
	if version == 0 {
		version = 1
	}
	written := FullHeaderSize
	if o.Compact {
		written = BaseHeaderSize
	}
	if headerSize == 0 {
		headerSize = uint16(written)
	}
	total := written + len(o.Body)
	out := make([]byte, written, total)
	copy(out, "LOBJ")
	binary.LittleEndian.PutUint16(out[4:], headerSize)
	binary.LittleEndian.PutUint16(out[6:], version)
	binary.LittleEndian.PutUint32(out[8:], uint32(total+o.SizeDelta))
	binary.LittleEndian.PutUint32(out[12:], o.Type)
	if !o.Compact {
		binary.LittleEndian.PutUint32(out[16:], o.Flags)
		binary.LittleEndian.PutUint16(out[20:], o.ClientIndex)
		binary.LittleEndian.PutUint16(out[22:], o.ObjectVersion)
		binary.LittleEndian.PutUint64(out[24:], o.Timestamp)
	}
	return append(out, o.Body...)
}

// Pad4 appends zero bytes until len(b) is a multiple of four.
func Pad4(b []byte) []byte {
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}

// Zlib compresses payload with the zlib framing used by log containers.
func Zlib(payload []byte) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, _ = zw.Write(payload)
	_ = zw.Close()
	return buf.Bytes()
}

// Container wraps payload in a log container. With MethodZlib the payload is
// compressed; the declared uncompressed size is len(payload).
func Container(method uint16, payload []byte) []byte {
	data := payload
	if method == MethodZlib {
		data = Zlib(payload)
	}
	return RawContainer(method, data, uint32(len(payload)))
}

// RawContainer wraps data as is, declaring uncompressedSize. The result
// carries the objectSize%4 padding writers append after top-level objects.
func RawContainer(method uint16, data []byte, uncompressedSize uint32) []byte {
	total := BaseHeaderSize + ContainerFields + len(data)
	out := make([]byte, BaseHeaderSize+ContainerFields, total+3)
	copy(out, "LOBJ")
	binary.LittleEndian.PutUint16(out[4:], BaseHeaderSize)
	binary.LittleEndian.PutUint16(out[6:], 1)
	binary.LittleEndian.PutUint32(out[8:], uint32(total))
	binary.LittleEndian.PutUint32(out[12:], TypeLogContainer)
	binary.LittleEndian.PutUint16(out[16:], method)
	binary.LittleEndian.PutUint32(out[24:], uncompressedSize)
	out = append(out, data...)
	for i := 0; i < total%4; i++ {
		out = append(out, 0)
	}
	return out
}

// CANBody encodes a CAN_MESSAGE body.
func CANBody(channel uint16, flags, dlc uint8, id uint32, data []byte) []byte {
	out := make([]byte, 16)
	binary.LittleEndian.PutUint16(out[0:], channel)
	out[2] = flags
	out[3] = dlc
	binary.LittleEndian.PutUint32(out[4:], id)
	copy(out[8:16], data)
	return out
}

// CAN2Body encodes a CAN_MESSAGE2 body.
func CAN2Body(channel uint16, flags, dlc uint8, id uint32, data []byte, frameLength uint32, bitCount uint8) []byte {
	out := CANBody(channel, flags, dlc, id, data)
	ext := make([]byte, 8)
	binary.LittleEndian.PutUint32(ext[0:], frameLength)
	ext[4] = bitCount
	return append(out, ext...)
}

// CANFDBody encodes a CAN_FD_MESSAGE body; validBytes is len(data).
func CANFDBody(channel uint16, flags, dlc uint8, id uint32, fdFlags uint8, data []byte) []byte {
	out := make([]byte, 84)
	binary.LittleEndian.PutUint16(out[0:], channel)
	out[2] = flags
	out[3] = dlc
	binary.LittleEndian.PutUint32(out[4:], id)
	binary.LittleEndian.PutUint32(out[8:], 0)
	out[12] = 0
	out[13] = fdFlags
	out[14] = uint8(len(data))
	copy(out[20:], data)
	return out
}

// CANFD64Body encodes a CAN_FD_MESSAGE_64 body followed by data.
func CANFD64Body(channel, dlc uint8, id, flags uint32, dir uint8, crc uint32, data []byte) []byte {
	out := make([]byte, 40, 40+len(data))
	out[0] = channel
	out[1] = dlc
	out[2] = uint8(len(data))
	binary.LittleEndian.PutUint32(out[4:], id)
	binary.LittleEndian.PutUint32(out[12:], flags)
	out[34] = dir
	binary.LittleEndian.PutUint32(out[36:], crc)
	return append(out, data...)
}

// LINBody encodes a LIN_MESSAGE body including its trailing reserved bytes.
func LINBody(channel uint16, id, dlc uint8, data []byte, crc uint16, dir uint8) []byte {
	out := make([]byte, 24)
	binary.LittleEndian.PutUint16(out[0:], channel)
	out[2] = id
	out[3] = dlc
	copy(out[4:12], data)
	binary.LittleEndian.PutUint16(out[16:], crc)
	out[18] = dir
	return out
}

// LIN2Body encodes a LIN_MESSAGE2 body. A non-zero respBaudrate appends the
// version 2 field.
func LIN2Body(channel uint16, id, dlc uint8, data []byte, crc uint16, dir, simulated uint8, respBaudrate uint32) []byte {
	out := make([]byte, 132, 136)
	binary.LittleEndian.PutUint32(out[8:], 19200)
	binary.LittleEndian.PutUint16(out[12:], channel)
	out[37] = id
	out[38] = dlc
	copy(out[112:120], data)
	binary.LittleEndian.PutUint16(out[120:], crc)
	out[122] = dir
	out[123] = simulated
	out[127] = 2
	out[128] = 5
	if respBaudrate != 0 {
		out = binary.LittleEndian.AppendUint32(out, respBaudrate)
	}
	return out
}
