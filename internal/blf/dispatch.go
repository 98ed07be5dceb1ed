package blf

import (
	"bytes"
	"fmt"
)

const (
	canMessageSize     = 16
	canMessage2ExtSize = 8
	canFdFixedSize     = 20
	canFd64FixedSize   = 40
	linMessageMinSize  = 19
	linMessage2MinSize = 132
	canClassicMaxData  = 8
	canFdMaxData       = 64
	canIDExtendedBit   = 0x80000000
	canIDMask          = 0x1FFFFFFF
	linIDMask          = 0x3F
	canFlagTx          = 0x01
	canFlagRemote      = 0x80
	canFdFlagEDL       = 0x01
	canFdFlagBRS       = 0x02
	canFdFlagESI       = 0x04
	canFd64FlagRemote  = 0x0010
	canFd64FlagEDL     = 0x1000
	canFd64FlagBRS     = 0x2000
	canFd64FlagESI     = 0x4000
)

type bodyDecoder func(meta Meta, body []byte) (Message, error)

var bodyDecoders = map[ObjectType]bodyDecoder{
	ObjectTypeCANMessage:     decodeCANMessage,
	ObjectTypeCANMessage2:    decodeCANMessage,
	ObjectTypeCANFDMessage:   decodeCANFDMessage,
	ObjectTypeCANFDMessage64: decodeCANFDMessage64,
	ObjectTypeLINMessage:     decodeLINMessage,
	ObjectTypeLINCRCError:    decodeLINMessage,
	ObjectTypeLINMessage2:    decodeLINMessage2,
}

// HasDecoder reports whether objects of type t decode to a dedicated message
// kind rather than Other.
func HasDecoder(t ObjectType) bool {
	_, ok := bodyDecoders[t]
	return ok
}

// Dispatch decodes body according to the object type in hdr. Types without a
// dedicated decoder come back as Other with the body copied unmodified.
func Dispatch(hdr ObjectHeader, body []byte) (Message, error) {
	meta := Meta{
		TimestampNs: hdr.TimestampNs(),
		ObjectType:  hdr.Type,
		Annotations: hdr.Annotations,
	}
	dec, ok := bodyDecoders[hdr.Type]
	if !ok {
		return Other{Meta: meta, Body: bytes.Clone(body)}, nil
	}
	msg, err := dec(meta, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedBody, hdr.Type, err)
	}
	return msg, nil
}

// CANFDDataLength maps a CAN FD DLC code to its payload length.
func CANFDDataLength(dlc uint8) int {
	switch {
	case dlc <= 8:
		return int(dlc)
	case dlc == 9:
		return 12
	case dlc == 10:
		return 16
	case dlc == 11:
		return 20
	case dlc == 12:
		return 24
	case dlc == 13:
		return 32
	case dlc == 14:
		return 48
	default:
		return 64
	}
}

func decodeCANMessage(meta Meta, body []byte) (Message, error) {
	c := NewCursor(body)
	if c.Remaining() < canMessageSize {
		return nil, fmt.Errorf("need %d bytes, have %d", canMessageSize, c.Remaining())
	}
	var f CanFrame
	f.Meta = meta
	f.Channel, _ = c.ReadU16()
	flags, _ := c.ReadU8()
	f.DLC, _ = c.ReadU8()
	id, _ := c.ReadU32()
	raw, _ := c.ReadBytes(canClassicMaxData)

	f.ID = id & canIDMask
	f.Extended = id&canIDExtendedBit != 0
	f.Tx = flags&canFlagTx != 0
	f.Remote = flags&canFlagRemote != 0
	n := min(int(f.DLC), canClassicMaxData)
	if f.Remote {
		n = 0
	}
	f.Data = bytes.Clone(raw[:n])

	if meta.ObjectType == ObjectTypeCANMessage2 && c.Remaining() >= canMessage2ExtSize {
		f.FrameLength, _ = c.ReadU32()
		f.BitCount, _ = c.ReadU8()
	}
	return f, nil
}

func decodeCANFDMessage(meta Meta, body []byte) (Message, error) {
	c := NewCursor(body)
	if c.Remaining() < canFdFixedSize {
		return nil, fmt.Errorf("need %d bytes, have %d", canFdFixedSize, c.Remaining())
	}
	var f CanFdFrame
	f.Meta = meta
	f.Channel, _ = c.ReadU16()
	flags, _ := c.ReadU8()
	f.DLC, _ = c.ReadU8()
	id, _ := c.ReadU32()
	f.FrameLength, _ = c.ReadU32()
	arbBits, _ := c.ReadU8()
	fdFlags, _ := c.ReadU8()
	validBytes, _ := c.ReadU8()
	_ = c.Skip(5)

	if validBytes > canFdMaxData {
		return nil, fmt.Errorf("valid data bytes %d exceed %d", validBytes, canFdMaxData)
	}
	raw, err := c.ReadBytes(int(validBytes))
	if err != nil {
		return nil, err
	}
	f.ID = id & canIDMask
	f.Extended = id&canIDExtendedBit != 0
	f.Tx = flags&canFlagTx != 0
	f.Remote = flags&canFlagRemote != 0
	f.BitCount = uint16(arbBits)
	f.EDL = fdFlags&canFdFlagEDL != 0
	f.BRS = fdFlags&canFdFlagBRS != 0
	f.ESI = fdFlags&canFdFlagESI != 0
	f.Flags = uint32(fdFlags)
	f.Data = bytes.Clone(raw)
	return f, nil
}

func decodeCANFDMessage64(meta Meta, body []byte) (Message, error) {
	c := NewCursor(body)
	if c.Remaining() < canFd64FixedSize {
		return nil, fmt.Errorf("need %d bytes, have %d", canFd64FixedSize, c.Remaining())
	}
	var f CanFdFrame
	f.Meta = meta
	channel, _ := c.ReadU8()
	f.Channel = uint16(channel)
	f.DLC, _ = c.ReadU8()
	validBytes, _ := c.ReadU8()
	_, _ = c.ReadU8() // tx count
	id, _ := c.ReadU32()
	f.FrameLength, _ = c.ReadU32()
	f.Flags, _ = c.ReadU32()
	_ = c.Skip(16) // bit timings and bit offsets
	f.BitCount, _ = c.ReadU16()
	dir, _ := c.ReadU8()
	_, _ = c.ReadU8() // ext data offset
	f.CRC, _ = c.ReadU32()

	if validBytes > canFdMaxData {
		return nil, fmt.Errorf("valid data bytes %d exceed %d", validBytes, canFdMaxData)
	}
	raw, err := c.ReadBytes(int(validBytes))
	if err != nil {
		return nil, err
	}
	f.ID = id & canIDMask
	f.Extended = id&canIDExtendedBit != 0
	f.Tx = dir != 0
	f.Remote = f.Flags&canFd64FlagRemote != 0
	f.EDL = f.Flags&canFd64FlagEDL != 0
	f.BRS = f.Flags&canFd64FlagBRS != 0
	f.ESI = f.Flags&canFd64FlagESI != 0
	f.Data = bytes.Clone(raw)
	return f, nil
}

func decodeLINMessage(meta Meta, body []byte) (Message, error) {
	c := NewCursor(body)
	if c.Remaining() < linMessageMinSize {
		return nil, fmt.Errorf("need %d bytes, have %d", linMessageMinSize, c.Remaining())
	}
	var f LinFrame
	f.Meta = meta
	f.Channel, _ = c.ReadU16()
	id, _ := c.ReadU8()
	f.DLC, _ = c.ReadU8()
	raw, _ := c.ReadBytes(canClassicMaxData)
	f.FSMID, _ = c.ReadU8()
	f.FSMState, _ = c.ReadU8()
	f.HeaderTime, _ = c.ReadU8()
	f.FullTime, _ = c.ReadU8()
	f.Checksum, _ = c.ReadU16()
	dir, _ := c.ReadU8()

	f.ID = id & linIDMask
	f.Tx = dir != 0
	f.ChecksumError = meta.ObjectType == ObjectTypeLINCRCError
	f.Data = bytes.Clone(raw[:min(int(f.DLC), canClassicMaxData)])
	return f, nil
}

// decodeLINMessage2 reads a LIN_MESSAGE2. The frame fields follow the LIN bus
// event, sync field and message descriptor shared by all LIN objects, and the
// 9 data byte timestamps. The response baudrate is only present in version 2
// and later bodies.
func decodeLINMessage2(meta Meta, body []byte) (Message, error) {
	c := NewCursor(body)
	if c.Remaining() < linMessage2MinSize {
		return nil, fmt.Errorf("need %d bytes, have %d", linMessage2MinSize, c.Remaining())
	}
	var f LinFrame
	f.Meta = meta
	_ = c.Skip(12) // start of frame, event baudrate
	f.Channel, _ = c.ReadU16()
	_ = c.Skip(2 + 16 + 4 + 1) // reserved, sync field, supplier and message id, NAD
	id, _ := c.ReadU8()
	f.DLC, _ = c.ReadU8()
	_ = c.Skip(1 + 9*8) // checksum model, data byte timestamps
	raw, _ := c.ReadBytes(canClassicMaxData)
	f.Checksum, _ = c.ReadU16()
	dir, _ := c.ReadU8()
	simulated, _ := c.ReadU8()
	_ = c.Skip(3) // isETF, ETF association
	f.FSMID, _ = c.ReadU8()
	f.FSMState, _ = c.ReadU8()
	_ = c.Skip(3)
	if c.Remaining() >= 4 {
		f.RespBaudrate, _ = c.ReadU32()
	}

	f.ID = id & linIDMask
	f.Tx = dir != 0
	f.Simulated = simulated != 0
	f.Data = bytes.Clone(raw[:min(int(f.DLC), canClassicMaxData)])
	return f, nil
}
