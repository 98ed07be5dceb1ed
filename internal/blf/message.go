package blf

import "time"

// Kind names the message variants produced by the decoder.
type Kind string

const (
	KindCAN   Kind = "can"
	KindCANFD Kind = "canfd"
	KindLIN   Kind = "lin"
	KindOther Kind = "other"
)

// Kinds lists every message kind in report order.
var Kinds = []Kind{KindCAN, KindCANFD, KindLIN, KindOther}

// Message is one decoded object. The concrete type is one of CanFrame,
// CanFdFrame, LinFrame or Other.
type Message interface {
	Kind() Kind
	Info() Meta
	Payload() []byte
	isMessage()
}

// Meta holds the fields shared by every message.
type Meta struct {
	Channel     uint16     `json:"channel"`
	TimestampNs int64      `json:"timestampNs"`
	ObjectType  ObjectType `json:"objectType"`
	Annotations Annotation `json:"annotations"`
}

func (m Meta) Info() Meta {
	return m
}

// Time places the message on the wall clock relative to the measurement start.
func (m Meta) Time(start time.Time) time.Time {
	return start.Add(time.Duration(m.TimestampNs))
}

// CanFrame is a classic CAN data or remote frame.
type CanFrame struct {
	Meta
	ID          uint32 `json:"id"`
	Extended    bool   `json:"extended"`
	Remote      bool   `json:"remote"`
	Tx          bool   `json:"tx"`
	DLC         uint8  `json:"dlc"`
	Data        []byte `json:"data"`
	FrameLength uint32 `json:"frameLength,omitempty"`
	BitCount    uint8  `json:"bitCount,omitempty"`
}

// CanFdFrame is a CAN FD frame, or a classic frame logged in an FD object.
type CanFdFrame struct {
	Meta
	ID          uint32 `json:"id"`
	Extended    bool   `json:"extended"`
	Remote      bool   `json:"remote"`
	Tx          bool   `json:"tx"`
	DLC         uint8  `json:"dlc"`
	Data        []byte `json:"data"`
	EDL         bool   `json:"edl"`
	BRS         bool   `json:"brs"`
	ESI         bool   `json:"esi"`
	FrameLength uint32 `json:"frameLength"`
	BitCount    uint16 `json:"bitCount"`
	Flags       uint32 `json:"flags,omitempty"`
	CRC         uint32 `json:"crc,omitempty"`
}

// LinFrame is a LIN frame; ChecksumError is set for LIN_CRC_ERROR objects.
type LinFrame struct {
	Meta
	ID            uint8  `json:"id"`
	DLC           uint8  `json:"dlc"`
	Data          []byte `json:"data"`
	Checksum      uint16 `json:"checksum"`
	Tx            bool   `json:"tx"`
	ChecksumError bool   `json:"checksumError"`
	FSMID         uint8  `json:"fsmId"`
	FSMState      uint8  `json:"fsmState"`
	HeaderTime    uint8  `json:"headerTime"`
	FullTime      uint8  `json:"fullTime"`
	Simulated     bool   `json:"simulated,omitempty"`
	RespBaudrate  uint32 `json:"respBaudrate,omitempty"`
}

// Other carries an object of a type without a dedicated decoder.
type Other struct {
	Meta
	Body []byte `json:"body"`
}

func (CanFrame) Kind() Kind   { return KindCAN }
func (CanFdFrame) Kind() Kind { return KindCANFD }
func (LinFrame) Kind() Kind   { return KindLIN }
func (Other) Kind() Kind      { return KindOther }

func (f CanFrame) Payload() []byte   { return f.Data }
func (f CanFdFrame) Payload() []byte { return f.Data }
func (f LinFrame) Payload() []byte   { return f.Data }
func (o Other) Payload() []byte      { return o.Body }

func (CanFrame) isMessage()   {}
func (CanFdFrame) isMessage() {}
func (LinFrame) isMessage()   {}
func (Other) isMessage()      {}
