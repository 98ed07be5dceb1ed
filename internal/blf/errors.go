package blf

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrInvalidFileSignature         = errors.New("file signature is not LOGG")
	ErrCorruptFileHeader            = errors.New("corrupt file header")
	ErrTruncatedData                = errors.New("truncated data")
	ErrContainerDecompressionFailed = errors.New("container decompression failed")
	ErrContainerSizeMismatch        = errors.New("container size mismatch")
	ErrUnsupportedHeaderVersion     = errors.New("unsupported object header version")
	ErrMalformedBody                = errors.New("malformed object body")
	ErrInvalidObjectSignature       = errors.New("object signature is not LOBJ")
)

// Level tells how much of the input a DecodeError invalidated.
type Level string

const (
	LevelFile      Level = "file"
	LevelContainer Level = "container"
	LevelObject    Level = "object"
)

// DecodeError locates a failure inside the file. Container is the file offset
// of the enclosing log container (-1 for file-level errors); Offset is the
// position of the object inside the inflated container payload (-1 when the
// error concerns the container itself).
type DecodeError struct {
	Level      Level
	Container  int64
	Offset     int64
	ObjectType ObjectType
	Err        error
}

func (e *DecodeError) Error() string {
	switch e.Level {
	case LevelFile:
		return fmt.Sprintf("blf: %v", e.Err)
	case LevelContainer:
		return fmt.Sprintf("blf: container at offset %d: %v", e.Container, e.Err)
	default:
		return fmt.Sprintf("blf: object %s at payload offset %d (container %d): %v", e.ObjectType, e.Offset, e.Container, e.Err)
	}
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// MarshalJSON flattens the wrapped error into its message.
func (e *DecodeError) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		Level      Level  `json:"level"`
		Container  int64  `json:"container"`
		Offset     int64  `json:"offset"`
		ObjectType uint32 `json:"objectType,omitempty"`
		Error      string `json:"error"`
	}{e.Level, e.Container, e.Offset, uint32(e.ObjectType), msg})
}

// UnmarshalJSON restores a DecodeError saved by MarshalJSON. The wrapped error
// is rebuilt from its message and no longer matches the package sentinels.
func (e *DecodeError) UnmarshalJSON(data []byte) error {
	var raw struct {
		Level      Level  `json:"level"`
		Container  int64  `json:"container"`
		Offset     int64  `json:"offset"`
		ObjectType uint32 `json:"objectType"`
		Error      string `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Level = raw.Level
	e.Container = raw.Container
	e.Offset = raw.Offset
	e.ObjectType = ObjectType(raw.ObjectType)
	e.Err = errors.New(raw.Error)
	return nil
}
