package blf

import (
	"errors"
	"testing"
)

func TestCursorReadsLittleEndian(t *testing.T) {
	buf := []byte{
		0x01,
		0x02, 0x03,
		0x04, 0x05, 0x06, 0x07,
		0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xf8, 0x3f,
	}
	c := NewCursor(buf)
	u8, err := c.ReadU8()
	if err != nil || u8 != 0x01 {
		t.Fatalf("ReadU8 = %#x, %v", u8, err)
	}
	u16, err := c.ReadU16()
	if err != nil || u16 != 0x0302 {
		t.Fatalf("ReadU16 = %#x, %v", u16, err)
	}
	u32, err := c.ReadU32()
	if err != nil || u32 != 0x07060504 {
		t.Fatalf("ReadU32 = %#x, %v", u32, err)
	}
	u64, err := c.ReadU64()
	if err != nil || u64 != 0x0f0e0d0c0b0a0908 {
		t.Fatalf("ReadU64 = %#x, %v", u64, err)
	}
	f64, err := c.ReadF64()
	if err != nil || f64 != 1.5 {
		t.Fatalf("ReadF64 = %v, %v", f64, err)
	}
	if c.Remaining() != 0 {
		t.Fatalf("Remaining = %d, want 0", c.Remaining())
	}
	if c.Pos() != len(buf) {
		t.Fatalf("Pos = %d, want %d", c.Pos(), len(buf))
	}
}

func TestCursorTruncation(t *testing.T) {
	tests := []struct {
		name string
		read func(c *Cursor) error
	}{
		{name: "u16", read: func(c *Cursor) error { _, err := c.ReadU16(); return err }},
		{name: "u32", read: func(c *Cursor) error { _, err := c.ReadU32(); return err }},
		{name: "u64", read: func(c *Cursor) error { _, err := c.ReadU64(); return err }},
		{name: "bytes", read: func(c *Cursor) error { _, err := c.ReadBytes(2); return err }},
		{name: "skip", read: func(c *Cursor) error { return c.Skip(5) }},
		{name: "negative", read: func(c *Cursor) error { _, err := c.ReadBytes(-1); return err }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := NewCursor([]byte{0xaa})
			err := tc.read(c)
			if !errors.Is(err, ErrTruncatedData) {
				t.Fatalf("err = %v, want ErrTruncatedData", err)
			}
			if c.Pos() != 0 {
				t.Fatalf("Pos = %d after failed read, want 0", c.Pos())
			}
		})
	}
}

func TestCursorSkipTo(t *testing.T) {
	c := NewCursor(make([]byte, 8))
	if err := c.SkipTo(6); err != nil {
		t.Fatalf("SkipTo(6): %v", err)
	}
	if c.Remaining() != 2 {
		t.Fatalf("Remaining = %d, want 2", c.Remaining())
	}
	if err := c.SkipTo(2); err != nil {
		t.Fatalf("SkipTo(2): %v", err)
	}
	if c.Pos() != 2 {
		t.Fatalf("Pos = %d, want 2", c.Pos())
	}
	if err := c.SkipTo(8); err != nil {
		t.Fatalf("SkipTo(end): %v", err)
	}
	if err := c.SkipTo(9); !errors.Is(err, ErrTruncatedData) {
		t.Fatalf("SkipTo past end err = %v, want ErrTruncatedData", err)
	}
	if err := c.SkipTo(-1); !errors.Is(err, ErrTruncatedData) {
		t.Fatalf("SkipTo(-1) err = %v, want ErrTruncatedData", err)
	}
}

func TestCursorReadBytesAliasesAndPeek(t *testing.T) {
	buf := []byte("LOBJrest")
	c := NewCursor(buf)
	p, err := c.Peek(4)
	if err != nil || string(p) != "LOBJ" {
		t.Fatalf("Peek = %q, %v", p, err)
	}
	if c.Pos() != 0 {
		t.Fatalf("Peek moved cursor to %d", c.Pos())
	}
	b, err := c.ReadBytes(4)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if string(c.Rest()) != "rest" {
		t.Fatalf("Rest = %q, want rest", c.Rest())
	}
	if cap(b) != 4 {
		t.Fatalf("cap(ReadBytes) = %d, want 4", cap(b))
	}
}
