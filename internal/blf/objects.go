package blf

import (
	"bytes"
	"errors"
)

// maxObjectSize bounds a single object inside a container payload. Larger
// declared sizes are treated as corruption.
const maxObjectSize = 16 << 20

var errNeedMore = errors.New("payload exhausted")

// objectScanner splits an inflated container payload into objects. Objects
// that run past the end of the payload are left for the caller to carry into
// the next container.
type objectScanner struct {
	cur *Cursor
	// reported is the number of leading payload bytes already counted as
	// part of a resync in the previous container.
	reported int
	// keptGarbage is set when the bytes left at the end of the payload are
	// the remainder of a resync.
	keptGarbage bool

	onResync func(pos, skipped int)
	// onMalformed is called for an object whose signature is intact but
	// whose declared size is impossible.
	onMalformed func(pos int, hdr []byte)
}

func (s *objectScanner) reset(payload []byte, reported int) {
	s.cur = NewCursor(payload)
	s.reported = reported
	s.keptGarbage = false
}

func (s *objectScanner) active() bool {
	return s.cur != nil
}

// rest returns the unconsumed bytes after next reported errNeedMore.
func (s *objectScanner) rest() []byte {
	if s.cur == nil {
		return nil
	}
	return s.cur.Rest()
}

// next returns the start position and the bytes of the next complete object.
// After every object the cursor sits at start+objectSize regardless of how
// the header and body were decoded.
func (s *objectScanner) next() (int, []byte, error) {
	for {
		view := s.cur.Rest()
		if len(view) == 0 {
			return 0, nil, errNeedMore
		}
		if !hasObjectSignature(view) {
			if len(view) < len(objectSignature) {
				return 0, nil, errNeedMore
			}
			if n := paddingBeforeSignature(view); n > 0 {
				_ = s.cur.Skip(n)
				continue
			}
			s.skipGarbage()
			continue
		}
		if len(view) < baseHeaderSize {
			return 0, nil, errNeedMore
		}
		size := int(peekObjectSize(view))
		if size < baseHeaderSize || size > maxObjectSize {
			if s.onMalformed != nil {
				s.onMalformed(s.cur.Pos(), view[:baseHeaderSize])
			}
			s.skipGarbage()
			continue
		}
		if size > len(view) {
			return 0, nil, errNeedMore
		}
		start := s.cur.Pos()
		_ = s.cur.SkipTo(start + size)
		return start, view[:size:size], nil
	}
}

// skipGarbage moves to the next object signature after the current position.
// Without one, the last bytes are kept since a signature may continue in the
// next container.
func (s *objectScanner) skipGarbage() {
	pos := s.cur.Pos()
	to := s.cur.Len() - (len(objectSignature) - 1)
	found := false
	if idx := bytes.Index(s.cur.Rest()[1:], []byte(objectSignature)); idx >= 0 {
		to = pos + 1 + idx
		found = true
	}
	if to <= pos {
		to = pos + 1
	}
	s.keptGarbage = !found && to < s.cur.Len()
	if s.onResync != nil && pos >= s.reported {
		s.onResync(pos, to-pos)
	}
	_ = s.cur.SkipTo(to)
}
