package blf

import (
	"errors"
	"io"
)

// windowSize is the read-ahead used for header and resync reads.
const windowSize = 4 << 20

type dataSource interface {
	Size() int64
	Slice(offset int64, length int) ([]byte, error)
	ReadAt(p []byte, offset int64) (int, error)
	Close() error
}

// windowSource keeps a read-ahead window over r so that object headers and
// resync scans do not reach the file one field at a time. Reads longer than
// the window bypass it.
type windowSource struct {
	r      io.ReaderAt
	closer io.Closer
	size   int64
	window int

	buf   []byte
	start int64 // file offset of buf[0]

	closed bool
}

func newWindowSource(r io.ReaderAt, closer io.Closer, size int64, window int) *windowSource {
	if window <= 0 {
		window = windowSize
	}
	if size >= 0 && int64(window) > size {
		window = max(int(size), 1)
	}
	return &windowSource{r: r, closer: closer, size: size, window: window}
}

func (s *windowSource) Size() int64 {
	return s.size
}

func (s *windowSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.buf = nil
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Slice returns up to length bytes at offset, with io.EOF when the source ends
// first. The view is only valid until the next call.
func (s *windowSource) Slice(offset int64, length int) ([]byte, error) {
	switch {
	case s.closed:
		return nil, io.EOF
	case length <= 0:
		return []byte{}, nil
	case offset < 0:
		return nil, io.ErrUnexpectedEOF
	case offset >= s.size:
		return nil, io.EOF
	}
	n := int(min(int64(length), s.size-offset))

	if offset < s.start || offset+int64(n) > s.start+int64(len(s.buf)) {
		if n > s.window {
			buf, err := s.read(offset, n)
			if err == nil && len(buf) < length {
				err = io.EOF
			}
			return buf, err
		}
		buf, err := s.read(offset, int(min(int64(s.window), s.size-offset)))
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		s.buf, s.start = buf, offset
	}
	rel := int(offset - s.start)
	view := s.buf[rel:min(rel+n, len(s.buf))]
	if len(view) < length {
		return view, io.EOF
	}
	return view, nil
}

func (s *windowSource) read(offset int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := s.r.ReadAt(buf, offset)
	if got < n && err == nil {
		err = io.EOF
	}
	return buf[:got], err
}

func (s *windowSource) ReadAt(p []byte, offset int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	view, err := s.Slice(offset, len(p))
	n := copy(p, view)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// sliceExact returns exactly length bytes at offset or io.ErrUnexpectedEOF.
// The view is only valid until the next read from src.
func sliceExact(src dataSource, offset int64, length int) ([]byte, error) {
	view, err := src.Slice(offset, length)
	if len(view) < length {
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		return nil, io.ErrUnexpectedEOF
	}
	return view[:length], nil
}
