package stream

import "errors"

// ErrFrameTooLarge reports a frame that outgrew the scanner's limit and was dropped.
var ErrFrameTooLarge = errors.New("stream: frame exceeds size limit")

// ObjectScanner finds top-level JSON object boundaries in a byte stream that
// may split or concatenate objects arbitrarily. It only tracks brace depth and
// string literals; it does not validate JSON grammar.
//
// Bytes outside an object (array brackets, commas, whitespace, stray '}') are skipped.
type ObjectScanner struct {
	buf      []byte
	pos      int // next byte to scan
	start    int // offset of the open object's '{', -1 when between objects
	depth    int
	inString bool
	escaped  bool
	skipping bool // inside an oversized object whose bytes were dropped
	maxFrame int
}

// NewObjectScanner returns a scanner that drops any single frame larger than
// maxFrame bytes. maxFrame <= 0 disables the limit.
func NewObjectScanner(maxFrame int) *ObjectScanner {
	return &ObjectScanner{start: -1, maxFrame: maxFrame}
}

// Write appends a chunk to the scan buffer.
func (s *ObjectScanner) Write(p []byte) {
	s.buf = append(s.buf, p...)
}

// Next returns the next complete object. ok is false when more input is
// needed. An oversized partial object is discarded and reported through err.
// The scanner keeps tracking its nesting and string state until the object's
// closing brace, then resumes at the next top-level object.
func (s *ObjectScanner) Next() (frame []byte, ok bool, err error) {
	for s.pos < len(s.buf) {
		c := s.buf[s.pos]
		s.pos++

		if s.start < 0 && !s.skipping {
			if c == '{' {
				s.start = s.pos - 1
				s.depth = 1
			}
			continue
		}

		if s.inString {
			switch {
			case s.escaped:
				s.escaped = false
			case c == '\\':
				s.escaped = true
			case c == '"':
				s.inString = false
			}
			continue
		}

		switch c {
		case '"':
			s.inString = true
		case '{':
			s.depth++
		case '}':
			s.depth--
			if s.depth == 0 && s.skipping {
				s.skipping = false
				continue
			}
			if s.depth == 0 {
				frame = append([]byte(nil), s.buf[s.start:s.pos]...)
				s.start = -1
				return frame, true, nil
			}
		}
	}

	// Only an unfinished object is retained, so that is what the limit bounds.
	if s.maxFrame > 0 && s.start >= 0 && s.pos-s.start > s.maxFrame {
		s.start = -1
		s.skipping = true
		s.compact()
		return nil, false, ErrFrameTooLarge
	}
	s.compact()
	return nil, false, nil
}

// Buffered reports how many unconsumed bytes are retained.
func (s *ObjectScanner) Buffered() int {
	return len(s.buf)
}

// compact drops everything before the open object, or everything scanned when
// no object is open, so only the unconsumed tail is kept.
func (s *ObjectScanner) compact() {
	cut := s.pos
	if s.start >= 0 {
		cut = s.start
	}
	if cut == 0 {
		return
	}
	n := copy(s.buf, s.buf[cut:])
	s.buf = s.buf[:n]
	s.pos -= cut
	if s.start >= 0 {
		s.start -= cut
	}
}
