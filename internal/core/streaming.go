package core

// streaming.go holds the byte-level readers RecordStream decodes from. Source
// dumps are tens of gigabytes, so both work in constant memory:
//
//   - BOMSkippingReader drops a leading UTF-8 byte order mark
//   - UTF8Sanitizer rewrites bytes that are not valid UTF-8 to '?'
//
// newSourceReader chains them in that order.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// UTF8Sanitizer replaces every byte that is not part of a valid UTF-8
// sequence with '?'. The replacement is one byte wide, so offsets into the
// source are unchanged. A sequence split across two reads is held back until
// the rest arrives.
type UTF8Sanitizer struct {
	r        io.Reader
	carry    []byte
	replaced int64
}

// NewUTF8Sanitizer wraps r.
func NewUTF8Sanitizer(r io.Reader) *UTF8Sanitizer {
	return &UTF8Sanitizer{r: r, carry: make([]byte, 0, utf8.UTFMax)}
}

// Read implements io.Reader. p must hold at least utf8.UTFMax bytes.
func (s *UTF8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(p) < utf8.UTFMax {
		return 0, io.ErrShortBuffer
	}

	n := copy(p, s.carry)
	s.carry = s.carry[:0]

	m, err := s.r.Read(p[n:])
	n += m
	if n == 0 {
		return 0, err
	}
	return s.sanitize(p[:n], err != nil), err
}

// Replaced returns how many bytes have been rewritten so far.
func (s *UTF8Sanitizer) Replaced() int64 {
	return s.replaced
}

// sanitize rewrites data in place and returns how many bytes are ready.
// Unless final, an incomplete trailing sequence moves to carry.
func (s *UTF8Sanitizer) sanitize(data []byte, final bool) int {
	if !final {
		if k := partialSuffix(data); k > 0 {
			s.carry = append(s.carry, data[len(data)-k:]...)
			data = data[:len(data)-k]
		}
	}
	if isASCII(data) || utf8.Valid(data) {
		return len(data)
	}

	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			data[i] = '?'
			s.replaced++
		}
		i += size
	}
	return len(data)
}

// isASCII is the fast path; IMDB dumps are overwhelmingly ASCII.
func isASCII(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// partialSuffix returns the length of a sequence at the end of data that has
// a valid start byte but is missing continuation bytes.
func partialSuffix(data []byte) int {
	for k := 1; k < utf8.UTFMax && k <= len(data); k++ {
		tail := data[len(data)-k:]
		if !utf8.RuneStart(tail[0]) {
			continue
		}
		if utf8.FullRune(tail) {
			return 0
		}
		return k
	}
	return 0
}

// BOMSkippingReader drops a UTF-8 byte order mark at the start of its input.
// Windows tools commonly add one to exported files.
type BOMSkippingReader struct {
	r       *bufio.Reader
	checked bool
}

// NewBOMSkippingReader wraps r.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{r: bufio.NewReader(r)}
}

// Read implements io.Reader.
func (b *BOMSkippingReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		if lead, err := b.r.Peek(len(utf8BOM)); err == nil && bytes.Equal(lead, utf8BOM) {
			b.r.Discard(len(utf8BOM))
		}
	}
	return b.r.Read(p)
}

// newSourceReader strips a BOM and then sanitizes UTF-8. The BOM must go
// first so it is never rewritten into replacement bytes.
func newSourceReader(r io.Reader) *UTF8Sanitizer {
	return NewUTF8Sanitizer(NewBOMSkippingReader(r))
}
