package core

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const streamBufferSize = 1 << 20

// StreamOptions controls how a source file is decoded.
type StreamOptions struct {
	Delimiter rune // Field separator (default '\t')
	Quoted    bool // Honor CSV quoting; IMDB dumps are unquoted
}

// Record is one data line of a source file, addressable by header name.
type Record struct {
	Line   int // 1-based line number; the header is line 1
	Fields []string

	header []string
	index  HeaderIndex
}

// NewRecord builds a record against a header. Used by tests and tools that
// produce records without a file.
func NewRecord(line int, header, fields []string) Record {
	return Record{Line: line, Fields: fields, header: header, index: MakeHeaderIndex(header)}
}

// Get returns the raw value of the named column, or "" if absent.
func (r Record) Get(name string) string {
	i, ok := r.index[strings.ToLower(name)]
	if !ok || i >= len(r.Fields) {
		return ""
	}
	return r.Fields[i]
}

// Map returns the record as column name to raw value.
func (r Record) Map() map[string]string {
	m := make(map[string]string, len(r.header))
	for i, h := range r.header {
		if i >= len(r.Fields) {
			break
		}
		m[h] = r.Fields[i]
	}
	return m
}

// RecordStream reads one delimited source file lazily. The first line is the
// header; every later line is zipped against it. A stream is forward-only
// and is read once.
type RecordStream struct {
	path     string
	file     *os.File
	size     int64
	delim    rune
	header   []string
	index    HeaderIndex
	line     int
	consumed int64
	utf8     *UTF8Sanitizer

	lines *bufio.Reader // unquoted mode
	csv   *csv.Reader   // quoted mode
	tap   *rawTap       // quoted mode
}

// rawTap keeps the bytes the CSV decoder has pulled but not yet finished
// with, so a malformed record can be reported exactly as it appears in the
// file.
type rawTap struct {
	r    io.Reader
	buf  []byte
	base int64 // input offset of buf[0]
}

func (t *rawTap) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	t.buf = append(t.buf, p[:n]...)
	return n, err
}

// span returns the input bytes in [from, to) without line terminators.
func (t *rawTap) span(from, to int64) string {
	lo := min(max(from-t.base, 0), int64(len(t.buf)))
	hi := min(max(to-t.base, lo), int64(len(t.buf)))
	return strings.Trim(string(t.buf[lo:hi]), "\r\n")
}

// release forgets every byte before offset.
func (t *rawTap) release(offset int64) {
	n := min(max(offset-t.base, 0), int64(len(t.buf)))
	t.buf = t.buf[n:]
	t.base += n
}

// OpenStream opens path and reads its header. Failing to open the file or to
// read a header is a configuration error.
func OpenStream(path string, opts StreamOptions) (*RecordStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ConfigError("open source: %v", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, ConfigError("stat source: %v", err)
	}

	delim := opts.Delimiter
	if delim == 0 {
		delim = '\t'
	}

	s := &RecordStream{
		path:  path,
		file:  f,
		size:  info.Size(),
		delim: delim,
	}

	src := newSourceReader(f)
	s.utf8 = src
	if opts.Quoted {
		s.tap = &rawTap{r: src}
		cr := csv.NewReader(bufio.NewReaderSize(s.tap, streamBufferSize))
		cr.Comma = delim
		cr.LazyQuotes = true
		cr.FieldsPerRecord = -1
		s.csv = cr
	} else {
		s.lines = bufio.NewReaderSize(src, streamBufferSize)
	}

	if err := s.readHeader(); err != nil {
		f.Close()
		return nil, ConfigError("%s: read header: %v", path, err)
	}

	return s, nil
}

func (s *RecordStream) readHeader() error {
	var header []string
	if s.csv != nil {
		h, err := s.csv.Read()
		if err != nil {
			return err
		}
		header = h
		s.consumed = s.csv.InputOffset()
		s.tap.release(s.consumed)
	} else {
		line, err := s.readLine()
		if err != nil {
			return err
		}
		header = strings.Split(line, string(s.delim))
	}

	if len(header) == 0 || (len(header) == 1 && strings.TrimSpace(header[0]) == "") {
		return errors.New("empty header")
	}

	s.line = 1
	s.header = header
	s.index = MakeHeaderIndex(header)
	return nil
}

// readLine returns the next line without its terminator.
func (s *RecordStream) readLine() (string, error) {
	line, err := s.lines.ReadString('\n')
	s.consumed += int64(len(line))
	if err != nil {
		if err != io.EOF || line == "" {
			return "", err
		}
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Next returns the next record and the stream progress in [0,100].
//
// At the end of the file it returns io.EOF. A line whose field count differs
// from the header yields a *MalformedRecordError; the caller may report it
// and keep calling Next. Any other error is fatal to the stream.
func (s *RecordStream) Next() (Record, float64, error) {
	if s.csv != nil {
		return s.nextQuoted()
	}

	for {
		line, err := s.readLine()
		if err != nil {
			return Record{}, s.Progress(), err
		}
		s.line++
		if line == "" {
			continue
		}

		rec := Record{Line: s.line, Fields: strings.Split(line, string(s.delim)), header: s.header, index: s.index}
		if len(rec.Fields) != len(s.header) {
			return rec, s.Progress(), &MalformedRecordError{
				Line: s.line,
				Raw:  line,
				Want: len(s.header),
				Got:  len(rec.Fields),
			}
		}
		return rec, s.Progress(), nil
	}
}

func (s *RecordStream) nextQuoted() (Record, float64, error) {
	start := s.consumed
	fields, err := s.csv.Read()
	s.consumed = s.csv.InputOffset()
	raw := s.tap.span(start, s.consumed)
	s.tap.release(s.consumed)

	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			s.line = pe.Line
			return Record{Line: pe.Line, header: s.header, index: s.index}, s.Progress(),
				&MalformedRecordError{Line: pe.Line, Raw: raw, Want: len(s.header), Cause: pe.Err}
		}
		return Record{}, s.Progress(), err
	}

	s.line, _ = s.csv.FieldPos(0)
	rec := Record{Line: s.line, Fields: fields, header: s.header, index: s.index}
	if len(fields) != len(s.header) {
		return rec, s.Progress(), &MalformedRecordError{
			Line: s.line,
			Raw:  raw,
			Want: len(s.header),
			Got:  len(fields),
		}
	}
	return rec, s.Progress(), nil
}

// Progress returns consumed bytes over file size as a percentage.
func (s *RecordStream) Progress() float64 {
	if s.size <= 0 {
		return 100
	}
	p := float64(s.consumed) * 100 / float64(s.size)
	if p > 100 {
		return 100
	}
	return p
}

// ReplacedBytes returns how many invalid UTF-8 bytes have been rewritten to
// '?' so far.
func (s *RecordStream) ReplacedBytes() int64 {
	return s.utf8.Replaced()
}

// Header returns the header fields as read from the file.
func (s *RecordStream) Header() []string {
	return s.header
}

// HeaderIndex returns the lowercased header index.
func (s *RecordStream) HeaderIndex() HeaderIndex {
	return s.index
}

// Path returns the source file path.
func (s *RecordStream) Path() string {
	return s.path
}

// Close releases the underlying file.
func (s *RecordStream) Close() error {
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", s.path, err)
	}
	return nil
}

// ReadHeader opens path just long enough to read its header.
func ReadHeader(path string, opts StreamOptions) ([]string, error) {
	s, err := OpenStream(path, opts)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Header(), nil
}
