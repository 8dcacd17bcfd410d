package counts

import (
	"bufio"
	"fmt"
	"io"
	"os"

	apperrors "github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/errors"
)

const maxLineSize = 16 * 1024 * 1024

// Reader streams the records of a chunk or final count file in file order.
// It fails with a FileFormatError on malformed lines and on sequences that go
// backwards, so every consumer can rely on sorted input.
type Reader struct {
	path   string
	file   *os.File
	body   io.ReadCloser
	sc     *bufio.Scanner
	fields int
	strict bool

	line   int
	seq    string
	counts Counts
	valid  bool
	err    error
}

// Open opens path, inferring the codec from its suffix. fields is 2 or 5, or
// 0 to accept either. strict additionally rejects repeated sequences.
func Open(path string, fields int, strict bool) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening count file: %w", err)
	}
	body, err := CodecForPath(path).wrapReader(bufio.NewReaderSize(f, 64*1024))
	if err != nil {
		f.Close()
		return nil, err
	}
	return newReader(path, f, body, fields, strict), nil
}

// NewReader reads uncompressed records from r. name is only used in errors.
func NewReader(name string, r io.Reader, fields int, strict bool) *Reader {
	return newReader(name, nil, io.NopCloser(r), fields, strict)
}

func newReader(path string, f *os.File, body io.ReadCloser, fields int, strict bool) *Reader {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Reader{
		path:   path,
		file:   f,
		body:   body,
		sc:     sc,
		fields: fields,
		strict: strict,
	}
}

// Next advances to the next record. It returns false at end of input or on
// error; Err distinguishes the two.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}
	if !r.sc.Scan() {
		r.valid = false
		if err := r.sc.Err(); err != nil {
			r.err = fmt.Errorf("reading %s: %w", r.path, err)
		}
		return false
	}
	r.line++
	text := r.sc.Text()
	seq, c, fields, reason := ParseLine(text)
	if reason == "" && r.fields != 0 && fields != r.fields {
		reason = fmt.Sprintf("expected %d fields, got %d", r.fields, fields)
	}
	if reason == "" && r.valid {
		switch {
		case seq < r.seq:
			reason = fmt.Sprintf("sequence %q sorts before previous %q", seq, r.seq)
		case r.strict && seq == r.seq:
			reason = fmt.Sprintf("duplicate sequence %q", seq)
		}
	}
	if reason != "" {
		r.valid = false
		r.err = apperrors.NewFileFormat(r.path, r.line, text, "%s", reason)
		return false
	}
	r.seq, r.counts, r.valid = seq, c, true
	return true
}

// ForwardTo advances until the current record's sequence is >= target and
// reports whether such a record exists. It never moves backwards, so a
// current record already at or past target stays put.
func (r *Reader) ForwardTo(target string) bool {
	if r.valid && r.seq >= target {
		return true
	}
	for r.Next() {
		if r.seq >= target {
			return true
		}
	}
	return false
}

// Valid reports whether the reader is positioned on a record.
func (r *Reader) Valid() bool { return r.valid }

// Sequence returns the current record's sequence.
func (r *Reader) Sequence() string { return r.seq }

// Counts returns the current record's counts. Two-field lines set OnePlus.
func (r *Reader) Counts() Counts { return r.counts }

// Value returns the first numeric field of the current record.
func (r *Reader) Value() int64 { return r.counts.OnePlus }

// Line returns the 1-based line number of the current record.
func (r *Reader) Line() int { return r.line }

// Path returns the file the reader was opened on.
func (r *Reader) Path() string { return r.path }

// Err returns the first error encountered.
func (r *Reader) Err() error { return r.err }

// Close releases the underlying file.
func (r *Reader) Close() error {
	r.body.Close()
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
