package counts

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Writer writes sorted count records to path. Records go to path+".tmp" and
// only Commit moves them into place, so an interrupted writer never leaves a
// file that looks complete.
type Writer struct {
	path   string
	tmp    string
	file   *os.File
	codec  io.WriteCloser
	buf    *bufio.Writer
	strict bool

	scratch []byte
	prev    string
	n       int64
	done    bool
}

// Create starts a new file. strict rejects repeated sequences, otherwise
// sequences only need to be non-decreasing.
func Create(path string, codec Codec, strict bool) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating count directory: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("creating temp count file: %w", err)
	}
	buf := bufio.NewWriterSize(f, 256*1024)
	cw, err := codec.wrapWriter(buf)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return nil, err
	}
	return &Writer{
		path:   path,
		tmp:    tmp,
		file:   f,
		codec:  cw,
		buf:    buf,
		strict: strict,
	}, nil
}

func (w *Writer) check(seq string) error {
	if w.n > 0 {
		if seq < w.prev || (w.strict && seq == w.prev) {
			return fmt.Errorf("writing %s: sequence %q out of order after %q", w.path, seq, w.prev)
		}
	}
	w.prev = seq
	w.n++
	return nil
}

// WriteValue writes a two-field record.
func (w *Writer) WriteValue(seq string, v int64) error {
	if err := w.check(seq); err != nil {
		return err
	}
	w.scratch = AppendValue(w.scratch[:0], seq, v)
	if _, err := w.codec.Write(w.scratch); err != nil {
		return fmt.Errorf("writing %s: %w", w.path, err)
	}
	return nil
}

// WriteCounts writes a five-field continuation record.
func (w *Writer) WriteCounts(seq string, c Counts) error {
	if err := w.check(seq); err != nil {
		return err
	}
	w.scratch = AppendCounts(w.scratch[:0], seq, c)
	if _, err := w.codec.Write(w.scratch); err != nil {
		return fmt.Errorf("writing %s: %w", w.path, err)
	}
	return nil
}

// Records returns the number of records written so far.
func (w *Writer) Records() int64 { return w.n }

// Commit flushes, syncs and renames the temp file into place.
func (w *Writer) Commit() error {
	if w.done {
		return fmt.Errorf("writer for %s already finished", w.path)
	}
	w.done = true
	if err := w.codec.Close(); err != nil {
		w.discard()
		return fmt.Errorf("closing codec for %s: %w", w.path, err)
	}
	if err := w.buf.Flush(); err != nil {
		w.discard()
		return fmt.Errorf("flushing %s: %w", w.path, err)
	}
	if err := w.file.Sync(); err != nil {
		w.discard()
		return fmt.Errorf("syncing %s: %w", w.path, err)
	}
	if err := w.file.Close(); err != nil {
		os.Remove(w.tmp)
		return fmt.Errorf("closing %s: %w", w.path, err)
	}
	if err := os.Rename(w.tmp, w.path); err != nil {
		os.Remove(w.tmp)
		return fmt.Errorf("renaming %s: %w", w.path, err)
	}
	return nil
}

// Abort drops the temp file. It is a no-op after Commit.
func (w *Writer) Abort() {
	if w.done {
		return
	}
	w.done = true
	w.discard()
}

func (w *Writer) discard() {
	w.file.Close()
	os.Remove(w.tmp)
}
