package lookup

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/counts"
	apperrors "github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/errors"
)

// File keeps count files open and holds only the offset of every line,
// answering point queries by binary search with ReadAt.
type File struct {
	*files
}

// NewFile creates a File lookup over the final files in workDir.
func NewFile(workDir string) *File {
	return &File{files: newFiles(workDir, openOffsets)}
}

type offsetTable struct {
	path    string
	f       *os.File
	offsets []int64
	size    int64
}

// openOffsets indexes the line starts of path, checking fields and order on
// the way.
func openOffsets(path string, kind counts.Kind) (table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening count file: %w", err)
	}
	t := &offsetTable{path: path, f: f}
	br := bufio.NewReaderSize(f, 64*1024)
	var (
		pos  int64
		prev string
		line int
	)
	for {
		raw, err := br.ReadBytes('\n')
		if len(raw) > 0 {
			line++
			text := string(bytes.TrimSuffix(raw, []byte{'\n'}))
			seq, _, fields, reason := counts.ParseLine(text)
			switch {
			case reason != "":
			case fields != kind.Fields():
				reason = fmt.Sprintf("expected %d fields, got %d", kind.Fields(), fields)
			case line > 1 && seq <= prev:
				reason = fmt.Sprintf("sequence %q does not sort after %q", seq, prev)
			}
			if reason != "" {
				f.Close()
				return nil, apperrors.NewFileFormat(path, line, text, "%s", reason)
			}
			t.offsets = append(t.offsets, pos)
			pos += int64(len(raw))
			prev = seq
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("indexing %s: %w", path, err)
		}
	}
	t.size = pos
	return t, nil
}

func (t *offsetTable) line(i int) (string, counts.Counts, error) {
	start, end := t.offsets[i], t.size
	if i+1 < len(t.offsets) {
		end = t.offsets[i+1]
	}
	buf := make([]byte, end-start)
	if _, err := t.f.ReadAt(buf, start); err != nil && err != io.EOF {
		return "", counts.Counts{}, fmt.Errorf("reading %s: %w", t.path, err)
	}
	text := string(bytes.TrimSuffix(buf, []byte{'\n'}))
	seq, c, _, reason := counts.ParseLine(text)
	if reason != "" {
		return "", counts.Counts{}, apperrors.NewFileFormat(t.path, i+1, text, "%s", reason)
	}
	return seq, c, nil
}

func (t *offsetTable) get(seq string) (counts.Counts, error) {
	var readErr error
	i := sort.Search(len(t.offsets), func(i int) bool {
		if readErr != nil {
			return true
		}
		s, _, err := t.line(i)
		if err != nil {
			readErr = err
			return true
		}
		return s >= seq
	})
	if readErr != nil {
		return counts.Counts{}, readErr
	}
	if i == len(t.offsets) {
		return counts.Counts{}, nil
	}
	s, c, err := t.line(i)
	if err != nil {
		return counts.Counts{}, err
	}
	if s != seq {
		return counts.Counts{}, nil
	}
	return c, nil
}

func (t *offsetTable) close() error {
	return t.f.Close()
}
