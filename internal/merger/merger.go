// Package merger folds the sorted chunk files of one pattern into its final
// count file with a k-way heap merge.
package merger

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/counts"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/pattern"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/metrics"
)

// Merger writes final count files. It is safe for concurrent use on
// different patterns. Chunk files are only read; the caller removes them once
// the final file is recorded as counted.
type Merger struct {
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Merger. A nil m disables metrics.
func New(m *metrics.Metrics) *Merger {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Merger{
		metrics: m,
		logger:  slog.Default().With("component", "merger"),
	}
}

// Merge reads every chunk file in chunkDir and writes the merged records of
// p to outPath. Absolute records are summed into "seq\tcount"; continuation
// records are folded with Counts.Add into "seq\t1+\t1\t2\t3+". Any chunk
// that is not sorted fails the merge with a FileFormatError and leaves
// outPath untouched.
func (m *Merger) Merge(ctx context.Context, kind counts.Kind, p pattern.Pattern, chunkDir, outPath string) error {
	start := time.Now()
	logger := m.logger.With("kind", kind.String(), "pattern", p.String())

	paths, err := chunkFiles(chunkDir)
	if err != nil {
		return err
	}

	readers := make([]*counts.Reader, 0, len(paths))
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()
	// Absolute chunks are pre-summed per file, continuation chunks may
	// repeat a sequence.
	strict := kind == counts.Absolute
	h := &cursorHeap{}
	for _, path := range paths {
		r, err := counts.Open(path, 2, strict)
		if err != nil {
			return err
		}
		readers = append(readers, r)
		if r.Next() {
			h.items = append(h.items, r)
		} else if err := r.Err(); err != nil {
			return err
		}
	}
	heap.Init(h)

	w, err := counts.Create(outPath, counts.CodecNone, true)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			w.Abort()
		}
	}()

	var (
		cur    string
		acc    counts.Counts
		have   bool
		polled int
	)
	emit := func() error {
		if !have {
			return nil
		}
		if kind == counts.Absolute {
			return w.WriteValue(cur, acc.OnePlus)
		}
		return w.WriteCounts(cur, acc)
	}
	for h.Len() > 0 {
		polled++
		if polled%65536 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		r := h.items[0]
		seq, v := r.Sequence(), r.Value()
		if !have || seq != cur {
			if err := emit(); err != nil {
				return err
			}
			cur, acc, have = seq, counts.Counts{}, true
		}
		if kind == counts.Absolute {
			acc.OnePlus += v
		} else {
			acc.Add(v)
		}
		if r.Next() {
			heap.Fix(h, 0)
		} else {
			if err := r.Err(); err != nil {
				return err
			}
			heap.Pop(h)
		}
	}
	if err := emit(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := w.Commit(); err != nil {
		return err
	}
	committed = true

	m.metrics.SequencesMerged.WithLabelValues(kind.String()).Add(float64(w.Records()))
	logger.Info("pattern merged",
		"chunk_files", len(paths),
		"sequences", w.Records(),
		"duration", time.Since(start),
	)
	return nil
}

// chunkFiles lists the committed chunk files of a directory in name order.
// A missing directory means the pattern produced no records.
func chunkFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing chunk directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasSuffix(name, ".tmp") || !strings.Contains(name, ".chunk") {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	sort.Strings(paths)
	return paths, nil
}

// cursorHeap orders chunk readers by their current sequence; ties go to the
// reader opened first so merges are deterministic.
type cursorHeap struct {
	items []*counts.Reader
}

func (h *cursorHeap) Len() int { return len(h.items) }

func (h *cursorHeap) Less(i, j int) bool {
	a, b := h.items[i].Sequence(), h.items[j].Sequence()
	if a != b {
		return a < b
	}
	return h.items[i].Path() < h.items[j].Path()
}

func (h *cursorHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *cursorHeap) Push(x interface{}) {
	h.items = append(h.items, x.(*counts.Reader))
}

func (h *cursorHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}
