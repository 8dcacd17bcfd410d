package lookup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/counts"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/pattern"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/pipeline"
	apperrors "github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/errors"
)

// Filter walks src and the ascending needed list in lockstep and calls emit
// for every record whose sequence is needed. src only ever moves forward.
// It returns the number of records emitted.
func Filter(ctx context.Context, src *counts.Reader, needed []string, emit func(seq string, c counts.Counts) error) (int, error) {
	for i := 1; i < len(needed); i++ {
		if needed[i] < needed[i-1] {
			return 0, fmt.Errorf("%w: needed sequences not sorted at %q", apperrors.ErrInvalidInput, needed[i])
		}
	}
	n := 0
	for i, want := range needed {
		if i > 0 && want == needed[i-1] {
			continue
		}
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return n, err
			}
		}
		if !src.ForwardTo(want) {
			break
		}
		if src.Sequence() != want {
			continue
		}
		if err := emit(want, src.Counts()); err != nil {
			return n, err
		}
		n++
	}
	if err := src.Err(); err != nil {
		return n, err
	}
	return n, nil
}

// NeededSequences returns, sorted and unique, the keys p produces on the
// given sentences: one per window, holding the projected tokens of the
// non-collapsed positions.
func NeededSequences(p pattern.Pattern, sentences [][]string, tagged bool) ([]string, error) {
	elems := p.Elems()
	var keep []pattern.Elem
	var idx []int
	for i, e := range elems {
		if !e.Collapsed() {
			keep = append(keep, e)
			idx = append(idx, i)
		}
	}
	if len(keep) == 0 {
		return nil, fmt.Errorf("%w: %s keeps no position", apperrors.ErrInvalidPattern, p)
	}
	kept, err := pattern.New(keep...)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	window := make([]string, len(keep))
	for _, tokens := range sentences {
		for off := 0; off+len(elems) <= len(tokens); off++ {
			for j, i := range idx {
				window[j] = tokens[off+i]
			}
			key, err := kept.Apply(window, 0, tagged)
			if err != nil {
				return nil, err
			}
			seen[key] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// FilterPatterns writes, for every pattern in ps, the records of its final
// file that sentences need to outDir/<kind>/<pattern>.
func FilterPatterns(ctx context.Context, l pipeline.Layout, kind counts.Kind, ps []pattern.Pattern, sentences [][]string, tagged bool, outDir string) (int, error) {
	total := 0
	dir := filepath.Join(outDir, kind.String())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("creating filter output directory: %w", err)
	}
	for _, p := range ps {
		n, err := filterOne(ctx, l, kind, p, sentences, tagged, filepath.Join(dir, p.String()))
		if err != nil {
			return total, fmt.Errorf("filtering %s/%s: %w", kind, p, err)
		}
		total += n
	}
	return total, nil
}

func filterOne(ctx context.Context, l pipeline.Layout, kind counts.Kind, p pattern.Pattern, sentences [][]string, tagged bool, out string) (int, error) {
	needed, err := NeededSequences(p, sentences, tagged)
	if err != nil {
		return 0, err
	}
	src, err := Scan(l, kind, p)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	w, err := counts.Create(out, counts.CodecNone, true)
	if err != nil {
		return 0, err
	}
	n, err := Filter(ctx, src, needed, func(seq string, c counts.Counts) error {
		if kind == counts.Absolute {
			return w.WriteValue(seq, c.OnePlus)
		}
		return w.WriteCounts(seq, c)
	})
	if err != nil {
		w.Abort()
		return n, err
	}
	return n, w.Commit()
}
