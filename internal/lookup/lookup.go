// Package lookup serves finished counts to estimators. Memory and File read
// the final count files of a working directory and return identical results;
// Redis serves counts that were published to a shared cache.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/counts"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/pattern"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/pipeline"
	apperrors "github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/errors"
)

// Lookup answers point queries against finished counts. A sequence that was
// never seen has zero Counts. Absolute counts carry their total in OnePlus.
type Lookup interface {
	Absolute(ctx context.Context, p pattern.Pattern, seq string) (counts.Counts, error)
	Continuation(ctx context.Context, p pattern.Pattern, seq string) (counts.Counts, error)
	NGramTimes(ctx context.Context, p pattern.Pattern) (counts.NGramTimes, error)
	NGramTimesForOrder(ctx context.Context, order int) (counts.NGramTimes, error)
}

// table is one loaded count file.
type table interface {
	get(seq string) (counts.Counts, error)
	close() error
}

type tableKey struct {
	kind counts.Kind
	p    pattern.Pattern
}

func (k tableKey) String() string {
	return k.kind.String() + "/" + k.p.String()
}

// files holds what Memory and File share: locating final files, loading
// each table once, and the n-gram-times summary.
type files struct {
	layout pipeline.Layout
	open   func(path string, kind counts.Kind) (table, error)
	group  singleflight.Group

	mu     sync.Mutex
	tables map[tableKey]table
	times  map[pattern.Pattern]counts.NGramTimes
}

func newFiles(workDir string, open func(string, counts.Kind) (table, error)) *files {
	return &files{
		layout: pipeline.Layout{WorkDir: workDir},
		open:   open,
		tables: make(map[tableKey]table),
	}
}

func (f *files) table(kind counts.Kind, p pattern.Pattern) (table, error) {
	key := tableKey{kind: kind, p: p}
	f.mu.Lock()
	t, ok := f.tables[key]
	f.mu.Unlock()
	if ok {
		return t, nil
	}
	v, err, _ := f.group.Do(key.String(), func() (interface{}, error) {
		f.mu.Lock()
		t, ok := f.tables[key]
		f.mu.Unlock()
		if ok {
			return t, nil
		}
		t, err := f.open(f.layout.FinalPath(kind, p), kind)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", apperrors.ErrPatternNotLoaded, key)
			}
			return nil, err
		}
		f.mu.Lock()
		f.tables[key] = t
		f.mu.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(table), nil
}

func (f *files) get(kind counts.Kind, p pattern.Pattern, seq string) (counts.Counts, error) {
	if p.IsAbsolute() != (kind == counts.Absolute) {
		return counts.Counts{}, fmt.Errorf("%w: %s is not a %s pattern", apperrors.ErrInvalidPattern, p, kind)
	}
	t, err := f.table(kind, p)
	if err != nil {
		return counts.Counts{}, err
	}
	return t.get(seq)
}

func (f *files) Absolute(_ context.Context, p pattern.Pattern, seq string) (counts.Counts, error) {
	return f.get(counts.Absolute, p, seq)
}

func (f *files) Continuation(_ context.Context, p pattern.Pattern, seq string) (counts.Counts, error) {
	return f.get(counts.Continuation, p, seq)
}

func (f *files) NGramTimes(_ context.Context, p pattern.Pattern) (counts.NGramTimes, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.times == nil {
		times, err := counts.ReadNGramTimes(f.layout.NGramTimesPath())
		if err != nil {
			return counts.NGramTimes{}, err
		}
		f.times = times
	}
	nt, ok := f.times[p]
	if !ok {
		return counts.NGramTimes{}, fmt.Errorf("%w: ngramtimes of %s", apperrors.ErrPatternNotLoaded, p)
	}
	return nt, nil
}

func (f *files) NGramTimesForOrder(ctx context.Context, order int) (counts.NGramTimes, error) {
	p, err := orderPattern(order)
	if err != nil {
		return counts.NGramTimes{}, err
	}
	return f.NGramTimes(ctx, p)
}

// Scan opens the final file of p for forward-only iteration.
func (f *files) Scan(kind counts.Kind, p pattern.Pattern) (*counts.Reader, error) {
	return Scan(f.layout, kind, p)
}

// Close releases every loaded table.
func (f *files) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var errs []error
	for k, t := range f.tables {
		errs = append(errs, t.close())
		delete(f.tables, k)
	}
	return errors.Join(errs...)
}

// Scan opens the final count file of p in l for forward-only iteration with
// Next and ForwardTo.
func Scan(l pipeline.Layout, kind counts.Kind, p pattern.Pattern) (*counts.Reader, error) {
	r, err := counts.Open(l.FinalPath(kind, p), kind.Fields(), true)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", apperrors.ErrPatternNotLoaded, kind, p)
		}
		return nil, err
	}
	return r, nil
}

// orderPattern is the all-CNT pattern of an n-gram order.
func orderPattern(order int) (pattern.Pattern, error) {
	if order < 1 || order > pattern.MaxLength {
		return pattern.Pattern{}, fmt.Errorf("%w: order %d outside 1..%d", apperrors.ErrInvalidInput, order, pattern.MaxLength)
	}
	return pattern.Repeat(pattern.CNT, order), nil
}
