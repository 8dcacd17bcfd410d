package lookup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/counts"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/pattern"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/pipeline"
	apperrors "github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func fixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "absolute", "11"), "a b\t5\nb c\t1\nc d\t2\n")
	writeFile(t, filepath.Join(dir, "continuation", "x1"), "b\t5\t0\t2\t3\nc\t1\t1\t0\t0\n")
	writeFile(t, filepath.Join(dir, counts.NGramTimesFileName), "1\t3\t0\t0\t1\n11\t1\t1\t0\t1\n")
	return dir
}

type closer interface {
	Lookup
	Close() error
}

func backends(dir string) map[string]closer {
	return map[string]closer{
		"memory": NewMemory(dir),
		"file":   NewFile(dir),
	}
}

func TestBackendsAnswerPointQueries(t *testing.T) {
	ctx := context.Background()
	dir := fixture(t)
	p11, x1 := pattern.MustParse("11"), pattern.MustParse("x1")

	for name, lk := range backends(dir) {
		t.Run(name, func(t *testing.T) {
			defer lk.Close()

			c, err := lk.Absolute(ctx, p11, "a b")
			require.NoError(t, err)
			require.Equal(t, int64(5), c.OnePlus)

			c, err = lk.Absolute(ctx, p11, "c d")
			require.NoError(t, err)
			require.Equal(t, int64(2), c.OnePlus)

			for _, missing := range []string{"a", "a c", "zz"} {
				c, err = lk.Absolute(ctx, p11, missing)
				require.NoError(t, err)
				require.Zero(t, c, missing)
			}

			c, err = lk.Continuation(ctx, x1, "b")
			require.NoError(t, err)
			require.Equal(t, counts.Counts{OnePlus: 5, Two: 2, ThreePlus: 3}, c)

			nt, err := lk.NGramTimesForOrder(ctx, 2)
			require.NoError(t, err)
			require.Equal(t, counts.NGramTimes{One: 1, Two: 1, FourPlus: 1}, nt)

			_, err = lk.Absolute(ctx, pattern.MustParse("111"), "a b c")
			require.ErrorIs(t, err, apperrors.ErrPatternNotLoaded)

			_, err = lk.Absolute(ctx, x1, "b")
			require.ErrorIs(t, err, apperrors.ErrInvalidPattern)

			_, err = lk.NGramTimesForOrder(ctx, 3)
			require.ErrorIs(t, err, apperrors.ErrPatternNotLoaded)
		})
	}
}

func TestBackendsAgreeOnPipelineOutput(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	var corpus strings.Builder
	words := []string{"the", "a", "fox", "dog", "runs", "sleeps", "quick"}
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&corpus, "%s %s %s %s\n", words[i%7], words[(i*3)%7], words[(i*5+1)%7], words[(i/7)%7])
	}
	corpusPath := filepath.Join(dir, "corpus.txt")
	require.NoError(t, os.WriteFile(corpusPath, []byte(corpus.String()), 0644))
	work := filepath.Join(dir, "work")

	c := pipeline.NewCounter(pipeline.Options{
		Corpus:             corpusPath,
		WorkDir:            work,
		Cores:              2,
		Buckets:            3,
		BufferSize:         4096,
		ChannelCapacity:    8,
		SentenceBoundaries: true,
	}, nil, nil, nil)
	_, err := c.Run(ctx, []pattern.Pattern{pattern.MustParse("111"), pattern.MustParse("x1x"), pattern.MustParse("x01")})
	require.NoError(t, err)

	mem, file := NewMemory(work), NewFile(work)
	defer mem.Close()
	defer file.Close()

	check := func(kind counts.Kind, p pattern.Pattern) {
		sc, err := mem.Scan(kind, p)
		require.NoError(t, err)
		defer sc.Close()
		n := 0
		for sc.Next() {
			var fromMem, fromFile counts.Counts
			if kind == counts.Absolute {
				fromMem, err = mem.Absolute(ctx, p, sc.Sequence())
				require.NoError(t, err)
				fromFile, err = file.Absolute(ctx, p, sc.Sequence())
			} else {
				fromMem, err = mem.Continuation(ctx, p, sc.Sequence())
				require.NoError(t, err)
				fromFile, err = file.Continuation(ctx, p, sc.Sequence())
			}
			require.NoError(t, err)
			require.Equal(t, sc.Counts(), fromMem)
			require.Equal(t, fromMem, fromFile)
			n++
		}
		require.NoError(t, sc.Err())
		require.Positive(t, n)
	}
	for _, s := range []string{"111", "101"} {
		check(counts.Absolute, pattern.MustParse(s))
	}
	for _, s := range []string{"x1x", "x11", "x01"} {
		check(counts.Continuation, pattern.MustParse(s))
	}

	a, err := mem.NGramTimesForOrder(ctx, 3)
	require.NoError(t, err)
	b, err := file.NGramTimesForOrder(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Positive(t, a.One+a.Two+a.Three+a.FourPlus)
}

func TestFileRejectsUnsortedCountFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "absolute", "1"), "b\t1\na\t2\n")

	lk := NewFile(dir)
	defer lk.Close()
	_, err := lk.Absolute(context.Background(), pattern.MustParse("1"), "a")
	var ffe *apperrors.FileFormatError
	require.True(t, errors.As(err, &ffe))
	require.Equal(t, 2, ffe.Line)
}

func TestScanMissingPattern(t *testing.T) {
	_, err := Scan(pipeline.Layout{WorkDir: t.TempDir()}, counts.Absolute, pattern.MustParse("1"))
	require.ErrorIs(t, err, apperrors.ErrPatternNotLoaded)
}

func BenchmarkFileLookup(b *testing.B) {
	dir := b.TempDir()
	var sb strings.Builder
	for i := 0; i < 100000; i++ {
		fmt.Fprintf(&sb, "w%06d\t%d\n", i, i%7+1)
	}
	path := filepath.Join(dir, "absolute", "1")
	require.NoError(b, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(b, os.WriteFile(path, []byte(sb.String()), 0644))

	lk := NewFile(dir)
	defer lk.Close()
	ctx := context.Background()
	p := pattern.MustParse("1")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := lk.Absolute(ctx, p, fmt.Sprintf("w%06d", i%100000)); err != nil {
			b.Fatal(err)
		}
	}
}
