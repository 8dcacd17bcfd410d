package chunker

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/counts"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/pattern"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/wordindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/metrics"
	"github.com/stretchr/testify/require"
)

func testIndex(t *testing.T) *wordindex.Index {
	t.Helper()
	ix, err := wordindex.New([]string{"<fs>", "c", "m", "t"})
	require.NoError(t, err)
	return ix
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// collect reads every chunk file in dir and sums values per sequence,
// checking each file is sorted.
func collect(t *testing.T, dir string, strict bool) map[string]int64 {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	out := make(map[string]int64)
	for _, e := range entries {
		require.True(t, strings.HasPrefix(e.Name(), "bucket-"), e.Name())
		require.NotContains(t, e.Name(), ".tmp")
		r, err := counts.Open(filepath.Join(dir, e.Name()), 2, strict)
		require.NoError(t, err)
		for r.Next() {
			out[r.Sequence()] += r.Value()
		}
		require.NoError(t, r.Err())
		require.NoError(t, r.Close())
	}
	return out
}

// collectValues keeps every individual record value per sequence.
func collectValues(t *testing.T, dir string) map[string][]int64 {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	out := make(map[string][]int64)
	for _, e := range entries {
		r, err := counts.Open(filepath.Join(dir, e.Name()), 2, false)
		require.NoError(t, err)
		for r.Next() {
			out[r.Sequence()] = append(out[r.Sequence()], r.Value())
		}
		require.NoError(t, r.Err())
		require.NoError(t, r.Close())
	}
	for _, v := range out {
		sort.Slice(v, func(i, j int) bool { return v[i] < v[j] })
	}
	return out
}

func TestChunkAbsoluteProjectsSkip(t *testing.T) {
	dir := t.TempDir()
	training := filepath.Join(dir, "training")
	writeFile(t, training, "the quick fox\nthe slow fox\n")

	c := New(testIndex(t), Options{}, metrics.NewNop())
	out := filepath.Join(dir, "absolute.tmp", "101")
	require.NoError(t, c.ChunkAbsolute(context.Background(), training, pattern.MustParse("101"), out))

	require.Equal(t, map[string]int64{"the <skip> fox": 2}, collect(t, out, true))
}

func TestChunkAbsoluteSpillsSmallBuffers(t *testing.T) {
	dir := t.TempDir()
	training := filepath.Join(dir, "training")
	writeFile(t, training, strings.Repeat("a b a b c m t\n", 50))

	for _, codec := range []counts.Codec{counts.CodecNone, counts.CodecZstd, counts.CodecLZ4} {
		c := New(testIndex(t), Options{BufferSize: 100, ChannelCapacity: 1, Codec: codec}, nil)
		out := filepath.Join(dir, "absolute.tmp", string(codec), "1")
		require.NoError(t, c.ChunkAbsolute(context.Background(), training, pattern.MustParse("1"), out))

		entries, err := os.ReadDir(out)
		require.NoError(t, err)
		require.Greater(t, len(entries), 1, "small buffer must spill several chunk files")
		require.Equal(t, map[string]int64{"a": 100, "b": 100, "c": 50, "m": 50, "t": 50}, collect(t, out, true))
	}
}

func TestChunkAbsoluteTagged(t *testing.T) {
	dir := t.TempDir()
	training := filepath.Join(dir, "training")
	writeFile(t, training, "<fs> <s> dogs/NNS bark/VBP </s>\n")

	c := New(testIndex(t), Options{Tagged: true}, nil)
	out := filepath.Join(dir, "absolute.tmp", "12")
	require.NoError(t, c.ChunkAbsolute(context.Background(), training, pattern.MustParse("12"), out))
	require.Equal(t, map[string]int64{
		"<fs> <s>":  1,
		"<s> NNS":   1,
		"dogs VBP":  1,
		"bark </s>": 1,
	}, collect(t, out, true))
}

func TestChunkContinuationFromAbsolute(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "absolute", "11")
	writeFile(t, source, "<fs> <s>\t4\na fox\t3\nthe fox\t2\nthe quick\t1\n")

	c := New(testIndex(t), Options{}, nil)
	out := filepath.Join(dir, "continuation.tmp", "x1")
	require.NoError(t, c.ChunkContinuation(context.Background(), source, counts.Absolute, pattern.MustParse("x1"), out))

	// "<fs> <s>" reaches "<s>" with zero, other sources contribute one each.
	require.Equal(t, map[string][]int64{
		"<s>":   {0},
		"fox":   {1, 1},
		"quick": {1},
	}, collectValues(t, out))
}

func TestChunkContinuationBoundaryKeepsRawCount(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "absolute", "111")
	writeFile(t, source, "<fs> <s> a\t5\n<s> a b\t2\n")

	c := New(testIndex(t), Options{}, nil)
	out := filepath.Join(dir, "continuation.tmp", "x11")
	require.NoError(t, c.ChunkContinuation(context.Background(), source, counts.Absolute, pattern.MustParse("x11"), out))
	require.Equal(t, map[string][]int64{
		"<s> a": {5},
		"a b":   {1},
	}, collectValues(t, out))
}

func TestChunkContinuationExcludesKeptBoundary(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "absolute", "11")
	writeFile(t, source, "<fs> <s>\t4\na b\t2\n")

	c := New(testIndex(t), Options{}, nil)
	out := filepath.Join(dir, "continuation.tmp", "1x")
	require.NoError(t, c.ChunkContinuation(context.Background(), source, counts.Absolute, pattern.MustParse("1x"), out))
	require.Equal(t, map[string][]int64{"a": {1}}, collectValues(t, out))
}

func TestChunkContinuationFromContinuation(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "continuation", "x11")
	writeFile(t, source, "a b\t3\t1\t2\t0\nc b\t2\t2\t0\t0\n")

	c := New(testIndex(t), Options{}, nil)
	out := filepath.Join(dir, "continuation.tmp", "xx1")
	require.NoError(t, c.ChunkContinuation(context.Background(), source, counts.Continuation, pattern.MustParse("xx1"), out))
	require.Equal(t, map[string][]int64{"b": {2, 3}}, collectValues(t, out))
}

func TestChunkFailureRemovesPartialDir(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "absolute", "11")
	writeFile(t, source, "a b\t1\nc\t1\n")

	c := New(testIndex(t), Options{}, nil)
	out := filepath.Join(dir, "continuation.tmp", "x1")
	err := c.ChunkContinuation(context.Background(), source, counts.Absolute, pattern.MustParse("x1"), out)
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, statErr := os.Stat(out)
	require.True(t, os.IsNotExist(statErr))
}

func TestChunkRejectsUnsortedSource(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "absolute", "11")
	writeFile(t, source, "c d\t1\na b\t1\n")

	c := New(testIndex(t), Options{}, nil)
	out := filepath.Join(dir, "continuation.tmp", "x1")
	err := c.ChunkContinuation(context.Background(), source, counts.Absolute, pattern.MustParse("x1"), out)
	require.ErrorIs(t, err, apperrors.ErrFileFormat)
}

func TestChunkHonoursCancellation(t *testing.T) {
	dir := t.TempDir()
	training := filepath.Join(dir, "training")
	writeFile(t, training, strings.Repeat("a b c\n", 10000))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := New(testIndex(t), Options{ChannelCapacity: 1}, nil)
	out := filepath.Join(dir, "absolute.tmp", "11")
	err := c.ChunkAbsolute(ctx, training, pattern.MustParse("11"), out)
	require.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(out)
	require.True(t, os.IsNotExist(statErr))
}

func BenchmarkChunkAbsolute(b *testing.B) {
	dir := b.TempDir()
	training := filepath.Join(dir, "training")
	line := "<fs> <s> the quick brown fox jumps over the lazy dog </s>\n"
	require.NoError(b, os.WriteFile(training, []byte(strings.Repeat(line, 2000)), 0644))
	ix, err := wordindex.Build(strings.NewReader(line), 8, false)
	require.NoError(b, err)
	c := New(ix, Options{}, nil)
	p := pattern.MustParse("111")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := c.ChunkAbsolute(context.Background(), training, p, filepath.Join(dir, "out")); err != nil {
			b.Fatal(err)
		}
	}
}
