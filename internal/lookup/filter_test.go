package lookup

import (
	"context"
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

func TestFilterWalksForwardOnly(t *testing.T) {
	src := counts.NewReader("src", strings.NewReader("a\t1\nb\t2\nc\t3\nd\t4\n"), 2, true)
	defer src.Close()

	got := map[string]int64{}
	n, err := Filter(context.Background(), src, []string{"a", "c"}, func(seq string, c counts.Counts) error {
		got[seq] = c.OnePlus
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, map[string]int64{"a": 1, "c": 3}, got)
	require.Equal(t, "c", src.Sequence(), "reader stops at the last needed sequence")
}

func TestFilterSkipsMissingAndDuplicates(t *testing.T) {
	src := counts.NewReader("src", strings.NewReader("b\t2\nd\t4\n"), 2, true)
	defer src.Close()

	var seen []string
	n, err := Filter(context.Background(), src, []string{"a", "b", "b", "c", "e"}, func(seq string, _ counts.Counts) error {
		seen = append(seen, seq)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []string{"b"}, seen)
}

func TestFilterRejectsUnsortedNeeds(t *testing.T) {
	src := counts.NewReader("src", strings.NewReader("a\t1\n"), 2, true)
	defer src.Close()
	_, err := Filter(context.Background(), src, []string{"b", "a"}, func(string, counts.Counts) error { return nil })
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestNeededSequences(t *testing.T) {
	sentences := [][]string{{"the", "quick", "fox"}, {"the", "fox"}}

	got, err := NeededSequences(pattern.MustParse("101"), sentences, false)
	require.NoError(t, err)
	require.Equal(t, []string{"the <skip> fox"}, got)

	got, err = NeededSequences(pattern.MustParse("x1"), sentences, false)
	require.NoError(t, err)
	require.Equal(t, []string{"fox", "quick"}, got)

	got, err = NeededSequences(pattern.MustParse("x01"), sentences, false)
	require.NoError(t, err)
	require.Equal(t, []string{"<skip> fox"}, got)

	_, err = NeededSequences(pattern.MustParse("x"), sentences, false)
	require.ErrorIs(t, err, apperrors.ErrInvalidPattern)
}

func TestFilterPatternsWritesNeededRecords(t *testing.T) {
	dir := fixture(t)
	out := filepath.Join(t.TempDir(), "filtered")
	sentences := [][]string{{"c", "d"}, {"x", "b"}}

	n, err := FilterPatterns(context.Background(), pipeline.Layout{WorkDir: dir}, counts.Absolute,
		[]pattern.Pattern{pattern.MustParse("11")}, sentences, false, out)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	data, err := os.ReadFile(filepath.Join(out, "absolute", "11"))
	require.NoError(t, err)
	require.Equal(t, "c d\t2\n", string(data))

	n, err = FilterPatterns(context.Background(), pipeline.Layout{WorkDir: dir}, counts.Continuation,
		[]pattern.Pattern{pattern.MustParse("x1")}, sentences, false, out)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	data, err = os.ReadFile(filepath.Join(out, "continuation", "x1"))
	require.NoError(t, err)
	require.Equal(t, "b\t5\t0\t2\t3\n", string(data))
}
