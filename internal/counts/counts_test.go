package counts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/pattern"
	apperrors "github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestCountsAddFoldsOncePerRecord(t *testing.T) {
	var c Counts
	c.Add(3)
	c.Add(2)
	require.Equal(t, Counts{OnePlus: 5, One: 0, Two: 2, ThreePlus: 3}, c)

	c.Add(1)
	c.Add(0)
	require.Equal(t, Counts{OnePlus: 6, One: 1, Two: 2, ThreePlus: 3}, c)
}

func TestNGramTimesObserve(t *testing.T) {
	var nt NGramTimes
	for _, c := range []int64{1, 1, 2, 3, 4, 9} {
		nt.Observe(c)
	}
	require.Equal(t, NGramTimes{One: 2, Two: 1, Three: 1, FourPlus: 2}, nt)
}

func TestParseLine(t *testing.T) {
	seq, c, fields, reason := ParseLine("a b\t7")
	require.Empty(t, reason)
	require.Equal(t, "a b", seq)
	require.Equal(t, 2, fields)
	require.Equal(t, int64(7), c.OnePlus)

	seq, c, fields, reason = ParseLine("a\t5\t0\t2\t3")
	require.Empty(t, reason)
	require.Equal(t, "a", seq)
	require.Equal(t, 5, fields)
	require.Equal(t, Counts{5, 0, 2, 3}, c)

	for _, bad := range []string{"a", "a\t1\t2", "\t1", "a\tx", "a\t-1"} {
		_, _, _, reason := ParseLine(bad)
		require.NotEmpty(t, reason, bad)
	}
}

func TestAppendLines(t *testing.T) {
	require.Equal(t, "a b\t5\n", string(AppendValue(nil, "a b", 5)))
	require.Equal(t, "a b\t5\t0\t2\t3\n", string(AppendCounts(nil, "a b", Counts{5, 0, 2, 3})))
}

func TestWriterCommitAndRead(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecZstd, CodecLZ4} {
		t.Run(string(codec), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "chunk"+codec.Ext())
			w, err := Create(path, codec, false)
			require.NoError(t, err)
			require.NoError(t, w.WriteValue("a b", 3))
			require.NoError(t, w.WriteValue("a b", 2))
			require.NoError(t, w.WriteValue("c", 1))
			require.NoError(t, w.Commit())

			_, err = os.Stat(path + ".tmp")
			require.True(t, os.IsNotExist(err))

			r, err := Open(path, 2, false)
			require.NoError(t, err)
			defer r.Close()
			var seqs []string
			var sum int64
			for r.Next() {
				seqs = append(seqs, r.Sequence())
				sum += r.Value()
			}
			require.NoError(t, r.Err())
			require.Equal(t, []string{"a b", "a b", "c"}, seqs)
			require.Equal(t, int64(6), sum)
		})
	}
}

func TestWriterRejectsOutOfOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "111")
	w, err := Create(path, CodecNone, true)
	require.NoError(t, err)
	require.NoError(t, w.WriteCounts("b", Counts{OnePlus: 1, One: 1}))
	require.Error(t, w.WriteCounts("a", Counts{OnePlus: 1, One: 1}))
	require.Error(t, w.WriteCounts("b", Counts{OnePlus: 1, One: 1}))
	w.Abort()

	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err))
}

func TestReaderReportsFormatErrors(t *testing.T) {
	r := NewReader("mem", strings.NewReader("b\t1\na\t1\n"), 2, true)
	require.True(t, r.Next())
	require.False(t, r.Next())
	var ffe *apperrors.FileFormatError
	require.ErrorAs(t, r.Err(), &ffe)
	require.Equal(t, 2, ffe.Line)
	require.Equal(t, "a\t1", ffe.Content)

	r = NewReader("mem", strings.NewReader("a\t1\t0\t0\t0\n"), 2, true)
	require.False(t, r.Next())
	require.ErrorIs(t, r.Err(), apperrors.ErrFileFormat)

	r = NewReader("mem", strings.NewReader("a\t1\na\t2\n"), 2, true)
	require.True(t, r.Next())
	require.False(t, r.Next())
	require.ErrorIs(t, r.Err(), apperrors.ErrFileFormat)
}

func TestReaderForwardTo(t *testing.T) {
	r := NewReader("mem", strings.NewReader("a\t1\nb\t2\nc\t3\nd\t4\n"), 2, true)
	require.True(t, r.ForwardTo("b"))
	require.Equal(t, "b", r.Sequence())
	require.True(t, r.ForwardTo("a"), "never moves backwards")
	require.Equal(t, "b", r.Sequence())
	require.True(t, r.ForwardTo("bb"))
	require.Equal(t, "c", r.Sequence())
	require.False(t, r.ForwardTo("e"))
	require.NoError(t, r.Err())
}

func TestNGramTimesFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	abs := filepath.Join(dir, "11")
	w, err := Create(abs, CodecNone, true)
	require.NoError(t, err)
	for i, c := range []int64{1, 4, 2, 1, 3} {
		require.NoError(t, w.WriteValue(string(rune('a'+i)), c))
	}
	require.NoError(t, w.Commit())

	nt, err := ComputeNGramTimes(abs)
	require.NoError(t, err)
	require.Equal(t, NGramTimes{One: 2, Two: 1, Three: 1, FourPlus: 1}, nt)

	path := filepath.Join(dir, NGramTimesFileName)
	in := map[pattern.Pattern]NGramTimes{
		pattern.MustParse("11"): nt,
		pattern.MustParse("1"):  {One: 7},
	}
	require.NoError(t, WriteNGramTimes(path, in))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "1\t7\t0\t0\t0\n11\t2\t1\t1\t1\n", string(data))

	out, err := ReadNGramTimes(path)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestParseCodec(t *testing.T) {
	c, err := ParseCodec("")
	require.NoError(t, err)
	require.Equal(t, CodecNone, c)
	_, err = ParseCodec("gzip")
	require.Error(t, err)
	require.Equal(t, CodecLZ4, CodecForPath("bucket-1-0.chunk.lz4"))
}

func BenchmarkAppendCounts(b *testing.B) {
	buf := make([]byte, 0, 128)
	c := Counts{OnePlus: 12345, One: 12, Two: 40, ThreePlus: 12293}
	for i := 0; i < b.N; i++ {
		buf = AppendCounts(buf[:0], "the quick brown fox", c)
	}
}
