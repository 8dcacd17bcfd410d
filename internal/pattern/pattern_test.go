package pattern

import (
	"testing"

	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestParseStringRoundTrip(t *testing.T) {
	for _, s := range []string{"1", "101", "x11", "1x0y2"} {
		p, err := Parse(s)
		require.NoError(t, err)
		require.Equal(t, s, p.String())
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	for _, s := range []string{"", "1a1", "11111111111111111"} {
		_, err := Parse(s)
		require.ErrorIs(t, err, apperrors.ErrInvalidPattern, s)
	}
}

func TestPatternIsComparableMapKey(t *testing.T) {
	m := map[Pattern]int{MustParse("101"): 1}
	m[MustNew(CNT, SKP, CNT)]++
	require.Len(t, m, 1)
	require.Equal(t, 2, m[MustParse("101")])
}

func TestClassification(t *testing.T) {
	require.True(t, MustParse("101").IsAbsolute())
	require.False(t, MustParse("x1").IsAbsolute())
	require.True(t, MustParse("0x0").IsDegenerate())
	require.False(t, MustParse("0x2").IsDegenerate())
	require.True(t, MustParse("12").NeedsTagging())
	require.False(t, MustParse("1x").NeedsTagging())
}

func TestContinuationSource(t *testing.T) {
	cases := map[string]string{
		"x1":   "11",
		"xx1":  "x11",
		"x11":  "111",
		"1x":   "11",
		"x0x1": "x011",
		"y2":   "22",
		"101":  "101",
	}
	for in, want := range cases {
		require.Equal(t, want, MustParse(in).ContinuationSource().String(), in)
	}
}

func TestContinuationSourceTerminates(t *testing.T) {
	p := MustParse("xxxx1")
	steps := 0
	for !p.IsAbsolute() {
		p = p.ContinuationSource()
		steps++
		require.LessOrEqual(t, steps, 5)
	}
	require.Equal(t, 4, steps)
	require.Equal(t, 4, MustParse("xxxx1").Distance())
}

func TestApplyProjectsSkip(t *testing.T) {
	key, err := MustParse("101").Apply([]string{"the", "quick", "fox"}, 0, false)
	require.NoError(t, err)
	require.Equal(t, "the "+tokenizer.Skip+" fox", key)
}

func TestApplyTagged(t *testing.T) {
	tokens := []string{"the/DT", "fox/NN"}
	key, err := MustParse("12").Apply(tokens, 0, true)
	require.NoError(t, err)
	require.Equal(t, "the NN", key)
}

func TestApplyRejectsContinuationAndOverrun(t *testing.T) {
	_, err := MustParse("x1").Apply([]string{"a", "b"}, 0, false)
	require.ErrorIs(t, err, apperrors.ErrInvalidPattern)
	_, err = MustParse("11").Apply([]string{"a", "b"}, 1, false)
	require.Error(t, err)
}

func TestProjectionDropsCollapsed(t *testing.T) {
	pr, err := NewProjection(MustParse("x1"))
	require.NoError(t, err)
	require.Equal(t, "11", pr.Source.String())
	require.True(t, pr.DropsFirst())

	key, src, err := pr.Project("<fs> <s>")
	require.NoError(t, err)
	require.Equal(t, "<s>", key)
	require.Equal(t, []string{"<fs>", "<s>"}, src)
}

func TestProjectionFromContinuationSource(t *testing.T) {
	// xx1 derives from x11, whose keys hold two tokens (positions 1 and 2).
	pr, err := NewProjection(MustParse("xx1"))
	require.NoError(t, err)
	require.Equal(t, "x11", pr.Source.String())
	require.Equal(t, []bool{false, true}, pr.Keep)

	key, _, err := pr.Project("quick fox")
	require.NoError(t, err)
	require.Equal(t, "fox", key)

	_, _, err = pr.Project("the quick fox")
	require.Error(t, err)
}

func TestProjectionKeepsSkipPlaceholder(t *testing.T) {
	pr, err := NewProjection(MustParse("x01"))
	require.NoError(t, err)
	key, _, err := pr.Project("a " + tokenizer.Skip + " c")
	require.NoError(t, err)
	require.Equal(t, tokenizer.Skip+" c", key)
}

func TestCombinations(t *testing.T) {
	s := Combinations(3, CNT, SKP)
	require.Len(t, s, 2+4+8)
	require.True(t, s.Has(MustParse("010")))
}

func TestForPreset(t *testing.T) {
	kn, err := ForPreset(PresetKneserNey, 3)
	require.NoError(t, err)
	require.Equal(t, []string{"1", "11", "111", "x1", "x11", "xx1"}, kn.Strings())

	glm, err := ForPreset(PresetGLM, 2)
	require.NoError(t, err)
	require.True(t, glm.Has(MustParse("x1")))
	require.True(t, glm.Has(MustParse("1x")))
	require.True(t, glm.Has(MustParse("0x")))

	_, err = ForPreset("bogus", 3)
	require.Error(t, err)
}

func TestTextMarshalling(t *testing.T) {
	var p Pattern
	require.NoError(t, p.UnmarshalText([]byte("x10")))
	b, err := p.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "x10", string(b))
}
