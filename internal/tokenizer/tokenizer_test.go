package tokenizer

import (
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestTokenizeWhitespaceOnly(t *testing.T) {
	require.Equal(t, []string{"The", "quick,", "fox"}, Tokenize("  The\tquick,  fox \n"))
	require.Empty(t, Tokenize("   "))
}

func TestPrepareWrapsBoundaries(t *testing.T) {
	tokens, err := Prepare("a b", Options{Boundaries: true})
	require.NoError(t, err)
	require.Equal(t, []string{Boundary, SentenceBegin, "a", "b", SentenceEnd}, tokens)

	tokens, err = Prepare("", Options{Boundaries: true})
	require.NoError(t, err)
	require.Nil(t, tokens)
}

func TestPrepareEscapesReserved(t *testing.T) {
	tokens, err := Prepare(`<skip> <fs> \x y`, Options{Policy: Escape})
	require.NoError(t, err)
	require.Equal(t, []string{`\<skip>`, `\<fs>`, `\\x`, "y"}, tokens)
	for _, tok := range tokens {
		require.False(t, IsReserved(tok))
	}
}

func TestPrepareRejectsReserved(t *testing.T) {
	_, err := Prepare("a <skip> b", Options{Policy: Reject})
	require.ErrorIs(t, err, apperrors.ErrReservedToken)
}

func TestPrepareTagged(t *testing.T) {
	tokens, err := Prepare("dogs/NNS <fs>/SYM", Options{Tagged: true})
	require.NoError(t, err)
	require.Equal(t, []string{"dogs/NNS", `\<fs>/SYM`}, tokens)

	tokens, err = Prepare(`fox/<skip> a/\NN`, Options{Tagged: true})
	require.NoError(t, err)
	require.Equal(t, []string{`fox/\<skip>`, `a/\\NN`}, tokens)
	for _, tok := range tokens {
		_, tag := SplitTagged(tok)
		require.False(t, IsReserved(tag))
	}

	_, err = Prepare("fox/NN dog/<fs>", Options{Tagged: true, Policy: Reject})
	require.ErrorIs(t, err, apperrors.ErrReservedToken)

	word, tag := SplitTagged("a/b/DT")
	require.Equal(t, "a/b", word)
	require.Equal(t, "DT", tag)

	word, tag = SplitTagged(SentenceEnd)
	require.Equal(t, SentenceEnd, word)
	require.Equal(t, SentenceEnd, tag)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("reject")
	require.NoError(t, err)
	require.Equal(t, Reject, p)
	require.Equal(t, "reject", p.String())
	_, err = ParsePolicy("drop")
	require.Error(t, err)
}
