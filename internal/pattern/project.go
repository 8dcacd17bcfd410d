package pattern

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/errors"
)

// Apply projects an absolute pattern onto tokens[offset:offset+p.Len()] and
// returns the space-joined sequence key. CNT keeps the word, SKP writes the
// skip placeholder, POS keeps the tag of a "word/TAG" token.
func (p Pattern) Apply(tokens []string, offset int, tagged bool) (string, error) {
	if !p.IsAbsolute() {
		return "", fmt.Errorf("%w: cannot apply continuation pattern %s to text", apperrors.ErrInvalidPattern, p)
	}
	if offset < 0 || offset+p.Len() > len(tokens) {
		return "", fmt.Errorf("%w: window %d+%d exceeds %d tokens", apperrors.ErrInvalidInput, offset, p.Len(), len(tokens))
	}
	var b strings.Builder
	for i := 0; i < p.Len(); i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		tok := tokens[offset+i]
		switch p.elems[i] {
		case CNT:
			if tagged {
				tok, _ = tokenizer.SplitTagged(tok)
			}
			b.WriteString(tok)
		case SKP:
			b.WriteString(tokenizer.Skip)
		case POS:
			_, tag := tokenizer.SplitTagged(tok)
			b.WriteString(tag)
		}
	}
	return b.String(), nil
}

// Projection maps sequence keys of a continuation pattern's source onto the
// pattern itself by dropping the positions the pattern collapses. Source keys
// only hold tokens for the source's non-collapsed positions, so Keep is
// indexed by source token, not by pattern position.
type Projection struct {
	Target Pattern
	Source Pattern
	Keep   []bool
}

// NewProjection builds the projection for a continuation pattern.
func NewProjection(target Pattern) (Projection, error) {
	if target.IsAbsolute() {
		return Projection{}, fmt.Errorf("%w: %s is absolute and has no continuation source", apperrors.ErrInvalidPattern, target)
	}
	source := target.ContinuationSource()
	keep := make([]bool, 0, source.Len())
	for i := 0; i < source.Len(); i++ {
		if source.elems[i].Collapsed() {
			continue
		}
		keep = append(keep, !target.elems[i].Collapsed())
	}
	return Projection{Target: target, Source: source, Keep: keep}, nil
}

// Width returns the number of tokens a source key must have.
func (pr Projection) Width() int {
	return len(pr.Keep)
}

// DropsFirst reports whether the first source token is collapsed.
func (pr Projection) DropsFirst() bool {
	return len(pr.Keep) > 0 && !pr.Keep[0]
}

// Project drops the collapsed tokens of a source key. It returns the source
// tokens too, so callers can inspect what was dropped.
func (pr Projection) Project(sourceKey string) (key string, sourceTokens []string, err error) {
	sourceTokens = strings.Split(sourceKey, " ")
	if len(sourceTokens) != len(pr.Keep) {
		return "", nil, fmt.Errorf("%w: sequence %q has %d tokens, source %s expects %d",
			apperrors.ErrInvalidInput, sourceKey, len(sourceTokens), pr.Source, len(pr.Keep))
	}
	kept := make([]string, 0, len(sourceTokens))
	for i, tok := range sourceTokens {
		if pr.Keep[i] {
			kept = append(kept, tok)
		}
	}
	return strings.Join(kept, " "), sourceTokens, nil
}
