// Package tokenizer turns corpus lines into the token stream the chunker
// counts over. It only splits on whitespace; normalisation is the corpus
// owner's job. It also owns the reserved literals the counting pipeline
// injects, and guarantees corpus tokens never collide with them.
package tokenizer

import (
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/errors"
)

const (
	// Boundary pads the start of every sentence. Sequences beginning with it
	// get special treatment during continuation counting.
	Boundary = "<fs>"
	// Skip stands in for a word at a SKP position.
	Skip = "<skip>"
	// SentenceBegin and SentenceEnd delimit a sentence.
	SentenceBegin = "<s>"
	SentenceEnd   = "</s>"

	escapePrefix = `\`
	tagSeparator = "/"
)

// ReservedPolicy decides what happens to corpus tokens equal to a reserved
// literal.
type ReservedPolicy int

const (
	// Escape prefixes reserved-looking tokens (and tokens already starting with
	// the escape prefix) with a backslash, which keeps the mapping injective.
	Escape ReservedPolicy = iota
	// Reject fails the line.
	Reject
)

func (p ReservedPolicy) String() string {
	if p == Reject {
		return "reject"
	}
	return "escape"
}

// ParsePolicy maps a config string to a ReservedPolicy.
func ParsePolicy(s string) (ReservedPolicy, error) {
	switch s {
	case "", "escape":
		return Escape, nil
	case "reject":
		return Reject, nil
	}
	return Escape, fmt.Errorf("%w: unknown reserved token policy %q", apperrors.ErrInvalidInput, s)
}

// Options controls Prepare.
type Options struct {
	Boundaries bool
	Policy     ReservedPolicy
	Tagged     bool
}

// Tokenize splits a line on whitespace.
func Tokenize(line string) []string {
	return strings.Fields(line)
}

// IsReserved reports whether word is one of the injected literals.
func IsReserved(word string) bool {
	return word == Boundary || word == Skip
}

// Prepare tokenizes a raw corpus line, applies the reserved-token policy and,
// when enabled, wraps it in "<fs> <s> ... </s>". Empty lines yield nil.
func Prepare(line string, opts Options) ([]string, error) {
	raw := Tokenize(line)
	if len(raw) == 0 {
		return nil, nil
	}
	tokens := make([]string, 0, len(raw)+3)
	if opts.Boundaries {
		tokens = append(tokens, Boundary, SentenceBegin)
	}
	for _, tok := range raw {
		if !opts.Tagged {
			word, err := guard(tok, opts.Policy)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, word)
			continue
		}
		// A POS projection emits the tag alone, so it must not collide
		// with a reserved literal either.
		word, tag := SplitTagged(tok)
		word, err := guard(word, opts.Policy)
		if err != nil {
			return nil, err
		}
		if tag, err = guard(tag, opts.Policy); err != nil {
			return nil, err
		}
		tokens = append(tokens, word+tagSeparator+tag)
	}
	if opts.Boundaries {
		tokens = append(tokens, SentenceEnd)
	}
	return tokens, nil
}

// guard applies the reserved-token policy to one word or tag.
func guard(s string, policy ReservedPolicy) (string, error) {
	switch {
	case policy == Reject && IsReserved(s):
		return "", fmt.Errorf("%w: %q", apperrors.ErrReservedToken, s)
	case policy == Escape && (IsReserved(s) || strings.HasPrefix(s, escapePrefix)):
		return escapePrefix + s, nil
	}
	return s, nil
}

// SplitTagged splits a "word/TAG" token at its last separator. Tokens without
// a separator have an empty tag. The sentence markers Prepare injects carry no
// tag and act as their own tag.
func SplitTagged(token string) (word, tag string) {
	switch token {
	case Boundary, SentenceBegin, SentenceEnd:
		return token, token
	}
	i := strings.LastIndex(token, tagSeparator)
	if i <= 0 {
		return token, ""
	}
	return token[:i], token[i+1:]
}
