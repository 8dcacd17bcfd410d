// Package pattern implements the n-gram template algebra. A Pattern says, per
// position of an n-gram window, whether the token is kept, replaced by a skip
// placeholder, or collapsed for continuation counting. Patterns are small
// comparable values: they can be used directly as map keys and are ordered by
// their one-character-per-position string encoding.
package pattern

import (
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/errors"
)

// MaxLength bounds pattern length so Pattern can stay a fixed-size array.
const MaxLength = 16

// Elem is one position of a Pattern.
type Elem byte

const (
	// CNT keeps the word.
	CNT Elem = '1'
	// SKP replaces the word by the skip placeholder.
	SKP Elem = '0'
	// WSKP collapses the position for continuation counting.
	WSKP Elem = 'x'
	// POS keeps the part-of-speech tag.
	POS Elem = '2'
	// PSKP collapses the tag position for continuation counting.
	PSKP Elem = 'y'
)

func (e Elem) valid() bool {
	switch e {
	case CNT, SKP, WSKP, POS, PSKP:
		return true
	}
	return false
}

// Collapsed reports whether the element marks a continuation position.
func (e Elem) Collapsed() bool {
	return e == WSKP || e == PSKP
}

func (e Elem) String() string {
	switch e {
	case CNT:
		return "CNT"
	case SKP:
		return "SKP"
	case WSKP:
		return "WSKP"
	case POS:
		return "POS"
	case PSKP:
		return "PSKP"
	}
	return fmt.Sprintf("Elem(%q)", byte(e))
}

// Pattern is an immutable sequence of 1..MaxLength elements.
type Pattern struct {
	n     uint8
	elems [MaxLength]Elem
}

// New builds a Pattern from elems.
func New(elems ...Elem) (Pattern, error) {
	var p Pattern
	if len(elems) == 0 || len(elems) > MaxLength {
		return p, fmt.Errorf("%w: length %d outside 1..%d", apperrors.ErrInvalidPattern, len(elems), MaxLength)
	}
	for i, e := range elems {
		if !e.valid() {
			return Pattern{}, fmt.Errorf("%w: element %d is %v", apperrors.ErrInvalidPattern, i, e)
		}
		p.elems[i] = e
	}
	p.n = uint8(len(elems))
	return p, nil
}

// MustNew is New for literals known to be valid.
func MustNew(elems ...Elem) Pattern {
	p, err := New(elems...)
	if err != nil {
		panic(err)
	}
	return p
}

// Parse decodes the string encoding produced by String.
func Parse(s string) (Pattern, error) {
	elems := make([]Elem, len(s))
	for i := 0; i < len(s); i++ {
		elems[i] = Elem(s[i])
	}
	p, err := New(elems...)
	if err != nil {
		return Pattern{}, fmt.Errorf("parsing pattern %q: %w", s, err)
	}
	return p, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) Pattern {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// ParseAll parses every string in ss.
func ParseAll(ss []string) ([]Pattern, error) {
	out := make([]Pattern, 0, len(ss))
	for _, s := range ss {
		p, err := Parse(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// String returns the one-character-per-position encoding, also used as the
// directory and file name of the pattern's count files.
func (p Pattern) String() string {
	return string(p.bytes())
}

func (p Pattern) bytes() []byte {
	b := make([]byte, p.n)
	for i := range b {
		b[i] = byte(p.elems[i])
	}
	return b
}

// Len returns the number of positions.
func (p Pattern) Len() int {
	return int(p.n)
}

// At returns the element at position i.
func (p Pattern) At(i int) Elem {
	if i < 0 || i >= int(p.n) {
		panic(fmt.Sprintf("pattern: index %d out of range for %s", i, p))
	}
	return p.elems[i]
}

// Elems returns a copy of the elements.
func (p Pattern) Elems() []Elem {
	return append([]Elem(nil), p.elems[:p.n]...)
}

// Contains reports whether any position holds e.
func (p Pattern) Contains(e Elem) bool {
	for i := 0; i < int(p.n); i++ {
		if p.elems[i] == e {
			return true
		}
	}
	return false
}

// Count returns how many positions hold e.
func (p Pattern) Count(e Elem) int {
	n := 0
	for i := 0; i < int(p.n); i++ {
		if p.elems[i] == e {
			n++
		}
	}
	return n
}

// IsAbsolute reports whether p has no collapsed positions.
func (p Pattern) IsAbsolute() bool {
	return !p.Contains(WSKP) && !p.Contains(PSKP)
}

// IsDegenerate reports whether p keeps nothing: such patterns are never
// scheduled.
func (p Pattern) IsDegenerate() bool {
	return !p.Contains(CNT) && !p.Contains(POS)
}

// NeedsTagging reports whether p reads part-of-speech tags.
func (p Pattern) NeedsTagging() bool {
	return p.Contains(POS) || p.Contains(PSKP)
}

// Compare orders patterns by their string encoding.
func (p Pattern) Compare(q Pattern) int {
	return strings.Compare(p.String(), q.String())
}

// ContinuationSource returns the pattern whose counts p is derived from: the
// rightmost collapsed position is restored (WSKP to CNT, PSKP to POS). The
// source is absolute or has exactly one collapsed position fewer, so repeated
// application reaches an absolute pattern in at most Len steps. Absolute
// patterns are their own source.
func (p Pattern) ContinuationSource() Pattern {
	for i := int(p.n) - 1; i >= 0; i-- {
		switch p.elems[i] {
		case WSKP:
			p.elems[i] = CNT
			return p
		case PSKP:
			p.elems[i] = POS
			return p
		}
	}
	return p
}

// Distance returns the number of ContinuationSource steps to an absolute
// pattern.
func (p Pattern) Distance() int {
	return p.Count(WSKP) + p.Count(PSKP)
}

// Replace returns p with every target element replaced by with.
func (p Pattern) Replace(target, with Elem) Pattern {
	for i := 0; i < int(p.n); i++ {
		if p.elems[i] == target {
			p.elems[i] = with
		}
	}
	return p
}

// Concat appends q to p.
func (p Pattern) Concat(q Pattern) (Pattern, error) {
	return New(append(p.Elems(), q.Elems()...)...)
}

// MarshalText implements encoding.TextMarshaler so patterns can be YAML and
// JSON map keys.
func (p Pattern) MarshalText() ([]byte, error) {
	return p.bytes(), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Pattern) UnmarshalText(b []byte) error {
	q, err := Parse(string(b))
	if err != nil {
		return err
	}
	*p = q
	return nil
}
