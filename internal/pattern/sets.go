package pattern

import (
	"fmt"
	"sort"

	apperrors "github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/errors"
)

// Set is an unordered collection of patterns.
type Set map[Pattern]struct{}

// NewSet returns a Set holding ps.
func NewSet(ps ...Pattern) Set {
	s := make(Set, len(ps))
	for _, p := range ps {
		s[p] = struct{}{}
	}
	return s
}

// Add inserts p and reports whether it was not present before.
func (s Set) Add(p Pattern) bool {
	if _, ok := s[p]; ok {
		return false
	}
	s[p] = struct{}{}
	return true
}

// Has reports membership.
func (s Set) Has(p Pattern) bool {
	_, ok := s[p]
	return ok
}

// Sorted returns the members ordered by string encoding.
func (s Set) Sorted() []Pattern {
	out := make([]Pattern, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	Sort(out)
	return out
}

// Strings returns the sorted string encodings.
func (s Set) Strings() []string {
	return Strings(s.Sorted())
}

// Sort orders ps by string encoding.
func Sort(ps []Pattern) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].Compare(ps[j]) < 0 })
}

// Strings encodes ps.
func Strings(ps []Pattern) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.String()
	}
	return out
}

// Combinations returns every pattern of length 1..maxLen built from elems.
func Combinations(maxLen int, elems ...Elem) Set {
	s := make(Set)
	var build func(prefix []Elem)
	build = func(prefix []Elem) {
		if len(prefix) > 0 {
			s.Add(MustNew(prefix...))
		}
		if len(prefix) == maxLen {
			return
		}
		for _, e := range elems {
			build(append(prefix[:len(prefix):len(prefix)], e))
		}
	}
	build(nil)
	return s
}

// Repeat returns the pattern holding e n times.
func Repeat(e Elem, n int) Pattern {
	elems := make([]Elem, n)
	for i := range elems {
		elems[i] = e
	}
	return MustNew(elems...)
}

// Preset names a pattern set the pipeline knows how to request.
const (
	PresetAbsolute  = "absolute"
	PresetKneserNey = "kneser-ney"
	PresetGLM       = "glm"
)

// ForPreset builds the requested patterns for a named preset and n-gram order.
//
//	absolute:   every CNT/SKP combination up to order
//	kneser-ney: CNT^k for k <= order, plus the WSKP-prefixed left-continuation
//	            patterns WSKP CNT^k and WSKP^2 CNT^k for k < order
//	glm:        every CNT/SKP combination, each with SKP replaced by WSKP, and
//	            every shorter combination followed by a trailing WSKP
func ForPreset(name string, order int) (Set, error) {
	if order < 1 || order > MaxLength {
		return nil, fmt.Errorf("%w: order %d outside 1..%d", apperrors.ErrInvalidInput, order, MaxLength)
	}
	switch name {
	case PresetAbsolute:
		return Combinations(order, CNT, SKP), nil
	case PresetKneserNey:
		s := make(Set)
		for k := 1; k <= order; k++ {
			s.Add(Repeat(CNT, k))
		}
		for k := 1; k < order; k++ {
			left, _ := Repeat(WSKP, 1).Concat(Repeat(CNT, k))
			s.Add(left)
			if k+2 <= order {
				both, _ := Repeat(WSKP, 2).Concat(Repeat(CNT, k))
				s.Add(both)
			}
		}
		return s, nil
	case PresetGLM, "":
		base := Combinations(order, CNT, SKP)
		s := make(Set, 3*len(base))
		for p := range base {
			s.Add(p)
			if p.Contains(SKP) {
				s.Add(p.Replace(SKP, WSKP))
			}
			if p.Len() < order {
				trailing, _ := p.Concat(Repeat(WSKP, 1))
				s.Add(trailing)
			}
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: unknown pattern preset %q", apperrors.ErrInvalidInput, name)
}
