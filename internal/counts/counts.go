// Package counts holds the count value types and the flat file formats every
// stage of the pipeline reads and writes: chunk files, final count files and
// the n-gram-times summary.
package counts

import "fmt"

// Kind separates absolute counts from continuation counts.
type Kind int

const (
	Absolute Kind = iota
	Continuation
)

func (k Kind) String() string {
	switch k {
	case Absolute:
		return "absolute"
	case Continuation:
		return "continuation"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Fields is the number of tab-separated fields of a final count line.
func (k Kind) Fields() int {
	if k == Continuation {
		return 5
	}
	return 2
}

// Counts aggregates the contributions folded into one continuation sequence.
// For absolute sequences only OnePlus is meaningful and holds the total.
type Counts struct {
	OnePlus   int64
	One       int64
	Two       int64
	ThreePlus int64
}

// Add folds one contribution c. OnePlus always grows by c; exactly one of the
// bucket fields grows by c unless c is zero.
func (c *Counts) Add(v int64) {
	c.OnePlus += v
	switch {
	case v == 1:
		c.One += v
	case v == 2:
		c.Two += v
	case v >= 3:
		c.ThreePlus += v
	}
}

// NGramTimes counts the sequences of one absolute pattern whose total is
// exactly 1, 2, 3, or at least 4.
type NGramTimes struct {
	One      int64
	Two      int64
	Three    int64
	FourPlus int64
}

// Observe records one sequence with absolute count c.
func (n *NGramTimes) Observe(c int64) {
	switch {
	case c == 1:
		n.One++
	case c == 2:
		n.Two++
	case c == 3:
		n.Three++
	case c >= 4:
		n.FourPlus++
	}
}
