package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/heimdalr/dag"

	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/pattern"
)

// ComputeNeeded expands the requested patterns into the closure that has to
// be counted: every continuation pattern pulls in its continuation source,
// recursively, until an absolute pattern is reached. Degenerate patterns
// are dropped with a warning.
func ComputeNeeded(requested []pattern.Pattern) (absolute, continuation pattern.Set, needsTagging bool) {
	absolute = make(pattern.Set)
	continuation = make(pattern.Set)
	logger := slog.Default().With("component", "planner")

	queue := make([]pattern.Pattern, 0, len(requested))
	for _, p := range requested {
		if p.IsDegenerate() {
			logger.Warn("dropping degenerate pattern", "pattern", p.String())
			continue
		}
		queue = append(queue, p)
	}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		if p.NeedsTagging() {
			needsTagging = true
		}
		if p.IsAbsolute() {
			absolute.Add(p)
			continue
		}
		if continuation.Add(p) {
			queue = append(queue, p.ContinuationSource())
		}
	}
	return absolute, continuation, needsTagging
}

// Plan is the dependency graph of the continuation closure: an edge runs
// from every pattern's source to the pattern.
type Plan struct {
	graph        *dag.DAG
	absolute     pattern.Set
	continuation pattern.Set
}

// NewPlan builds the graph and fails if it is not acyclic or a source is
// outside the closure.
func NewPlan(absolute, continuation pattern.Set) (*Plan, error) {
	g := dag.NewDAG()
	for _, set := range []pattern.Set{absolute, continuation} {
		for _, p := range set.Sorted() {
			if err := g.AddVertexByID(p.String(), p); err != nil {
				return nil, fmt.Errorf("adding pattern %s to plan: %w", p, err)
			}
		}
	}
	for _, p := range continuation.Sorted() {
		src := p.ContinuationSource()
		if !absolute.Has(src) && !continuation.Has(src) {
			return nil, fmt.Errorf("planning %s: source %s is not scheduled", p, src)
		}
		if err := g.AddEdge(src.String(), p.String()); err != nil {
			return nil, fmt.Errorf("planning %s: %w", p, err)
		}
	}
	return &Plan{graph: g, absolute: absolute, continuation: continuation}, nil
}

// Source returns the single parent of a continuation pattern.
func (pl *Plan) Source(p pattern.Pattern) (pattern.Pattern, error) {
	parents, err := pl.graph.GetParents(p.String())
	if err != nil {
		return pattern.Pattern{}, fmt.Errorf("looking up source of %s: %w", p, err)
	}
	var src pattern.Pattern
	for _, v := range parents {
		src = v.(pattern.Pattern)
	}
	if len(parents) != 1 {
		return pattern.Pattern{}, fmt.Errorf("pattern %s has %d sources in plan", p, len(parents))
	}
	return src, nil
}

// Depth returns the number of derivation steps from p back to an absolute
// pattern, which is the wave p is counted in. Sources form a chain, so the
// ancestors of p are exactly those steps.
func (pl *Plan) Depth(p pattern.Pattern) (int, error) {
	ancestors, err := pl.graph.GetAncestors(p.String())
	if err != nil {
		return 0, fmt.Errorf("looking up ancestors of %s: %w", p, err)
	}
	return len(ancestors), nil
}

// MaxDepth is the deepest wave the plan needs.
func (pl *Plan) MaxDepth() (int, error) {
	deepest := 0
	for p := range pl.continuation {
		d, err := pl.Depth(p)
		if err != nil {
			return 0, err
		}
		if d > deepest {
			deepest = d
		}
	}
	return deepest, nil
}
