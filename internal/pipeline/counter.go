// Package pipeline plans and runs the counting waves: it expands requested
// patterns into their derivation closure, prepares training data and the
// word index, and drives the chunker and merger phase by phase while
// recording progress in the working directory's status file.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/chunker"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/counts"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/events"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/merger"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/pattern"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/runlog"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/status"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/metrics"
)

const (
	phaseChunk = "chunk"
	phaseMerge = "merge"
)

// Options configures a Counter.
type Options struct {
	Corpus             string
	WorkDir            string
	Cores              int
	Buckets            int
	BufferSize         int64
	ChannelCapacity    int
	Codec              counts.Codec
	DeleteTempFiles    bool
	SentenceBoundaries bool
	ReservedPolicy     tokenizer.ReservedPolicy
	Tagged             bool
}

// OptionsFromConfig maps the counting section of cfg to Options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	codec, err := counts.ParseCodec(cfg.Counting.Compression)
	if err != nil {
		return Options{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	policy, err := tokenizer.ParsePolicy(cfg.Counting.ReservedTokens)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Corpus:             cfg.Paths.Corpus,
		WorkDir:            cfg.Paths.WorkDir,
		Cores:              cfg.Counting.Cores,
		Buckets:            cfg.Counting.Buckets,
		BufferSize:         int64(cfg.Counting.ChunkBufferSize.Bytes()),
		ChannelCapacity:    cfg.Counting.ChannelCapacity,
		Codec:              codec,
		DeleteTempFiles:    cfg.Counting.DeleteTempFiles,
		SentenceBoundaries: cfg.Counting.SentenceBoundaries,
		ReservedPolicy:     policy,
		Tagged:             cfg.Counting.Tagged,
	}, nil
}

// Report summarises one Run.
type Report struct {
	RunID        string
	Absolute     []string
	Continuation []string
	ChunkTasks   int
	MergeTasks   int
	Waves        int
}

// TasksRun is the number of chunk and merge tasks executed.
func (r Report) TasksRun() int {
	return r.ChunkTasks + r.MergeTasks
}

// Counter runs the counting pipeline on one working directory.
type Counter struct {
	opts    Options
	layout  Layout
	metrics *metrics.Metrics
	events  events.Publisher
	history runlog.Recorder
	logger  *slog.Logger
}

// NewCounter creates a Counter. Nil metrics, publisher or recorder disable
// the respective output.
func NewCounter(opts Options, m *metrics.Metrics, pub events.Publisher, rec runlog.Recorder) *Counter {
	if opts.Cores < 1 {
		opts.Cores = 1
	}
	if opts.Buckets < 1 {
		opts.Buckets = 1
	}
	if m == nil {
		m = metrics.NewNop()
	}
	if pub == nil {
		pub = events.Nop{}
	}
	if rec == nil {
		rec = runlog.Nop{}
	}
	return &Counter{
		opts:    opts,
		layout:  Layout{WorkDir: opts.WorkDir},
		metrics: m,
		events:  pub,
		history: rec,
		logger:  slog.Default().With("component", "counter"),
	}
}

// Layout returns where the Counter keeps its files.
func (c *Counter) Layout() Layout {
	return c.layout
}

// run holds the state of one Run call.
type run struct {
	*Counter
	id      string
	st      *status.Status
	plan    *Plan
	chunker *chunker.Chunker
	merger  *merger.Merger
	report  Report
	logger  *slog.Logger
}

// Run counts every requested pattern and everything it derives from. Work
// recorded as done in the status file is skipped, so running twice is cheap
// and leaves the working directory byte-identical.
func (c *Counter) Run(ctx context.Context, requested []pattern.Pattern) (rep Report, err error) {
	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	log := logger.FromContext(ctx).With("component", "counter")

	abs, cont, needsTagging := ComputeNeeded(requested)
	rep = Report{RunID: runID, Absolute: abs.Strings(), Continuation: cont.Strings()}
	if needsTagging && !c.opts.Tagged {
		return rep, fmt.Errorf("%w: requested patterns use POS elements", apperrors.ErrTaggingRequired)
	}
	if len(abs) == 0 {
		return rep, fmt.Errorf("%w: no countable patterns requested", apperrors.ErrInvalidInput)
	}
	plan, err := NewPlan(abs, cont)
	if err != nil {
		return rep, err
	}

	st, err := status.Open(c.opts.WorkDir)
	if err != nil {
		return rep, err
	}
	defer st.Close()

	r := &run{Counter: c, id: runID, st: st, plan: plan, report: rep, logger: log}
	historyID := r.begin(ctx, requested)
	defer func() {
		rep = r.report
		r.end(ctx, historyID, err)
	}()

	ix, err := c.prepare(ctx, st)
	if err != nil {
		return r.report, err
	}
	if reset := st.Verify(c.layout.Exists); len(reset) > 0 {
		log.Warn("status entries reset", "patterns", reset)
	}
	for _, kind := range []counts.Kind{counts.Absolute, counts.Continuation} {
		for _, p := range st.Patterns(kind, status.StageChunked) {
			if st.Stage(kind, p) == status.StageChunked && !c.layout.HasChunks(kind, p) {
				log.Warn("chunked pattern has no chunk files, resetting", "kind", kind.String(), "pattern", p.String())
				st.Set(kind, p, status.StageNone)
			}
		}
	}
	if err := st.Save(); err != nil {
		return r.report, err
	}

	r.chunker = chunker.New(ix, chunker.Options{
		BufferSize:      c.opts.BufferSize,
		ChannelCapacity: c.opts.ChannelCapacity,
		Codec:           c.opts.Codec,
		Tagged:          c.opts.Tagged,
	}, c.metrics)
	r.merger = merger.New(c.metrics)

	if err := r.absolute(ctx, abs.Sorted()); err != nil {
		return r.report, err
	}
	if err := r.continuation(ctx, cont.Sorted()); err != nil {
		return r.report, err
	}
	log.Info("counting finished",
		"absolute", len(abs),
		"continuation", len(cont),
		"tasks", r.report.TasksRun(),
		"waves", r.report.Waves,
	)
	return r.report, nil
}

func (r *run) begin(ctx context.Context, requested []pattern.Pattern) int64 {
	id, err := r.history.Start(ctx, runlog.Run{
		RunID:       r.id,
		WorkDir:     r.opts.WorkDir,
		Corpus:      r.opts.Corpus,
		Fingerprint: r.st.Corpus().Fingerprint,
		Patterns:    pattern.Strings(requested),
	})
	if err != nil {
		r.logger.Warn("recording run start failed", "error", err)
	}
	r.publish(ctx, events.Event{Type: events.RunStarted, Patterns: pattern.Strings(requested)})
	return id
}

func (r *run) end(ctx context.Context, historyID int64, runErr error) {
	outcome := runlog.Run{
		Status:      runlog.StatusSucceeded,
		TasksRun:    r.report.TasksRun(),
		Waves:       r.report.Waves,
		Fingerprint: r.st.Corpus().Fingerprint,
	}
	ev := events.Event{Type: events.RunFinished}
	if runErr != nil {
		outcome.Status = runlog.StatusFailed
		outcome.Error = runErr.Error()
		ev.Error = runErr.Error()
	}
	// The run context may already be cancelled; history should still land.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.history.Finish(finishCtx, historyID, outcome); err != nil {
		r.logger.Warn("recording run outcome failed", "error", err)
	}
	r.publish(finishCtx, ev)
}

func (r *run) publish(ctx context.Context, e events.Event) {
	e.RunID = r.id
	e.Time = time.Now().UTC()
	if err := r.events.Publish(ctx, e); err != nil {
		r.logger.Warn("publishing event failed", "type", e.Type, "error", err)
	}
}

// absolute runs the single absolute wave and refreshes the n-gram-times
// summary.
func (r *run) absolute(ctx context.Context, ps []pattern.Pattern) error {
	chunk := func(ctx context.Context, p pattern.Pattern) error {
		return r.chunker.ChunkAbsolute(ctx, r.layout.TrainingPath(), p, r.layout.ChunkDir(counts.Absolute, p))
	}
	merged, err := r.wave(ctx, counts.Absolute, 0, ps, chunk)
	if err != nil {
		return err
	}
	return r.refreshNGramTimes(merged)
}

// continuation runs waves until every continuation pattern is counted. A
// pattern is ready once its source is counted, so wave w holds the patterns
// w derivation steps away from an absolute pattern.
func (r *run) continuation(ctx context.Context, ps []pattern.Pattern) error {
	if len(ps) == 0 {
		return nil
	}
	maxDepth, err := r.plan.MaxDepth()
	if err != nil {
		return err
	}
	for wave := 1; ; wave++ {
		var ready []pattern.Pattern
		for _, p := range ps {
			if r.st.Stage(counts.Continuation, p) == status.StageCounted {
				continue
			}
			src, err := r.plan.Source(p)
			if err != nil {
				return err
			}
			if r.st.Stage(kindOf(src), src) == status.StageCounted {
				ready = append(ready, p)
			}
		}
		if len(ready) == 0 {
			break
		}
		if wave > maxDepth {
			return fmt.Errorf("continuation wave %d exceeds plan depth %d", wave, maxDepth)
		}
		chunk := func(ctx context.Context, p pattern.Pattern) error {
			src, err := r.plan.Source(p)
			if err != nil {
				return err
			}
			kind := kindOf(src)
			return r.chunker.ChunkContinuation(ctx, r.layout.FinalPath(kind, src), kind, p, r.layout.ChunkDir(counts.Continuation, p))
		}
		if _, err := r.wave(ctx, counts.Continuation, wave, ready, chunk); err != nil {
			return err
		}
	}
	if derr := apperrors.NewDependency("continuation",
		pattern.Strings(ps),
		pattern.Strings(r.st.Patterns(counts.Continuation, status.StageCounted)),
	); derr != nil {
		return derr
	}
	return nil
}

// wave runs the chunk phase and then the merge phase for ps, saving and
// validating the status after each. It returns the patterns merged.
func (r *run) wave(ctx context.Context, kind counts.Kind, wave int, ps []pattern.Pattern, chunk func(context.Context, pattern.Pattern) error) ([]pattern.Pattern, error) {
	start := time.Now()
	var toChunk, toMerge, counted []pattern.Pattern
	for _, p := range ps {
		switch r.st.Stage(kind, p) {
		case status.StageNone:
			toChunk = append(toChunk, p)
		case status.StageChunked:
			r.metrics.TasksSkippedTotal.WithLabelValues(phaseChunk, kind.String()).Inc()
		default:
			counted = append(counted, p)
			r.metrics.TasksSkippedTotal.WithLabelValues(phaseChunk, kind.String()).Inc()
			r.metrics.TasksSkippedTotal.WithLabelValues(phaseMerge, kind.String()).Inc()
		}
	}
	// A previous run may have stopped between recording a pattern as
	// counted and removing its chunks.
	r.removeChunks(kind, counted)
	r.metrics.PatternsPending.WithLabelValues(kind.String()).Set(float64(len(r.pending(kind, ps))))

	if len(toChunk) > 0 {
		if err := r.phase(ctx, phaseChunk, kind, toChunk, chunk); err != nil {
			return nil, err
		}
		for _, p := range toChunk {
			r.st.Set(kind, p, status.StageChunked)
		}
		if err := r.st.Save(); err != nil {
			return nil, err
		}
		r.report.ChunkTasks += len(toChunk)
		if err := r.validate(kind, phaseChunk, ps, status.StageChunked); err != nil {
			return nil, err
		}
		r.publish(ctx, events.Event{Type: events.PhaseCompleted, Kind: kind.String(), Phase: phaseChunk, Wave: wave, Patterns: pattern.Strings(toChunk)})
	}

	for _, p := range ps {
		if r.st.Stage(kind, p) == status.StageChunked {
			toMerge = append(toMerge, p)
		}
	}
	if len(toMerge) > 0 {
		merge := func(ctx context.Context, p pattern.Pattern) error {
			return r.merger.Merge(ctx, kind, p, r.layout.ChunkDir(kind, p), r.layout.FinalPath(kind, p))
		}
		if err := r.phase(ctx, phaseMerge, kind, toMerge, merge); err != nil {
			return nil, err
		}
		for _, p := range toMerge {
			r.st.Set(kind, p, status.StageCounted)
		}
		if err := r.st.Save(); err != nil {
			return nil, err
		}
		r.report.MergeTasks += len(toMerge)
		r.removeChunks(kind, toMerge)
		r.publish(ctx, events.Event{Type: events.PhaseCompleted, Kind: kind.String(), Phase: phaseMerge, Wave: wave, Patterns: pattern.Strings(toMerge)})
	}
	if err := r.validate(kind, phaseMerge, ps, status.StageCounted); err != nil {
		return nil, err
	}
	r.metrics.PatternsPending.WithLabelValues(kind.String()).Set(0)

	if len(toChunk)+len(toMerge) > 0 {
		r.report.Waves++
		r.metrics.WavesTotal.Inc()
		r.metrics.WaveDuration.Observe(time.Since(start).Seconds())
		r.logger.Info("wave finished",
			"kind", kind.String(),
			"wave", wave,
			"chunked", len(toChunk),
			"merged", len(toMerge),
			"duration", time.Since(start),
		)
	}
	return toMerge, nil
}

// removeChunks deletes the chunk directories of patterns whose counted stage
// is already saved. Chunks must outlive every status that still says
// chunked, otherwise a resumed merge could read a partial set.
func (r *run) removeChunks(kind counts.Kind, ps []pattern.Pattern) {
	if !r.opts.DeleteTempFiles {
		return
	}
	for _, p := range ps {
		if !r.layout.HasChunks(kind, p) {
			continue
		}
		if err := os.RemoveAll(r.layout.ChunkDir(kind, p)); err != nil {
			r.logger.Warn("removing chunk directory failed", "kind", kind.String(), "pattern", p.String(), "error", err)
		}
	}
}

func (r *run) pending(kind counts.Kind, ps []pattern.Pattern) []pattern.Pattern {
	var out []pattern.Pattern
	for _, p := range ps {
		if r.st.Stage(kind, p) != status.StageCounted {
			out = append(out, p)
		}
	}
	return out
}

// phase runs task for every pattern on at most Cores goroutines. The first
// failure cancels the rest.
func (r *run) phase(ctx context.Context, name string, kind counts.Kind, ps []pattern.Pattern, task func(context.Context, pattern.Pattern) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Cores)
	for _, p := range ps {
		p := p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			err := task(gctx, p)
			outcome := "ok"
			if err != nil {
				outcome = "error"
				if !errors.Is(err, context.Canceled) {
					r.logger.Error("task failed", "phase", name, "kind", kind.String(), "pattern", p.String(), "error", err)
				}
			}
			r.metrics.TasksTotal.WithLabelValues(name, kind.String(), outcome).Inc()
			r.metrics.TaskDuration.WithLabelValues(name, kind.String()).Observe(time.Since(start).Seconds())
			if err != nil {
				return fmt.Errorf("%s %s %s: %w", name, kind, p, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *run) validate(kind counts.Kind, phase string, ps []pattern.Pattern, st status.Stage) error {
	if derr := apperrors.NewDependency(kind.String()+" "+phase,
		pattern.Strings(ps),
		pattern.Strings(r.st.Patterns(kind, st)),
	); derr != nil {
		return derr
	}
	return nil
}

// refreshNGramTimes rewrites the summary when absolute counts changed or the
// summary does not cover every counted absolute pattern.
func (r *run) refreshNGramTimes(merged []pattern.Pattern) error {
	path := r.layout.NGramTimesPath()
	times, err := counts.ReadNGramTimes(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("ngramtimes unreadable, recomputing", "error", err)
		}
		times = make(map[pattern.Pattern]counts.NGramTimes)
	}
	changed := false
	fresh := pattern.NewSet(merged...)
	counted := pattern.NewSet(r.st.Patterns(counts.Absolute, status.StageCounted)...)
	for p := range times {
		if !counted.Has(p) {
			delete(times, p)
			changed = true
		}
	}
	for p := range counted {
		if _, ok := times[p]; ok && !fresh.Has(p) {
			continue
		}
		nt, err := counts.ComputeNGramTimes(r.layout.FinalPath(counts.Absolute, p))
		if err != nil {
			return err
		}
		times[p] = nt
		changed = true
	}
	if !changed {
		return nil
	}
	return counts.WriteNGramTimes(path, times)
}

func kindOf(p pattern.Pattern) counts.Kind {
	if p.IsAbsolute() {
		return counts.Absolute
	}
	return counts.Continuation
}
