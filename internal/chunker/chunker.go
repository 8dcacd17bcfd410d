// Package chunker turns the training file (for absolute patterns) or a
// source count file (for continuation patterns) into bucketed, sorted chunk
// files that the merger later folds into one final file per pattern.
//
// Each task runs a producer that decodes input into records and a consumer
// that buffers them per bucket; the two are connected by a bounded channel
// so a slow disk throttles the reader instead of growing memory.
package chunker

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/counts"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/pattern"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/wordindex"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/metrics"
)

// batchSize is the number of records sent over the channel at once.
const batchSize = 512

// Options tunes a Chunker.
type Options struct {
	// BufferSize caps the buffered bytes per task before buckets spill.
	BufferSize int64
	// ChannelCapacity bounds the producer/consumer channel, in batches.
	ChannelCapacity int
	Codec           counts.Codec
	// Tagged means training tokens are "word/TAG".
	Tagged bool
}

// Chunker writes chunk files for one pattern per call. It is safe for
// concurrent use by tasks working on different patterns.
type Chunker struct {
	index   *wordindex.Index
	opts    Options
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Chunker routing records through index. A nil m disables
// metrics.
func New(index *wordindex.Index, opts Options, m *metrics.Metrics) *Chunker {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 64 << 20
	}
	if opts.ChannelCapacity <= 0 {
		opts.ChannelCapacity = 64
	}
	if opts.Codec == "" {
		opts.Codec = counts.CodecNone
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Chunker{
		index:   index,
		opts:    opts,
		metrics: m,
		logger:  slog.Default().With("component", "chunker"),
	}
}

// ChunkAbsolute slides p over every line of the training file and writes
// pre-summed chunk files into outDir.
func (c *Chunker) ChunkAbsolute(ctx context.Context, trainingPath string, p pattern.Pattern, outDir string) error {
	if !p.IsAbsolute() {
		return fmt.Errorf("chunking %s: not an absolute pattern", p)
	}
	produce := func(ctx context.Context, emit func(record) error) error {
		f, err := os.Open(trainingPath)
		if err != nil {
			return fmt.Errorf("opening training file: %w", err)
		}
		defer f.Close()
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		n := p.Len()
		for sc.Scan() {
			tokens := tokenizer.Tokenize(sc.Text())
			for off := 0; off+n <= len(tokens); off++ {
				key, err := p.Apply(tokens, off, c.opts.Tagged)
				if err != nil {
					return err
				}
				if err := emit(record{key: key, value: 1}); err != nil {
					return err
				}
			}
		}
		if err := sc.Err(); err != nil {
			return fmt.Errorf("reading training file: %w", err)
		}
		return nil
	}
	return c.run(ctx, counts.Absolute, p, outDir, true, produce)
}

// ChunkContinuation derives continuation records for target from the final
// count file of its source, which has kind sourceKind.
func (c *Chunker) ChunkContinuation(ctx context.Context, sourcePath string, sourceKind counts.Kind, target pattern.Pattern, outDir string) error {
	proj, err := pattern.NewProjection(target)
	if err != nil {
		return err
	}
	produce := func(ctx context.Context, emit func(record) error) error {
		r, err := counts.Open(sourcePath, sourceKind.Fields(), true)
		if err != nil {
			return err
		}
		defer r.Close()
		for r.Next() {
			key, srcTokens, err := proj.Project(r.Sequence())
			if err != nil {
				return fmt.Errorf("%s:%d: %w", r.Path(), r.Line(), err)
			}
			v, ok := contribution(proj, sourceKind, key, srcTokens, r.Value())
			if !ok {
				continue
			}
			if err := emit(record{key: key, value: v}); err != nil {
				return err
			}
		}
		return r.Err()
	}
	return c.run(ctx, counts.Continuation, target, outDir, false, produce)
}

// contribution decides what one source record adds to the target sequence
// key. raw is the source's first count field: the total for an absolute
// source, OnePlus for a continuation source.
//
// A source sequence starting with the boundary marker counts as a new
// context on its own: it contributes its raw count when the boundary is the
// collapsed position, and nothing otherwise. A lone collapsed boundary is
// never counted, and "<s>" preceded by a collapsed boundary contributes zero.
func contribution(proj pattern.Projection, sourceKind counts.Kind, key string, srcTokens []string, raw int64) (int64, bool) {
	if srcTokens[0] == tokenizer.Boundary {
		if !proj.DropsFirst() || len(srcTokens) == 1 {
			return 0, false
		}
		if len(proj.Keep) == 2 && proj.Keep[1] && key == tokenizer.SentenceBegin {
			return 0, true
		}
		return raw, true
	}
	if sourceKind == counts.Absolute {
		return 1, true
	}
	return raw, true
}

type producer func(ctx context.Context, emit func(record) error) error

func (c *Chunker) run(ctx context.Context, kind counts.Kind, p pattern.Pattern, outDir string, presum bool, produce producer) (err error) {
	start := time.Now()
	logger := c.logger.With("kind", kind.String(), "pattern", p.String())
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.RemoveAll(outDir); err != nil {
		return fmt.Errorf("clearing chunk directory: %w", err)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("creating chunk directory: %w", err)
	}
	defer func() {
		if err != nil {
			if rmErr := os.RemoveAll(outDir); rmErr != nil {
				logger.Error("removing partial chunks failed", "dir", outDir, "error", rmErr)
			}
		}
	}()

	sink := newBucketSink(outDir, c.index, c.opts.Codec, presum, c.opts.BufferSize)
	batches := make(chan []record, c.opts.ChannelCapacity)
	g, gctx := errgroup.WithContext(ctx)

	var produced int64
	g.Go(func() error {
		defer close(batches)
		batch := make([]record, 0, batchSize)
		emit := func(r record) error {
			batch = append(batch, r)
			if len(batch) < batchSize {
				return nil
			}
			select {
			case batches <- batch:
			case <-gctx.Done():
				return gctx.Err()
			}
			produced += int64(len(batch))
			batch = make([]record, 0, batchSize)
			return nil
		}
		if err := produce(gctx, emit); err != nil {
			return fmt.Errorf("producing %s records for %s: %w", kind, p, err)
		}
		if len(batch) > 0 {
			select {
			case batches <- batch:
			case <-gctx.Done():
				return gctx.Err()
			}
			produced += int64(len(batch))
		}
		return nil
	})

	g.Go(func() error {
		for batch := range batches {
			for _, r := range batch {
				if err := sink.add(r); err != nil {
					return fmt.Errorf("writing %s chunks for %s: %w", kind, p, err)
				}
			}
		}
		if err := gctx.Err(); err != nil {
			return err
		}
		if err := sink.close(); err != nil {
			return fmt.Errorf("writing %s chunks for %s: %w", kind, p, err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	c.metrics.RecordsChunked.WithLabelValues(kind.String()).Add(float64(produced))
	c.metrics.ChunkFlushesTotal.WithLabelValues(kind.String()).Add(float64(sink.flushes))
	logger.Info("pattern chunked",
		"records", produced,
		"chunk_files", sink.flushes,
		"duration", time.Since(start),
	)
	return nil
}
