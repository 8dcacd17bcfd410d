package lookup

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/counts"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/pattern"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/redis"
)

const publishBatch = 1000

// Redis serves counts from one hash per pattern, so several estimator
// processes can share a working directory's counts without reading its
// files. Publish fills the hashes from final files.
type Redis struct {
	client *pkgredis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedis creates a Redis lookup using cfg.KeyPrefix and cfg.TTL.
func NewRedis(client *pkgredis.Client, cfg config.RedisConfig) *Redis {
	return &Redis{
		client: client,
		prefix: cfg.KeyPrefix,
		ttl:    cfg.TTL,
		logger: slog.Default().With("component", "lookup-redis"),
	}
}

func (r *Redis) key(kind counts.Kind, p pattern.Pattern) string {
	return r.prefix + kind.String() + ":" + p.String()
}

func (r *Redis) timesKey() string {
	return r.prefix + "ngramtimes"
}

// Publish replaces the hash of p with the contents of its final file and
// returns the number of sequences written.
func (r *Redis) Publish(ctx context.Context, l pipeline.Layout, kind counts.Kind, p pattern.Pattern) (int64, error) {
	src, err := Scan(l, kind, p)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	key := r.key(kind, p)
	if err := r.client.Del(ctx, key); err != nil {
		return 0, fmt.Errorf("clearing %s: %w", key, err)
	}
	var n int64
	batch := make(map[string]interface{}, publishBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := r.client.HSet(ctx, key, batch, r.ttl); err != nil {
			return err
		}
		batch = make(map[string]interface{}, publishBatch)
		return nil
	}
	for src.Next() {
		batch[src.Sequence()] = encodeCounts(src.Counts())
		n++
		if len(batch) == publishBatch {
			if err := flush(); err != nil {
				return n, err
			}
		}
	}
	if err := src.Err(); err != nil {
		return n, err
	}
	if err := flush(); err != nil {
		return n, err
	}
	r.logger.Debug("pattern published", "kind", kind.String(), "pattern", p.String(), "sequences", n)
	return n, nil
}

// PublishNGramTimes stores the summary of every absolute pattern.
func (r *Redis) PublishNGramTimes(ctx context.Context, times map[pattern.Pattern]counts.NGramTimes) error {
	if len(times) == 0 {
		return nil
	}
	fields := make(map[string]interface{}, len(times))
	for p, nt := range times {
		fields[p.String()] = fmt.Sprintf("%d %d %d %d", nt.One, nt.Two, nt.Three, nt.FourPlus)
	}
	return r.client.HSet(ctx, r.timesKey(), fields, r.ttl)
}

// Invalidate removes every key under the prefix.
func (r *Redis) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := r.client.FlushByPattern(ctx, r.prefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating lookup cache: %w", err)
	}
	r.logger.Info("lookup cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (r *Redis) get(ctx context.Context, kind counts.Kind, p pattern.Pattern, seq string) (counts.Counts, error) {
	if p.IsAbsolute() != (kind == counts.Absolute) {
		return counts.Counts{}, fmt.Errorf("%w: %s is not a %s pattern", apperrors.ErrInvalidPattern, p, kind)
	}
	key := r.key(kind, p)
	data, err := r.client.HGet(ctx, key, seq)
	if err != nil {
		if pkgredis.IsNilError(err) {
			r.misses.Add(1)
			return counts.Counts{}, nil
		}
		return counts.Counts{}, fmt.Errorf("reading %s: %w", key, err)
	}
	c, err := decodeCounts(data)
	if err != nil {
		return counts.Counts{}, fmt.Errorf("decoding %s[%q]: %w", key, seq, err)
	}
	r.hits.Add(1)
	return c, nil
}

func (r *Redis) Absolute(ctx context.Context, p pattern.Pattern, seq string) (counts.Counts, error) {
	return r.get(ctx, counts.Absolute, p, seq)
}

func (r *Redis) Continuation(ctx context.Context, p pattern.Pattern, seq string) (counts.Counts, error) {
	return r.get(ctx, counts.Continuation, p, seq)
}

func (r *Redis) NGramTimes(ctx context.Context, p pattern.Pattern) (counts.NGramTimes, error) {
	data, err := r.client.HGet(ctx, r.timesKey(), p.String())
	if err != nil {
		if pkgredis.IsNilError(err) {
			return counts.NGramTimes{}, fmt.Errorf("%w: ngramtimes of %s", apperrors.ErrPatternNotLoaded, p)
		}
		return counts.NGramTimes{}, fmt.Errorf("reading ngramtimes: %w", err)
	}
	var nt counts.NGramTimes
	if _, err := fmt.Sscanf(data, "%d %d %d %d", &nt.One, &nt.Two, &nt.Three, &nt.FourPlus); err != nil {
		return counts.NGramTimes{}, fmt.Errorf("decoding ngramtimes of %s: %w", p, err)
	}
	return nt, nil
}

func (r *Redis) NGramTimesForOrder(ctx context.Context, order int) (counts.NGramTimes, error) {
	p, err := orderPattern(order)
	if err != nil {
		return counts.NGramTimes{}, err
	}
	return r.NGramTimes(ctx, p)
}

// Stats returns how many point queries found a sequence and how many did not.
func (r *Redis) Stats() (hits, misses int64) {
	return r.hits.Load(), r.misses.Load()
}

func encodeCounts(c counts.Counts) string {
	return fmt.Sprintf("%d %d %d %d", c.OnePlus, c.One, c.Two, c.ThreePlus)
}

func decodeCounts(s string) (counts.Counts, error) {
	var c counts.Counts
	if _, err := fmt.Sscanf(s, "%d %d %d %d", &c.OnePlus, &c.One, &c.Two, &c.ThreePlus); err != nil {
		return counts.Counts{}, err
	}
	return c, nil
}
