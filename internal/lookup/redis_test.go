package lookup

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/counts"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/pattern"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/redis"
)

func redisLookup(t *testing.T) *Redis {
	t.Helper()
	cfg := config.Default().Redis
	if addr := os.Getenv("NGC_REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	cfg.KeyPrefix = fmt.Sprintf("ngramtest:%d:", time.Now().UnixNano())
	cfg.TTL = time.Minute

	ctx := context.Background()
	client, err := pkgredis.NewClient(ctx, cfg)
	if err != nil {
		t.Skipf("redis not available at %s: %v", cfg.Addr, err)
	}
	r := NewRedis(client, cfg)
	t.Cleanup(func() {
		r.Invalidate(context.Background())
		client.Close()
	})
	return r
}

func TestRedisServesPublishedCounts(t *testing.T) {
	r := redisLookup(t)
	ctx := context.Background()
	dir := fixture(t)
	l := pipeline.Layout{WorkDir: dir}
	p11, x1 := pattern.MustParse("11"), pattern.MustParse("x1")

	n, err := r.Publish(ctx, l, counts.Absolute, p11)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
	_, err = r.Publish(ctx, l, counts.Continuation, x1)
	require.NoError(t, err)
	times, err := counts.ReadNGramTimes(l.NGramTimesPath())
	require.NoError(t, err)
	require.NoError(t, r.PublishNGramTimes(ctx, times))

	mem := NewMemory(dir)
	defer mem.Close()
	for _, seq := range []string{"a b", "b c", "c d", "missing"} {
		want, err := mem.Absolute(ctx, p11, seq)
		require.NoError(t, err)
		got, err := r.Absolute(ctx, p11, seq)
		require.NoError(t, err)
		require.Equal(t, want, got, seq)
	}
	c, err := r.Continuation(ctx, x1, "b")
	require.NoError(t, err)
	require.Equal(t, counts.Counts{OnePlus: 5, Two: 2, ThreePlus: 3}, c)

	nt, err := r.NGramTimesForOrder(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, counts.NGramTimes{One: 1, Two: 1, FourPlus: 1}, nt)

	_, err = r.NGramTimesForOrder(ctx, 4)
	require.ErrorIs(t, err, apperrors.ErrPatternNotLoaded)

	hits, misses := r.Stats()
	require.Equal(t, int64(4), hits)
	require.Equal(t, int64(1), misses)

	deleted, err := r.Invalidate(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), deleted)
}

func TestCountsEncoding(t *testing.T) {
	c := counts.Counts{OnePlus: 9, One: 1, Two: 2, ThreePlus: 6}
	got, err := decodeCounts(encodeCounts(c))
	require.NoError(t, err)
	require.Equal(t, c, got)

	_, err = decodeCounts("1 2")
	require.Error(t, err)
}
