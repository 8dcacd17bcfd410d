package chunker

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/counts"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/wordindex"
)

// recordOverhead approximates the per-record memory beyond the key bytes.
const recordOverhead = 40

type record struct {
	key   string
	value int64
}

// bucketSink routes records to per-bucket buffers by the rank of their first
// token and spills a bucket to a sorted chunk file when the combined buffers
// exceed the memory limit. Each bucket file name carries a sequence number,
// so one sink is the only writer of every file it creates.
type bucketSink struct {
	dir     string
	index   *wordindex.Index
	codec   counts.Codec
	presum  bool
	limit   int64
	buckets map[int][]record
	seq     map[int]int
	used    int64
	flushes int
	logger  *slog.Logger
}

func newBucketSink(dir string, index *wordindex.Index, codec counts.Codec, presum bool, limit int64) *bucketSink {
	return &bucketSink{
		dir:     dir,
		index:   index,
		codec:   codec,
		presum:  presum,
		limit:   limit,
		buckets: make(map[int][]record),
		seq:     make(map[int]int),
		logger:  slog.Default().With("component", "bucket-sink", "dir", dir),
	}
}

func firstToken(key string) string {
	if i := strings.IndexByte(key, ' '); i >= 0 {
		return key[:i]
	}
	return key
}

func (s *bucketSink) add(r record) error {
	rank := s.index.Rank(firstToken(r.key))
	s.buckets[rank] = append(s.buckets[rank], r)
	s.used += int64(len(r.key)) + recordOverhead
	if s.used >= s.limit {
		return s.flushAll()
	}
	return nil
}

// flushAll spills every non-empty bucket.
func (s *bucketSink) flushAll() error {
	ranks := make([]int, 0, len(s.buckets))
	for rank := range s.buckets {
		ranks = append(ranks, rank)
	}
	sort.Ints(ranks)
	for _, rank := range ranks {
		if err := s.flush(rank); err != nil {
			return err
		}
	}
	s.used = 0
	return nil
}

func (s *bucketSink) flush(rank int) error {
	recs := s.buckets[rank]
	if len(recs) == 0 {
		return nil
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].key < recs[j].key })

	n := s.seq[rank]
	s.seq[rank] = n + 1
	path := filepath.Join(s.dir, fmt.Sprintf("bucket-%d-%d.chunk%s", rank, n, s.codec.Ext()))
	w, err := counts.Create(path, s.codec, s.presum)
	if err != nil {
		return err
	}
	for i := 0; i < len(recs); {
		r := recs[i]
		i++
		if s.presum {
			for i < len(recs) && recs[i].key == r.key {
				r.value += recs[i].value
				i++
			}
		}
		if err := w.WriteValue(r.key, r.value); err != nil {
			w.Abort()
			return err
		}
	}
	if err := w.Commit(); err != nil {
		return err
	}
	s.logger.Debug("bucket flushed", "bucket", rank, "records", len(recs), "written", w.Records())
	delete(s.buckets, rank)
	s.flushes++
	return nil
}

// close spills whatever is still buffered.
func (s *bucketSink) close() error {
	return s.flushAll()
}
