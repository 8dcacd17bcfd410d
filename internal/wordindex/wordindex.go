// Package wordindex partitions the vocabulary into buckets of roughly equal
// token mass. The chunker routes every sequence to the bucket of its first
// token, so chunk files stay small and bounded in number.
package wordindex

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/errors"
)

// FileName is the index file name inside the working directory.
const FileName = "index.txt"

// Index is an immutable sorted list of index terms.
type Index struct {
	terms []string
}

// New wraps already sorted, distinct terms.
func New(terms []string) (*Index, error) {
	for i := 1; i < len(terms); i++ {
		if terms[i-1] >= terms[i] {
			return nil, fmt.Errorf("%w: index terms not strictly ascending at %d (%q >= %q)",
				apperrors.ErrInvalidInput, i, terms[i-1], terms[i])
		}
	}
	return &Index{terms: append([]string(nil), terms...)}, nil
}

// Build counts token frequencies in r (one sentence per line) and picks up to
// buckets index terms: the sorted vocabulary is cut into ranges of about
// total/buckets tokens and the first term of every range becomes an index
// term. Tagged corpora are indexed on words and tags alike, since either can
// lead a sequence.
func Build(r io.Reader, buckets int, tagged bool) (*Index, error) {
	if buckets < 1 {
		return nil, fmt.Errorf("%w: buckets must be >= 1, got %d", apperrors.ErrInvalidInput, buckets)
	}
	freq := make(map[string]int64)
	var total int64
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		for _, tok := range tokenizer.Tokenize(sc.Text()) {
			if tagged {
				word, tag := tokenizer.SplitTagged(tok)
				freq[word]++
				freq[tag]++
				total += 2
				continue
			}
			freq[tok]++
			total++
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading training data: %w", err)
	}

	vocab := make([]string, 0, len(freq))
	for term := range freq {
		vocab = append(vocab, term)
	}
	sort.Strings(vocab)

	step := total / int64(buckets)
	if step < 1 {
		step = 1
	}
	terms := make([]string, 0, buckets)
	var mass int64
	next := int64(0)
	for _, term := range vocab {
		if mass >= next && len(terms) < buckets {
			terms = append(terms, term)
			next = mass + step
		}
		mass += freq[term]
	}
	slog.Default().With("component", "word-index").Info("word index built",
		"vocabulary", len(vocab),
		"tokens", total,
		"index_terms", len(terms),
	)
	return &Index{terms: terms}, nil
}

// Load reads an index file written by Save. Only the first tab-separated
// field of each line is used.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening word index: %w", err)
	}
	defer f.Close()
	var terms []string
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		term, _, _ := strings.Cut(sc.Text(), "\t")
		if term == "" {
			return nil, apperrors.NewFileFormat(path, line, sc.Text(), "empty index term")
		}
		if n := len(terms); n > 0 && terms[n-1] >= term {
			return nil, apperrors.NewFileFormat(path, line, sc.Text(), "index terms not ascending")
		}
		terms = append(terms, term)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading word index: %w", err)
	}
	return &Index{terms: terms}, nil
}

// Save writes the index to path through a temporary file and a rename.
func (ix *Index) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating word index directory: %w", err)
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp word index: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, term := range ix.terms {
		w.WriteString(term)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing word index: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing word index: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming word index: %w", err)
	}
	return nil
}

// Len returns the number of index terms, which is also the number of buckets.
func (ix *Index) Len() int {
	return len(ix.terms)
}

// Terms returns a copy of the index terms.
func (ix *Index) Terms() []string {
	return append([]string(nil), ix.terms...)
}

// Rank returns the bucket of term. An index term maps to its own position;
// any other term maps to the midpoint of the final search bounds, which is
// always within [0, Len-1]. An empty index ranks everything 0.
func (ix *Index) Rank(term string) int {
	lo, hi := 0, len(ix.terms)-1
	for lo <= hi {
		mid := lo + (hi-lo)/2
		switch {
		case term < ix.terms[mid]:
			hi = mid - 1
		case term > ix.terms[mid]:
			lo = mid + 1
		default:
			return mid
		}
	}
	r := (lo + hi) / 2
	if r < 0 {
		return 0
	}
	return r
}
