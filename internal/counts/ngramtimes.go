package counts

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/pattern"
	apperrors "github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/errors"
)

// NGramTimesFileName is the summary file name inside the working directory.
const NGramTimesFileName = "ngramtimes"

// ComputeNGramTimes scans a final absolute count file.
func ComputeNGramTimes(path string) (NGramTimes, error) {
	r, err := Open(path, 2, true)
	if err != nil {
		return NGramTimes{}, err
	}
	defer r.Close()
	var nt NGramTimes
	for r.Next() {
		nt.Observe(r.Value())
	}
	if err := r.Err(); err != nil {
		return NGramTimes{}, err
	}
	return nt, nil
}

// WriteNGramTimes writes one "<pattern>\t<n1>\t<n2>\t<n3>\t<n4>" line per
// pattern in pattern order, through a temp file and a rename.
func WriteNGramTimes(path string, times map[pattern.Pattern]NGramTimes) error {
	ps := make([]pattern.Pattern, 0, len(times))
	for p := range times {
		ps = append(ps, p)
	}
	pattern.Sort(ps)

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating temp ngramtimes file: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, p := range ps {
		nt := times[p]
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", p, nt.One, nt.Two, nt.Three, nt.FourPlus)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing ngramtimes: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("syncing ngramtimes: %w", err)
	}
	f.Close()
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming ngramtimes: %w", err)
	}
	return nil
}

// ReadNGramTimes parses a file written by WriteNGramTimes.
func ReadNGramTimes(path string) (map[pattern.Pattern]NGramTimes, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening ngramtimes: %w", err)
	}
	defer f.Close()

	out := make(map[pattern.Pattern]NGramTimes)
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		parts := strings.Split(text, "\t")
		if len(parts) != 5 {
			return nil, apperrors.NewFileFormat(path, line, text, "expected 5 fields, got %d", len(parts))
		}
		p, err := pattern.Parse(parts[0])
		if err != nil {
			return nil, apperrors.NewFileFormat(path, line, text, "%v", err)
		}
		var vals [4]int64
		for i, s := range parts[1:] {
			v, err := strconv.ParseInt(s, 10, 64)
			if err != nil || v < 0 {
				return nil, apperrors.NewFileFormat(path, line, text, "field %d is not a count", i+2)
			}
			vals[i] = v
		}
		out[p] = NGramTimes{One: vals[0], Two: vals[1], Three: vals[2], FourPlus: vals[3]}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading ngramtimes: %w", err)
	}
	return out, nil
}
