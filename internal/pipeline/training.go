package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/status"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/wordindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/errors"
)

// prepare makes sure the training file and word index match the configured
// corpus, discarding every derived artifact when the corpus or the tokenizer
// settings changed since the last run.
func (c *Counter) prepare(ctx context.Context, st *status.Status) (*wordindex.Index, error) {
	want := status.TrainingUntagged
	if c.opts.Tagged {
		want = status.TrainingTagged
	}
	prep := status.Preparation{
		Boundaries: c.opts.SentenceBoundaries,
		Reserved:   c.opts.ReservedPolicy.String(),
		Tagged:     c.opts.Tagged,
	}

	if c.opts.Corpus != "" {
		fp, err := status.FingerprintFile(c.opts.Corpus)
		if err != nil {
			return nil, err
		}
		prev := st.Corpus()
		if prev.Fingerprint != "" && prev.Fingerprint != fp {
			c.logger.Warn("corpus changed, discarding derived data",
				"corpus", c.opts.Corpus,
				"previous", prev.Fingerprint,
				"current", fp,
			)
			if err := c.discardDerived(st); err != nil {
				return nil, err
			}
		}
		st.SetCorpus(status.Corpus{Path: c.opts.Corpus, Fingerprint: fp})
	}

	have := st.Training()
	if have != status.TrainingNone && (have != want || st.Preparation() != prep) {
		c.logger.Warn("training settings changed, discarding derived data",
			"previous_training", have,
			"current_training", want,
			"previous_boundaries", st.Preparation().Boundaries,
			"current_boundaries", prep.Boundaries,
			"previous_reserved", st.Preparation().Reserved,
			"current_reserved", prep.Reserved,
		)
		if err := c.discardDerived(st); err != nil {
			return nil, err
		}
		have = status.TrainingNone
	}
	if _, err := os.Stat(c.layout.TrainingPath()); have != status.TrainingNone && err != nil {
		c.logger.Warn("training file missing, rebuilding", "path", c.layout.TrainingPath())
		if err := c.discardDerived(st); err != nil {
			return nil, err
		}
		have = status.TrainingNone
	}
	if have == status.TrainingNone {
		if c.opts.Corpus == "" {
			return nil, fmt.Errorf("%w: no corpus configured and no training data in %s", apperrors.ErrInvalidInput, c.opts.WorkDir)
		}
		lines, err := c.writeTraining(ctx)
		if err != nil {
			return nil, err
		}
		if err := os.Remove(c.layout.IndexPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("removing stale word index: %w", err)
		}
		st.SetTraining(want)
		st.SetPreparation(prep)
		if err := st.Save(); err != nil {
			return nil, err
		}
		c.logger.Info("training data prepared", "lines", lines, "tagged", c.opts.Tagged)
	}

	ix, err := wordindex.Load(c.layout.IndexPath())
	if err == nil {
		return ix, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	f, err := os.Open(c.layout.TrainingPath())
	if err != nil {
		return nil, fmt.Errorf("opening training file: %w", err)
	}
	defer f.Close()
	ix, err = wordindex.Build(f, c.opts.Buckets, c.opts.Tagged)
	if err != nil {
		return nil, err
	}
	if err := ix.Save(c.layout.IndexPath()); err != nil {
		return nil, err
	}
	return ix, nil
}

// discardDerived removes every corpus-dependent artifact and forgets all
// progress.
func (c *Counter) discardDerived(st *status.Status) error {
	for _, path := range c.layout.derived() {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("removing %s: %w", path, err)
		}
	}
	st.Reset()
	return st.Save()
}

// writeTraining copies the corpus into the training file, one prepared
// sentence per line, skipping empty lines.
func (c *Counter) writeTraining(ctx context.Context) (int, error) {
	in, err := os.Open(c.opts.Corpus)
	if err != nil {
		return 0, fmt.Errorf("opening corpus: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(c.opts.WorkDir, 0755); err != nil {
		return 0, fmt.Errorf("creating working directory: %w", err)
	}
	path := c.layout.TrainingPath()
	tmp := path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("creating temp training file: %w", err)
	}
	fail := func(err error) (int, error) {
		out.Close()
		os.Remove(tmp)
		return 0, err
	}

	opts := tokenizer.Options{
		Boundaries: c.opts.SentenceBoundaries,
		Policy:     c.opts.ReservedPolicy,
		Tagged:     c.opts.Tagged,
	}
	w := bufio.NewWriterSize(out, 256*1024)
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo, written := 0, 0
	for sc.Scan() {
		lineNo++
		if lineNo%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return fail(err)
			}
		}
		tokens, err := tokenizer.Prepare(sc.Text(), opts)
		if err != nil {
			return fail(fmt.Errorf("%s:%d: %w", c.opts.Corpus, lineNo, err))
		}
		if len(tokens) == 0 {
			continue
		}
		w.WriteString(strings.Join(tokens, " "))
		w.WriteByte('\n')
		written++
	}
	if err := sc.Err(); err != nil {
		return fail(fmt.Errorf("reading corpus: %w", err))
	}
	if err := w.Flush(); err != nil {
		return fail(fmt.Errorf("writing training file: %w", err))
	}
	if err := out.Sync(); err != nil {
		return fail(fmt.Errorf("syncing training file: %w", err))
	}
	out.Close()
	if err := os.Rename(tmp, path); err != nil {
		return 0, fmt.Errorf("renaming training file: %w", err)
	}
	return written, nil
}
