// Package status persists pipeline progress in the working directory. Every
// pattern has a stage per count kind, and the file is rewritten atomically
// after each phase so an interrupted run resumes where it stopped.
//
// On-disk format (status.yaml):
//
//	version: 1
//	corpus:
//	  path: corpus.txt
//	  fingerprint: 3f1c0a9e5d2b7c41
//	training: untagged
//	preparation:
//	  boundaries: true
//	  reserved: escape
//	  tagged: false
//	absolute:
//	  "11": counted
//	continuation:
//	  x1: chunked
//	checksum: 9a7d3e2f01b4c6d8
//
// The checksum is the xxhash64 of the document encoded with an empty checksum.
package status

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/cespare/xxhash/v2"
	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"

	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/counts"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/pattern"
	apperrors "github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/errors"
)

const (
	// FileName is the status file inside the working directory.
	FileName = "status.yaml"
	// LockName is the lock file guarding the working directory.
	LockName = "LOCK"
	// Version is the schema version this package reads and writes.
	Version = 1
)

// Stage is how far a pattern got for one count kind.
type Stage string

const (
	StageNone    Stage = "none"
	StageChunked Stage = "chunked"
	StageCounted Stage = "counted"
)

func (s Stage) rank() int {
	switch s {
	case StageChunked:
		return 1
	case StageCounted:
		return 2
	}
	return 0
}

// AtLeast reports whether s is o or a later stage.
func (s Stage) AtLeast(o Stage) bool {
	return s.rank() >= o.rank()
}

// Training records whether the training copy of the corpus exists and
// whether it carries POS tags.
type Training string

const (
	TrainingNone     Training = "none"
	TrainingUntagged Training = "untagged"
	TrainingTagged   Training = "tagged"
)

// Corpus identifies the input the working directory was derived from.
type Corpus struct {
	Path        string `yaml:"path"`
	Fingerprint string `yaml:"fingerprint"`
}

// Preparation records the tokenizer settings the training file was built
// with. Counts derived under different settings are not comparable.
type Preparation struct {
	Boundaries bool   `yaml:"boundaries"`
	Reserved   string `yaml:"reserved"`
	Tagged     bool   `yaml:"tagged"`
}

type document struct {
	Version      int              `yaml:"version"`
	Corpus       Corpus           `yaml:"corpus"`
	Training     Training         `yaml:"training"`
	Preparation  Preparation      `yaml:"preparation"`
	Absolute     map[string]Stage `yaml:"absolute"`
	Continuation map[string]Stage `yaml:"continuation"`
	Checksum     string           `yaml:"checksum"`
}

func newDocument() document {
	return document{
		Version:      Version,
		Training:     TrainingNone,
		Absolute:     make(map[string]Stage),
		Continuation: make(map[string]Stage),
	}
}

// Status is the in-memory view of status.yaml plus the working-directory
// lock. Only the scheduler goroutine mutates it.
type Status struct {
	dir    string
	path   string
	lock   *flock.Flock
	doc    document
	logger *slog.Logger
}

// Open locks workDir and loads its status file, starting empty when there is
// none. A second Open on the same directory fails with ErrWorkDirLocked until
// the first is closed.
func Open(workDir string) (*Status, error) {
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, fmt.Errorf("creating working directory: %w", err)
	}
	l := flock.New(filepath.Join(workDir, LockName))
	locked, err := l.TryLock()
	if err != nil {
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrWorkDirLocked, workDir)
		}
		return nil, fmt.Errorf("locking working directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrWorkDirLocked, workDir)
	}
	s := &Status{
		dir:    workDir,
		path:   filepath.Join(workDir, FileName),
		lock:   l,
		doc:    newDocument(),
		logger: slog.Default().With("component", "status"),
	}
	if err := s.load(); err != nil {
		l.Unlock()
		return nil, err
	}
	return s, nil
}

func (s *Status) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Info("no status file, starting fresh", "path", s.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading status file: %w", err)
	}
	doc := newDocument()
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %s: %v", apperrors.ErrStatusCorrupt, s.path, err)
	}
	if doc.Version != Version {
		return fmt.Errorf("%w: %s: schema version %d, want %d", apperrors.ErrStatusCorrupt, s.path, doc.Version, Version)
	}
	want := doc.Checksum
	got, err := checksum(doc)
	if err != nil {
		return err
	}
	if want != got {
		return fmt.Errorf("%w: %s: checksum %s, computed %s", apperrors.ErrStatusCorrupt, s.path, want, got)
	}
	if doc.Absolute == nil {
		doc.Absolute = make(map[string]Stage)
	}
	if doc.Continuation == nil {
		doc.Continuation = make(map[string]Stage)
	}
	for _, m := range []map[string]Stage{doc.Absolute, doc.Continuation} {
		for key, stage := range m {
			if _, err := pattern.Parse(key); err != nil {
				return fmt.Errorf("%w: %s: %v", apperrors.ErrStatusCorrupt, s.path, err)
			}
			switch stage {
			case StageNone, StageChunked, StageCounted:
			default:
				return fmt.Errorf("%w: %s: pattern %s has unknown stage %q", apperrors.ErrStatusCorrupt, s.path, key, stage)
			}
		}
	}
	s.doc = doc
	s.logger.Info("status loaded",
		"absolute", len(doc.Absolute),
		"continuation", len(doc.Continuation),
		"training", doc.Training,
	)
	return nil
}

func checksum(doc document) (string, error) {
	doc.Checksum = ""
	data, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encoding status: %w", err)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(data)), nil
}

// Save writes the status through a temp file, fsync and rename.
func (s *Status) Save() error {
	sum, err := checksum(s.doc)
	if err != nil {
		return err
	}
	s.doc.Checksum = sum
	data, err := yaml.Marshal(s.doc)
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating temp status file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing status: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("syncing status: %w", err)
	}
	f.Close()
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("renaming status file: %w", err)
	}
	return nil
}

// Close releases the working-directory lock. The status is not saved.
func (s *Status) Close() error {
	if s.lock == nil {
		return nil
	}
	err := s.lock.Unlock()
	s.lock = nil
	if err != nil {
		return fmt.Errorf("unlocking working directory: %w", err)
	}
	return nil
}

// Dir returns the working directory.
func (s *Status) Dir() string { return s.dir }

func (s *Status) stages(kind counts.Kind) map[string]Stage {
	if kind == counts.Continuation {
		return s.doc.Continuation
	}
	return s.doc.Absolute
}

// Stage returns the recorded stage of p, StageNone when unknown.
func (s *Status) Stage(kind counts.Kind, p pattern.Pattern) Stage {
	if st, ok := s.stages(kind)[p.String()]; ok {
		return st
	}
	return StageNone
}

// Set records the stage of p. StageNone removes the entry.
func (s *Status) Set(kind counts.Kind, p pattern.Pattern, st Stage) {
	m := s.stages(kind)
	if st == StageNone {
		delete(m, p.String())
		return
	}
	m[p.String()] = st
}

// Patterns returns the patterns of kind whose stage is at least st, sorted.
func (s *Status) Patterns(kind counts.Kind, st Stage) []pattern.Pattern {
	var out []pattern.Pattern
	for key, have := range s.stages(kind) {
		if have.AtLeast(st) {
			out = append(out, pattern.MustParse(key))
		}
	}
	pattern.Sort(out)
	return out
}

// Training returns the training state.
func (s *Status) Training() Training {
	if s.doc.Training == "" {
		return TrainingNone
	}
	return s.doc.Training
}

// SetTraining records the training state.
func (s *Status) SetTraining(t Training) {
	s.doc.Training = t
}

// Preparation returns the settings the training file was built with.
func (s *Status) Preparation() Preparation { return s.doc.Preparation }

// SetPreparation records the settings the training file was built with.
func (s *Status) SetPreparation(p Preparation) { s.doc.Preparation = p }

// Corpus returns the recorded corpus identity.
func (s *Status) Corpus() Corpus { return s.doc.Corpus }

// SetCorpus records the corpus identity.
func (s *Status) SetCorpus(c Corpus) { s.doc.Corpus = c }

// Reset forgets every stage, the training state and its preparation
// settings. The corpus identity is kept.
func (s *Status) Reset() {
	c := s.doc.Corpus
	s.doc = newDocument()
	s.doc.Corpus = c
}

// Verify resets counted patterns whose final file is missing, as reported by
// exists, and returns what it reset.
func (s *Status) Verify(exists func(kind counts.Kind, p pattern.Pattern) bool) []string {
	var reset []string
	for _, kind := range []counts.Kind{counts.Absolute, counts.Continuation} {
		m := s.stages(kind)
		keys := make([]string, 0, len(m))
		for key := range m {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if m[key] != StageCounted || exists(kind, pattern.MustParse(key)) {
				continue
			}
			delete(m, key)
			reset = append(reset, kind.String()+"/"+key)
			s.logger.Warn("counted pattern has no final file, resetting",
				"kind", kind.String(),
				"pattern", key,
			)
		}
	}
	return reset
}

// FingerprintFile hashes the contents of path.
func FingerprintFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening corpus: %w", err)
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing corpus: %w", err)
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}
