package pipeline

import (
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/counts"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/pattern"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/internal/wordindex"
)

// Layout names every artifact inside the working directory:
//
//	<workDir>/training                    prepared corpus
//	<workDir>/index.txt                   word index
//	<workDir>/status.yaml                 progress
//	<workDir>/ngramtimes                  n-gram-times summary
//	<workDir>/absolute/<pattern>          final absolute counts
//	<workDir>/continuation/<pattern>      final continuation counts
//	<workDir>/<kind>.tmp/<pattern>/       chunk files of one pattern
type Layout struct {
	WorkDir string
}

// TrainingPath is the prepared corpus.
func (l Layout) TrainingPath() string {
	return filepath.Join(l.WorkDir, "training")
}

// IndexPath is the word index file.
func (l Layout) IndexPath() string {
	return filepath.Join(l.WorkDir, wordindex.FileName)
}

// NGramTimesPath is the n-gram-times summary.
func (l Layout) NGramTimesPath() string {
	return filepath.Join(l.WorkDir, counts.NGramTimesFileName)
}

// FinalDir holds the final files of kind.
func (l Layout) FinalDir(kind counts.Kind) string {
	return filepath.Join(l.WorkDir, kind.String())
}

// FinalPath is the final count file of p.
func (l Layout) FinalPath(kind counts.Kind, p pattern.Pattern) string {
	return filepath.Join(l.FinalDir(kind), p.String())
}

// ChunkDir holds the chunk files of p while it is being counted.
func (l Layout) ChunkDir(kind counts.Kind, p pattern.Pattern) string {
	return filepath.Join(l.WorkDir, kind.String()+".tmp", p.String())
}

// Exists reports whether the final file of p is present.
func (l Layout) Exists(kind counts.Kind, p pattern.Pattern) bool {
	info, err := os.Stat(l.FinalPath(kind, p))
	return err == nil && !info.IsDir()
}

// HasChunks reports whether the chunk directory of p is present.
func (l Layout) HasChunks(kind counts.Kind, p pattern.Pattern) bool {
	info, err := os.Stat(l.ChunkDir(kind, p))
	return err == nil && info.IsDir()
}

// derived lists every path that depends on the corpus.
func (l Layout) derived() []string {
	return []string{
		l.TrainingPath(),
		l.IndexPath(),
		l.NGramTimesPath(),
		l.FinalDir(counts.Absolute),
		l.FinalDir(counts.Continuation),
		filepath.Join(l.WorkDir, counts.Absolute.String()+".tmp"),
		filepath.Join(l.WorkDir, counts.Continuation.String()+".tmp"),
	}
}
