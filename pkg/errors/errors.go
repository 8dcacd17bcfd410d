package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrFileFormat       = errors.New("file format error")
	ErrDependency       = errors.New("dependency validation failed")
	ErrInvalidPattern   = errors.New("invalid pattern")
	ErrReservedToken    = errors.New("reserved token in corpus")
	ErrTaggingRequired  = errors.New("patterns require a POS-tagged corpus")
	ErrWorkDirLocked    = errors.New("working directory is locked by another run")
	ErrStatusCorrupt    = errors.New("status file is corrupt")
	ErrPatternNotLoaded = errors.New("pattern not loaded")
	ErrInvalidInput     = errors.New("invalid input")
)

// FileFormatError reports a count, chunk or index line that does not have the
// expected shape. Counts must be exact, so callers never skip such lines.
type FileFormatError struct {
	Path    string
	Line    int
	Content string
	Reason  string
}

func (e *FileFormatError) Error() string {
	return fmt.Sprintf("%s:%d: %s (line %q)", e.Path, e.Line, e.Reason, e.Content)
}

func (e *FileFormatError) Unwrap() error {
	return ErrFileFormat
}

func NewFileFormat(path string, line int, content string, format string, args ...any) *FileFormatError {
	return &FileFormatError{
		Path:    path,
		Line:    line,
		Content: content,
		Reason:  fmt.Sprintf(format, args...),
	}
}

// DependencyError reports that a chunk or merge phase finished without the
// status covering every pattern it was asked to produce.
type DependencyError struct {
	Phase    string
	Expected []string
	Computed []string
	Missing  []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s phase: expected [%s], computed [%s], missing [%s]",
		e.Phase,
		strings.Join(e.Expected, " "),
		strings.Join(e.Computed, " "),
		strings.Join(e.Missing, " "),
	)
}

func (e *DependencyError) Unwrap() error {
	return ErrDependency
}

// NewDependency builds a DependencyError from the expected and computed sets,
// or returns nil when nothing is missing.
func NewDependency(phase string, expected, computed []string) *DependencyError {
	have := make(map[string]struct{}, len(computed))
	for _, c := range computed {
		have[c] = struct{}{}
	}
	var missing []string
	for _, e := range expected {
		if _, ok := have[e]; !ok {
			missing = append(missing, e)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &DependencyError{
		Phase:    phase,
		Expected: sorted(expected),
		Computed: sorted(computed),
		Missing:  missing,
	}
}

func sorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

// ExitCode maps an error to the process exit status used by the CLI.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidPattern):
		return 2
	case errors.Is(err, ErrFileFormat), errors.Is(err, ErrStatusCorrupt):
		return 3
	case errors.Is(err, ErrDependency):
		return 4
	case errors.Is(err, ErrWorkDirLocked):
		return 5
	case errors.Is(err, ErrReservedToken), errors.Is(err, ErrTaggingRequired):
		return 6
	default:
		return 1
	}
}
