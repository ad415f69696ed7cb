package dedup

import (
	"errors"
	"fmt"
	"image"
	"iter"
	"math"

	"github.com/kozaktomas/frame-curator/internal/source"
)

var (
	// ErrConfig marks invalid run configuration. It is raised before any
	// candidate is processed.
	ErrConfig = errors.New("invalid configuration")

	// ErrResource marks an input or output location that cannot be used.
	// It aborts the run.
	ErrResource = errors.New("resource unavailable")
)

// Thresholds are fixed for the duration of a run.
type Thresholds struct {
	// Similarity scores strictly above this mark a duplicate. Range (0, 1].
	Similarity float64 `json:"similarity_threshold" yaml:"similarity_threshold"`
	// Edge densities strictly above this pass the detail gate.
	Edge int `json:"edge_threshold" yaml:"edge_threshold"`
}

// Validate checks threshold ranges.
func (t Thresholds) Validate() error {
	if math.IsNaN(t.Similarity) || t.Similarity <= 0 || t.Similarity > 1 {
		return fmt.Errorf("%w: similarity threshold %v outside (0, 1]", ErrConfig, t.Similarity)
	}
	if t.Edge < 0 {
		return fmt.Errorf("%w: edge threshold %d is negative", ErrConfig, t.Edge)
	}
	return nil
}

// Outcome is the engine's verdict for one candidate.
type Outcome string

// Outcome values.
const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeLowDetail Outcome = "low_detail"
	OutcomeError     Outcome = "error"
)

// Decision records what happened to one candidate.
type Decision struct {
	Path        string  `json:"path"`
	Name        string  `json:"name"`
	Outcome     Outcome `json:"outcome"`
	MatchedWith string  `json:"matched_with,omitempty"` // kept image that caused a duplicate verdict
	Score       float64 `json:"score"`                  // matching score, or best score seen when unmatched
	EdgeDensity int     `json:"edge_density"`           // zero for duplicates, which are never measured
	Err         string  `json:"error,omitempty"`
}

// Summary counts outcomes for a run.
type Summary struct {
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
	LowDetail  int `json:"low_detail"`
	Errors     int `json:"errors"`
}

// Total returns the number of candidates seen.
func (s Summary) Total() int {
	return s.Accepted + s.Duplicates + s.LowDetail + s.Errors
}

func (s *Summary) add(o Outcome) {
	switch o {
	case OutcomeAccepted:
		s.Accepted++
	case OutcomeDuplicate:
		s.Duplicates++
	case OutcomeLowDetail:
		s.LowDetail++
	case OutcomeError:
		s.Errors++
	}
}

// Kept is a kept-set entry. Only the luminance is retained for later
// comparisons; the decoded pixels and file bytes are released.
type Kept struct {
	Path string
	Name string
	Luma *image.Gray
}

// Sink persists accepted candidates.
type Sink interface {
	Persist(c *source.Candidate) error
}

// Candidates is an ordered, countable candidate sequence.
type Candidates interface {
	Count() (int, error)
	All() iter.Seq2[*source.Candidate, error]
}

// Observer receives run lifecycle events. Calls happen on the run goroutine.
type Observer interface {
	OnStart(total int)
	OnDecision(idx, total int, d Decision)
	OnFinish(s Summary, err error)
}

type nopObserver struct{}

func (nopObserver) OnStart(int)                   {}
func (nopObserver) OnDecision(int, int, Decision) {}
func (nopObserver) OnFinish(Summary, error)       {}
