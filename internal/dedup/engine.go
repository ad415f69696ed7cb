// Package dedup decides which candidate images are new content worth keeping.
//
// Candidates are processed one at a time in source order. Each is compared
// against every image kept so far; the first kept image scoring above the
// similarity threshold makes it a duplicate. Non-duplicates must then pass
// the edge-density gate to be kept. Because the kept set grows during the
// run, the outcome depends on processing order.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/frame-curator/internal/quality"
	"github.com/kozaktomas/frame-curator/internal/source"
)

// Engine owns the kept set for a run. It is not safe for concurrent use.
type Engine struct {
	thresholds Thresholds
	scorer     quality.Scorer
	detector   quality.EdgeDetector
	sink       Sink
	observer   Observer
	workers    int
	now        func() time.Time

	kept []Kept
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver registers lifecycle callbacks.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithWorkers fans kept-set comparisons out over n goroutines. The
// lowest-index match still wins, so decisions match sequential mode.
// The scorer must then be safe for concurrent use.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = max(n, 1)
	}
}

// New validates thresholds and builds an engine.
func New(th Thresholds, scorer quality.Scorer, detector quality.EdgeDetector, sink Sink, opts ...Option) (*Engine, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}
	if scorer == nil || detector == nil || sink == nil {
		return nil, fmt.Errorf("%w: scorer, detector and sink are required", ErrConfig)
	}
	e := &Engine{
		thresholds: th,
		scorer:     scorer,
		detector:   detector,
		sink:       sink,
		observer:   nopObserver{},
		workers:    1,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Thresholds returns the run thresholds.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// Kept returns a copy of the kept set in insertion order.
func (e *Engine) Kept() []Kept {
	out := make([]Kept, len(e.kept))
	copy(out, e.kept)
	return out
}

// Decide classifies one candidate and, when accepted, appends it to the kept
// set and persists it. A sink failure is fatal and leaves the kept set
// unchanged.
func (e *Engine) Decide(c *source.Candidate) (Decision, error) {
	d := Decision{Path: c.Path, Name: c.Name}

	idx, score := e.firstMatch(c.Luma)
	d.Score = score
	if idx >= 0 {
		d.Outcome = OutcomeDuplicate
		d.MatchedWith = e.kept[idx].Path
		return d, nil
	}

	d.EdgeDensity = e.detector.Density(c.Luma)
	if d.EdgeDensity <= e.thresholds.Edge {
		d.Outcome = OutcomeLowDetail
		return d, nil
	}

	if err := e.sink.Persist(c); err != nil {
		d.Outcome = OutcomeError
		d.Err = err.Error()
		return d, fmt.Errorf("%w: %w", ErrResource, err)
	}
	e.kept = append(e.kept, Kept{Path: c.Path, Name: c.Name, Luma: c.Luma})
	d.Outcome = OutcomeAccepted
	return d, nil
}

// firstMatch returns the index of the first kept image scoring above the
// similarity threshold with its score, or -1 and the best score seen.
func (e *Engine) firstMatch(luma *image.Gray) (int, float64) {
	if e.workers > 1 && len(e.kept) > 1 {
		return e.firstMatchParallel(luma)
	}
	var best float64
	for i, k := range e.kept {
		score := e.scorer.Score(luma, k.Luma)
		if score > e.thresholds.Similarity {
			return i, score
		}
		best = max(best, score)
	}
	return -1, best
}

func (e *Engine) firstMatchParallel(luma *image.Gray) (int, float64) {
	n := len(e.kept)
	scores := make([]float64, n)
	var first atomic.Int64
	first.Store(int64(n))

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i := range n {
		g.Go(func() error {
			// A lower index already matched; this comparison cannot win.
			if int64(i) > first.Load() {
				return nil
			}
			score := e.scorer.Score(luma, e.kept[i].Luma)
			scores[i] = score
			if score <= e.thresholds.Similarity {
				return nil
			}
			for {
				cur := first.Load()
				if int64(i) >= cur || first.CompareAndSwap(cur, int64(i)) {
					return nil
				}
			}
		})
	}
	_ = g.Wait()

	if idx := int(first.Load()); idx < n {
		return idx, scores[idx]
	}
	var best float64
	for _, s := range scores {
		best = max(best, s)
	}
	return -1, best
}

// Run processes every candidate in order and returns the run report. Load
// errors are recorded and skipped. A listing or sink failure aborts the run
// with ErrResource; the partial report is still returned. The context is
// checked between candidates only.
func (e *Engine) Run(ctx context.Context, cands Candidates) (*Report, error) {
	e.kept = nil
	report := &Report{
		RunID:      uuid.NewString(),
		Thresholds: e.thresholds,
		StartedAt:  e.now(),
		Decisions:  []Decision{},
	}

	runErr := e.run(ctx, cands, report)

	report.FinishedAt = e.now()
	report.Kept = make([]string, len(e.kept))
	for i, k := range e.kept {
		report.Kept[i] = k.Path
	}
	e.observer.OnFinish(report.Summary, runErr)
	return report, runErr
}

func (e *Engine) run(ctx context.Context, cands Candidates, report *Report) error {
	total, err := cands.Count()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrResource, err)
	}
	e.observer.OnStart(total)

	idx := 0
	for c, loadErr := range cands.All() {
		if err := ctx.Err(); err != nil {
			return err
		}
		idx++

		var d Decision
		if loadErr != nil {
			var le *source.LoadError
			if !errors.As(loadErr, &le) {
				return fmt.Errorf("%w: %w", ErrResource, loadErr)
			}
			d = Decision{
				Path:    le.Path,
				Name:    filepath.Base(le.Path),
				Outcome: OutcomeError,
				Err:     le.Err.Error(),
			}
		} else {
			d, err = e.Decide(c)
			if err != nil {
				report.add(d)
				e.observer.OnDecision(idx, total, d)
				return err
			}
		}
		report.add(d)
		e.observer.OnDecision(idx, total, d)
	}
	return nil
}
