package dedup

import (
	"context"
	"errors"
	"image"
	"iter"
	"math"
	"slices"
	"sync/atomic"
	"testing"

	"github.com/kozaktomas/frame-curator/internal/source"
)

// testWorld wires fake scoring to named candidates. Each candidate gets its
// own luminance buffer so the fakes can recover the name from the pointer.
type testWorld struct {
	names   map[*image.Gray]string
	scores  map[[2]string]float64
	density map[string]int
	calls   atomic.Int64
}

func newTestWorld() *testWorld {
	return &testWorld{
		names:   make(map[*image.Gray]string),
		scores:  make(map[[2]string]float64),
		density: make(map[string]int),
	}
}

func (w *testWorld) candidate(name string, density int) *source.Candidate {
	luma := image.NewGray(image.Rect(0, 0, 1, 1))
	w.names[luma] = name
	w.density[name] = density
	return &source.Candidate{Path: "/in/" + name, Name: name, Data: []byte(name), Luma: luma}
}

func (w *testWorld) similar(a, b string, score float64) {
	w.scores[[2]string{a, b}] = score
	w.scores[[2]string{b, a}] = score
}

func (w *testWorld) Score(a, b *image.Gray) float64 {
	w.calls.Add(1)
	if a == b {
		return 1
	}
	if s, ok := w.scores[[2]string{w.names[a], w.names[b]}]; ok {
		return s
	}
	return 0.1
}

func (w *testWorld) Density(g *image.Gray) int {
	return w.density[w.names[g]]
}

type recordingSink struct {
	persisted []string
	failOn    string
}

func (s *recordingSink) Persist(c *source.Candidate) error {
	if c.Name == s.failOn {
		return errors.New("disk full")
	}
	s.persisted = append(s.persisted, c.Name)
	return nil
}

type item struct {
	c   *source.Candidate
	err error
}

type fakeCandidates struct {
	items    []item
	countErr error
}

func (f *fakeCandidates) Count() (int, error) {
	return len(f.items), f.countErr
}

func (f *fakeCandidates) All() iter.Seq2[*source.Candidate, error] {
	return func(yield func(*source.Candidate, error) bool) {
		for _, it := range f.items {
			if !yield(it.c, it.err) {
				return
			}
		}
	}
}

func ordered(cands ...*source.Candidate) *fakeCandidates {
	f := &fakeCandidates{}
	for _, c := range cands {
		f.items = append(f.items, item{c: c})
	}
	return f
}

func defaultThresholds() Thresholds {
	return Thresholds{Similarity: 0.95, Edge: 100}
}

func newEngine(t *testing.T, w *testWorld, th Thresholds, sink Sink, opts ...Option) *Engine {
	t.Helper()
	e, err := New(th, w, w, sink, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return e
}

func keptNames(e *Engine) []string {
	var names []string
	for _, k := range e.Kept() {
		names = append(names, k.Name)
	}
	return names
}

func outcomes(r *Report) []Outcome {
	var out []Outcome
	for _, d := range r.Decisions {
		out = append(out, d.Outcome)
	}
	return out
}

func TestThresholds_Validate(t *testing.T) {
	tests := []struct {
		name    string
		th      Thresholds
		wantErr bool
	}{
		{"defaults", Thresholds{0.95, 100}, false},
		{"similarity one", Thresholds{1.0, 0}, false},
		{"tiny similarity", Thresholds{0.0001, 0}, false},
		{"zero similarity", Thresholds{0, 100}, true},
		{"negative similarity", Thresholds{-0.5, 100}, true},
		{"similarity above one", Thresholds{1.01, 100}, true},
		{"nan similarity", Thresholds{math.NaN(), 100}, true},
		{"negative edge", Thresholds{0.95, -1}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.th.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v; wantErr %v", err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, ErrConfig) {
				t.Errorf("expected ErrConfig, got %v", err)
			}
		})
	}
}

func TestNew_RejectsInvalidThresholds(t *testing.T) {
	w := newTestWorld()
	_, err := New(Thresholds{Similarity: 2, Edge: 0}, w, w, &recordingSink{})
	if !errors.Is(err, ErrConfig) {
		t.Errorf("expected ErrConfig, got %v", err)
	}

	_, err = New(defaultThresholds(), nil, w, &recordingSink{})
	if !errors.Is(err, ErrConfig) {
		t.Errorf("expected ErrConfig for missing scorer, got %v", err)
	}
}

func TestRun_NearDuplicateAndBlank(t *testing.T) {
	w := newTestWorld()
	a := w.candidate("A", 300)
	b := w.candidate("B", 300)
	c := w.candidate("C", 5)
	w.similar("A", "B", 0.97)
	sink := &recordingSink{}
	e := newEngine(t, w, defaultThresholds(), sink)

	report, err := e.Run(context.Background(), ordered(a, b, c))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []Outcome{OutcomeAccepted, OutcomeDuplicate, OutcomeLowDetail}
	if got := outcomes(report); !slices.Equal(got, want) {
		t.Errorf("outcomes = %v; want %v", got, want)
	}
	if got := keptNames(e); !slices.Equal(got, []string{"A"}) {
		t.Errorf("kept = %v; want [A]", got)
	}
	if !slices.Equal(sink.persisted, []string{"A"}) {
		t.Errorf("persisted = %v; want [A]", sink.persisted)
	}
	if report.Decisions[1].MatchedWith != "/in/A" || report.Decisions[1].Score != 0.97 {
		t.Errorf("unexpected duplicate decision: %+v", report.Decisions[1])
	}
	if report.Decisions[2].EdgeDensity != 5 {
		t.Errorf("expected density 5 recorded, got %d", report.Decisions[2].EdgeDensity)
	}
	expected := Summary{Accepted: 1, Duplicates: 1, LowDetail: 1}
	if report.Summary != expected {
		t.Errorf("summary = %+v; want %+v", report.Summary, expected)
	}
	if !slices.Equal(report.Kept, []string{"/in/A"}) {
		t.Errorf("report kept = %v", report.Kept)
	}
}

func TestRun_OrderDependence(t *testing.T) {
	w := newTestWorld()
	a := w.candidate("A", 300)
	b := w.candidate("B", 300)
	c := w.candidate("C", 5)
	w.similar("A", "B", 0.97)
	e := newEngine(t, w, defaultThresholds(), &recordingSink{})

	report, err := e.Run(context.Background(), ordered(b, a, c))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := keptNames(e); !slices.Equal(got, []string{"B"}) {
		t.Errorf("kept = %v; want [B]", got)
	}
	if report.Decisions[1].Name != "A" || report.Decisions[1].Outcome != OutcomeDuplicate {
		t.Errorf("expected A rejected as duplicate, got %+v", report.Decisions[1])
	}
	if report.Decisions[1].MatchedWith != "/in/B" {
		t.Errorf("expected A to match B, got %s", report.Decisions[1].MatchedWith)
	}
}

func TestDecide_SimilarityOneNeverDuplicates(t *testing.T) {
	w := newTestWorld()
	a := w.candidate("A", 300)
	twin := w.candidate("twin", 300)
	w.similar("A", "twin", 1.0)
	e := newEngine(t, w, Thresholds{Similarity: 1.0, Edge: 100}, &recordingSink{})

	for _, c := range []*source.Candidate{a, twin, a} {
		d, err := e.Decide(c)
		if err != nil {
			t.Fatalf("Decide failed: %v", err)
		}
		if d.Outcome == OutcomeDuplicate {
			t.Errorf("%s classified as duplicate with threshold 1.0", d.Name)
		}
	}
	if len(e.Kept()) != 3 {
		t.Errorf("expected all 3 kept, got %d", len(e.Kept()))
	}
}

func TestDecide_EdgeThresholdIsStrict(t *testing.T) {
	tests := []struct {
		name     string
		edge     int
		density  int
		wantKept bool
	}{
		{"zero threshold, zero density", 0, 0, false},
		{"zero threshold, density one", 0, 1, true},
		{"equal to threshold", 100, 100, false},
		{"one above threshold", 100, 101, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := newTestWorld()
			c := w.candidate("X", tc.density)
			e := newEngine(t, w, Thresholds{Similarity: 0.95, Edge: tc.edge}, &recordingSink{})

			d, err := e.Decide(c)
			if err != nil {
				t.Fatalf("Decide failed: %v", err)
			}
			if got := d.Outcome == OutcomeAccepted; got != tc.wantKept {
				t.Errorf("accepted = %v; want %v (outcome %s)", got, tc.wantKept, d.Outcome)
			}
		})
	}
}

func TestDecide_FirstMatchWins(t *testing.T) {
	w := newTestWorld()
	a := w.candidate("A", 300)
	b := w.candidate("B", 300)
	c := w.candidate("C", 300)
	w.similar("A", "B", 0.5)
	w.similar("C", "A", 0.96)
	w.similar("C", "B", 0.99)
	e := newEngine(t, w, defaultThresholds(), &recordingSink{})

	for _, k := range []*source.Candidate{a, b} {
		if _, err := e.Decide(k); err != nil {
			t.Fatal(err)
		}
	}
	w.calls.Store(0)

	d, err := e.Decide(c)
	if err != nil {
		t.Fatal(err)
	}

	if d.MatchedWith != "/in/A" || d.Score != 0.96 {
		t.Errorf("expected first kept match A@0.96, got %s@%v", d.MatchedWith, d.Score)
	}
	if calls := w.calls.Load(); calls != 1 {
		t.Errorf("expected scan to stop after first match, got %d comparisons", calls)
	}
}

func TestDecide_ParallelMatchesSequential(t *testing.T) {
	build := func(workers int) (*Engine, *testWorld, *source.Candidate) {
		w := newTestWorld()
		var kept []*source.Candidate
		for _, name := range []string{"k0", "k1", "k2", "k3", "k4", "k5", "k6", "k7", "k8", "k9"} {
			kept = append(kept, w.candidate(name, 300))
		}
		query := w.candidate("query", 300)
		w.similar("query", "k3", 0.96)
		w.similar("query", "k7", 0.99)
		w.similar("query", "k9", 0.98)
		e := newEngine(t, w, defaultThresholds(), &recordingSink{}, WithWorkers(workers))
		for _, k := range kept {
			if d, err := e.Decide(k); err != nil || d.Outcome != OutcomeAccepted {
				t.Fatalf("setup failed for %s: %v %s", k.Name, err, d.Outcome)
			}
		}
		return e, w, query
	}

	seq, _, query := build(1)
	want, err := seq.Decide(query)
	if err != nil {
		t.Fatal(err)
	}

	for range 20 {
		par, _, query := build(4)
		got, err := par.Decide(query)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("parallel decision %+v differs from sequential %+v", got, want)
		}
	}
	if want.MatchedWith != "/in/k3" {
		t.Errorf("expected lowest-index match k3, got %s", want.MatchedWith)
	}
}

func TestDecide_ParallelNoMatchReportsBestScore(t *testing.T) {
	w := newTestWorld()
	a := w.candidate("A", 300)
	b := w.candidate("B", 300)
	c := w.candidate("C", 300)
	w.similar("A", "B", 0.2)
	w.similar("C", "A", 0.4)
	w.similar("C", "B", 0.6)
	e := newEngine(t, w, defaultThresholds(), &recordingSink{}, WithWorkers(3))

	for _, k := range []*source.Candidate{a, b} {
		if _, err := e.Decide(k); err != nil {
			t.Fatal(err)
		}
	}
	d, err := e.Decide(c)
	if err != nil {
		t.Fatal(err)
	}
	if d.Outcome != OutcomeAccepted || d.Score != 0.6 {
		t.Errorf("expected accepted with best score 0.6, got %s %v", d.Outcome, d.Score)
	}
}

func TestRun_LoadErrorIsSkipped(t *testing.T) {
	w := newTestWorld()
	a := w.candidate("A", 300)
	b := w.candidate("B", 300)
	cands := &fakeCandidates{items: []item{
		{c: a},
		{err: &source.LoadError{Path: "/in/broken.jpg", Err: errors.New("unexpected EOF")}},
		{c: b},
	}}
	e := newEngine(t, w, defaultThresholds(), &recordingSink{})

	report, err := e.Run(context.Background(), cands)
	if err != nil {
		t.Fatalf("Run should not fail on a corrupt candidate: %v", err)
	}

	expected := Summary{Accepted: 2, Errors: 1}
	if report.Summary != expected {
		t.Errorf("summary = %+v; want %+v", report.Summary, expected)
	}
	if report.Decisions[1].Name != "broken.jpg" || report.Decisions[1].Err != "unexpected EOF" {
		t.Errorf("unexpected error decision: %+v", report.Decisions[1])
	}
}

func TestRun_SinkFailureAborts(t *testing.T) {
	w := newTestWorld()
	a := w.candidate("A", 300)
	b := w.candidate("B", 300)
	c := w.candidate("C", 300)
	sink := &recordingSink{failOn: "B"}
	e := newEngine(t, w, defaultThresholds(), sink)

	report, err := e.Run(context.Background(), ordered(a, b, c))

	if !errors.Is(err, ErrResource) {
		t.Fatalf("expected ErrResource, got %v", err)
	}
	if got := keptNames(e); !slices.Equal(got, []string{"A"}) {
		t.Errorf("failed candidate must not be kept, kept = %v", got)
	}
	if len(report.Decisions) != 2 {
		t.Errorf("run should stop at the failing candidate, got %d decisions", len(report.Decisions))
	}
}

func TestRun_CountFailure(t *testing.T) {
	w := newTestWorld()
	e := newEngine(t, w, defaultThresholds(), &recordingSink{})

	_, err := e.Run(context.Background(), &fakeCandidates{countErr: errors.New("permission denied")})
	if !errors.Is(err, ErrResource) {
		t.Errorf("expected ErrResource, got %v", err)
	}
}

func TestRun_NonLoadErrorIsFatal(t *testing.T) {
	w := newTestWorld()
	cands := &fakeCandidates{items: []item{{err: errors.New("directory vanished")}}}
	e := newEngine(t, w, defaultThresholds(), &recordingSink{})

	_, err := e.Run(context.Background(), cands)
	if !errors.Is(err, ErrResource) {
		t.Errorf("expected ErrResource, got %v", err)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	w := newTestWorld()
	e := newEngine(t, w, defaultThresholds(), &recordingSink{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := e.Run(ctx, ordered(w.candidate("A", 300)))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(report.Decisions) != 0 {
		t.Errorf("expected no decisions, got %d", len(report.Decisions))
	}
}

func TestRun_ResetsKeptSet(t *testing.T) {
	w := newTestWorld()
	a := w.candidate("A", 300)
	e := newEngine(t, w, defaultThresholds(), &recordingSink{})

	for range 2 {
		report, err := e.Run(context.Background(), ordered(a))
		if err != nil {
			t.Fatal(err)
		}
		if report.Summary.Accepted != 1 {
			t.Errorf("each run starts with an empty kept set, summary %+v", report.Summary)
		}
	}
}

type keptSizeObserver struct {
	engine  *Engine
	sizes   []int
	started int
	done    *Summary
}

func (o *keptSizeObserver) OnStart(total int) { o.started = total }

func (o *keptSizeObserver) OnDecision(_, _ int, _ Decision) {
	o.sizes = append(o.sizes, len(o.engine.Kept()))
}

func (o *keptSizeObserver) OnFinish(s Summary, _ error) { o.done = &s }

func TestRun_KeptSetMonotonic(t *testing.T) {
	w := newTestWorld()
	var cands []*source.Candidate
	for i, name := range []string{"a", "b", "c", "d", "e", "f"} {
		cands = append(cands, w.candidate(name, 50*(i+1)))
	}
	w.similar("c", "d", 0.99)
	w.similar("e", "c", 0.96)
	obs := &keptSizeObserver{}
	e := newEngine(t, w, defaultThresholds(), &recordingSink{}, WithObserver(obs))
	obs.engine = e

	if _, err := e.Run(context.Background(), ordered(cands...)); err != nil {
		t.Fatal(err)
	}

	if obs.started != 6 {
		t.Errorf("OnStart total = %d; want 6", obs.started)
	}
	for i := 1; i < len(obs.sizes); i++ {
		if obs.sizes[i] < obs.sizes[i-1] {
			t.Fatalf("kept set shrank: %v", obs.sizes)
		}
	}
	if obs.done == nil || obs.done.Total() != 6 {
		t.Errorf("OnFinish summary = %+v", obs.done)
	}
}
