// Package stage tracks pipeline stage execution through status files.
//
// Each stage writes <dir>/<name>.status.yaml while it runs and rewrites it
// with the final state when it ends. For orchestrators that still poll the
// older sentinel convention, <dir>/task_running_<name> exists exactly while
// the stage is running.
package stage

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// State represents the lifecycle state of a stage.
type State string

// State constants define the lifecycle states of a stage.
const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

const (
	statusSuffix   = ".status.yaml"
	sentinelPrefix = "task_running_"
)

// ErrRunning is returned by Begin when the stage already has a live marker.
var ErrRunning = errors.New("stage already running")

// Status is the persisted view of a stage run.
type Status struct {
	Name       string     `yaml:"name" json:"name"`
	RunID      string     `yaml:"run_id" json:"run_id"`
	State      State      `yaml:"state" json:"state"`
	PID        int        `yaml:"pid" json:"pid"`
	StartedAt  time.Time  `yaml:"started_at" json:"started_at"`
	FinishedAt *time.Time `yaml:"finished_at,omitempty" json:"finished_at,omitempty"`
	Error      string     `yaml:"error,omitempty" json:"error,omitempty"`
}

// Tracker manages status files in one directory.
type Tracker struct {
	Dir string
	now func() time.Time
}

// NewTracker creates a tracker rooted at dir.
func NewTracker(dir string) *Tracker {
	return &Tracker{Dir: dir, now: time.Now}
}

// Marker is a held stage. Release must be called exactly once; extra calls
// are no-ops.
type Marker struct {
	tracker *Tracker
	status  Status
	once    sync.Once
	err     error
}

// Status returns the marker's current status.
func (m *Marker) Status() Status {
	return m.status
}

func (t *Tracker) statusPath(name string) string {
	return filepath.Join(t.Dir, name+statusSuffix)
}

// SentinelPath returns the legacy in-progress marker path for a stage.
func (t *Tracker) SentinelPath(name string) string {
	return filepath.Join(t.Dir, sentinelPrefix+name)
}

// Begin marks a stage as running. It fails with ErrRunning when the stage
// is already marked running by a live process.
func (t *Tracker) Begin(name string) (*Marker, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("invalid stage name %q", name)
	}
	if err := os.MkdirAll(t.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create stage dir: %w", err)
	}

	if prev, err := t.Get(name); err == nil && prev.State == StateRunning && prev.PID != os.Getpid() && processAlive(prev.PID) {
		return nil, fmt.Errorf("%w: %s (pid %d)", ErrRunning, name, prev.PID)
	}

	m := &Marker{
		tracker: t,
		status: Status{
			Name:      name,
			RunID:     uuid.NewString(),
			State:     StateRunning,
			PID:       os.Getpid(),
			StartedAt: t.now(),
		},
	}
	if err := t.write(m.status); err != nil {
		return nil, err
	}
	if err := os.WriteFile(t.SentinelPath(name), nil, 0o644); err != nil {
		os.Remove(t.statusPath(name))
		return nil, fmt.Errorf("failed to create sentinel: %w", err)
	}
	return m, nil
}

// Release ends the stage: completed when runErr is nil, failed otherwise.
// The sentinel is always removed.
func (m *Marker) Release(runErr error) error {
	m.once.Do(func() {
		t := m.tracker
		finished := t.now()
		m.status.FinishedAt = &finished
		m.status.State = StateCompleted
		if runErr != nil {
			m.status.State = StateFailed
			m.status.Error = runErr.Error()
		}

		var errs []error
		if err := os.Remove(t.SentinelPath(m.status.Name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("failed to remove sentinel: %w", err))
		}
		if err := t.write(m.status); err != nil {
			errs = append(errs, err)
		}
		m.err = errors.Join(errs...)
	})
	return m.err
}

// Run executes fn while holding the stage marker. The marker is released
// on every exit path, including a panic, which is re-raised afterwards.
func (t *Tracker) Run(name string, fn func() error) (err error) {
	m, err := t.Begin(name)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = m.Release(fmt.Errorf("panic: %v", r))
			panic(r)
		}
		if relErr := m.Release(err); relErr != nil && err == nil {
			err = relErr
		}
	}()
	return fn()
}

// Get reads a stage's status file.
func (t *Tracker) Get(name string) (*Status, error) {
	data, err := os.ReadFile(t.statusPath(name))
	if err != nil {
		return nil, err
	}
	var s Status
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse status for %s: %w", name, err)
	}
	return &s, nil
}

// List returns every stage status in the directory, sorted by name. A
// missing directory yields an empty list. Unreadable status files are logged
// and skipped.
func (t *Tracker) List() ([]Status, error) {
	entries, err := os.ReadDir(t.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return []Status{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read stage dir: %w", err)
	}

	statuses := []Status{}
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), statusSuffix)
		if !ok || entry.IsDir() {
			continue
		}
		s, err := t.Get(name)
		if err != nil {
			log.Printf("Skipping stage status %s: %v", entry.Name(), err)
			continue
		}
		statuses = append(statuses, *s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses, nil
}

// write persists the status through a temp file and rename.
func (t *Tracker) write(s Status) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	path := t.statusPath(s.Name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write status: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write status: %w", err)
	}
	return nil
}
