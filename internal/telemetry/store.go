// Package telemetry collects host metrics from pipeline workers and keeps
// the latest report per agent.
package telemetry

import (
	"sort"
	"sync"
	"time"
)

// UnknownAgent is used for reports that do not name their agent.
const UnknownAgent = "unknown"

// Metrics is one agent report.
type Metrics struct {
	AgentID          string    `json:"agent_id"`
	RAMPercent       float64   `json:"ram_percent"`
	CPUPercent       float64   `json:"cpu_percent"`
	Users            int       `json:"users"`
	RootUsagePercent float64   `json:"root_usage_percent"`
	ReportedAt       time.Time `json:"reported_at"`
}

// Store holds the latest Metrics per agent. A newer report from the same
// agent replaces the older one. Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	agents map[string]Metrics
	now    func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		agents: make(map[string]Metrics),
		now:    time.Now,
	}
}

// Put records a report, stamping ReportedAt when the agent left it empty.
func (s *Store) Put(m Metrics) Metrics {
	if m.AgentID == "" {
		m.AgentID = UnknownAgent
	}
	if m.ReportedAt.IsZero() {
		m.ReportedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[m.AgentID] = m
	return m
}

// Get returns the latest report for an agent.
func (s *Store) Get(agentID string) (Metrics, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.agents[agentID]
	return m, ok
}

// List returns all latest reports sorted by agent id.
func (s *Store) List() []Metrics {
	s.mu.RLock()
	out := make([]Metrics, 0, len(s.agents))
	for _, m := range s.agents {
		out = append(out, m)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// Len returns the number of agents seen.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.agents)
}

// Reset drops every report.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents = make(map[string]Metrics)
}
