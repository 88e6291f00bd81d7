// Package session enforces a hard per-session call budget independent of
// circuit state. Cache hits count against the budget: it models user-visible
// task throughput, not backend cost.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/storyloom/orchestrator/internal/domain"
)

// Session tracks the budget of one logical owner/job. Each session has its
// own lock; sessions never contend with each other.
type Session struct {
	mu sync.Mutex

	ID              string
	OwnerID         string
	CallCount       int
	MaxCalls        int
	CostAccumulated float64
	StartedAt       time.Time
	Active          bool
	PerBackendUsage map[string]int

	// inFlight counts authorized calls not yet recorded, so concurrent
	// workers cannot oversubscribe the remaining budget.
	inFlight int
}

// Snapshot is a copy of session state safe to hand to callers.
type Snapshot struct {
	ID              string         `json:"id"`
	OwnerID         string         `json:"owner_id"`
	CallCount       int            `json:"call_count"`
	MaxCalls        int            `json:"max_calls"`
	CostAccumulated float64        `json:"cost_accumulated"`
	StartedAt       time.Time      `json:"started_at"`
	Active          bool           `json:"active"`
	PerBackendUsage map[string]int `json:"per_backend_usage"`
}

// Manager owns all live sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Create starts a new session with the given budget.
func (m *Manager) Create(ownerID string, maxCalls int) (*Session, error) {
	if maxCalls <= 0 {
		return nil, fmt.Errorf("max calls must be positive, got %d", maxCalls)
	}
	s := &Session{
		ID:              uuid.New().String(),
		OwnerID:         ownerID,
		MaxCalls:        maxCalls,
		StartedAt:       m.now(),
		Active:          true,
		PerBackendUsage: make(map[string]int),
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s, nil
}

func (m *Manager) lookup(sessionID string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown session %q", sessionID)
	}
	return s, nil
}

// Authorize reserves one call slot. It must be checked before any backend
// call or cache lookup. Once the budget (including reservations held by
// in-flight calls) is spent, it returns SessionExhaustedError; the session
// does not auto-renew.
func (m *Manager) Authorize(sessionID string) error {
	s, err := m.lookup(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Active || s.CallCount+s.inFlight >= s.MaxCalls {
		return &domain.SessionExhaustedError{SessionID: s.ID, MaxCalls: s.MaxCalls}
	}
	s.inFlight++
	return nil
}

// RecordCall commits one authorized call: the count advances, cost
// accumulates, and the usage map is updated. Reaching the budget makes the
// session permanently inactive.
func (m *Manager) RecordCall(sessionID, backendID string, cost float64) error {
	s, err := m.lookup(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight > 0 {
		s.inFlight--
	}
	if s.CallCount >= s.MaxCalls {
		return &domain.SessionExhaustedError{SessionID: s.ID, MaxCalls: s.MaxCalls}
	}
	s.CallCount++
	s.CostAccumulated += cost
	if backendID != "" {
		s.PerBackendUsage[backendID]++
	}
	if s.CallCount >= s.MaxCalls {
		s.Active = false
	}
	return nil
}

// Release returns a reserved slot without recording a call, for items that
// were authorized but never dispatched (for example when the job was
// cancelled between authorization and dispatch).
func (m *Manager) Release(sessionID string) {
	s, err := m.lookup(sessionID)
	if err != nil {
		return
	}
	s.mu.Lock()
	if s.inFlight > 0 {
		s.inFlight--
	}
	s.mu.Unlock()
}

// Get returns a snapshot of the session.
func (m *Manager) Get(sessionID string) (Snapshot, error) {
	s, err := m.lookup(sessionID)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	usage := make(map[string]int, len(s.PerBackendUsage))
	for k, v := range s.PerBackendUsage {
		usage[k] = v
	}
	return Snapshot{
		ID:              s.ID,
		OwnerID:         s.OwnerID,
		CallCount:       s.CallCount,
		MaxCalls:        s.MaxCalls,
		CostAccumulated: s.CostAccumulated,
		StartedAt:       s.StartedAt,
		Active:          s.Active,
		PerBackendUsage: usage,
	}, nil
}
