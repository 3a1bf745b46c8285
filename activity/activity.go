// Package activity tracks how often and how long a contestant leaves the
// question page.
//
// The page is Active while visible and focused. It is Away while any away
// reason holds: hidden, blurred, or both. Overlapping reasons count as one
// absence.
package activity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
)

// Event is a page signal.
type Event string

const (
	EventHidden  Event = "hidden"
	EventVisible Event = "visible"
	EventBlur    Event = "blur"
	EventFocus   Event = "focus"
)

// ParseEvent validates an event name.
func ParseEvent(s string) (Event, error) {
	switch e := Event(s); e {
	case EventHidden, EventVisible, EventBlur, EventFocus:
		return e, nil
	}
	return "", fmt.Errorf("unknown activity event %q", s)
}

type reason string

const (
	reasonHidden  reason = "hidden"
	reasonBlurred reason = "blurred"
)

// State is the accumulated absence record. Both counters only grow.
type State struct {
	Away          bool `json:"away"`
	LeaveCount    int  `json:"leave_count"`
	TotalTimeAway int  `json:"total_time_away"` // seconds
}

// Kind of transition.
type Kind string

const (
	KindAway   Kind = "away"
	KindReturn Kind = "return"
)

// Transition is emitted on every Active/Away change.
type Transition struct {
	ID      uuid.UUID `json:"id"`
	Session string    `json:"session"`
	Kind    Kind      `json:"kind"`
	At      time.Time `json:"at"`
	// Elapsed is the rounded absence in seconds, on return only.
	Elapsed int    `json:"elapsed,omitempty"`
	Warning string `json:"warning,omitempty"`
	State   State  `json:"state"`
}

// Sink receives transitions. Emit is called outside the monitor's lock.
type Sink interface {
	Emit(ctx context.Context, t Transition) error
}

type Option func(*Monitor)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.log = l }
}

// Monitor is the per-session state machine.
type Monitor struct {
	session string
	sink    Sink
	now     func() time.Time
	log     *slog.Logger

	mu        sync.Mutex
	reasons   mapset.Set[reason]
	awaySince time.Time
	state     State
	closed    bool
}

// NewMonitor starts in Active. A nil sink discards transitions.
func NewMonitor(session string, sink Sink, opts ...Option) *Monitor {
	m := &Monitor{
		session: session,
		sink:    sink,
		now:     time.Now,
		log:     slog.Default(),
		reasons: mapset.NewThreadUnsafeSet[reason](),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handle applies one event. Events after Close are ignored.
func (m *Monitor) Handle(ctx context.Context, e Event) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	wasAway := m.reasons.Cardinality() > 0
	switch e {
	case EventHidden:
		m.reasons.Add(reasonHidden)
	case EventVisible:
		m.reasons.Remove(reasonHidden)
	case EventBlur:
		m.reasons.Add(reasonBlurred)
	case EventFocus:
		m.reasons.Remove(reasonBlurred)
	}
	isAway := m.reasons.Cardinality() > 0

	var t *Transition
	now := m.now()
	switch {
	case !wasAway && isAway:
		if m.awaySince.IsZero() {
			m.awaySince = now
		}
		m.state.LeaveCount++
		m.state.Away = true
		t = m.transition(KindAway, now)
	case wasAway && !isAway:
		elapsed := int(now.Sub(m.awaySince).Round(time.Second) / time.Second)
		m.state.TotalTimeAway += elapsed
		m.state.Away = false
		m.awaySince = time.Time{}
		t = m.transition(KindReturn, now)
		t.Elapsed = elapsed
		t.Warning = warning(elapsed, m.state)
	}
	m.mu.Unlock()

	if t != nil {
		m.emit(ctx, *t)
	}
}

func (m *Monitor) transition(k Kind, at time.Time) *Transition {
	return &Transition{
		ID:      uuid.New(),
		Session: m.session,
		Kind:    k,
		At:      at,
		State:   m.state,
	}
}

func warning(elapsed int, s State) string {
	return fmt.Sprintf("You left the contest page for %ds. Leaving is recorded: %d time(s), %ds away in total.",
		elapsed, s.LeaveCount, s.TotalTimeAway)
}

func (m *Monitor) emit(ctx context.Context, t Transition) {
	if m.sink == nil {
		return
	}
	if err := m.sink.Emit(ctx, t); err != nil {
		m.log.Warn("activity sink failed", "session", m.session, "kind", t.Kind, "error", err)
	}
}

// State returns a snapshot.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Close tears the monitor down. The state stays readable.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}
