package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-mudlib/client/pkg/protocol"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Multiplexer tracks all live sessions and tells units when one is created,
// focused or destroyed.
type Multiplexer struct {
	registry *Registry
	cfg      Config
	log      zerolog.Logger

	// lifecycle serializes create/focus/destroy; hooks run under it but
	// outside mu, so they may read the session list.
	lifecycle sync.Mutex

	mu       sync.RWMutex
	sessions []*Session
	focused  *Session
	created  int
}

// NewMultiplexer creates a multiplexer dispatching through reg.
func NewMultiplexer(reg *Registry, cfg Config, log zerolog.Logger) *Multiplexer {
	return &Multiplexer{
		registry: reg,
		cfg:      cfg.WithDefaults(),
		log:      log.With().Str("component", "multiplexer").Logger(),
	}
}

func (m *Multiplexer) Registry() *Registry { return m.registry }
func (m *Multiplexer) Config() Config      { return m.cfg }

// CreateSession seals the registry, runs the created hooks and activates the
// new session. An empty name gets a generated one.
func (m *Multiplexer) CreateSession(name string) (*Session, error) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.registry.Seal()

	m.mu.Lock()
	if name == "" {
		name = m.nextNameLocked()
	} else if m.byNameLocked(name) != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSession, name)
	}
	s := newSession(uuid.NewString(), name, m.registry, m.cfg, m.log, m)
	m.sessions = append(m.sessions, s)
	m.created++
	m.mu.Unlock()

	for _, o := range m.registry.observers {
		m.hook(s, o.unit.Name(), "created", func() { o.observer.SessionCreated(s) })
	}
	s.conveyor.activate()
	m.log.Info().Str("session", s.id).Str("name", name).Msg("session created")

	if m.Focused() == nil {
		m.focusLocked(s)
	}
	return s, nil
}

// Focus makes s the focused session. It reports false if s is already
// focused or is not live.
func (m *Multiplexer) Focus(s *Session) bool {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if s == nil || m.Session(s.id) == nil {
		return false
	}
	return m.focusLocked(s)
}

func (m *Multiplexer) focusLocked(next *Session) bool {
	prev := m.Focused()
	if prev == next {
		return false
	}
	for _, o := range m.registry.observers {
		m.hook(next, o.unit.Name(), "focused", func() { o.observer.SessionFocused(prev, next) })
	}
	m.mu.Lock()
	if prev != nil {
		prev.focused.Store(false)
	}
	if next != nil {
		next.focused.Store(true)
	}
	m.focused = next
	m.mu.Unlock()
	return true
}

// Destroy closes the conveyor, runs the destroyed hooks and moves focus to
// the next remaining session. The conveyor refuses work before the hooks
// run, so units see the session inactive from then on.
func (m *Multiplexer) Destroy(s *Session) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if s == nil || m.Session(s.id) == nil {
		return ErrUnknownSession
	}

	s.conveyor.close()
	for _, o := range m.registry.observers {
		m.hook(s, o.unit.Name(), "destroyed", func() { o.observer.SessionDestroyed(s) })
	}
	close(s.done)

	m.mu.Lock()
	idx := 0
	for i, x := range m.sessions {
		if x == s {
			idx = i
			m.sessions = append(m.sessions[:i], m.sessions[i+1:]...)
			break
		}
	}
	wasFocused := m.focused == s
	var next *Session
	if wasFocused && len(m.sessions) > 0 {
		next = m.sessions[min(idx, len(m.sessions)-1)]
	}
	m.mu.Unlock()
	m.log.Info().Str("session", s.id).Str("name", s.name).Msg("session destroyed")

	if wasFocused {
		if next != nil {
			m.focusLocked(next)
		} else {
			m.mu.Lock()
			s.focused.Store(false)
			m.focused = nil
			m.mu.Unlock()
		}
	}
	return nil
}

// Close destroys every session.
func (m *Multiplexer) Close() {
	for _, s := range m.Sessions() {
		_ = m.Destroy(s)
	}
}

// Session returns a live session by id, or nil.
func (m *Multiplexer) Session(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.id == id {
			return s
		}
	}
	return nil
}

// SessionByName returns a live session by name, or nil.
func (m *Multiplexer) SessionByName(name string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byNameLocked(name)
}

// Sessions returns the live sessions in creation order.
func (m *Multiplexer) Sessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, len(m.sessions))
	copy(out, m.sessions)
	return out
}

// Focused returns the focused session, or nil.
func (m *Multiplexer) Focused() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.focused
}

// Broadcast submits a copy of cmd to every live session. Sessions that are
// gone by the time the copy arrives are skipped.
func (m *Multiplexer) Broadcast(cmd *Command) {
	for _, s := range m.Sessions() {
		c := *cmd
		c.handled = false
		if err := s.Submit(&c); err != nil && !IsSessionGone(err) {
			m.log.Warn().Err(err).Str("session", s.id).Msg("broadcast failed")
		}
	}
}

// Run pushes a Tick command to every session each TickInterval and expires
// idle frame accumulators. It returns when ctx is done.
func (m *Multiplexer) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			m.tick(now, now.Sub(last))
			last = now
		}
	}
}

func (m *Multiplexer) tick(now time.Time, elapsed time.Duration) {
	for _, s := range m.Sessions() {
		cmd := &Command{Type: protocol.CommandTick, Payload: protocol.Tick{Now: now, Elapsed: elapsed}, Origin: OriginTimer}
		if err := s.Submit(cmd); err != nil {
			continue
		}
		_ = s.conveyor.expire(now)
	}
}

func (m *Multiplexer) hook(s *Session, unit, op string, fn func()) {
	failure := runUnit(unit, op, "", func() error {
		fn()
		return nil
	})
	if failure != nil {
		s.conveyor.unitFailed(failure)
	}
}

func (m *Multiplexer) byNameLocked(name string) *Session {
	for _, s := range m.sessions {
		if s.name == name {
			return s
		}
	}
	return nil
}

func (m *Multiplexer) nextNameLocked() string {
	for n := m.created + 1; ; n++ {
		name := fmt.Sprintf("session%d", n)
		if m.byNameLocked(name) == nil {
			return name
		}
	}
}
