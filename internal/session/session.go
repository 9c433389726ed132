// Package session keeps one divination machine per browser session.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/bobmcallan/lingqian/internal/common"
	"github.com/bobmcallan/lingqian/internal/divination"
)

// CookieName is the browser cookie carrying the session id.
const CookieName = "lingqian_session"

// Session is one user's ritual state.
type Session struct {
	ID      string
	Machine *divination.Machine
	Broker  *Broker
	Created time.Time

	mu       sync.Mutex
	lastSeen time.Time
	saved    map[uint64]bool
}

// LastSeen returns the time of the last lookup of the session.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// MarkSaved records that the result of generation was exported.
func (s *Session) MarkSaved(generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		s.saved = make(map[uint64]bool)
	}
	s.saved[generation] = true
}

// Saved reports whether the result of generation was exported.
func (s *Session) Saved(generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved[generation]
}

func (s *Session) close() {
	s.Machine.Reset()
	s.Machine.SetListener(nil)
	s.Broker.Close()
}

// Options configures a Manager.
type Options struct {
	TTL         time.Duration
	MaxSessions int
	EventBuffer int
}

// MachineFactory builds the machine of a new session.
type MachineFactory func() *divination.Machine

const defaultMaxSessions = 10000

// Manager owns every live session. Sessions are kept in an LRU bounded by
// MaxSessions; the least recently used one is evicted to make room.
type Manager struct {
	sessions *lru.Cache[string, *Session]
	newMach  MachineFactory
	opts     Options
	logger   *common.Logger
	now      func() time.Time

	mu       sync.Mutex
	onRemove func(id string)
}

// NewManager creates a session manager.
func NewManager(newMachine MachineFactory, opts Options, logger *common.Logger) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = defaultMaxSessions
	}
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	m := &Manager{
		newMach: newMachine,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
	// Only fails for a non-positive size.
	m.sessions, _ = lru.NewWithEvict(opts.MaxSessions, m.evicted)
	return m
}

// OnRemove registers a hook run after a session is deleted, evicted or expired.
func (m *Manager) OnRemove(fn func(id string)) {
	m.mu.Lock()
	m.onRemove = fn
	m.mu.Unlock()
}

// evicted runs for every session leaving the LRU, whatever the cause.
func (m *Manager) evicted(id string, s *Session) {
	s.close()

	m.mu.Lock()
	fn := m.onRemove
	m.mu.Unlock()
	if fn != nil {
		fn(id)
	}
	m.logger.Debug().Str("session", id).Msg("session removed")
}

// Create starts a new session.
func (m *Manager) Create() *Session {
	now := m.now()
	s := &Session{
		ID:       uuid.New().String(),
		Machine:  m.newMach(),
		Broker:   NewBroker(m.opts.EventBuffer),
		Created:  now,
		lastSeen: now,
	}
	s.Machine.SetListener(s.Broker)

	if m.sessions.Add(s.ID, s) {
		m.logger.Info().Int("max_sessions", m.opts.MaxSessions).Msg("session evicted at capacity")
	}
	m.logger.Debug().Str("session", s.ID).Msg("session created")
	return s
}

// Get returns the session registered under id and marks it used.
func (m *Manager) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	s, ok := m.sessions.Get(id)
	if !ok {
		return nil, false
	}
	s.touch(m.now())
	return s, true
}

// GetOrCreate returns the session registered under id, or a new one when id
// is empty or unknown. created reports which.
func (m *Manager) GetOrCreate(id string) (s *Session, created bool) {
	if s, ok := m.Get(id); ok {
		return s, false
	}
	return m.Create(), true
}

// Delete resets the session's machine, closes its subscribers and forgets it.
func (m *Manager) Delete(id string) bool {
	return m.sessions.Remove(id)
}

// Cleanup removes sessions idle for longer than the TTL and returns how many.
func (m *Manager) Cleanup() int {
	cutoff := m.now().Add(-m.opts.TTL)

	n := 0
	for _, id := range m.sessions.Keys() {
		s, ok := m.sessions.Peek(id)
		if !ok || !s.LastSeen().Before(cutoff) {
			continue
		}
		if m.sessions.Remove(id) {
			n++
		}
	}
	if n > 0 {
		m.logger.Debug().Int("expired", n).Int("remaining", m.Count()).Msg("session cleanup")
	}
	return n
}

// StartJanitor runs Cleanup every interval until ctx is done.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Cleanup()
			}
		}
	}()
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	return m.sessions.Len()
}

// Close removes every session.
func (m *Manager) Close() {
	m.sessions.Purge()
}
