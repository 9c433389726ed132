// Package divination implements the fortune-stick ritual: the random draw,
// the confirmation throw, and the timer-driven state machine sequencing them.
package divination

import (
	"fmt"
	"sync"
	"time"

	"github.com/bobmcallan/lingqian/internal/catalog"
	"github.com/bobmcallan/lingqian/internal/common"
)

// DeityResolver looks deities up by key. *catalog.Catalog satisfies it.
type DeityResolver interface {
	Lookup(key string) (*catalog.Deity, error)
}

// Timing holds the animation-paced delays of the ritual. The shake delay is
// drawn uniformly from [ShakeMin, ShakeMax] per attempt.
type Timing struct {
	ShakeMin time.Duration
	ShakeMax time.Duration
	Rise     time.Duration
	Throw    time.Duration
	Reveal   time.Duration
}

// DefaultTiming matches the pacing of the browser animations.
func DefaultTiming() Timing {
	return Timing{
		ShakeMin: 2 * time.Second,
		ShakeMax: 3 * time.Second,
		Rise:     1500 * time.Millisecond,
		Throw:    1 * time.Second,
		Reveal:   1200 * time.Millisecond,
	}
}

// Config parameterises a Machine.
type Config struct {
	Timing     Timing
	Thresholds Thresholds
}

// DefaultConfig returns the default timing and thresholds.
func DefaultConfig() Config {
	return Config{Timing: DefaultTiming(), Thresholds: DefaultThresholds()}
}

// Snapshot is an immutable view of a machine.
type Snapshot struct {
	Phase       Phase                 `json:"phase"`
	DeityKey    string                `json:"deity_key,omitempty"`
	DeityName   string                `json:"deity_name,omitempty"`
	// Pending is the drawn stick awaiting confirmation. Only its title is
	// published until the throw accepts it.
	Pending      *catalog.FortuneEntry `json:"-"`
	PendingTitle string                `json:"pending_title,omitempty"`
	Finalized   *catalog.FortuneEntry `json:"finalized,omitempty"`
	LastOutcome Outcome               `json:"last_outcome"`
	Attempt     int                   `json:"attempt"`
	Generation  uint64                `json:"generation"`
}

// Listener receives machine events. Calls are made outside the machine lock,
// one at a time, in transition order. A listener must not block and must not
// call back into the machine synchronously.
type Listener interface {
	OnPhaseChange(s Snapshot)
	// OnDrawComplete fires once per accepted throw, after the Finalized phase change.
	OnDrawComplete(s Snapshot)
	OnError(err error)
}

type noticeKind int

const (
	noticePhase noticeKind = iota
	noticeComplete
	noticeError
)

type notice struct {
	kind noticeKind
	snap Snapshot
	err  error
}

// Machine is the ritual state of one session.
type Machine struct {
	mu       sync.Mutex
	notifyMu sync.Mutex

	deities  DeityResolver
	rng      RNG
	sched    Scheduler
	cfg      Config
	logger   *common.Logger
	listener Listener

	phase      Phase
	deity      *catalog.Deity
	pending    *catalog.FortuneEntry
	finalized  *catalog.FortuneEntry
	outcome    Outcome
	attempt    int
	generation uint64
	timer      Timer
}

// NewMachine creates an idle machine with no deity selected. A nil rng,
// scheduler or logger is replaced by the default.
func NewMachine(deities DeityResolver, rng RNG, sched Scheduler, cfg Config, logger *common.Logger) *Machine {
	if rng == nil {
		rng = NewRNG()
	}
	if sched == nil {
		sched = RealScheduler{}
	}
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	if cfg.Timing == (Timing{}) {
		cfg.Timing = DefaultTiming()
	}
	if cfg.Thresholds.Validate() != nil {
		cfg.Thresholds = DefaultThresholds()
	}
	return &Machine{
		deities: deities,
		rng:     rng,
		sched:   sched,
		cfg:     cfg,
		logger:  logger,
	}
}

// SetListener replaces the event listener. Nil disables notifications.
func (m *Machine) SetListener(l Listener) {
	m.mu.Lock()
	m.listener = l
	m.mu.Unlock()
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Result returns the snapshot holding the finalized fortune, or ErrNoResult.
func (m *Machine) Result() (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseFinalized || m.finalized == nil {
		return Snapshot{}, ErrNoResult
	}
	return m.snapshotLocked(), nil
}

// SelectDeity resets the machine and selects the deity registered under key.
func (m *Machine) SelectDeity(key string) (Snapshot, error) {
	d, err := m.deities.Lookup(key)
	if err != nil {
		return m.Snapshot(), err
	}

	m.mu.Lock()
	m.clearLocked()
	m.deity = d
	m.attempt = 0
	m.logger.Debug().Str("deity", d.Key).Int64("generation", int64(m.generation)).Msg("deity selected")
	snap := m.snapshotLocked()
	m.unlockAndNotify(notice{kind: noticePhase, snap: snap})
	return snap, nil
}

// StartDraw begins a ritual attempt. It is only valid while idle with a
// deity selected; a second call during a ritual is rejected without effect.
func (m *Machine) StartDraw() (Snapshot, error) {
	m.mu.Lock()
	if m.deity == nil {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, ErrNoDeitySelected
	}
	if m.phase != PhaseIdle {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, m.invalid("start draw")
	}
	if m.deity.Len() == 0 {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, fmt.Errorf("%s: %w", m.deity.Key, ErrEmptyCatalog)
	}

	m.attempt++
	m.outcome = OutcomeNone
	m.enterLocked(PhaseShaking)
	m.scheduleLocked(durationBetween(m.rng, m.cfg.Timing.ShakeMin, m.cfg.Timing.ShakeMax), PhaseShaking, m.shakeDoneLocked)

	snap := m.snapshotLocked()
	m.unlockAndNotify(notice{kind: noticePhase, snap: snap})
	return snap, nil
}

// ConfirmThrow throws the moon blocks for the pending fortune.
func (m *Machine) ConfirmThrow() (Snapshot, error) {
	m.mu.Lock()
	if m.phase != PhaseAwaitingConfirmation || m.pending == nil {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, m.invalid("confirm throw")
	}

	m.enterLocked(PhaseThrowing)
	m.scheduleLocked(m.cfg.Timing.Throw, PhaseThrowing, m.throwDoneLocked)

	snap := m.snapshotLocked()
	m.unlockAndNotify(notice{kind: noticePhase, snap: snap})
	return snap, nil
}

// DismissResult clears the finalized fortune and returns to idle. The deity
// stays selected so another stick can be drawn.
func (m *Machine) DismissResult() (Snapshot, error) {
	m.mu.Lock()
	if m.phase != PhaseFinalized {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, m.invalid("dismiss result")
	}

	m.clearLocked()
	snap := m.snapshotLocked()
	m.unlockAndNotify(notice{kind: noticePhase, snap: snap})
	return snap, nil
}

// Reset stops every timer and clears all session fields, including the
// selected deity. It is valid in every phase.
func (m *Machine) Reset() Snapshot {
	m.mu.Lock()
	m.clearLocked()
	m.deity = nil
	m.attempt = 0
	m.logger.Debug().Int64("generation", int64(m.generation)).Msg("ritual reset")

	snap := m.snapshotLocked()
	m.unlockAndNotify(notice{kind: noticePhase, snap: snap})
	return snap
}

func (m *Machine) shakeDoneLocked() []notice {
	// Re-resolve so a deity that disappeared mid-ritual fails closed.
	d, err := m.deities.Lookup(m.deity.Key)
	if err != nil {
		return m.failClosedLocked(err)
	}
	entry, err := Draw(d, m.rng)
	if err != nil {
		return m.failClosedLocked(err)
	}

	m.deity = d
	m.pending = &entry
	m.enterLocked(PhaseRising)
	m.scheduleLocked(m.cfg.Timing.Rise, PhaseRising, m.riseDoneLocked)
	return []notice{{kind: noticePhase, snap: m.snapshotLocked()}}
}

func (m *Machine) riseDoneLocked() []notice {
	m.enterLocked(PhaseAwaitingConfirmation)
	return []notice{{kind: noticePhase, snap: m.snapshotLocked()}}
}

func (m *Machine) throwDoneLocked() []notice {
	m.outcome = Resolve(m.rng.Float64(), m.cfg.Thresholds)
	m.enterLocked(PhaseConfirmationResult)
	m.scheduleLocked(m.cfg.Timing.Reveal, PhaseConfirmationResult, m.revealDoneLocked)
	return []notice{{kind: noticePhase, snap: m.snapshotLocked()}}
}

func (m *Machine) revealDoneLocked() []notice {
	if m.outcome.Accepted() {
		m.finalized = m.pending
		m.pending = nil
		m.enterLocked(PhaseFinalized)
		snap := m.snapshotLocked()
		m.logger.Info().Str("deity", m.deity.Key).Str("title", m.finalized.Title).Int("attempt", m.attempt).Msg("fortune finalized")
		return []notice{{kind: noticePhase, snap: snap}, {kind: noticeComplete, snap: snap}}
	}

	m.pending = nil
	m.enterLocked(PhaseIdle)
	return []notice{{kind: noticePhase, snap: m.snapshotLocked()}}
}

func (m *Machine) failClosedLocked(err error) []notice {
	m.logger.Warn().Err(err).Str("phase", m.phase.String()).Msg("ritual failed closed")
	m.stopTimerLocked()
	m.pending = nil
	m.outcome = OutcomeNone
	m.enterLocked(PhaseIdle)
	return []notice{
		{kind: noticePhase, snap: m.snapshotLocked()},
		{kind: noticeError, err: err},
	}
}

// scheduleLocked arms the single ritual timer. The callback is discarded if
// the generation or phase changed before it fires.
func (m *Machine) scheduleLocked(d time.Duration, from Phase, step func() []notice) {
	m.stopTimerLocked()
	gen := m.generation
	m.timer = m.sched.AfterFunc(d, func() {
		m.mu.Lock()
		if gen != m.generation || m.phase != from {
			m.logger.Debug().
				Int64("timer_generation", int64(gen)).
				Int64("generation", int64(m.generation)).
				Str("expected", from.String()).
				Str("phase", m.phase.String()).
				Msg("stale timer ignored")
			m.mu.Unlock()
			return
		}
		m.timer = nil
		m.unlockAndNotify(step()...)
	})
}

func (m *Machine) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Machine) clearLocked() {
	m.stopTimerLocked()
	m.generation++
	m.pending = nil
	m.finalized = nil
	m.outcome = OutcomeNone
	m.phase = PhaseIdle
}

func (m *Machine) enterLocked(p Phase) {
	m.logger.Debug().
		Str("from", m.phase.String()).
		Str("to", p.String()).
		Int64("generation", int64(m.generation)).
		Msg("phase transition")
	m.phase = p
}

func (m *Machine) invalid(op string) error {
	return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, op, m.phase)
}

func (m *Machine) snapshotLocked() Snapshot {
	s := Snapshot{
		Phase:       m.phase,
		LastOutcome: m.outcome,
		Attempt:     m.attempt,
		Generation:  m.generation,
	}
	if m.deity != nil {
		s.DeityKey = m.deity.Key
		s.DeityName = m.deity.Name
	}
	if m.pending != nil {
		p := *m.pending
		s.Pending = &p
		s.PendingTitle = p.Title
	}
	if m.finalized != nil {
		f := *m.finalized
		s.Finalized = &f
	}
	return s
}

// unlockAndNotify releases m.mu and delivers notices to the listener. The
// notify lock is taken before m.mu is released so deliveries from concurrent
// transitions keep transition order.
func (m *Machine) unlockAndNotify(notices ...notice) {
	l := m.listener
	if l == nil || len(notices) == 0 {
		m.mu.Unlock()
		return
	}

	m.notifyMu.Lock()
	m.mu.Unlock()
	defer m.notifyMu.Unlock()

	for _, n := range notices {
		switch n.kind {
		case noticePhase:
			l.OnPhaseChange(n.snap)
		case noticeComplete:
			l.OnDrawComplete(n.snap)
		case noticeError:
			l.OnError(n.err)
		}
	}
}
