// gate.go handles the timed activation window opened by the wake word
package wakeword

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout is how long the gate stays open after a wake word
const DefaultTimeout = 30 * time.Second

// ErrInvalidTimeout is returned when a gate is constructed with a non-positive timeout
var ErrInvalidTimeout = errors.New("gate timeout must be positive")

// GateState is one of the two states of the gate
type GateState int

const (
	// GateInactive means the listening loop should ignore speech
	GateInactive GateState = iota
	// GateActive means the listening loop should process speech
	GateActive
)

// String returns the lowercase name of the state
func (s GateState) String() string {
	if s == GateActive {
		return "active"
	}
	return "inactive"
}

// Transition reasons reported to observers
const (
	ReasonActivated   = "activated"
	ReasonExtended    = "extended"
	ReasonDeactivated = "deactivated"
	ReasonTimedOut    = "timed_out"
)

// GateTransition describes a state change (or deadline reset) of the gate. Seq
// increases with every transition of one gate; observers may receive transitions
// out of order and should compare Seq before trusting To.
type GateTransition struct {
	Seq         uint64
	From        GateState
	To          GateState
	Reason      string
	ActiveUntil time.Time
	At          time.Time
}

// GateStatus is a consistent snapshot of the gate
type GateStatus struct {
	Active      bool          `json:"active"`
	ActiveUntil time.Time     `json:"active_until"`
	ObservedAt  time.Time     `json:"observed_at"`
	Timeout     time.Duration `json:"timeout"`
}

// Remaining returns how long the window stays open after the observation, or 0 when closed
func (s GateStatus) Remaining() time.Duration {
	if !s.Active {
		return 0
	}
	return s.ActiveUntil.Sub(s.ObservedAt)
}

// GateOption configures a Gate
type GateOption func(*Gate)

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) GateOption {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// WithLogger sets the logger used for transition messages
func WithLogger(logger *zap.Logger) GateOption {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithObserver registers a callback invoked after every transition. Observers run
// outside the gate lock and must not block.
func WithObserver(fn func(GateTransition)) GateOption {
	return func(g *Gate) {
		if fn != nil {
			g.observers = append(g.observers, fn)
		}
	}
}

// Gate controls when the assistant should listen. A wake signal opens a window of
// fixed length; the window closes lazily the first time it is queried after the
// deadline, when Deactivate is called, and never on its own.
type Gate struct {
	mu          sync.Mutex
	active      bool
	activeUntil time.Time
	timeout     time.Duration
	seq         uint64

	now       func() time.Time
	logger    *zap.Logger
	observers []func(GateTransition)
}

// NewGate creates an inactive gate with the given window length
func NewGate(timeout time.Duration, opts ...GateOption) (*Gate, error) {
	if timeout <= 0 {
		return nil, ErrInvalidTimeout
	}

	g := &Gate{
		timeout: timeout,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(zap.String("component", "gate"))

	return g, nil
}

// Timeout returns the configured window length
func (g *Gate) Timeout() time.Duration {
	return g.timeout
}

// Activate opens the window (or resets the deadline of an open one)
func (g *Gate) Activate() {
	g.mu.Lock()
	now := g.now()
	from := g.state()
	g.active = true
	g.activeUntil = now.Add(g.timeout)
	tr := g.transitionLocked(from, GateActive, ReasonActivated, now)
	g.mu.Unlock()

	g.logger.Info("gate activated", zap.Duration("timeout", g.timeout))
	g.notify(tr)
}

// Deactivate closes the window immediately regardless of the remaining time
func (g *Gate) Deactivate() {
	g.mu.Lock()
	now := g.now()
	from := g.state()
	g.active = false
	tr := g.transitionLocked(from, GateInactive, ReasonDeactivated, now)
	g.mu.Unlock()

	g.logger.Info("gate deactivated")
	g.notify(tr)
}

// IsActive reports whether the window is open, closing it first if the deadline passed
func (g *Gate) IsActive() bool {
	g.mu.Lock()
	expired, ok := g.expireLocked(g.now())
	active := g.active
	g.mu.Unlock()

	if ok {
		g.timedOut(expired)
	}
	return active
}

// Extend resets the deadline of an open window. A closed gate stays closed, including
// one whose deadline passed without being queried.
func (g *Gate) Extend() {
	g.mu.Lock()
	now := g.now()
	expired, ok := g.expireLocked(now)
	if !g.active {
		g.mu.Unlock()
		if ok {
			g.timedOut(expired)
		}
		return
	}
	g.activeUntil = now.Add(g.timeout)
	tr := g.transitionLocked(GateActive, GateActive, ReasonExtended, now)
	g.mu.Unlock()

	g.notify(tr)
}

// Status returns the active flag and deadline as one consistent pair. It applies the
// same expiry rule as IsActive.
func (g *Gate) Status() GateStatus {
	g.mu.Lock()
	now := g.now()
	expired, ok := g.expireLocked(now)
	status := GateStatus{
		Active:      g.active,
		ActiveUntil: g.activeUntil,
		ObservedAt:  now,
		Timeout:     g.timeout,
	}
	g.mu.Unlock()

	if ok {
		g.timedOut(expired)
	}
	return status
}

// expireLocked flips an open gate whose deadline has passed and returns the
// timed-out transition. Caller holds g.mu.
func (g *Gate) expireLocked(now time.Time) (GateTransition, bool) {
	if g.active && now.After(g.activeUntil) {
		g.active = false
		return g.transitionLocked(GateActive, GateInactive, ReasonTimedOut, now), true
	}
	return GateTransition{}, false
}

// transitionLocked numbers a transition. Caller holds g.mu.
func (g *Gate) transitionLocked(from, to GateState, reason string, now time.Time) GateTransition {
	g.seq++
	return GateTransition{Seq: g.seq, From: from, To: to, Reason: reason, ActiveUntil: g.activeUntil, At: now}
}

func (g *Gate) timedOut(tr GateTransition) {
	g.logger.Info("gate timed out, going back to sleep")
	g.notify(tr)
}

func (g *Gate) state() GateState {
	if g.active {
		return GateActive
	}
	return GateInactive
}

func (g *Gate) notify(tr GateTransition) {
	for _, fn := range g.observers {
		fn(tr)
	}
}
