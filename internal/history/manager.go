package history

import (
	"sync"
	"time"

	"github.com/dshills/notepad/internal/logging"
)

// Capacity and timing defaults.
const (
	// DefaultMaxEntries bounds a standalone manager.
	DefaultMaxEntries = 100

	// TabMaxEntries bounds a manager owned by a workspace tab.
	TabMaxEntries = 50

	// MinMaxEntries is the smallest capacity that keeps a checkpoint to
	// undo to after a commit.
	MinMaxEntries = 2

	// DefaultQuietPeriod is how long typing must pause before a checkpoint is taken.
	DefaultQuietPeriod = 500 * time.Millisecond
)

// State describes whether the live value has caught up with the checkpoints.
type State int

const (
	// AtCheckpoint means the live value equals the current checkpoint and
	// no deferred commit is pending.
	AtCheckpoint State = iota

	// Editing means the live value may lead the checkpoints and a deferred
	// commit may be pending.
	Editing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case AtCheckpoint:
		return "at-checkpoint"
	case Editing:
		return "editing"
	default:
		return "unknown"
	}
}

// Checkpoint is an immutable full-text snapshot.
type Checkpoint struct {
	Text string
	Time time.Time
}

// ChangeKind identifies what produced a Change.
type ChangeKind int

const (
	// ChangeLive is a keystroke that updated the live value only.
	ChangeLive ChangeKind = iota
	// ChangeCommit is a new checkpoint (debounced or immediate).
	ChangeCommit
	// ChangeUndo is a move to an older checkpoint.
	ChangeUndo
	// ChangeRedo is a move to a newer checkpoint.
	ChangeRedo
)

// String returns the change kind name.
func (k ChangeKind) String() string {
	switch k {
	case ChangeLive:
		return "live"
	case ChangeCommit:
		return "commit"
	case ChangeUndo:
		return "undo"
	case ChangeRedo:
		return "redo"
	default:
		return "unknown"
	}
}

// Change describes the manager state right after a mutation.
type Change struct {
	Kind    ChangeKind
	Value   string
	Cursor  int
	Len     int
	CanUndo bool
	CanRedo bool
}

// Observer is notified after every mutation. Observers run on the goroutine
// that caused the mutation (the caller, or the timer for deferred commits)
// and must not assume delivery order across goroutines.
type Observer func(Change)

// Option configures a Manager.
type Option func(*Manager)

// WithMaxEntries sets the checkpoint capacity. Values below MinMaxEntries
// are ignored.
func WithMaxEntries(n int) Option {
	return func(m *Manager) {
		if n >= MinMaxEntries {
			m.maxEntries = n
		}
	}
}

// WithQuietPeriod sets the debounce window. Negative values are ignored.
func WithQuietPeriod(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.quiet = d
		}
	}
}

// WithScheduler replaces the timer source.
func WithScheduler(s Scheduler) Option {
	return func(m *Manager) {
		if s != nil {
			m.sched = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithObserver registers an observer at construction time.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.observers = append(m.observers, o)
		}
	}
}

// WithClock sets the time source used to stamp checkpoints.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Manager owns one document's checkpoints, cursor and live value.
// All methods are safe for concurrent use.
type Manager struct {
	mu sync.Mutex

	checkpoints []Checkpoint
	cursor      int
	live        string
	state       State

	// Deferred commit. gen identifies the only callback allowed to commit;
	// anything that invalidates the pending commit bumps it.
	timer Timer
	gen   uint64

	closed bool

	maxEntries int
	quiet      time.Duration
	sched      Scheduler
	now        func() time.Time
	logger     *logging.Logger
	observers  []Observer
}

// New creates a manager seeded with one checkpoint holding initial.
func New(initial string, opts ...Option) *Manager {
	m := &Manager{
		maxEntries: DefaultMaxEntries,
		quiet:      DefaultQuietPeriod,
		sched:      SystemScheduler{},
		now:        time.Now,
		logger:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.checkpoints = []Checkpoint{{Text: initial, Time: m.now()}}
	m.live = initial
	m.state = AtCheckpoint
	return m
}

// Observe registers an observer.
func (m *Manager) Observe(o Observer) {
	if o == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// RecordDebounced sets the live value immediately and schedules a deferred
// commit after the quiet period, replacing any commit already pending.
func (m *Manager) RecordDebounced(text string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	m.live = text
	m.state = Editing
	m.cancelPendingLocked()

	gen := m.gen
	m.timer = m.sched.AfterFunc(m.quiet, func() {
		m.fire(gen)
	})

	change := m.changeLocked(ChangeLive)
	observers := m.observers
	m.mu.Unlock()

	notify(observers, change)
}

// fire runs a deferred commit scheduled under generation gen.
func (m *Manager) fire(gen uint64) {
	m.mu.Lock()
	if m.closed || gen != m.gen || m.state != Editing {
		m.mu.Unlock()
		return
	}

	m.timer = nil
	m.state = AtCheckpoint
	if m.live == m.checkpoints[m.cursor].Text {
		m.mu.Unlock()
		return
	}

	m.appendLocked(m.live)
	m.logger.Debug("debounced checkpoint %d of %d", m.cursor+1, len(m.checkpoints))

	change := m.changeLocked(ChangeCommit)
	observers := m.observers
	m.mu.Unlock()

	notify(observers, change)
}

// CommitImmediate sets the live value and appends it as a checkpoint
// synchronously. Any pending deferred commit is cancelled and never fires.
func (m *Manager) CommitImmediate(text string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	m.cancelPendingLocked()
	m.live = text
	m.state = AtCheckpoint
	m.appendLocked(text)
	m.logger.Debug("immediate checkpoint %d of %d", m.cursor+1, len(m.checkpoints))

	change := m.changeLocked(ChangeCommit)
	observers := m.observers
	m.mu.Unlock()

	notify(observers, change)
}

// Flush commits a pending edit now instead of waiting for the quiet period.
// It reports whether a checkpoint was appended.
func (m *Manager) Flush() bool {
	m.mu.Lock()
	if m.closed || m.state != Editing {
		m.mu.Unlock()
		return false
	}

	m.cancelPendingLocked()
	m.state = AtCheckpoint
	if m.live == m.checkpoints[m.cursor].Text {
		m.mu.Unlock()
		return false
	}

	m.appendLocked(m.live)
	change := m.changeLocked(ChangeCommit)
	observers := m.observers
	m.mu.Unlock()

	notify(observers, change)
	return true
}

// Undo moves to the previous checkpoint. It is a no-op at the oldest one.
// A pending deferred commit is discarded.
func (m *Manager) Undo() bool {
	return m.move(-1, ChangeUndo)
}

// Redo moves to the next checkpoint. It is a no-op at the newest one.
// A pending deferred commit is discarded.
func (m *Manager) Redo() bool {
	return m.move(1, ChangeRedo)
}

func (m *Manager) move(delta int, kind ChangeKind) bool {
	m.mu.Lock()
	target := m.cursor + delta
	if m.closed || target < 0 || target >= len(m.checkpoints) {
		m.mu.Unlock()
		return false
	}

	m.cancelPendingLocked()
	m.cursor = target
	m.live = m.checkpoints[target].Text
	m.state = AtCheckpoint

	change := m.changeLocked(kind)
	observers := m.observers
	m.mu.Unlock()

	notify(observers, change)
	return true
}

// CanUndo reports whether Undo would move the cursor.
func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor > 0
}

// CanRedo reports whether Redo would move the cursor.
func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor < len(m.checkpoints)-1
}

// Value returns the live value.
func (m *Manager) Value() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

// Cursor returns the index of the current checkpoint.
func (m *Manager) Cursor() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

// Len returns the number of checkpoints.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.checkpoints)
}

// Current returns the checkpoint at the cursor.
func (m *Manager) Current() Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkpoints[m.cursor]
}

// Checkpoints returns a copy of all checkpoints, oldest first.
func (m *Manager) Checkpoints() []Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Checkpoint, len(m.checkpoints))
	copy(out, m.checkpoints)
	return out
}

// Texts returns the text of every checkpoint, oldest first.
func (m *Manager) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.checkpoints))
	for i, cp := range m.checkpoints {
		out[i] = cp.Text
	}
	return out
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Pending reports whether a deferred commit is scheduled.
func (m *Manager) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timer != nil
}

// MaxEntries returns the checkpoint capacity.
func (m *Manager) MaxEntries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxEntries
}

// QuietPeriod returns the debounce window.
func (m *Manager) QuietPeriod() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quiet
}

// Snapshot returns the state an editing surface needs to render.
func (m *Manager) Snapshot() Change {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.changeLocked(ChangeLive)
}

// Close cancels any pending commit. Later mutations are ignored; queries
// keep answering from the last state.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.cancelPendingLocked()
	m.closed = true
}

// Closed reports whether Close has been called.
func (m *Manager) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// cancelPendingLocked stops the pending timer and invalidates its callback
// in case it is already running.
func (m *Manager) cancelPendingLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.gen++
}

// appendLocked truncates the redo branch, appends text and evicts the
// oldest checkpoints beyond capacity.
func (m *Manager) appendLocked(text string) {
	m.checkpoints = append(m.checkpoints[:m.cursor+1], Checkpoint{Text: text, Time: m.now()})
	m.cursor = len(m.checkpoints) - 1

	if excess := len(m.checkpoints) - m.maxEntries; excess > 0 {
		n := copy(m.checkpoints, m.checkpoints[excess:])
		clear(m.checkpoints[n:])
		m.checkpoints = m.checkpoints[:n]
		m.cursor -= excess
		m.logger.Debug("evicted %d checkpoint(s)", excess)
	}
}

func (m *Manager) changeLocked(kind ChangeKind) Change {
	return Change{
		Kind:    kind,
		Value:   m.live,
		Cursor:  m.cursor,
		Len:     len(m.checkpoints),
		CanUndo: m.cursor > 0,
		CanRedo: m.cursor < len(m.checkpoints)-1,
	}
}

func notify(observers []Observer, change Change) {
	for _, o := range observers {
		o(change)
	}
}
