// Package threads owns the pools of active, paused and completed storylines:
// it enforces capacity, executes beats and detects where threads converge.
package threads

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tatianab/storyloom/internal/clock"
	"github.com/tatianab/storyloom/internal/story"
)

// ErrInvalidCapacity is returned for a non-positive active-thread limit.
var ErrInvalidCapacity = errors.New("max active threads must be positive")

// Config tunes the thread manager.
type Config struct {
	MaxActive int `yaml:"max_active"`
	// StallWait is how many hours a beat may stay pending before its thread
	// counts as stalled.
	StallWait float64 `yaml:"stall_wait"`
	// ConvergenceThreshold is the potential a pair must exceed to converge.
	ConvergenceThreshold float64 `yaml:"convergence_threshold"`
	// DuplicateOverlap is the participant Jaccard similarity above which a
	// candidate repeats a known convergence.
	DuplicateOverlap float64 `yaml:"duplicate_overlap"`
}

// DefaultConfig returns the default pool settings.
func DefaultConfig() Config {
	return Config{
		MaxActive:            6,
		StallWait:            2,
		ConvergenceThreshold: 0.6,
		DuplicateOverlap:     0.8,
	}
}

// Random is the source of jitter for convergence scheduling.
type Random interface {
	Float64() float64
}

// TensionStepper limits how far a thread's tension moves in one tick.
type TensionStepper interface {
	StepToward(current, target float64) float64
	RecommendAdjustment(t *story.Thread) float64
}

// Manager owns the three thread pools. A thread is in exactly one pool.
type Manager struct {
	cfg     Config
	clock   clock.Clock
	rng     Random
	stepper TensionStepper
	newID   func() string
	logger  *zap.Logger

	active    []*story.Thread
	paused    []*story.Thread
	completed []*story.Thread
	order     map[string]int
	seq       int

	convergences []*Convergence
	events       []Event
}

// Option configures a Manager.
type Option func(*Manager)

func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

func WithRandom(r Random) Option {
	return func(m *Manager) { m.rng = r }
}

// WithTension eases tension changes through s. Without it tension snaps to
// its calculated value after every advance.
func WithTension(s TensionStepper) Option {
	return func(m *Manager) { m.stepper = s }
}

// WithIDs sets the generator used for convergence ids.
func WithIDs(fn func() string) Option {
	return func(m *Manager) { m.newID = fn }
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager validates cfg and builds an empty Manager.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if cfg.MaxActive <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, cfg.MaxActive)
	}
	def := DefaultConfig()
	if cfg.StallWait <= 0 {
		cfg.StallWait = def.StallWait
	}
	if cfg.ConvergenceThreshold <= 0 {
		cfg.ConvergenceThreshold = def.ConvergenceThreshold
	}
	if cfg.DuplicateOverlap <= 0 {
		cfg.DuplicateOverlap = def.DuplicateOverlap
	}
	m := &Manager{
		cfg:    cfg,
		clock:  clock.NewManual(0),
		newID:  uuid.NewString,
		logger: zap.NewNop(),
		order:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// sorted returns a copy of pool ordered by priority, then insertion.
func (m *Manager) sorted(pool []*story.Thread) []*story.Thread {
	out := append([]*story.Thread(nil), pool...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return m.order[out[i].ID] < m.order[out[j].ID]
	})
	return out
}

// Active returns the active threads in processing order.
func (m *Manager) Active() []*story.Thread {
	return m.sorted(m.active)
}

// Paused returns the paused threads in priority order.
func (m *Manager) Paused() []*story.Thread {
	return m.sorted(m.paused)
}

// Completed returns finished threads in completion order.
func (m *Manager) Completed() []*story.Thread {
	return append([]*story.Thread(nil), m.completed...)
}

// All returns every thread: active, then paused, then completed.
func (m *Manager) All() []*story.Thread {
	out := m.Active()
	out = append(out, m.Paused()...)
	return append(out, m.completed...)
}

// Get finds a thread in any pool.
func (m *Manager) Get(id string) *story.Thread {
	for _, pool := range [][]*story.Thread{m.active, m.paused, m.completed} {
		if i := indexOf(pool, id); i >= 0 {
			return pool[i]
		}
	}
	return nil
}

// IsActive reports whether id is in the active pool.
func (m *Manager) IsActive(id string) bool {
	return indexOf(m.active, id) >= 0
}

func indexOf(pool []*story.Thread, id string) int {
	for i, t := range pool {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func remove(pool []*story.Thread, id string) ([]*story.Thread, *story.Thread) {
	i := indexOf(pool, id)
	if i < 0 {
		return pool, nil
	}
	t := pool[i]
	return append(pool[:i], pool[i+1:]...), t
}

// lowestActive is the eviction candidate: lowest priority, newest on ties.
func (m *Manager) lowestActive() *story.Thread {
	var victim *story.Thread
	for _, t := range m.active {
		if victim == nil ||
			t.Priority < victim.Priority ||
			(t.Priority == victim.Priority && m.order[t.ID] > m.order[victim.ID]) {
			victim = t
		}
	}
	return victim
}

// makeRoom evicts the lowest-priority active thread to the paused pool when
// the active pool is full and that thread ranks below priority.
func (m *Manager) makeRoom(priority int) bool {
	if len(m.active) < m.cfg.MaxActive {
		return true
	}
	victim := m.lowestActive()
	if victim == nil || victim.Priority >= priority {
		return false
	}
	m.active, _ = remove(m.active, victim.ID)
	victim.Pause()
	m.paused = append(m.paused, victim)
	m.emit(Event{Kind: EventEvicted, ThreadID: victim.ID})
	m.logger.Debug("thread evicted",
		zap.String("thread", victim.ID),
		zap.Int("priority", victim.Priority))
	return true
}

// AddThread inserts a playable thread, evicting a lower-priority one when the
// pool is full, and checks it for convergences. It reports false when the
// thread is rejected.
func (m *Manager) AddThread(t *story.Thread) bool {
	if t == nil || t.ID == "" || !t.Playable() || m.Get(t.ID) != nil {
		return false
	}
	if !m.makeRoom(t.Priority) {
		m.logger.Debug("thread rejected at capacity",
			zap.String("thread", t.ID),
			zap.Int("priority", t.Priority))
		return false
	}
	m.seq++
	m.order[t.ID] = m.seq
	m.active = append(m.active, t)
	m.emit(Event{Kind: EventAdded, ThreadID: t.ID})

	for _, other := range m.Active() {
		if other.ID != t.ID {
			m.consider(t, other)
		}
	}
	return true
}

// PauseThread moves an active thread to the paused pool.
func (m *Manager) PauseThread(id string) bool {
	i := indexOf(m.active, id)
	if i < 0 || !m.active[i].Pause() {
		return false
	}
	var t *story.Thread
	m.active, t = remove(m.active, id)
	m.paused = append(m.paused, t)
	m.emit(Event{Kind: EventPaused, ThreadID: id})
	return true
}

// ResumeThread moves a paused thread back to the active pool, evicting a
// lower-priority thread when the pool is full.
func (m *Manager) ResumeThread(id string) bool {
	i := indexOf(m.paused, id)
	if i < 0 {
		return false
	}
	t := m.paused[i]
	if !m.makeRoom(t.Priority) {
		return false
	}
	m.paused, _ = remove(m.paused, id)
	t.Resume(m.clock.Now())
	m.active = append(m.active, t)
	m.emit(Event{Kind: EventResumed, ThreadID: id})
	return true
}

// CompleteThread resolves an active or paused thread with the given quality
// and moves it to the completed pool.
func (m *Manager) CompleteThread(id string, quality float64) bool {
	t := m.take(id)
	if t == nil {
		return false
	}
	t.Complete(quality, m.clock.Now())
	m.retire(t)
	return true
}

// DiscontinueThread ends an active or paused thread as abandoned or failed.
func (m *Manager) DiscontinueThread(id string, outcome story.Outcome) bool {
	t := m.take(id)
	if t == nil {
		return false
	}
	t.Discontinue(outcome, m.clock.Now())
	m.retire(t)
	return true
}

// take removes id from the active or paused pool.
func (m *Manager) take(id string) *story.Thread {
	var t *story.Thread
	if m.active, t = remove(m.active, id); t != nil {
		return t
	}
	m.paused, t = remove(m.paused, id)
	return t
}

// retire files a finished thread in the completed pool and refills the
// active pool from the paused one.
func (m *Manager) retire(t *story.Thread) {
	m.active, _ = remove(m.active, t.ID)
	m.paused, _ = remove(m.paused, t.ID)
	m.completed = append(m.completed, t)
	kind := EventCompleted
	if t.Stage == story.StageDiscontinued {
		kind = EventDiscontinued
	}
	m.emit(Event{Kind: kind, ThreadID: t.ID})

	if len(m.active) < m.cfg.MaxActive && len(m.paused) > 0 {
		next := m.Paused()[0]
		m.ResumeThread(next.ID)
	}
}

// Update applies fn to an active or paused thread. A thread that fn finishes
// moves to the completed pool.
func (m *Manager) Update(id string, fn func(*story.Thread)) bool {
	t := m.Get(id)
	if t == nil || t.Stage.Terminal() {
		m.logger.Debug("update of missing thread ignored", zap.String("thread", id))
		return false
	}
	fn(t)
	if t.Stage.Terminal() {
		m.retire(t)
	}
	return true
}

// AdvanceThreads executes the pending beat of every active thread whose
// requirements hold. Stalled threads are reported and skipped; blocked beats
// simply wait. Tension then eases toward its calculated value for every
// active thread; stalled threads drift toward their stage target instead.
func (m *Manager) AdvanceThreads(available []string, world story.World) []Event {
	now := m.clock.Now()
	req := story.NewRequirements(available, world)
	mark := len(m.events)

	for _, t := range m.Active() {
		if !t.Playable() {
			continue
		}
		if t.IsStalled(now, m.cfg.StallWait) {
			m.emit(Event{Kind: EventStalled, ThreadID: t.ID})
			continue
		}
		b, ok := t.ExecuteCurrentBeat(req, now)
		if b == nil {
			continue
		}
		if !ok {
			m.emit(Event{Kind: EventBeatBlocked, ThreadID: t.ID, BeatID: b.ID})
			continue
		}
		m.emit(Event{Kind: EventBeatExecuted, ThreadID: t.ID, BeatID: b.ID})
		if t.Stage.Terminal() {
			m.retire(t)
		}
	}

	for _, t := range m.active {
		m.ease(t, now)
	}
	return append([]Event(nil), m.events[mark:]...)
}

func (m *Manager) ease(t *story.Thread, now float64) {
	switch {
	case m.stepper == nil:
		t.RecalculateTension()
	case t.IsStalled(now, m.cfg.StallWait):
		t.SetTension(m.stepper.RecommendAdjustment(t))
	default:
		t.Tension = m.stepper.StepToward(t.Tension, t.CalculateTension())
	}
}

// ForceAdvance skips the pending beat of an active thread and clears its
// blockers.
func (m *Manager) ForceAdvance(id string) bool {
	i := indexOf(m.active, id)
	if i < 0 {
		return false
	}
	t := m.active[i]
	b, ok := t.SkipCurrentBeat(m.clock.Now())
	if !ok {
		return false
	}
	t.Blockers = nil
	m.emit(Event{Kind: EventBeatForced, ThreadID: id, BeatID: b.ID})
	if t.Stage.Terminal() {
		m.retire(t)
	}
	return true
}

// Summaries returns display records for the active and paused threads.
func (m *Manager) Summaries() []story.Summary {
	now := m.clock.Now()
	var out []story.Summary
	for _, t := range append(m.Active(), m.Paused()...) {
		out = append(out, t.Summarize(now, m.cfg.StallWait))
	}
	return out
}
