package threads

// EventKind names something that happened to a thread during a tick.
type EventKind string

const (
	EventAdded               EventKind = "thread_added"
	EventEvicted             EventKind = "thread_evicted"
	EventPaused              EventKind = "thread_paused"
	EventResumed             EventKind = "thread_resumed"
	EventCompleted           EventKind = "thread_completed"
	EventDiscontinued        EventKind = "thread_discontinued"
	EventStalled             EventKind = "stalled"
	EventBeatExecuted        EventKind = "beat_executed"
	EventBeatBlocked         EventKind = "beat_blocked"
	EventBeatForced          EventKind = "beat_forced"
	EventConvergenceDetected EventKind = "convergence_detected"
	EventConvergenceExecuted EventKind = "convergence_executed"
)

// Event is a record of a pool or beat change.
type Event struct {
	Kind          EventKind `yaml:"kind" json:"kind"`
	ThreadID      string    `yaml:"thread_id,omitempty" json:"thread_id,omitempty"`
	BeatID        string    `yaml:"beat_id,omitempty" json:"beat_id,omitempty"`
	ConvergenceID string    `yaml:"convergence_id,omitempty" json:"convergence_id,omitempty"`
	At            float64   `yaml:"at" json:"at"`
}

func (m *Manager) emit(e Event) Event {
	e.At = m.clock.Now()
	m.events = append(m.events, e)
	return e
}

// DrainEvents returns and clears the events recorded since the last drain.
func (m *Manager) DrainEvents() []Event {
	out := m.events
	m.events = nil
	return out
}
