package threads

import (
	"fmt"

	"github.com/tatianab/storyloom/internal/story"
)

// Snapshot is the serialisable state of all three pools.
type Snapshot struct {
	Active       []*story.Thread `yaml:"active" json:"active"`
	Paused       []*story.Thread `yaml:"paused" json:"paused"`
	Completed    []*story.Thread `yaml:"completed" json:"completed"`
	Convergences []*Convergence  `yaml:"convergences" json:"convergences"`
	Order        map[string]int  `yaml:"order" json:"order"`
	Seq          int             `yaml:"seq" json:"seq"`
}

func cloneAll(pool []*story.Thread) []*story.Thread {
	out := make([]*story.Thread, 0, len(pool))
	for _, t := range pool {
		out = append(out, t.Clone())
	}
	return out
}

func cloneConvergence(c *Convergence) *Convergence {
	cc := *c
	cc.ThreadIDs = append([]string(nil), c.ThreadIDs...)
	cc.SharedParticipants = append([]string(nil), c.SharedParticipants...)
	cc.Participants = append([]string(nil), c.Participants...)
	return &cc
}

// Snapshot deep-copies the pools and convergence records.
func (m *Manager) Snapshot() Snapshot {
	s := Snapshot{
		Active:    cloneAll(m.active),
		Paused:    cloneAll(m.paused),
		Completed: cloneAll(m.completed),
		Order:     make(map[string]int, len(m.order)),
		Seq:       m.seq,
	}
	for _, c := range m.convergences {
		s.Convergences = append(s.Convergences, cloneConvergence(c))
	}
	for k, v := range m.order {
		s.Order[k] = v
	}
	return s
}

// Restore replaces the manager state with a snapshot. Pending events are
// dropped.
func (m *Manager) Restore(s Snapshot) error {
	if len(s.Active) > m.cfg.MaxActive {
		return fmt.Errorf("snapshot has %d active threads, limit is %d", len(s.Active), m.cfg.MaxActive)
	}
	m.active = cloneAll(s.Active)
	m.paused = cloneAll(s.Paused)
	m.completed = cloneAll(s.Completed)
	m.convergences = nil
	for _, c := range s.Convergences {
		m.convergences = append(m.convergences, cloneConvergence(c))
	}
	m.order = make(map[string]int, len(s.Order))
	for k, v := range s.Order {
		m.order[k] = v
	}
	m.seq = s.Seq
	m.events = nil
	return nil
}
