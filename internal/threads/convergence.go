package threads

import (
	"sort"

	"go.uber.org/zap"

	"github.com/tatianab/storyloom/internal/story"
)

// Convergence is a detected (or executed) intersection of two or more
// active threads.
type Convergence struct {
	ID                 string                `yaml:"id" json:"id"`
	ThreadIDs          []string              `yaml:"thread_ids" json:"thread_ids"`
	Kind               story.ConvergenceKind `yaml:"kind" json:"kind"`
	SharedParticipants []string              `yaml:"shared_participants" json:"shared_participants"`
	Participants       []string              `yaml:"participants" json:"participants"`
	Score              float64               `yaml:"score" json:"score"`
	TensionMultiplier  float64               `yaml:"tension_multiplier" json:"tension_multiplier"`
	DetectedAt         float64               `yaml:"detected_at" json:"detected_at"`
	ScheduledAt        float64               `yaml:"scheduled_at" json:"scheduled_at"`
	Executed           bool                  `yaml:"executed" json:"executed"`
	ExecutedAt         float64               `yaml:"executed_at,omitempty" json:"executed_at,omitempty"`
}

// Involves reports whether the convergence references thread id.
func (c *Convergence) Involves(id string) bool {
	for _, tid := range c.ThreadIDs {
		if tid == id {
			return true
		}
	}
	return false
}

// jaccard is |a∩b| / |a∪b| over the two sets.
func jaccard(a, b []string) float64 {
	set := make(map[string]bool, len(a))
	for _, x := range a {
		set[x] = true
	}
	union := len(set)
	inter := 0
	seen := make(map[string]bool, len(b))
	for _, x := range b {
		if seen[x] {
			continue
		}
		seen[x] = true
		if set[x] {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

// live reports whether every thread of c is still in the active pool.
func (m *Manager) live(c *Convergence) bool {
	for _, id := range c.ThreadIDs {
		if !m.IsActive(id) {
			return false
		}
	}
	return true
}

// isDuplicate only compares against pending convergences; executed ones and
// those whose threads have left the pool no longer block a new pairing.
func (m *Manager) isDuplicate(ids, participants []string) bool {
	for _, c := range m.convergences {
		if c.Executed || !m.live(c) {
			continue
		}
		if sameSet(c.ThreadIDs, ids) {
			return true
		}
		if jaccard(c.Participants, participants) > m.cfg.DuplicateOverlap {
			return true
		}
	}
	return false
}

// consider records a convergence between a and b when their potential
// exceeds the threshold and it does not repeat a known one.
func (m *Manager) consider(a, b *story.Thread) *Convergence {
	if a.ID == b.ID || !a.Playable() || !b.Playable() {
		return nil
	}
	score := a.CheckConvergencePotential(b)
	if score <= m.cfg.ConvergenceThreshold {
		return nil
	}
	ids := []string{a.ID, b.ID}
	sort.Strings(ids)

	participants := a.Participants()
	for _, p := range b.Participants() {
		if !a.HasParticipant(p) {
			participants = append(participants, p)
		}
	}
	if m.isDuplicate(ids, participants) {
		return nil
	}

	_, kind := story.Compatibility(a.Type, b.Type)
	now := m.clock.Now()
	lead := 0.5 * min(a.EstimateRemainingTime(), b.EstimateRemainingTime())
	lead = max(0.1, min(lead, 4))
	if m.rng != nil {
		lead += m.rng.Float64() * 0.1
	}

	c := &Convergence{
		ID:                 m.newID(),
		ThreadIDs:          ids,
		Kind:               kind,
		SharedParticipants: a.SharedParticipants(b),
		Participants:       participants,
		Score:              score,
		TensionMultiplier:  kind.Multiplier(),
		DetectedAt:         now,
		ScheduledAt:        now + lead,
	}
	m.convergences = append(m.convergences, c)
	m.emit(Event{Kind: EventConvergenceDetected, ConvergenceID: c.ID})
	m.logger.Debug("convergence detected",
		zap.String("convergence", c.ID),
		zap.Strings("threads", ids),
		zap.String("kind", string(kind)),
		zap.Float64("score", score))
	return c
}

// DetectConvergences compares every pair of active threads and returns the
// newly recorded convergences.
func (m *Manager) DetectConvergences() []*Convergence {
	active := m.Active()
	var found []*Convergence
	for i := 0; i < len(active); i++ {
		for j := i + 1; j < len(active); j++ {
			if c := m.consider(active[i], active[j]); c != nil {
				found = append(found, c)
			}
		}
	}
	return found
}

// Convergences returns every known convergence in detection order.
func (m *Manager) Convergences() []*Convergence {
	return append([]*Convergence(nil), m.convergences...)
}

// Convergence finds a convergence by id.
func (m *Manager) Convergence(id string) *Convergence {
	for _, c := range m.convergences {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// PendingConvergences returns unexecuted convergences whose threads are all
// still active.
func (m *Manager) PendingConvergences() []*Convergence {
	var out []*Convergence
	for _, c := range m.convergences {
		if !c.Executed && m.live(c) {
			out = append(out, c)
		}
	}
	return out
}

// ExecuteConvergence plays a shared confrontation beat across every thread of
// the convergence and multiplies their tension. It is a no-op when any of the
// threads has left the active pool.
func (m *Manager) ExecuteConvergence(id string, world story.World) bool {
	c := m.Convergence(id)
	if c == nil || c.Executed {
		return false
	}
	involved := make([]*story.Thread, 0, len(c.ThreadIDs))
	for _, tid := range c.ThreadIDs {
		i := indexOf(m.active, tid)
		if i < 0 {
			m.logger.Debug("convergence thread no longer active",
				zap.String("convergence", id),
				zap.String("thread", tid))
			return false
		}
		involved = append(involved, m.active[i])
	}

	now := m.clock.Now()
	participants := c.SharedParticipants
	if len(participants) == 0 {
		participants = c.Participants
	}
	template := story.Beat{
		ID:           "convergence-" + c.ID,
		Type:         story.BeatConfrontation,
		Description:  string(c.Kind) + " of converging threads",
		Participants: participants,
	}
	req := story.NewRequirements(nil, world)
	met := req.Satisfied(&template)

	for _, t := range involved {
		b := template
		b.Participants = append([]string(nil), participants...)
		var err error
		if met {
			err = t.RecordBeat(&b, true, now)
		} else {
			err = t.InsertBeat(&b)
		}
		if err != nil {
			m.logger.Warn("convergence beat not assigned",
				zap.String("thread", t.ID),
				zap.Error(err))
		}
		t.SetTension(t.Tension * c.TensionMultiplier)
		if t.Stage.Terminal() {
			m.retire(t)
		}
	}

	c.Executed = true
	c.ExecutedAt = now
	m.emit(Event{Kind: EventConvergenceExecuted, ConvergenceID: c.ID})
	return true
}
