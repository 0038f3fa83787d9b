package orchestrator

import (
	"math"
	"sort"
)

// ClimaticMoment is a scheduled climax shared by one or more threads.
type ClimaticMoment struct {
	ID            string   `yaml:"id" json:"id"`
	ThreadIDs     []string `yaml:"thread_ids" json:"thread_ids"`
	ConvergenceID string   `yaml:"convergence_id,omitempty" json:"convergence_id,omitempty"`
	ScheduledAt   float64  `yaml:"scheduled_at" json:"scheduled_at"`
	Duration      float64  `yaml:"duration" json:"duration"`
	Executed      bool     `yaml:"executed" json:"executed"`
}

func (c *ClimaticMoment) overlaps(at, duration float64) bool {
	return c.ScheduledAt < at+duration && at < c.ScheduledAt+c.Duration
}

// searchOffsets are tried in order, in spacing units from the preferred time.
var searchOffsets = []float64{0, 1, -1, 2, -2}

// ClimaticSequencer keeps climaxes apart: consecutive moments are at least
// Spacing hours apart and no more than MaxOverlap run at once.
type ClimaticSequencer struct {
	Spacing    float64
	MaxOverlap int
	Duration   float64

	moments []*ClimaticMoment
}

// NewSequencer builds a sequencer. Non-positive settings fall back to 30
// minutes spacing, 2 overlapping, and one hour per climax.
func NewSequencer(spacing float64, maxOverlap int, duration float64) *ClimaticSequencer {
	if spacing <= 0 {
		spacing = 0.5
	}
	if maxOverlap <= 0 {
		maxOverlap = 2
	}
	if duration <= 0 {
		duration = 1
	}
	return &ClimaticSequencer{Spacing: spacing, MaxOverlap: maxOverlap, Duration: duration}
}

func (s *ClimaticSequencer) fits(at float64) bool {
	overlapping := 0
	for _, m := range s.moments {
		if math.Abs(m.ScheduledAt-at) < s.Spacing-1e-9 {
			return false
		}
		if m.overlaps(at, s.Duration) {
			overlapping++
		}
	}
	return overlapping+1 <= s.MaxOverlap
}

// Schedule places a moment at preferred or the nearest free slot among the
// spacing-unit offsets +1, -1, +2, -2. Slots before earliest are skipped. It
// reports false when every slot conflicts.
func (s *ClimaticSequencer) Schedule(m *ClimaticMoment, preferred, earliest float64) bool {
	for _, off := range searchOffsets {
		at := preferred + off*s.Spacing
		if at < earliest || !s.fits(at) {
			continue
		}
		m.ScheduledAt = at
		m.Duration = s.Duration
		s.moments = append(s.moments, m)
		sort.SliceStable(s.moments, func(i, j int) bool {
			return s.moments[i].ScheduledAt < s.moments[j].ScheduledAt
		})
		return true
	}
	return false
}

// Due returns unexecuted moments scheduled at or before now, earliest first.
func (s *ClimaticSequencer) Due(now float64) []*ClimaticMoment {
	var out []*ClimaticMoment
	for _, m := range s.moments {
		if !m.Executed && m.ScheduledAt <= now {
			out = append(out, m)
		}
	}
	return out
}

// HasConvergence reports whether a moment already exists for the convergence.
func (s *ClimaticSequencer) HasConvergence(id string) bool {
	for _, m := range s.moments {
		if m.ConvergenceID == id {
			return true
		}
	}
	return false
}

// Moments returns copies of every moment in schedule order.
func (s *ClimaticSequencer) Moments() []*ClimaticMoment {
	out := make([]*ClimaticMoment, 0, len(s.moments))
	for _, m := range s.moments {
		out = append(out, cloneMoment(m))
	}
	return out
}

func (s *ClimaticSequencer) restore(moments []*ClimaticMoment) {
	s.moments = nil
	for _, m := range moments {
		s.moments = append(s.moments, cloneMoment(m))
	}
}

func cloneMoment(m *ClimaticMoment) *ClimaticMoment {
	c := *m
	c.ThreadIDs = append([]string(nil), m.ThreadIDs...)
	return &c
}
