package orchestrator

import (
	"fmt"

	"github.com/tatianab/storyloom/internal/tension"
	"github.com/tatianab/storyloom/internal/threads"
)

// Snapshot is the complete restorable state of an Orchestrator.
type Snapshot struct {
	Now        float64           `yaml:"now" json:"now"`
	Seed       int64             `yaml:"seed" json:"seed"`
	Draws      int64             `yaml:"draws" json:"draws"`
	Threads    threads.Snapshot  `yaml:"threads" json:"threads"`
	Tension    []tension.Sample  `yaml:"tension" json:"tension"`
	RawTension float64           `yaml:"raw_tension" json:"raw_tension"`
	Arcs       []*Arc            `yaml:"arcs" json:"arcs"`
	Moments    []*ClimaticMoment `yaml:"moments" json:"moments"`
	Counters   map[string]int    `yaml:"counters" json:"counters"`
}

// Snapshot deep-copies the state of every component.
func (o *Orchestrator) Snapshot() Snapshot {
	s := Snapshot{
		Now:        o.clock.Now(),
		Seed:       o.rng.Seed(),
		Draws:      o.rng.Draws(),
		Threads:    o.threads.Snapshot(),
		Tension:    o.tension.History(),
		RawTension: o.tension.RawGlobal(),
		Moments:    o.sequencer.Moments(),
		Counters:   o.rules.Counters(),
	}
	for _, a := range o.arcs {
		s.Arcs = append(s.Arcs, cloneArc(a))
	}
	return s
}

// Restore replaces the state of every component with s.
func (o *Orchestrator) Restore(s Snapshot) error {
	if err := o.threads.Restore(s.Threads); err != nil {
		return fmt.Errorf("restore threads: %w", err)
	}
	o.clock.Set(s.Now)
	o.rng.Restore(s.Seed, s.Draws)
	o.tension.Restore(s.Tension, s.RawTension)
	o.sequencer.restore(s.Moments)
	o.rules.RestoreCounters(s.Counters)
	o.arcs = nil
	for _, a := range s.Arcs {
		o.arcs = append(o.arcs, cloneArc(a))
	}
	return nil
}
