package story

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedBeat = errors.New("malformed beat")
	ErrDuplicateBeat = errors.New("duplicate beat id")
)

// Beat is an atomic structural event within a thread.
type Beat struct {
	ID            string            `yaml:"id" json:"id"`
	Type          BeatType          `yaml:"type" json:"type"`
	Description   string            `yaml:"description,omitempty" json:"description,omitempty"`
	Participants  []string          `yaml:"participants" json:"participants"`
	Location      string            `yaml:"location,omitempty" json:"location,omitempty"`
	Prerequisites []string          `yaml:"prerequisites,omitempty" json:"prerequisites,omitempty"`
	TensionDelta  float64           `yaml:"tension_delta" json:"tension_delta"`
	Effects       map[string]string `yaml:"effects,omitempty" json:"effects,omitempty"`
	Executed      bool              `yaml:"executed" json:"executed"`
	Success       bool              `yaml:"success" json:"success"`
	ExecutedAt    float64           `yaml:"executed_at,omitempty" json:"executed_at,omitempty"`
}

// Validate checks the construction-time invariants of a beat.
func (b *Beat) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil beat", ErrMalformedBeat)
	}
	if b.ID == "" {
		return fmt.Errorf("%w: missing id", ErrMalformedBeat)
	}
	if len(b.Participants) == 0 {
		return fmt.Errorf("%w: beat %s has no participants", ErrMalformedBeat, b.ID)
	}
	return nil
}

// typeDelta is the tension contribution of a pending beat of this type.
func (t BeatType) typeDelta() float64 {
	switch t {
	case BeatComplication:
		return 0.1
	case BeatRevelation:
		return 0.15
	case BeatConfrontation:
		return 0.2
	case BeatSetback:
		return 0.1
	case BeatClimax:
		return 0.2
	case BeatResolution:
		return -0.15
	default:
		return 0
	}
}

// Requirements is what a beat needs from the world to fire.
type Requirements struct {
	Available map[string]bool
	World     World
}

// NewRequirements builds the participant lookup for one tick. The world's own
// participant list counts as available.
func NewRequirements(available []string, world World) Requirements {
	if world == nil {
		world = NullWorld{}
	}
	set := make(map[string]bool, len(available))
	for _, p := range available {
		set[p] = true
	}
	for _, p := range world.Participants() {
		set[p] = true
	}
	return Requirements{Available: set, World: world}
}

// Satisfied reports whether every required participant is present and the
// location matches.
func (r Requirements) Satisfied(b *Beat) bool {
	for _, p := range b.Participants {
		if !r.Available[p] {
			return false
		}
	}
	if b.Location != "" && b.Location != r.World.Location() {
		return false
	}
	return true
}
