// Package clock provides the in-game time source shared by the narrative
// packages. Time is measured in elapsed in-game hours.
package clock

// Clock reports the current in-game time in hours.
type Clock interface {
	Now() float64
}

// Manual is a Clock that only moves when Advance is called.
type Manual struct {
	now float64
}

// NewManual returns a Manual clock starting at the given hour.
func NewManual(start float64) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() float64 {
	return m.now
}

// Advance moves the clock forward. Negative values are ignored.
func (m *Manual) Advance(hours float64) float64 {
	if hours > 0 {
		m.now += hours
	}
	return m.now
}

// Set moves the clock to an absolute hour, used when restoring a snapshot.
func (m *Manual) Set(hours float64) {
	m.now = hours
}

// Minutes converts minutes to hours.
func Minutes(m float64) float64 {
	return m / 60
}
