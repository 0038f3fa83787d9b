package story

// World is the narrow view of game state the narrative core reads each tick.
// Implementations that lack a feature return zero values.
type World interface {
	Location() string
	Participants() []string
	Reputation() map[string]float64
	HasFlag(name string) bool
	ApplyEffects(effects map[string]string)
}

// NullWorld is a World with nobody present, no flags, and no side effects.
type NullWorld struct{}

func (NullWorld) Location() string               { return "" }
func (NullWorld) Participants() []string         { return nil }
func (NullWorld) Reputation() map[string]float64 { return nil }
func (NullWorld) HasFlag(string) bool            { return false }
func (NullWorld) ApplyEffects(map[string]string) {}

// Request asks a generator for a new thread.
type Request struct {
	Type         ThreadType `yaml:"type"`
	Participants []string   `yaml:"participants"`
	Location     string     `yaml:"location"`
	Hint         string     `yaml:"hint"`
	Priority     int        `yaml:"priority"`
}
