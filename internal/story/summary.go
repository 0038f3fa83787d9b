package story

// Summary is the display record of a thread for UIs and telemetry.
type Summary struct {
	ID           string     `yaml:"id" json:"id"`
	Title        string     `yaml:"title" json:"title"`
	Type         ThreadType `yaml:"type" json:"type"`
	Stage        Stage      `yaml:"stage" json:"stage"`
	Status       Status     `yaml:"status" json:"status"`
	Tension      float64    `yaml:"tension" json:"tension"`
	Involvement  float64    `yaml:"involvement" json:"involvement"`
	Priority     int        `yaml:"priority" json:"priority"`
	Progress     float64    `yaml:"progress" json:"progress"`
	BeatsLeft    int        `yaml:"beats_left" json:"beats_left"`
	Stalled      bool       `yaml:"stalled" json:"stalled"`
	Overdue      bool       `yaml:"overdue,omitempty" json:"overdue,omitempty"`
	Participants []string   `yaml:"participants" json:"participants"`
}

// Summarize builds the display record. wait is the stall threshold in hours.
func (t *Thread) Summarize(now, wait float64) Summary {
	return Summary{
		ID:           t.ID,
		Title:        t.Title,
		Type:         t.Type,
		Stage:        t.Stage,
		Status:       t.Status(),
		Tension:      t.Tension,
		Involvement:  t.Involvement,
		Priority:     t.Priority,
		Progress:     t.Progress(),
		BeatsLeft:    max(0, len(t.Beats)-t.CurrentBeat),
		Stalled:      t.IsStalled(now, wait),
		Overdue:      t.Overdue(now),
		Participants: t.Participants(),
	}
}
