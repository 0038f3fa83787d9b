package models

import (
	"slices"
	"strings"
	"time"

	"github.com/tatianab/storyloom/internal/orchestrator"
)

// Setting is the static description of the place the story runs in.
type Setting struct {
	Title       string   `yaml:"title"`
	ShortName   string   `yaml:"short_name"` // e.g., "crooked-tankard"
	Description string   `yaml:"description"`
	Cast        []string `yaml:"cast"`
}

// WorldState is the dynamic game state the narrative core reads each tick.
// It implements story.World.
type WorldState struct {
	CurrentLocation string             `yaml:"current_location"`
	Present         []string           `yaml:"present"`
	Standing        map[string]float64 `yaml:"reputation"`
	Flags           map[string]string  `yaml:"flags"`
	Inventory       []string           `yaml:"inventory"`
}

func (w *WorldState) Location() string       { return w.CurrentLocation }
func (w *WorldState) Participants() []string { return w.Present }

// Reputation returns a copy of the reputation snapshot.
func (w *WorldState) Reputation() map[string]float64 {
	out := make(map[string]float64, len(w.Standing))
	for k, v := range w.Standing {
		out[k] = v
	}
	return out
}

// HasFlag reports whether a world flag is set to anything but "" or "false".
// Flags named has_<item> are also true while the item is in the inventory.
func (w *WorldState) HasFlag(name string) bool {
	if v, ok := w.Flags[name]; ok && v != "" && v != "false" {
		return true
	}
	if item, ok := strings.CutPrefix(name, "has_"); ok {
		return slices.Contains(w.Inventory, item)
	}
	return false
}

// ApplyEffects sets world flags from a beat's effects.
func (w *WorldState) ApplyEffects(effects map[string]string) {
	if len(effects) == 0 {
		return
	}
	if w.Flags == nil {
		w.Flags = make(map[string]string, len(effects))
	}
	for k, v := range effects {
		w.Flags[k] = v
	}
}

// Arrive marks a participant as present.
func (w *WorldState) Arrive(p string) {
	if !slices.Contains(w.Present, p) {
		w.Present = append(w.Present, p)
	}
}

// Leave marks a participant as gone.
func (w *WorldState) Leave(p string) {
	w.Present = slices.DeleteFunc(w.Present, func(q string) bool { return q == p })
}

// LogEntry is one line of the session log.
type LogEntry struct {
	At   float64 `yaml:"at"`
	Kind string  `yaml:"kind"` // directive, event, violation or narration
	Text string  `yaml:"text"`
}

// History contains the abbreviated log of the session.
type History struct {
	Dropped int        `yaml:"dropped"`
	Entries []LogEntry `yaml:"entries"`
}

// Append adds entries and keeps the newest limit of them.
func (h *History) Append(limit int, entries ...LogEntry) {
	h.Entries = append(h.Entries, entries...)
	if limit <= 0 || len(h.Entries) <= limit {
		return
	}
	dropped := len(h.Entries) - limit
	h.Entries = append([]LogEntry(nil), h.Entries[dropped:]...)
	h.Dropped += dropped
}

// Session aggregates everything a saved game needs.
type Session struct {
	Name      string                `yaml:"name"`
	SavedAt   time.Time             `yaml:"saved_at"`
	Setting   Setting               `yaml:"setting"`
	State     WorldState            `yaml:"state"`
	History   History               `yaml:"history"`
	Narrative orchestrator.Snapshot `yaml:"narrative"`
}

// historyLimit bounds the saved log.
const historyLimit = 200

// Record appends the directives, thread events and pacing violations of a
// tick to the session log.
func (s *Session) Record(res orchestrator.TickResult, narration string) {
	var entries []LogEntry
	for _, d := range res.Directives {
		target := d.ThreadID
		if target == "" {
			target = strings.Join(d.ThreadIDs, ", ")
		}
		entries = append(entries, LogEntry{At: res.Now, Kind: "directive", Text: strings.TrimSpace(string(d.Type) + " " + target)})
	}
	for _, e := range res.Events {
		entries = append(entries, LogEntry{At: res.Now, Kind: "event", Text: strings.TrimSpace(string(e.Kind) + " " + e.ThreadID + e.ConvergenceID)})
	}
	for _, v := range res.Violations {
		entries = append(entries, LogEntry{At: res.Now, Kind: "violation", Text: v})
	}
	if narration != "" {
		entries = append(entries, LogEntry{At: res.Now, Kind: "narration", Text: narration})
	}
	s.History.Append(historyLimit, entries...)
}
