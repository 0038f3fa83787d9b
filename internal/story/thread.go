package story

import (
	"errors"
	"fmt"
)

// ErrThreadClosed is returned when beats are added to a finished thread.
var ErrThreadClosed = errors.New("thread is closed")

// defaultBeatHours is the assumed beat duration before any beat has executed.
const defaultBeatHours = 0.5

// Thread is a single storyline. All times are in-game hours.
type Thread struct {
	ID          string     `yaml:"id" json:"id"`
	Title       string     `yaml:"title" json:"title"`
	Type        ThreadType `yaml:"type" json:"type"`
	Stage       Stage      `yaml:"stage" json:"stage"`
	PausedFrom  Stage      `yaml:"paused_from,omitempty" json:"paused_from,omitempty"`
	Outcome     Outcome    `yaml:"outcome,omitempty" json:"outcome,omitempty"`
	Beats       []*Beat    `yaml:"beats" json:"beats"`
	CurrentBeat int        `yaml:"current_beat" json:"current_beat"`

	Tension     float64 `yaml:"tension" json:"tension"`
	TensionBias float64 `yaml:"tension_bias" json:"tension_bias"`
	Involvement float64 `yaml:"involvement" json:"involvement"`
	Priority    int     `yaml:"priority" json:"priority"`

	PrimaryParticipants   []string `yaml:"primary_participants" json:"primary_participants"`
	SecondaryParticipants []string `yaml:"secondary_participants,omitempty" json:"secondary_participants,omitempty"`
	Blockers              []string `yaml:"blockers,omitempty" json:"blockers,omitempty"`

	CreatedAt         float64  `yaml:"created_at" json:"created_at"`
	Deadline          *float64 `yaml:"deadline,omitempty" json:"deadline,omitempty"`
	LastProgressAt    float64  `yaml:"last_progress_at" json:"last_progress_at"`
	CompletedAt       *float64 `yaml:"completed_at,omitempty" json:"completed_at,omitempty"`
	ResolutionQuality float64  `yaml:"resolution_quality" json:"resolution_quality"`
}

// NewThread creates a thread in the setup stage.
func NewThread(id, title string, typ ThreadType, priority int, now float64) *Thread {
	t := &Thread{
		ID:             id,
		Title:          title,
		Type:           typ,
		Stage:          StageSetup,
		Involvement:    0.5,
		Priority:       priority,
		CreatedAt:      now,
		LastProgressAt: now,
	}
	t.Tension = t.CalculateTension()
	return t
}

// AddBeat appends a beat. Beats without an id or participants are rejected.
func (t *Thread) AddBeat(b *Beat) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if t.Stage.Terminal() {
		return fmt.Errorf("%w: %s", ErrThreadClosed, t.ID)
	}
	if t.beat(b.ID) != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateBeat, b.ID)
	}
	t.Beats = append(t.Beats, b)
	return nil
}

// InsertBeat places b at the current position so it becomes the next beat.
func (t *Thread) InsertBeat(b *Beat) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if t.Stage.Terminal() {
		return fmt.Errorf("%w: %s", ErrThreadClosed, t.ID)
	}
	if t.beat(b.ID) != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateBeat, b.ID)
	}
	idx := min(t.CurrentBeat, len(t.Beats))
	t.Beats = append(t.Beats, nil)
	copy(t.Beats[idx+1:], t.Beats[idx:])
	t.Beats[idx] = b
	return nil
}

// RecordBeat inserts b at the current position as already executed and moves
// past it.
func (t *Thread) RecordBeat(b *Beat, success bool, now float64) error {
	if err := t.InsertBeat(b); err != nil {
		return err
	}
	t.finishBeat(b, success, now)
	return nil
}

func (t *Thread) beat(id string) *Beat {
	for _, b := range t.Beats {
		if b.ID == id {
			return b
		}
	}
	return nil
}

// CurrentBeatRef returns the pending beat, or nil when none is left.
func (t *Thread) CurrentBeatRef() *Beat {
	if t.CurrentBeat < 0 || t.CurrentBeat >= len(t.Beats) {
		return nil
	}
	return t.Beats[t.CurrentBeat]
}

// Progress is the fraction of beats already passed.
func (t *Thread) Progress() float64 {
	if len(t.Beats) == 0 {
		return 0
	}
	return float64(t.CurrentBeat) / float64(len(t.Beats))
}

// Participants returns primary then secondary participants without duplicates.
func (t *Thread) Participants() []string {
	seen := make(map[string]bool, len(t.PrimaryParticipants)+len(t.SecondaryParticipants))
	out := make([]string, 0, len(t.PrimaryParticipants)+len(t.SecondaryParticipants))
	for _, group := range [][]string{t.PrimaryParticipants, t.SecondaryParticipants} {
		for _, p := range group {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}

// HasParticipant reports whether p is a primary or secondary participant.
func (t *Thread) HasParticipant(p string) bool {
	for _, q := range t.PrimaryParticipants {
		if q == p {
			return true
		}
	}
	for _, q := range t.SecondaryParticipants {
		if q == p {
			return true
		}
	}
	return false
}

// Playable reports whether beats may still execute.
func (t *Thread) Playable() bool {
	return !t.Stage.Terminal() && t.Stage != StagePaused
}

// AdvanceBeat moves to the next beat and recomputes the stage from progress.
// Reaching resolution completes the thread.
func (t *Thread) AdvanceBeat(now float64) bool {
	if !t.Playable() || t.CurrentBeat >= len(t.Beats) {
		return false
	}
	t.CurrentBeat++
	t.LastProgressAt = now
	t.promote(StageForProgress(t.Progress()), now)
	return true
}

// ForceStage jumps forward to stage. Backward moves are ignored.
func (t *Thread) ForceStage(stage Stage, now float64) bool {
	if !t.Playable() || stage.Rank() <= t.Stage.Rank() {
		return false
	}
	t.promote(stage, now)
	return true
}

func (t *Thread) promote(next Stage, now float64) {
	if next == StageResolution {
		t.resolve(t.defaultQuality(), now)
		return
	}
	if next.Rank() > t.Stage.Rank() {
		t.Stage = next
	}
}

// PrerequisitesMet checks that every prerequisite beat in this thread has
// executed. Prerequisites naming no beat of the thread are treated as world
// flags.
func (t *Thread) PrerequisitesMet(b *Beat, world World) bool {
	if world == nil {
		world = NullWorld{}
	}
	for _, pre := range b.Prerequisites {
		if dep := t.beat(pre); dep != nil {
			if !dep.Executed {
				return false
			}
			continue
		}
		if !world.HasFlag(pre) {
			return false
		}
	}
	return true
}

// ExecuteCurrentBeat fires the pending beat when its prerequisites and
// requirements hold, applies its effects to the world, and advances.
func (t *Thread) ExecuteCurrentBeat(req Requirements, now float64) (*Beat, bool) {
	b := t.CurrentBeatRef()
	if b == nil || b.Executed || !t.Playable() {
		return nil, false
	}
	if !t.PrerequisitesMet(b, req.World) || !req.Satisfied(b) {
		return b, false
	}
	if len(b.Effects) > 0 {
		req.World.ApplyEffects(b.Effects)
	}
	t.finishBeat(b, true, now)
	return b, true
}

// SkipCurrentBeat marks the pending beat executed without success and moves on.
func (t *Thread) SkipCurrentBeat(now float64) (*Beat, bool) {
	b := t.CurrentBeatRef()
	if b == nil || !t.Playable() {
		return nil, false
	}
	t.finishBeat(b, false, now)
	return b, true
}

func (t *Thread) finishBeat(b *Beat, success bool, now float64) {
	b.Executed = true
	b.Success = success
	b.ExecutedAt = now
	if success && b.TensionDelta != 0 {
		t.AdjustTension(b.TensionDelta)
	}
	t.AdvanceBeat(now)
}

func (t *Thread) defaultQuality() float64 {
	executed, succeeded := 0, 0
	for _, b := range t.Beats {
		if b.Executed {
			executed++
			if b.Success {
				succeeded++
			}
		}
	}
	ratio := 0.5
	if executed > 0 {
		ratio = float64(succeeded) / float64(executed)
	}
	return 0.6*ratio + 0.4*t.Involvement
}

func stageBase(s Stage) float64 {
	switch s {
	case StageSetup:
		return 0.2
	case StageRisingAction:
		return 0.5
	case StageClimax:
		return 0.8
	case StageFallingAction:
		return 0.4
	case StageResolution:
		return 0.1
	default:
		return 0
	}
}

func (t *Thread) rawTension() float64 {
	stage := t.Stage
	if stage == StagePaused {
		stage = t.PausedFrom
	}
	raw := stageBase(stage)
	if b := t.CurrentBeatRef(); b != nil && !stage.Terminal() {
		raw += b.Type.typeDelta()
	}
	return raw
}

// CalculateTension is the stage base plus the pending beat's type delta plus
// the standing bias from explicit adjustments, clamped to [0,1].
func (t *Thread) CalculateTension() float64 {
	return Clamp01(t.rawTension() + t.TensionBias)
}

// AdjustTension shifts the standing bias by delta. Tension itself is left
// alone and drifts toward the new CalculateTension on later ticks.
func (t *Thread) AdjustTension(delta float64) {
	t.TensionBias = clampBias(t.TensionBias + delta)
}

func clampBias(b float64) float64 {
	return max(-1, min(b, 1))
}

// RecalculateTension refreshes Tension from CalculateTension.
func (t *Thread) RecalculateTension() float64 {
	t.Tension = t.CalculateTension()
	return t.Tension
}

// SetTension clamps v and keeps it as a bias over the structural tension so a
// later recalculation preserves the adjustment.
func (t *Thread) SetTension(v float64) {
	v = Clamp01(v)
	t.TensionBias = clampBias(v - t.rawTension())
	t.Tension = v
}

// SetInvolvement clamps and stores player involvement.
func (t *Thread) SetInvolvement(v float64) {
	t.Involvement = Clamp01(v)
}

// PendingFor is how long the current beat has been waiting, in hours.
func (t *Thread) PendingFor(now float64) float64 {
	if t.CurrentBeatRef() == nil {
		return 0
	}
	return max(0, now-t.LastProgressAt)
}

// IsStalled reports a beat pending longer than wait hours, or any blockers.
func (t *Thread) IsStalled(now, wait float64) bool {
	if !t.Playable() {
		return false
	}
	if len(t.Blockers) > 0 {
		return true
	}
	return t.PendingFor(now) > wait
}

// EstimateRemainingTime projects the hours left from the observed beat pace.
// A deadline caps the projection at the time left after the last progress.
func (t *Thread) EstimateRemainingTime() float64 {
	remaining := len(t.Beats) - t.CurrentBeat
	if remaining <= 0 || t.Stage.Terminal() {
		return 0
	}
	avg := defaultBeatHours
	if t.CurrentBeat > 0 && t.LastProgressAt > t.CreatedAt {
		avg = (t.LastProgressAt - t.CreatedAt) / float64(t.CurrentBeat)
	}
	est := float64(remaining) * avg
	if t.Deadline != nil {
		est = min(est, max(0, *t.Deadline-t.LastProgressAt))
	}
	return est
}

// Overdue reports an unfinished thread whose deadline has passed.
func (t *Thread) Overdue(now float64) bool {
	return t.Deadline != nil && !t.Stage.Terminal() && now > *t.Deadline
}

// Pause parks the thread, remembering its stage.
func (t *Thread) Pause() bool {
	if !t.Playable() {
		return false
	}
	t.PausedFrom = t.Stage
	t.Stage = StagePaused
	return true
}

// Resume restores the stage held before Pause.
func (t *Thread) Resume(now float64) bool {
	if t.Stage != StagePaused {
		return false
	}
	t.Stage = t.PausedFrom
	t.PausedFrom = ""
	t.LastProgressAt = now
	return true
}

// Complete resolves the thread with the given quality.
func (t *Thread) Complete(quality, now float64) bool {
	if t.Stage.Terminal() {
		return false
	}
	t.resolve(quality, now)
	return true
}

func (t *Thread) resolve(quality, now float64) {
	t.Stage = StageResolution
	t.PausedFrom = ""
	t.Outcome = OutcomeResolved
	t.CompletedAt = &now
	t.ResolutionQuality = Clamp01(quality)
}

// Discontinue ends the thread without resolution.
func (t *Thread) Discontinue(outcome Outcome, now float64) bool {
	if t.Stage.Terminal() {
		return false
	}
	if outcome != OutcomeFailed {
		outcome = OutcomeAbandoned
	}
	t.Stage = StageDiscontinued
	t.PausedFrom = ""
	t.Outcome = outcome
	t.CompletedAt = &now
	return true
}

// Status derives the telemetry sub-state.
func (t *Thread) Status() Status {
	switch t.Stage {
	case StageSetup:
		return StatusDormant
	case StageRisingAction:
		if t.Tension < 0.5 {
			return StatusEmerging
		}
		return StatusEscalating
	case StageClimax:
		return StatusPeaking
	case StageFallingAction:
		return StatusResolving
	case StageResolution:
		return StatusResolved
	case StagePaused:
		return StatusPaused
	default:
		if t.Outcome == OutcomeFailed {
			return StatusFailed
		}
		return StatusAbandoned
	}
}

// Clone returns a deep copy.
func (t *Thread) Clone() *Thread {
	c := *t
	c.Beats = make([]*Beat, len(t.Beats))
	for i, b := range t.Beats {
		nb := *b
		nb.Participants = append([]string(nil), b.Participants...)
		nb.Prerequisites = append([]string(nil), b.Prerequisites...)
		if b.Effects != nil {
			nb.Effects = make(map[string]string, len(b.Effects))
			for k, v := range b.Effects {
				nb.Effects[k] = v
			}
		}
		c.Beats[i] = &nb
	}
	c.PrimaryParticipants = append([]string(nil), t.PrimaryParticipants...)
	c.SecondaryParticipants = append([]string(nil), t.SecondaryParticipants...)
	c.Blockers = append([]string(nil), t.Blockers...)
	if t.Deadline != nil {
		d := *t.Deadline
		c.Deadline = &d
	}
	if t.CompletedAt != nil {
		d := *t.CompletedAt
		c.CompletedAt = &d
	}
	return &c
}
