// Package story models individual storylines ("threads") and the structural
// beats they are made of.
//
// A Thread moves through a fixed dramatic structure:
//
//	setup -> rising_action -> climax -> falling_action -> resolution
//
// Two side stages are reachable only through explicit actions: paused, which
// returns to the prior stage on resume, and discontinued, which is terminal.
package story

// ThreadType tags the kind of storyline a thread represents.
type ThreadType string

const (
	TypeMainQuest    ThreadType = "main_quest"
	TypeSideQuest    ThreadType = "side_quest"
	TypeMystery      ThreadType = "mystery"
	TypeRomance      ThreadType = "romance"
	TypePolitical    ThreadType = "political"
	TypeEconomic     ThreadType = "economic"
	TypeSocial       ThreadType = "social"
	TypeCharacterArc ThreadType = "character_arc"
	TypeConflict     ThreadType = "conflict"
)

// AllTypes lists every thread type in a stable order.
var AllTypes = []ThreadType{
	TypeMainQuest,
	TypeSideQuest,
	TypeMystery,
	TypeRomance,
	TypePolitical,
	TypeEconomic,
	TypeSocial,
	TypeCharacterArc,
	TypeConflict,
}

// Valid reports whether t is one of the known thread types.
func (t ThreadType) Valid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Stage is the dramatic-structure phase of a thread.
type Stage string

const (
	StageSetup         Stage = "setup"
	StageRisingAction  Stage = "rising_action"
	StageClimax        Stage = "climax"
	StageFallingAction Stage = "falling_action"
	StageResolution    Stage = "resolution"

	// Side stages, entered only through Pause and Discontinue.
	StagePaused       Stage = "paused"
	StageDiscontinued Stage = "discontinued"
)

// Rank orders the progression stages. Side stages rank -1.
func (s Stage) Rank() int {
	switch s {
	case StageSetup:
		return 0
	case StageRisingAction:
		return 1
	case StageClimax:
		return 2
	case StageFallingAction:
		return 3
	case StageResolution:
		return 4
	default:
		return -1
	}
}

// Terminal reports whether no further beats can execute in this stage.
func (s Stage) Terminal() bool {
	return s == StageResolution || s == StageDiscontinued
}

// StageForProgress maps a beat-progress ratio to a stage.
func StageForProgress(ratio float64) Stage {
	switch {
	case ratio < 0.2:
		return StageSetup
	case ratio < 0.6:
		return StageRisingAction
	case ratio < 0.8:
		return StageClimax
	case ratio < 1.0:
		return StageFallingAction
	default:
		return StageResolution
	}
}

// Outcome records how a thread left play.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeResolved  Outcome = "resolved"
	OutcomeAbandoned Outcome = "abandoned"
	OutcomeFailed    Outcome = "failed"
)

// Status is a telemetry-only refinement of Stage. It is derived, never stored.
type Status string

const (
	StatusDormant    Status = "dormant"
	StatusEmerging   Status = "emerging"
	StatusEscalating Status = "escalating"
	StatusPeaking    Status = "peaking"
	StatusResolving  Status = "resolving"
	StatusResolved   Status = "resolved"
	StatusPaused     Status = "paused"
	StatusAbandoned  Status = "abandoned"
	StatusFailed     Status = "failed"
)

// BeatType is the structural role of a beat.
type BeatType string

const (
	BeatIntroduction  BeatType = "introduction"
	BeatComplication  BeatType = "complication"
	BeatRevelation    BeatType = "revelation"
	BeatConfrontation BeatType = "confrontation"
	BeatSetback       BeatType = "setback"
	BeatClimax        BeatType = "climax"
	BeatResolution    BeatType = "resolution"
)

// Valid reports whether t is one of the known beat types.
func (t BeatType) Valid() bool {
	switch t {
	case BeatIntroduction, BeatComplication, BeatRevelation, BeatConfrontation,
		BeatSetback, BeatClimax, BeatResolution:
		return true
	}
	return false
}

// ConvergenceKind describes how two threads intersect.
type ConvergenceKind string

const (
	KindCollision  ConvergenceKind = "collision"
	KindMerger     ConvergenceKind = "merger"
	KindSupport    ConvergenceKind = "support"
	KindOpposition ConvergenceKind = "opposition"
)

// Multiplier is the tension multiplier applied when a convergence of this kind
// executes. Always greater than one.
func (k ConvergenceKind) Multiplier() float64 {
	switch k {
	case KindCollision:
		return 1.5
	case KindOpposition:
		return 1.4
	case KindMerger:
		return 1.3
	default:
		return 1.2
	}
}

// Clamp01 limits v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
