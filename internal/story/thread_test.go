package story

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threadWithBeats(t *testing.T, id string, typ ThreadType, n int) *Thread {
	t.Helper()
	th := NewThread(id, "The "+id, typ, 5, 0)
	th.PrimaryParticipants = []string{"player"}
	for i := 0; i < n; i++ {
		require.NoError(t, th.AddBeat(&Beat{
			ID:           fmt.Sprintf("%s-b%d", id, i),
			Type:         BeatComplication,
			Participants: []string{"player"},
		}))
	}
	return th
}

type recordingWorld struct {
	NullWorld
	location string
	flags    map[string]bool
}

func (w *recordingWorld) Location() string { return w.location }

func (w *recordingWorld) HasFlag(name string) bool { return w.flags[name] }

func (w *recordingWorld) ApplyEffects(effects map[string]string) {
	if w.flags == nil {
		w.flags = map[string]bool{}
	}
	for k := range effects {
		w.flags[k] = true
	}
}

func TestAdvanceBeatStages(t *testing.T) {
	th := threadWithBeats(t, "cellar", TypeMystery, 4)

	for i := 0; i < 3; i++ {
		require.True(t, th.AdvanceBeat(float64(i+1)))
	}
	assert.GreaterOrEqual(t, th.Stage.Rank(), StageRisingAction.Rank())
	assert.Nil(t, th.CompletedAt)
	assert.Equal(t, OutcomeNone, th.Outcome)

	require.True(t, th.AdvanceBeat(4))
	assert.Equal(t, StageResolution, th.Stage)
	assert.Equal(t, OutcomeResolved, th.Outcome)
	require.NotNil(t, th.CompletedAt)
	assert.Equal(t, 4.0, *th.CompletedAt)
	assert.False(t, th.AdvanceBeat(5), "resolved thread must not advance")
}

func TestStageForProgress(t *testing.T) {
	tests := []struct {
		ratio float64
		want  Stage
	}{
		{0, StageSetup},
		{0.19, StageSetup},
		{0.2, StageRisingAction},
		{0.59, StageRisingAction},
		{0.6, StageClimax},
		{0.8, StageFallingAction},
		{0.99, StageFallingAction},
		{1, StageResolution},
	}
	for _, tt := range tests {
		if got := StageForProgress(tt.ratio); got != tt.want {
			t.Errorf("StageForProgress(%v) = %s, want %s", tt.ratio, got, tt.want)
		}
	}
}

func TestStageNeverRegresses(t *testing.T) {
	th := threadWithBeats(t, "feud", TypeConflict, 5)
	require.True(t, th.ForceStage(StageClimax, 1))

	// Inserting beats lowers the progress ratio; the stage must hold.
	require.NoError(t, th.AddBeat(&Beat{ID: "late-1", Type: BeatSetback, Participants: []string{"player"}}))
	require.NoError(t, th.AddBeat(&Beat{ID: "late-2", Type: BeatSetback, Participants: []string{"player"}}))
	require.True(t, th.AdvanceBeat(2))
	assert.Equal(t, StageClimax, th.Stage)

	assert.False(t, th.ForceStage(StageRisingAction, 3))
	assert.Equal(t, StageClimax, th.Stage)
}

func TestAddBeatRejectsMalformed(t *testing.T) {
	th := NewThread("t1", "Rumours", TypeSocial, 1, 0)

	err := th.AddBeat(&Beat{ID: "b1", Type: BeatIntroduction})
	assert.True(t, errors.Is(err, ErrMalformedBeat))

	err = th.AddBeat(&Beat{Type: BeatIntroduction, Participants: []string{"gene"}})
	assert.True(t, errors.Is(err, ErrMalformedBeat))

	require.NoError(t, th.AddBeat(&Beat{ID: "b1", Participants: []string{"gene"}}))
	err = th.AddBeat(&Beat{ID: "b1", Participants: []string{"gene"}})
	assert.True(t, errors.Is(err, ErrDuplicateBeat))
}

func TestTensionAndInvolvementClamped(t *testing.T) {
	th := threadWithBeats(t, "brawl", TypeConflict, 2)

	th.SetTension(1.7)
	assert.Equal(t, 1.0, th.Tension)
	assert.LessOrEqual(t, th.RecalculateTension(), 1.0)

	th.SetTension(-3)
	assert.Equal(t, 0.0, th.Tension)
	assert.GreaterOrEqual(t, th.RecalculateTension(), 0.0)

	th.SetInvolvement(2)
	assert.Equal(t, 1.0, th.Involvement)
	th.SetInvolvement(-0.5)
	assert.Equal(t, 0.0, th.Involvement)
}

func TestSetTensionSurvivesRecalculation(t *testing.T) {
	th := threadWithBeats(t, "debt", TypeEconomic, 3)
	th.SetTension(0.65)
	assert.InDelta(t, 0.65, th.RecalculateTension(), 1e-9)
}

func TestBeatDeltaMovesTargetNotTension(t *testing.T) {
	th := threadWithBeats(t, "duel", TypeConflict, 10)
	th.Beats[0].TensionDelta = 0.3
	before := th.Tension

	_, ok := th.ExecuteCurrentBeat(NewRequirements([]string{"player"}, nil), 1)
	require.True(t, ok)
	assert.Equal(t, before, th.Tension)
	assert.InDelta(t, 0.3, th.TensionBias, 1e-9)
	// setup base 0.2 + complication 0.1 + bias
	assert.InDelta(t, 0.6, th.CalculateTension(), 1e-9)

	th.AdjustTension(5)
	assert.Equal(t, 1.0, th.TensionBias)
}

func TestExecuteCurrentBeatRequirements(t *testing.T) {
	th := NewThread("heist", "The Vault", TypeSideQuest, 3, 0)
	require.NoError(t, th.AddBeat(&Beat{
		ID:           "plan",
		Type:         BeatIntroduction,
		Participants: []string{"player", "mara"},
		Location:     "cellar",
		Effects:      map[string]string{"vault_plan_known": "true"},
	}))
	require.NoError(t, th.AddBeat(&Beat{
		ID:            "break-in",
		Type:          BeatConfrontation,
		Participants:  []string{"player"},
		Prerequisites: []string{"plan", "has_key"},
		TensionDelta:  0.2,
	}))
	world := &recordingWorld{location: "taproom"}

	_, ok := th.ExecuteCurrentBeat(NewRequirements([]string{"player"}, world), 1)
	assert.False(t, ok, "mara is missing")

	_, ok = th.ExecuteCurrentBeat(NewRequirements([]string{"player", "mara"}, world), 1)
	assert.False(t, ok, "wrong location")

	world.location = "cellar"
	b, ok := th.ExecuteCurrentBeat(NewRequirements([]string{"player", "mara"}, world), 1)
	require.True(t, ok)
	assert.Equal(t, "plan", b.ID)
	assert.True(t, b.Executed)
	assert.True(t, world.flags["vault_plan_known"])

	_, ok = th.ExecuteCurrentBeat(NewRequirements([]string{"player"}, world), 2)
	assert.False(t, ok, "has_key flag is unset")

	world.flags["has_key"] = true
	bias := th.TensionBias
	_, ok = th.ExecuteCurrentBeat(NewRequirements([]string{"player"}, world), 2)
	require.True(t, ok)
	assert.Equal(t, StageResolution, th.Stage)
	assert.InDelta(t, 0.2, th.TensionBias-bias, 1e-9)
}

func TestIsStalled(t *testing.T) {
	th := threadWithBeats(t, "letter", TypeRomance, 2)
	assert.False(t, th.IsStalled(1, 2))
	assert.True(t, th.IsStalled(2.5, 2))

	th.LastProgressAt = 2.5
	th.Blockers = []string{"courier missing"}
	assert.True(t, th.IsStalled(2.5, 2))

	th.Blockers = nil
	require.True(t, th.Pause())
	assert.False(t, th.IsStalled(10, 2), "paused threads never stall")
}

func TestPauseResumeRestoresStage(t *testing.T) {
	th := threadWithBeats(t, "duel", TypeConflict, 5)
	th.AdvanceBeat(1)
	require.Equal(t, StageRisingAction, th.Stage)

	require.True(t, th.Pause())
	assert.Equal(t, StagePaused, th.Stage)
	assert.Equal(t, StatusPaused, th.Status())
	assert.False(t, th.AdvanceBeat(2))

	require.True(t, th.Resume(3))
	assert.Equal(t, StageRisingAction, th.Stage)
	assert.Equal(t, 3.0, th.LastProgressAt)
}

func TestDiscontinue(t *testing.T) {
	th := threadWithBeats(t, "guild", TypePolitical, 2)
	require.True(t, th.Discontinue(OutcomeFailed, 4))
	assert.Equal(t, StageDiscontinued, th.Stage)
	assert.Equal(t, StatusFailed, th.Status())
	assert.False(t, th.Discontinue(OutcomeAbandoned, 5))
	assert.False(t, th.Complete(1, 5))

	other := threadWithBeats(t, "stray", TypeSocial, 2)
	require.True(t, other.Discontinue(Outcome("whatever"), 1))
	assert.Equal(t, OutcomeAbandoned, other.Outcome)
}

func TestEstimateRemainingTime(t *testing.T) {
	th := threadWithBeats(t, "trade", TypeEconomic, 4)
	assert.InDelta(t, 2.0, th.EstimateRemainingTime(), 1e-9)

	th.AdvanceBeat(1)
	th.AdvanceBeat(2)
	assert.InDelta(t, 2.0, th.EstimateRemainingTime(), 1e-9, "observed pace is one hour per beat")
}

func TestDeadlineCapsRemainingTime(t *testing.T) {
	th := threadWithBeats(t, "tithe", TypePolitical, 6)
	assert.InDelta(t, 3.0, th.EstimateRemainingTime(), 1e-9)

	deadline := 1.5
	th.Deadline = &deadline
	assert.InDelta(t, 1.5, th.EstimateRemainingTime(), 1e-9)
	assert.False(t, th.Overdue(1.5))
	assert.True(t, th.Overdue(2))
	assert.True(t, th.Summarize(2, 2).Overdue)

	th.AdvanceBeat(2)
	assert.Zero(t, th.EstimateRemainingTime(), "deadline already passed")

	th.Complete(0.5, 3)
	assert.False(t, th.Overdue(4))
}

func TestCheckConvergencePotential(t *testing.T) {
	romance := threadWithBeats(t, "romance", TypeRomance, 4)
	romance.PrimaryParticipants = []string{"player", "gene"}
	conflict := threadWithBeats(t, "conflict", TypeConflict, 4)
	conflict.PrimaryParticipants = []string{"gene", "old_tom"}
	romance.Stage = StageRisingAction
	conflict.Stage = StageRisingAction

	score := romance.CheckConvergencePotential(conflict)
	assert.InDelta(t, 0.765, score, 1e-9)
	assert.Equal(t, score, conflict.CheckConvergencePotential(romance))

	conflict.Stage = StageFallingAction
	assert.Less(t, romance.CheckConvergencePotential(conflict), score)

	assert.Zero(t, romance.CheckConvergencePotential(romance))

	_, kind := Compatibility(TypeConflict, TypeRomance)
	assert.Equal(t, KindCollision, kind)
	s, kind := Compatibility(TypeSocial, TypeSocial)
	assert.Equal(t, 0.5, s)
	assert.Equal(t, KindMerger, kind)
}

func TestInsertAndRecordBeat(t *testing.T) {
	th := threadWithBeats(t, "smuggling", TypeEconomic, 3)
	th.AdvanceBeat(1)

	shared := &Beat{ID: "clash", Type: BeatConfrontation, Participants: []string{"player"}}
	require.NoError(t, th.RecordBeat(shared, true, 2))
	assert.Equal(t, "clash", th.Beats[1].ID)
	assert.True(t, th.Beats[1].Executed)
	assert.Equal(t, 2, th.CurrentBeat)
	assert.Equal(t, "smuggling-b1", th.CurrentBeatRef().ID)
}

func TestCloneIsDeep(t *testing.T) {
	th := threadWithBeats(t, "heir", TypeCharacterArc, 2)
	c := th.Clone()
	c.Beats[0].Executed = true
	c.PrimaryParticipants[0] = "someone"
	assert.False(t, th.Beats[0].Executed)
	assert.Equal(t, "player", th.PrimaryParticipants[0])
}
