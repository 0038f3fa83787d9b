package orchestrator

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tatianab/storyloom/internal/clock"
	"github.com/tatianab/storyloom/internal/rules"
	"github.com/tatianab/storyloom/internal/story"
)

func newOrchestrator(t *testing.T, cfg Config) (*Orchestrator, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(0)
	o, err := New(cfg, WithClock(clk))
	require.NoError(t, err)
	return o, clk
}

func newThread(t *testing.T, id string, typ story.ThreadType, priority int, participant string) *story.Thread {
	t.Helper()
	th := story.NewThread(id, id, typ, priority, 0)
	th.PrimaryParticipants = []string{participant}
	for i := 0; i < 5; i++ {
		require.NoError(t, th.AddBeat(&story.Beat{
			ID:           fmt.Sprintf("%s-%d", id, i),
			Type:         story.BeatComplication,
			Participants: []string{participant},
		}))
	}
	return th
}

func directivesOf(ds []Directive, typ DirectiveType) []Directive {
	var out []Directive
	for _, d := range ds {
		if d.Type == typ {
			out = append(out, d)
		}
	}
	return out
}

func TestSourceIsReproducible(t *testing.T) {
	a, b := NewSource(42), NewSource(42)
	for i := 0; i < 3; i++ {
		assert.Equal(t, a.NewID(), b.NewID())
		assert.Equal(t, a.Float64(), b.Float64())
	}

	resumed := NewSource(7)
	resumed.Restore(a.Seed(), a.Draws())
	assert.Equal(t, a.Draws(), resumed.Draws())
	assert.Equal(t, a.NewID(), resumed.NewID())
	assert.Equal(t, a.Intn(100), resumed.Intn(100))
}

func TestSequencerSpacing(t *testing.T) {
	s := NewSequencer(0.5, 2, 1)
	var got []float64
	for i := 0; i < 4; i++ {
		m := &ClimaticMoment{ID: fmt.Sprint(i)}
		if s.Schedule(m, 0, 0) {
			got = append(got, m.ScheduledAt)
		}
	}
	// 0 is taken, then +1 unit; -1 is before the earliest slot, so +2.
	assert.Equal(t, []float64{0, 0.5, 1}, got)

	assert.Len(t, s.Due(0.75), 2)
	assert.Len(t, s.Moments(), 3)
}

func TestSequencerOverlap(t *testing.T) {
	s := NewSequencer(0.5, 1, 1)
	first := &ClimaticMoment{ID: "a"}
	require.True(t, s.Schedule(first, 2, 0))

	second := &ClimaticMoment{ID: "b"}
	require.True(t, s.Schedule(second, 2, 0))
	assert.Equal(t, 3.0, second.ScheduledAt, "2.5 and 1.5 overlap the first climax")
	assert.Equal(t, 1.0, second.Duration)

	third := &ClimaticMoment{ID: "c"}
	require.True(t, s.Schedule(third, 2, 0))
	assert.Equal(t, 1.0, third.ScheduledAt)

	assert.False(t, s.Schedule(&ClimaticMoment{ID: "d"}, 2, 0))
}

func TestTemplateGenerator(t *testing.T) {
	ctx := context.Background()
	a := NewTemplateGenerator(NewSource(3))
	b := NewTemplateGenerator(NewSource(3))

	ta, err := a.GenerateThread(ctx, story.Request{Type: story.TypeMystery})
	require.NoError(t, err)
	tb, err := b.GenerateThread(ctx, story.Request{Type: story.TypeMystery})
	require.NoError(t, err)
	if diff := cmp.Diff(ta, tb); diff != "" {
		t.Errorf("same seed produced different threads (-a +b):\n%s", diff)
	}

	assert.Equal(t, story.TypeMystery, ta.Type)
	require.Len(t, ta.Beats, len(templateBeats))
	assert.Equal(t, story.BeatIntroduction, ta.Beats[0].Type)
	assert.Empty(t, ta.Beats[0].Prerequisites)
	assert.Equal(t, []string{ta.Beats[0].ID}, ta.Beats[1].Prerequisites)
	assert.NotEmpty(t, ta.PrimaryParticipants)

	tc, err := a.GenerateThread(ctx, story.Request{Participants: []string{"player", "mara"}, Priority: 8})
	require.NoError(t, err)
	assert.Equal(t, []string{"player"}, tc.PrimaryParticipants)
	assert.Equal(t, []string{"mara"}, tc.SecondaryParticipants)
	assert.Equal(t, 8, tc.Priority)
	assert.True(t, tc.Type.Valid())

	_, err = a.GenerateThread(ctx, story.Request{Type: "opera"})
	assert.Error(t, err)
}

func TestStalledThreadIsAdvanced(t *testing.T) {
	o, clk := newOrchestrator(t, DefaultConfig())
	th := newThread(t, "ledger", story.TypeEconomic, 3, "gene")
	require.True(t, o.AddThread(th))

	clk.Set(50.0 / 60)
	got := o.OrchestrateNarrative(context.Background(), nil)

	advanced := directivesOf(got, DirectiveAdvanceThread)
	require.Len(t, advanced, 1)
	assert.Equal(t, "ledger", advanced[0].ThreadID)
	assert.Equal(t, 1, th.CurrentBeat)
	assert.False(t, th.Beats[0].Success)
}

func TestConvergenceBecomesClimax(t *testing.T) {
	o, clk := newOrchestrator(t, DefaultConfig())
	romance := newThread(t, "letters", story.TypeRomance, 5, "gene")
	conflict := newThread(t, "brawl", story.TypeConflict, 4, "gene")
	for _, th := range []*story.Thread{romance, conflict} {
		th.ForceStage(story.StageRisingAction, 0)
	}
	romance.SetTension(0.7)
	conflict.SetTension(0.65)
	require.True(t, o.AddThread(romance))
	require.True(t, o.AddThread(conflict))

	convs := o.Threads().Convergences()
	require.Len(t, convs, 1)
	conv := convs[0]
	assert.Equal(t, story.KindCollision, conv.Kind)

	run := func(now float64) []Directive {
		clk.Set(now)
		romance.LastProgressAt, conflict.LastProgressAt = now, now
		return o.OrchestrateNarrative(context.Background(), story.NullWorld{})
	}

	assert.Empty(t, directivesOf(run(1), DirectiveExecuteClimax))
	moments := o.Sequencer().Moments()
	require.Len(t, moments, 1)
	assert.Equal(t, conv.ID, moments[0].ConvergenceID)
	assert.GreaterOrEqual(t, moments[0].ScheduledAt, 1.0)

	climaxes := directivesOf(run(1.5), DirectiveExecuteClimax)
	require.Len(t, climaxes, 1)
	assert.Equal(t, []string{"brawl", "letters"}, climaxes[0].ThreadIDs)
	assert.Equal(t, 1.5, climaxes[0].Params["tension_multiplier"])

	assert.True(t, o.Threads().Convergence(conv.ID).Executed)
	assert.True(t, o.Sequencer().Moments()[0].Executed)
	assert.Equal(t, story.StageFallingAction, romance.Stage)
	assert.Equal(t, story.StageFallingAction, conflict.Stage)
	assert.InDelta(t, 0.7, romance.Tension, 1e-9)
	assert.InDelta(t, 0.675, conflict.Tension, 1e-9)

	assert.Empty(t, directivesOf(run(2), DirectiveExecuteClimax), "a climax plays once")
}

func TestApplyInterventions(t *testing.T) {
	o, _ := newOrchestrator(t, DefaultConfig())
	hot := newThread(t, "hot", story.TypeConflict, 5, "gene")
	hot.SetTension(0.9)
	quiet := newThread(t, "quiet", story.TypeSocial, 2, "mara")
	quiet.SetInvolvement(0.3)
	require.True(t, o.AddThread(hot))
	require.True(t, o.AddThread(quiet))
	ctx := context.Background()
	world := story.NullWorld{}

	got := o.apply(ctx, rules.Intervention{Action: rules.ActionReduceTension, ThreadID: "hot", Params: map[string]float64{"amount": 0.2}}, world)
	require.Len(t, got, 1)
	assert.Equal(t, DirectiveAdjustTension, got[0].Type)
	assert.InDelta(t, -0.1, got[0].Params["delta"], 1e-9, "one step at a time")
	assert.InDelta(t, 0.8, got[0].Params["target"], 1e-9)
	assert.InDelta(t, 0.9, hot.Tension, 1e-9)
	assert.InDelta(t, 0.8, hot.CalculateTension(), 1e-9)

	got = o.apply(ctx, rules.Intervention{Action: rules.ActionBoostInvolvement, ThreadID: "quiet", Params: map[string]float64{"amount": 0.15}}, world)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.45, quiet.Involvement, 1e-9)

	got = o.apply(ctx, rules.Intervention{Action: rules.ActionPauseThread, ThreadID: "hot"}, world)
	require.Len(t, got, 1)
	assert.Equal(t, story.StagePaused, hot.Stage)

	got = o.apply(ctx, rules.Intervention{Action: rules.ActionIntroduceThread, Params: map[string]float64{"count": 2}}, world)
	require.Len(t, got, 2)
	for _, d := range got {
		th := o.Threads().Get(d.ThreadID)
		require.NotNil(t, th)
		assert.True(t, o.Threads().IsActive(th.ID))
		assert.NotEqual(t, story.TypeSocial, th.Type, "introduced threads fill missing types")
	}

	for _, action := range []rules.Action{rules.ActionPauseThread, rules.ActionReduceTension, rules.ActionBoostInvolvement, rules.ActionAdvanceThread} {
		assert.Empty(t, o.apply(ctx, rules.Intervention{Action: action, ThreadID: "gone", Params: map[string]float64{"amount": 0.1}}, world), action)
	}
}

type awareGenerator struct {
	*TemplateGenerator
	seen [][]story.Summary
}

func (g *awareGenerator) GenerateThreadAmong(ctx context.Context, req story.Request, active []story.Summary) (*story.Thread, error) {
	g.seen = append(g.seen, active)
	return g.GenerateThread(ctx, req)
}

func TestIntroduceShowsGeneratorRunningThreads(t *testing.T) {
	gen := &awareGenerator{TemplateGenerator: NewTemplateGenerator(NewSource(5))}
	o, err := New(DefaultConfig(), WithGenerator(gen))
	require.NoError(t, err)
	require.True(t, o.AddThread(newThread(t, "ledger", story.TypeEconomic, 3, "gene")))

	got := o.apply(context.Background(), rules.Intervention{Action: rules.ActionIntroduceThread, Params: map[string]float64{"count": 2}}, story.NullWorld{})
	require.Len(t, got, 2)
	require.Len(t, gen.seen, 2)
	require.Len(t, gen.seen[0], 1)
	assert.Equal(t, "ledger", gen.seen[0][0].ID)
	assert.Len(t, gen.seen[1], 2, "the first introduced thread is running by then")
}

type failingGenerator struct{ calls int }

func (g *failingGenerator) GenerateThread(context.Context, story.Request) (*story.Thread, error) {
	g.calls++
	return nil, fmt.Errorf("model unavailable")
}

func TestIntroduceFallsBackToTemplates(t *testing.T) {
	gen := &failingGenerator{}
	o, err := New(DefaultConfig(), WithGenerator(gen))
	require.NoError(t, err)

	got := o.apply(context.Background(), rules.Intervention{Action: rules.ActionIntroduceThread, Params: map[string]float64{"count": 1}}, story.NullWorld{})
	require.Len(t, got, 1)
	assert.Equal(t, 1, gen.calls)
	assert.Len(t, o.Threads().Active(), 1)
}

func TestArcPlanningAndCompletion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxActiveArcs = 1
	o, _ := newOrchestrator(t, cfg)
	cellar := newThread(t, "cellar", story.TypeMystery, 5, "gene")
	letter := newThread(t, "letter", story.TypeMystery, 4, "mara")
	cellar.SetTension(0.15)
	letter.SetTension(0.15)
	for _, th := range []*story.Thread{
		cellar,
		letter,
		newThread(t, "gossip", story.TypeSocial, 3, "old_tom"),
		newThread(t, "seating", story.TypeSocial, 2, "widow_hale"),
	} {
		require.True(t, o.AddThread(th))
	}

	o.planArcs()
	require.Len(t, o.arcs, 1, "capped by MaxActiveArcs")
	assert.Equal(t, story.TypeMystery, o.arcs[0].Type)
	assert.Equal(t, []string{"cellar", "letter"}, o.arcs[0].ThreadIDs)
	assert.Equal(t, 5, o.arcs[0].Priority)

	nudges := o.advanceArcs()
	require.Len(t, nudges, 2)
	for _, d := range nudges {
		assert.Equal(t, DirectiveAdjustTension, d.Type)
		assert.InDelta(t, 0.1, d.Params["delta"], 1e-9)
	}
	assert.InDelta(t, 0.25, cellar.CalculateTension(), 1e-9)
	assert.InDelta(t, 0.15, cellar.Tension, 1e-9)
	assert.False(t, o.arcs[0].Completed)

	require.True(t, o.Threads().CompleteThread("cellar", 0.9))
	o.advanceArcs()
	assert.False(t, o.arcs[0].Completed, "half resolved")
	require.True(t, o.Threads().CompleteThread("letter", 0.9))
	o.advanceArcs()
	assert.True(t, o.arcs[0].Completed)

	o.planArcs()
	require.Len(t, o.arcs, 2)
	assert.Equal(t, story.TypeSocial, o.arcs[1].Type)

	sums := o.ArcSummaries()
	require.Len(t, sums, 2)
	assert.Equal(t, 2, sums[0].Resolved)
	assert.Equal(t, 1.0, sums[0].Progress)
	assert.Zero(t, sums[1].Resolved)
}

func TestOverdueArcClosesAfterClimax(t *testing.T) {
	o, clk := newOrchestrator(t, DefaultConfig())
	cellar := newThread(t, "cellar", story.TypeMystery, 5, "gene")
	letter := newThread(t, "letter", story.TypeMystery, 4, "mara")
	require.True(t, o.AddThread(cellar))
	require.True(t, o.AddThread(letter))
	o.planArcs()
	require.Len(t, o.arcs, 1)
	arc := o.arcs[0]
	assert.InDelta(t, 2.5, arc.TargetDuration, 1e-9)

	clk.Set(3)
	assert.True(t, o.ArcSummaries()[0].Overdue)
	o.advanceArcs()
	assert.False(t, arc.Completed, "members are still building")

	cellar.ForceStage(story.StageFallingAction, 3)
	letter.ForceStage(story.StageFallingAction, 3)
	o.advanceArcs()
	assert.True(t, arc.Completed)
	assert.False(t, o.ArcSummaries()[0].Overdue)
}

type tavern struct{ story.NullWorld }

func (tavern) Participants() []string { return []string{"gene", "mara"} }

func TestTemplateThreadsReachClimax(t *testing.T) {
	o, _ := newOrchestrator(t, DefaultConfig())
	ctx := context.Background()
	step := o.Config().Tension.MaxStep

	var climax *Directive
	for i := 1; i <= 12 && climax == nil; i++ {
		before := map[string]float64{}
		for _, th := range o.Threads().Active() {
			before[th.ID] = th.Tension
		}
		res := o.Tick(ctx, 0.5, nil, tavern{})

		peaked := map[string]bool{}
		for _, d := range directivesOf(res.Directives, DirectiveExecuteClimax) {
			climax = &d
			for _, id := range d.ThreadIDs {
				peaked[id] = true
			}
		}
		for id, prev := range before {
			if peaked[id] {
				continue
			}
			th := o.Threads().Get(id)
			require.NotNil(t, th)
			assert.LessOrEqual(t, math.Abs(th.Tension-prev), step+1e-9, "tick %d moved %s too far", i, id)
		}
	}

	require.NotNil(t, climax, "template threads never peaked")
	assert.Len(t, climax.ThreadIDs, 2)
	convs := o.Threads().Convergences()
	require.NotEmpty(t, convs)
	assert.True(t, convs[0].Executed)
	assert.ElementsMatch(t, convs[0].ThreadIDs, climax.ThreadIDs)
}

func TestTickPopulatesEmptyWorld(t *testing.T) {
	o, _ := newOrchestrator(t, DefaultConfig())
	ctx := context.Background()
	available := append([]string{"player"}, Cast...)

	first := o.Tick(ctx, 0.25, available, nil)
	assert.Equal(t, 0.25, first.Now)
	assert.Len(t, directivesOf(first.Directives, DirectiveIntroduceThread), 3)

	executed := 0
	for i := 0; i < 12; i++ {
		res := o.Tick(ctx, 0.25, available, nil)
		for _, e := range res.Events {
			if e.Kind == "beat_executed" {
				executed++
			}
		}
		assert.LessOrEqual(t, len(o.Threads().Active()), o.Config().Threads.MaxActive)
		assert.LessOrEqual(t, res.GlobalTension, o.Config().Tension.Ceiling)
	}
	assert.Greater(t, executed, 0)
	assert.Len(t, o.Tension().History(), 13)
	for _, th := range o.Threads().All() {
		assert.GreaterOrEqual(t, th.Tension, 0.0)
		assert.LessOrEqual(t, th.Tension, 1.0)
		assert.GreaterOrEqual(t, th.Involvement, 0.0)
		assert.LessOrEqual(t, th.Involvement, 1.0)
	}
}

func TestSnapshotRestoreContinuesIdentically(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Seed = 99
	available := append([]string{"player"}, Cast...)

	a, _ := newOrchestrator(t, cfg)
	for i := 0; i < 6; i++ {
		a.Tick(ctx, 0.5, available, nil)
	}

	data, err := yaml.Marshal(a.Snapshot())
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, yaml.Unmarshal(data, &snap))

	b, _ := newOrchestrator(t, DefaultConfig())
	require.NoError(t, b.Restore(snap))
	assert.Equal(t, a.Now(), b.Now())

	for i := 0; i < 4; i++ {
		ra := a.Tick(ctx, 0.5, available, nil)
		rb := b.Tick(ctx, 0.5, available, nil)
		if diff := cmp.Diff(ra, rb, cmpopts.EquateEmpty()); diff != "" {
			t.Fatalf("tick %d diverged after restore (-original +restored):\n%s", i, diff)
		}
	}
}
