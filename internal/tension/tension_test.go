package tension

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tatianab/storyloom/internal/story"
)

func thread(id string, typ story.ThreadType, tension, involvement float64) *story.Thread {
	t := story.NewThread(id, id, typ, 1, 0)
	t.SetTension(tension)
	t.SetInvolvement(involvement)
	return t
}

func TestGlobalTensionNeverExceedsCeiling(t *testing.T) {
	m := NewManager(DefaultConfig())
	for i, v := range []float64{0.9, 0.9, 0.9, 0.9, 0.9} {
		threads := []*story.Thread{thread("gossip", story.TypeSocial, v, 0.3)}
		got := m.UpdateGlobalTension(threads, float64(i))
		assert.LessOrEqual(t, got, 0.8)
	}
	assert.InDelta(t, 0.9, m.RawGlobal(), 1e-9)
	for _, s := range m.History() {
		assert.LessOrEqual(t, s.Value, 0.8)
	}
}

func TestGlobalTensionWeighting(t *testing.T) {
	m := NewManager(Config{Ceiling: 1})
	main := thread("main", story.TypeMainQuest, 0.8, 1)
	social := thread("social", story.TypeSocial, 0.2, 1)

	got := m.UpdateGlobalTension([]*story.Thread{main, social}, 0)
	// (0.8*1.0 + 0.2*0.4) / 1.4
	assert.InDelta(t, 0.88/1.4, got, 1e-9)

	idle := thread("idle", story.TypeMystery, 0.6, 0)
	calm := thread("calm", story.TypeMystery, 0.2, 0)
	assert.InDelta(t, 0.4, m.UpdateGlobalTension([]*story.Thread{idle, calm}, 1), 1e-9)

	assert.Zero(t, m.UpdateGlobalTension(nil, 2))
}

func TestHistoryIsBounded(t *testing.T) {
	m := NewManager(Config{HistorySize: 3})
	for i := 0; i < 10; i++ {
		m.UpdateGlobalTension(nil, float64(i))
	}
	h := m.History()
	require.Len(t, h, 3)
	assert.Equal(t, 7.0, h[0].At)
}

func TestTrendIsSlopePerHour(t *testing.T) {
	m := NewManager(Config{Ceiling: 1})
	m.Restore([]Sample{
		{At: 0, Value: 0.1},
		{At: 0.5, Value: 0.2},
		{At: 1, Value: 0.3},
	}, 0.3)

	assert.InDelta(t, 0.2, m.Trend(120, 1), 1e-9)
	assert.Zero(t, m.Trend(10, 1), "one sample in window")
	assert.Greater(t, m.Variance(120, 1), 0.0)
	assert.Equal(t, 0.3, m.Global())
}

func TestRecommendAdjustmentIsStepLimited(t *testing.T) {
	m := NewManager(DefaultConfig())
	th := thread("war", story.TypeConflict, 0.1, 0.5)
	th.Stage = story.StageClimax

	next := m.RecommendAdjustment(th)
	assert.InDelta(t, 0.2, next, 1e-9)

	for i := 0; i < 20; i++ {
		prev := th.Tension
		m.ApplyAdjustment(th)
		assert.LessOrEqual(t, th.Tension-prev, 0.1+1e-9)
	}
	assert.InDelta(t, Target(th), th.Tension, 1e-9)
	assert.LessOrEqual(t, th.Tension, 1.0)

	th.Stage = story.StageFallingAction
	prev := th.Tension
	m.ApplyAdjustment(th)
	assert.InDelta(t, prev-0.1, th.Tension, 1e-9)
}
