package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tatianab/storyloom/internal/orchestrator"
	"github.com/tatianab/storyloom/internal/story"
)

const threadYAML = "```yaml\n" + `title: The Unsigned Letter
priority: 14
primary_participants: [mara]
secondary_participants: [gene]
beats:
  - key: found
    type: introduction
    description: Mara finds a letter under the bar.
    participants: [mara]
  - key: ink
    type: revelation
    description: The ink matches the reeve's ledger.
    participants: [mara, gene]
    location: cellar
    prerequisites: [found, reeve_seen]
    tension_delta: 0.8
    effects: {letter_read: "true"}
  - type: resolution
    description: Gene burns it.
` + "```"

var _ orchestrator.AwareGenerator = (*Engine)(nil)

func counter() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("t%d", n)
	}
}

func TestParseThread(t *testing.T) {
	th, err := parseThread(threadYAML, story.Request{Type: story.TypeMystery}, counter())
	require.NoError(t, err)

	assert.Equal(t, "t1", th.ID)
	assert.Equal(t, "The Unsigned Letter", th.Title)
	assert.Equal(t, story.TypeMystery, th.Type)
	assert.Equal(t, 10, th.Priority, "clamped")
	assert.Equal(t, []string{"mara"}, th.PrimaryParticipants)
	assert.Equal(t, story.StageSetup, th.Stage)

	require.Len(t, th.Beats, 3)
	assert.Equal(t, "t1-found", th.Beats[0].ID)
	ink := th.Beats[1]
	assert.Equal(t, []string{"t1-found", "reeve_seen"}, ink.Prerequisites)
	assert.Equal(t, 0.3, ink.TensionDelta)
	assert.Equal(t, "cellar", ink.Location)
	assert.Equal(t, map[string]string{"letter_read": "true"}, ink.Effects)

	last := th.Beats[2]
	assert.Equal(t, "t1-3", last.ID)
	assert.Equal(t, []string{"mara"}, last.Participants, "defaults to primary participants")
}

func TestParseThreadUnknownBeatType(t *testing.T) {
	text := "title: Cellar Rats\nbeats:\n  - key: a\n    type: betrayal\n    participants: [gene]\n  - key: b\n    participants: [gene]\n  - key: c\n    type: Revelation\n    participants: [gene]"
	th, err := parseThread(text, story.Request{Type: story.TypeSideQuest}, counter())
	require.NoError(t, err)
	require.Len(t, th.Beats, 3)
	for _, b := range th.Beats {
		assert.Equal(t, story.BeatComplication, b.Type, b.ID)
	}
}

func TestParseThreadRequestPriorityWins(t *testing.T) {
	th, err := parseThread(threadYAML, story.Request{Type: story.TypeMystery, Priority: 4}, counter())
	require.NoError(t, err)
	assert.Equal(t, 4, th.Priority)
}

func TestParseThreadRejectsBadReplies(t *testing.T) {
	for name, text := range map[string]string{
		"not yaml":   "title: [unclosed",
		"no beats":   "title: Empty\nbeats: []",
		"no title":   "beats:\n  - key: a\n    participants: [gene]",
		"no players": "title: Ghost\nbeats:\n  - key: a\n    type: introduction",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := parseThread(text, story.Request{Type: story.TypeSocial}, counter())
			assert.Error(t, err)
		})
	}
}

func TestCleanYAML(t *testing.T) {
	assert.Equal(t, "a: 1", cleanYAML("```yaml\na: 1\n```"))
	assert.Equal(t, "a: 1", cleanYAML("  ```\na: 1\n```  "))
	assert.Equal(t, "a: 1", cleanYAML("a: 1"))
}

func TestNarratePrompt(t *testing.T) {
	res := orchestrator.TickResult{
		Now: 20.5,
		Directives: []orchestrator.Directive{
			{Type: orchestrator.DirectiveExecuteClimax, ThreadIDs: []string{"t1", "t2"}, Reason: "scheduled climax"},
			{Type: orchestrator.DirectivePauseThread, ThreadID: "t3"},
		},
		Summaries: []story.Summary{
			{ID: "t1", Title: "Notes Under the Tankard", Stage: story.StageFallingAction, Tension: 0.7, Participants: []string{"gene"}},
			{ID: "t2", Title: "Blood on the Floorboards", Stage: story.StageFallingAction, Tension: 0.675, Participants: []string{"gene", "mara"}},
		},
	}
	prompt, err := narratePrompt(res)
	require.NoError(t, err)
	assert.Contains(t, prompt, "hour 20.50")
	assert.Contains(t, prompt, `execute_climax "Notes Under the Tankard" "Blood on the Floorboards": scheduled climax`)
	assert.Contains(t, prompt, `pause_thread on "t3"`)
	assert.Contains(t, prompt, "Blood on the Floorboards: falling_action, tension 0.68, with gene, mara")
}

func TestThreadPrompt(t *testing.T) {
	prompt, err := render(threadTmpl, struct {
		story.Request
		Active []story.Summary
	}{
		story.Request{Type: story.TypeRomance, Participants: []string{"gene", "mara"}, Hint: "harvest dance"},
		[]story.Summary{{Title: "Price of Barley", Type: story.TypeEconomic, Stage: story.StageSetup, Tension: 0.2}},
	})
	require.NoError(t, err)
	assert.Contains(t, prompt, "Thread type: romance")
	assert.Contains(t, prompt, "Direction from the game master: harvest dance")
	assert.Contains(t, prompt, "People who should be involved: gene, mara")
	assert.Contains(t, prompt, "- Price of Barley (economic, setup, tension 0.20)")
	assert.NotContains(t, prompt, "Where it starts")
}
