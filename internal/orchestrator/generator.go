package orchestrator

import (
	"context"
	"fmt"

	"github.com/tatianab/storyloom/internal/story"
)

// ThreadGenerator produces new threads on request.
type ThreadGenerator interface {
	GenerateThread(ctx context.Context, req story.Request) (*story.Thread, error)
}

// AwareGenerator is a ThreadGenerator that can also take the running
// threads into account, so a new thread does not repeat them.
type AwareGenerator interface {
	ThreadGenerator
	GenerateThreadAmong(ctx context.Context, req story.Request, active []story.Summary) (*story.Thread, error)
}

// Cast is the default tavern cast used by the template generator.
var Cast = []string{"gene", "mara", "old_tom", "sister_ilse", "captain_rusk", "widow_hale"}

var templateTitles = map[story.ThreadType][]string{
	story.TypeMainQuest:    {"The Sealed Cellar", "Ashes of the Old Mill"},
	story.TypeSideQuest:    {"A Cask Gone Missing", "The Ferryman's Debt"},
	story.TypeMystery:      {"Footsteps After Closing", "The Unsigned Letter"},
	story.TypeRomance:      {"Notes Under the Tankard", "A Dance at Harvest"},
	story.TypePolitical:    {"The Reeve's Election", "Tithes and Tempers"},
	story.TypeEconomic:     {"Price of Barley", "The Rival Brewhouse"},
	story.TypeSocial:       {"Gossip at the Well", "A Feud Over Seating"},
	story.TypeCharacterArc: {"An Old Soldier's Regret", "Learning the Trade"},
	story.TypeConflict:     {"Blood on the Floorboards", "The Smugglers Return"},
}

// templateBeats is the structural skeleton every template thread follows.
// The deltas keep rising action hot enough for a convergence to peak.
var templateBeats = []struct {
	typ   story.BeatType
	text  string
	delta float64
}{
	{story.BeatIntroduction, "%s draws attention to %s", 0},
	{story.BeatComplication, "%s finds %s is harder than it looked", 0.05},
	{story.BeatRevelation, "%s hears a rumour about %s", 0},
	{story.BeatComplication, "%s is warned off %s", 0.05},
	{story.BeatConfrontation, "%s presses the people behind %s", 0},
	{story.BeatRevelation, "%s learns the truth behind %s", 0.05},
	{story.BeatSetback, "%s loses ground over %s", 0},
	{story.BeatConfrontation, "%s faces the people behind %s", 0},
	{story.BeatClimax, "%s stakes everything on %s", 0},
	{story.BeatComplication, "%s counts the cost of %s", 0},
	{story.BeatRevelation, "%s understands what %s meant", 0},
	{story.BeatResolution, "%s sees %s settled", 0},
}

// TemplateGenerator builds filler threads from fixed templates. All choices
// come from the session's random source.
type TemplateGenerator struct {
	rng *Source
}

// NewTemplateGenerator returns a generator drawing from rng.
func NewTemplateGenerator(rng *Source) *TemplateGenerator {
	return &TemplateGenerator{rng: rng}
}

func (g *TemplateGenerator) pick(from []string) string {
	return from[g.rng.Intn(len(from))]
}

// GenerateThread builds a thread of the requested type, or a random type when
// none is given. Missing participants are drawn from Cast.
func (g *TemplateGenerator) GenerateThread(ctx context.Context, req story.Request) (*story.Thread, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	typ := req.Type
	if typ == "" {
		typ = story.AllTypes[g.rng.Intn(len(story.AllTypes))]
	}
	if !typ.Valid() {
		return nil, fmt.Errorf("unknown thread type %q", typ)
	}

	participants := append([]string(nil), req.Participants...)
	if len(participants) == 0 {
		first := g.pick(Cast)
		second := g.pick(Cast)
		participants = append(participants, first)
		if second != first {
			participants = append(participants, second)
		}
	}
	priority := req.Priority
	if priority <= 0 {
		priority = 1 + g.rng.Intn(5)
	}

	title := g.pick(templateTitles[typ])
	t := story.NewThread(g.rng.NewID(), title, typ, priority, 0)
	t.PrimaryParticipants = participants[:1]
	t.SecondaryParticipants = participants[1:]
	for i, tb := range templateBeats {
		b := &story.Beat{
			ID:           fmt.Sprintf("%s-%d", t.ID, i+1),
			Type:         tb.typ,
			Description:  fmt.Sprintf(tb.text, participants[0], title),
			Participants: []string{participants[0]},
			Location:     req.Location,
			TensionDelta: tb.delta,
		}
		if i > 0 {
			b.Prerequisites = []string{fmt.Sprintf("%s-%d", t.ID, i)}
		}
		if err := t.AddBeat(b); err != nil {
			return nil, fmt.Errorf("build template beat: %w", err)
		}
	}
	return t, nil
}
