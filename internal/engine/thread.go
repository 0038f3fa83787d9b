package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/tatianab/storyloom/internal/story"
)

type beatReply struct {
	Key           string            `yaml:"key"`
	Type          story.BeatType    `yaml:"type"`
	Description   string            `yaml:"description"`
	Participants  []string          `yaml:"participants"`
	Location      string            `yaml:"location"`
	Prerequisites []string          `yaml:"prerequisites"`
	TensionDelta  float64           `yaml:"tension_delta"`
	Effects       map[string]string `yaml:"effects"`
}

type threadReply struct {
	Title                 string      `yaml:"title"`
	Priority              int         `yaml:"priority"`
	PrimaryParticipants   []string    `yaml:"primary_participants"`
	SecondaryParticipants []string    `yaml:"secondary_participants"`
	Beats                 []beatReply `yaml:"beats"`
}

// GenerateThread asks Gemini for a new thread matching req.
func (e *Engine) GenerateThread(ctx context.Context, req story.Request) (*story.Thread, error) {
	return e.GenerateThreadAmong(ctx, req, nil)
}

// GenerateThreadAmong is GenerateThread with the running threads included in
// the prompt so the new one does not repeat them.
func (e *Engine) GenerateThreadAmong(ctx context.Context, req story.Request, active []story.Summary) (*story.Thread, error) {
	if req.Type == "" {
		req.Type = story.TypeSideQuest
	}
	prompt, err := render(threadTmpl, struct {
		story.Request
		Active []story.Summary
	}{req, active})
	if err != nil {
		return nil, err
	}
	text, err := e.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	t, err := parseThread(text, req, e.newID)
	if err != nil {
		return nil, err
	}
	e.logger.Info("thread generated",
		zap.String("thread", t.ID),
		zap.String("title", t.Title),
		zap.Int("beats", len(t.Beats)))
	return t, nil
}

// parseThread turns a YAML reply into a thread. Beat keys become beat ids
// scoped to the thread, and prerequisites naming a key are rewritten to match.
func parseThread(text string, req story.Request, newID func() string) (*story.Thread, error) {
	clean := cleanYAML(text)
	var reply threadReply
	if err := yaml.Unmarshal([]byte(clean), &reply); err != nil {
		return nil, fmt.Errorf("parse thread YAML: %w\nOutput was: %s", err, clean)
	}
	if reply.Title == "" || len(reply.Beats) == 0 {
		return nil, fmt.Errorf("thread reply is missing a title or beats")
	}

	priority := req.Priority
	if priority <= 0 {
		priority = min(max(reply.Priority, 1), 10)
	}
	t := story.NewThread(newID(), reply.Title, req.Type, priority, 0)
	t.PrimaryParticipants = reply.PrimaryParticipants
	t.SecondaryParticipants = reply.SecondaryParticipants
	if len(t.PrimaryParticipants) == 0 {
		t.PrimaryParticipants = req.Participants
	}

	ids := make(map[string]string, len(reply.Beats))
	for i, br := range reply.Beats {
		key := br.Key
		if key == "" {
			key = fmt.Sprint(i + 1)
		}
		ids[key] = t.ID + "-" + key
	}
	for i, br := range reply.Beats {
		key := br.Key
		if key == "" {
			key = fmt.Sprint(i + 1)
		}
		b := &story.Beat{
			ID:           ids[key],
			Type:         br.Type,
			Description:  br.Description,
			Participants: br.Participants,
			Location:     br.Location,
			TensionDelta: max(-0.3, min(br.TensionDelta, 0.3)),
			Effects:      br.Effects,
		}
		// Unknown or missing types play as complications.
		if !b.Type.Valid() {
			b.Type = story.BeatComplication
		}
		if len(b.Participants) == 0 {
			b.Participants = t.PrimaryParticipants
		}
		for _, pre := range br.Prerequisites {
			if id, ok := ids[pre]; ok {
				pre = id
			}
			b.Prerequisites = append(b.Prerequisites, pre)
		}
		if err := t.AddBeat(b); err != nil {
			return nil, fmt.Errorf("beat %q: %w", key, err)
		}
	}
	t.RecalculateTension()
	return t, nil
}
