package engine

import (
	"context"
	"strings"

	"github.com/tatianab/storyloom/internal/orchestrator"
	"github.com/tatianab/storyloom/internal/story"
)

type narrateData struct {
	Now        float64
	Directives []orchestrator.Directive
	Threads    []story.Summary
	Titles     map[string]string
}

func narratePrompt(res orchestrator.TickResult) (string, error) {
	titles := make(map[string]string, len(res.Summaries))
	for _, s := range res.Summaries {
		titles[s.ID] = s.Title
	}
	return render(narrateTmpl, narrateData{
		Now:        res.Now,
		Directives: res.Directives,
		Threads:    res.Summaries,
		Titles:     titles,
	})
}

// Narrate turns a tick's directives into a few sentences of prose. Ticks with
// no directives produce no text and no request.
func (e *Engine) Narrate(ctx context.Context, res orchestrator.TickResult) (string, error) {
	if len(res.Directives) == 0 {
		return "", nil
	}
	prompt, err := narratePrompt(res)
	if err != nil {
		return "", err
	}
	text, err := e.generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
