// Package engine generates story content with the Gemini API: new threads for
// the orchestrator and short narration of each tick's directives.
package engine

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

//go:embed prompts/generate_thread.txt
var generateThreadPrompt string

//go:embed prompts/narrate_tick.txt
var narrateTickPrompt string

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

// ErrEmptyResponse is returned when Gemini answers without text.
var ErrEmptyResponse = errors.New("no content returned from Gemini")

var funcs = template.FuncMap{
	"join":  strings.Join,
	"title": titleOf,
}

func titleOf(titles map[string]string, id string) string {
	if t, ok := titles[id]; ok {
		return t
	}
	return id
}

var (
	threadTmpl  = template.Must(template.New("generate_thread").Funcs(funcs).Parse(generateThreadPrompt))
	narrateTmpl = template.Must(template.New("narrate_tick").Funcs(funcs).Parse(narrateTickPrompt))
)

type Engine struct {
	client *genai.Client
	model  *genai.GenerativeModel
	logger *zap.Logger
	newID  func() string
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithIDs sets the generator for thread ids.
func WithIDs(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

func NewEngine(ctx context.Context, apiKey, model string, opts ...Option) (*Engine, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	e := &Engine{
		client: client,
		model:  client.GenerativeModel(model),
		logger: zap.NewNop(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Close() {
	e.client.Close()
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

// generate sends prompt and returns the text of the first candidate.
func (e *Engine) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := e.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}
	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return "", fmt.Errorf("unexpected response type from Gemini")
	}
	return string(text), nil
}

// cleanYAML strips the code fence models like to wrap YAML in.
func cleanYAML(text string) string {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```yaml")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
