package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/tatianab/storyloom/internal/models"
	"github.com/tatianab/storyloom/internal/orchestrator"
	"github.com/tatianab/storyloom/internal/story"
)

// Narrator turns a tick into prose. It may be nil.
type Narrator interface {
	Narrate(ctx context.Context, res orchestrator.TickResult) (string, error)
}

type sessionState int

const (
	statePlaying sessionState = iota
	stateTicking
)

type model struct {
	state     sessionState
	orch      *orchestrator.Orchestrator
	session   *models.Session
	store     models.Store
	narrator  Narrator
	logger    *zap.Logger
	textInput textinput.Model
	viewport  viewport.Model
	threads   table.Model
	last      orchestrator.TickResult
	arcs      []orchestrator.ArcSummary
	status    string
	width     int
	height    int
}

var (
	directiveStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EEEEEE")).
			Background(lipgloss.Color("#5F5F87")).
			Bold(true).
			PaddingLeft(1)

	narrationStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	eventStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA"))

	violationStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F5F"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	stateStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("#3C3C3C")).
			PaddingLeft(2).
			Foreground(lipgloss.Color("#AAAAAA"))

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true).
			Underline(true)
)

// Option configures the dashboard.
type Option func(*model)

// WithStore saves the session after every tick and on "save".
func WithStore(s models.Store) Option {
	return func(m *model) { m.store = s }
}

// WithNarrator adds prose to every tick that issued directives.
func WithNarrator(n Narrator) Option {
	return func(m *model) { m.narrator = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(m *model) {
		if l != nil {
			m.logger = l
		}
	}
}

func NewModel(o *orchestrator.Orchestrator, s *models.Session, opts ...Option) model {
	ti := textinput.New()
	ti.Placeholder = "tick, pause <thread>, save, quit..."
	ti.Focus()
	ti.CharLimit = 156
	ti.Width = 40

	tbl := table.New(
		table.WithColumns(threadColumns(60)),
		table.WithHeight(8),
		table.WithFocused(false),
	)

	m := model{
		state:     statePlaying,
		orch:      o,
		session:   s,
		logger:    zap.NewNop(),
		textInput: ti,
		viewport:  viewport.New(80, 20),
		threads:   tbl,
		arcs:      o.ArcSummaries(),
		status:    helpText,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.last.Now = o.Now()
	m.last.Summaries = o.Summaries()
	m.last.GlobalTension = o.Tension().Global()
	m.last.Health = o.Health(&s.State)
	m.refresh()
	return m
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

type tickedMsg struct {
	res       orchestrator.TickResult
	narration string
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyEnter:
			if m.state != statePlaying {
				return m, nil
			}
			line := m.textInput.Value()
			if strings.TrimSpace(line) == "" {
				return m, nil
			}
			m.textInput.Reset()
			c, err := parseCommand(line)
			if err != nil {
				m.status = err.Error()
				return m, nil
			}
			return m.run(c)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = int(float64(msg.Width) * 0.6)
		m.viewport.Height = msg.Height - 8
		m.threads.SetColumns(threadColumns(int(float64(msg.Width) * 0.35)))
		m.refresh()

	case tickedMsg:
		m.state = statePlaying
		m.session.Record(msg.res, msg.narration)
		m.last = msg.res
		m.arcs = m.orch.ArcSummaries()
		m.status = fmt.Sprintf("t=%.2fh: %d directives, %d events", msg.res.Now, len(msg.res.Directives), len(msg.res.Events))
		if m.store != nil {
			if err := m.save(); err != nil {
				m.status = err.Error()
			}
		}
		m.refresh()
		return m, nil
	}

	if m.state == statePlaying {
		m.textInput, cmd = m.textInput.Update(msg)
		return m, cmd
	}

	return m, nil
}

// run executes a parsed command. Only "tick" runs asynchronously.
func (m model) run(c command) (tea.Model, tea.Cmd) {
	pool := m.orch.Threads()
	world := &m.session.State

	switch c.verb {
	case "quit":
		if m.store != nil {
			if err := m.save(); err != nil {
				m.logger.Warn("save on quit failed", zap.Error(err))
			}
		}
		return m, tea.Quit
	case "help":
		m.status = helpText
		return m, nil
	case "tick":
		m.state = stateTicking
		m.status = "weaving..."
		return m, m.tick(c.hours)
	case "save":
		if m.store == nil {
			m.status = "no store configured"
			return m, nil
		}
		if err := m.save(); err != nil {
			m.status = err.Error()
			return m, nil
		}
		m.status = "saved " + m.session.Name
		return m, nil
	case "arrive":
		world.Arrive(c.arg)
		m.status = c.arg + " arrives"
	case "leave":
		world.Leave(c.arg)
		m.status = c.arg + " leaves"
	case "move":
		world.CurrentLocation = c.arg
		m.status = "now at " + c.arg
	case "flag":
		world.ApplyEffects(map[string]string{c.arg: c.value})
		m.status = fmt.Sprintf("%s = %s", c.arg, c.value)
	default:
		id, err := resolveThread(pool.All(), c.arg)
		if err != nil {
			m.status = err.Error()
			return m, nil
		}
		var ok bool
		switch c.verb {
		case "pause":
			ok = pool.PauseThread(id)
		case "resume":
			ok = pool.ResumeThread(id)
		case "complete":
			ok = pool.CompleteThread(id, 1)
		case "abandon":
			ok = pool.DiscontinueThread(id, story.OutcomeAbandoned)
		}
		if !ok {
			m.status = fmt.Sprintf("cannot %s %s", c.verb, short(id))
			return m, nil
		}
		m.status = fmt.Sprintf("%s %s", c.verb, short(id))
		m.session.Record(orchestrator.TickResult{Now: m.orch.Now(), Events: pool.DrainEvents()}, "")
	}

	m.last.Summaries = m.orch.Summaries()
	m.last.Health = m.orch.Health(world)
	m.refresh()
	return m, nil
}

func (m model) tick(hours float64) tea.Cmd {
	o, s, narrator, logger := m.orch, m.session, m.narrator, m.logger
	return func() tea.Msg {
		ctx := context.Background()
		res := o.Tick(ctx, hours, s.State.Participants(), &s.State)
		var narration string
		if narrator != nil {
			text, err := narrator.Narrate(ctx, res)
			if err != nil {
				logger.Warn("narration failed", zap.Error(err))
			}
			narration = text
		}
		return tickedMsg{res: res, narration: narration}
	}
}

func (m *model) save() error {
	m.session.Narrative = m.orch.Snapshot()
	if err := m.store.Save(m.session); err != nil {
		return fmt.Errorf("save %s: %w", m.session.Name, err)
	}
	return nil
}

func (m model) View() string {
	mainView := lipgloss.JoinHorizontal(lipgloss.Top,
		m.viewport.View(),
		m.renderState(),
	)

	input := m.textInput.View()
	if m.state == stateTicking {
		input = helpStyle.Render("  the loom is turning...")
	}

	s := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(m.session.Setting.Title),
		mainView,
		"\n"+input,
		"\n"+helpStyle.Render(m.status),
	)

	return "\n" + s + "\n"
}

func threadColumns(width int) []table.Column {
	title := max(10, width-36)
	return []table.Column{
		{Title: "ID", Width: 8},
		{Title: "Title", Width: title},
		{Title: "Stage", Width: 14},
		{Title: "T", Width: 4},
	}
}

// refresh rebuilds the thread table and log view from the last results.
func (m *model) refresh() {
	rows := make([]table.Row, 0, len(m.last.Summaries))
	for _, sum := range m.last.Summaries {
		stage := string(sum.Stage)
		if sum.Status == story.StatusPaused {
			stage = "paused"
		}
		if sum.Stalled {
			stage += "*"
		}
		if sum.Overdue {
			stage += "!"
		}
		rows = append(rows, table.Row{short(sum.ID), sum.Title, stage, fmt.Sprintf("%.2f", sum.Tension)})
	}
	m.threads.SetRows(rows)
	m.viewport.SetContent(m.renderLog())
	m.viewport.GotoBottom()
}

func (m model) renderState() string {
	h := m.last.Health
	clock := titleStyle.Render("CLOCK") + "\n" + fmt.Sprintf("%.2fh at %s\n\n", m.last.Now, m.session.State.CurrentLocation)

	health := titleStyle.Render("HEALTH") + "\n" +
		fmt.Sprintf("%s (%.2f)\npacing %.2f  tension %.2f\ndiversity %.2f  engagement %.2f\n\n",
			h.Level, h.Score, h.Pacing, h.Tension, h.Diversity, h.Engagement)

	tensionBar := titleStyle.Render("TENSION") + "\n" + bar(m.last.GlobalTension, 20) +
		fmt.Sprintf(" %.2f\n\n", m.last.GlobalTension)

	threads := titleStyle.Render("THREADS") + "\n" + m.threads.View() + "\n\n"

	arcs := titleStyle.Render("ARCS") + "\n"
	open := 0
	for _, a := range m.arcs {
		if a.Completed {
			continue
		}
		open++
		arcs += fmt.Sprintf("- %s %d/%d (%.0f%%)\n", a.Name, a.Resolved, a.Threads, a.Progress*100)
	}
	if open == 0 {
		arcs += "(none)\n"
	}

	content := clock + health + tensionBar + threads + arcs

	stateWidth := int(float64(m.width) * 0.38)
	return stateStyle.Width(stateWidth).Height(m.viewport.Height).Render(content)
}

func bar(v float64, width int) string {
	n := int(story.Clamp01(v)*float64(width) + 0.5)
	return strings.Repeat("█", n) + strings.Repeat("░", width-n)
}

func (m model) renderLog() string {
	var b strings.Builder
	width := max(20, m.viewport.Width)
	if m.session.History.Dropped > 0 {
		b.WriteString(eventStyle.Render(fmt.Sprintf("(%d earlier entries)", m.session.History.Dropped)) + "\n")
	}
	for _, e := range m.session.History.Entries {
		line := fmt.Sprintf("[%6.2fh] %s", e.At, e.Text)
		switch e.Kind {
		case "directive":
			b.WriteString(directiveStyle.Width(width).Render(line))
		case "narration":
			b.WriteString("\n" + narrationStyle.Width(width).Render(e.Text) + "\n")
		case "violation":
			b.WriteString(violationStyle.Render(line))
		default:
			b.WriteString(eventStyle.Render(line))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Run starts the dashboard for a session and blocks until the user quits.
func Run(o *orchestrator.Orchestrator, s *models.Session, opts ...Option) error {
	p := tea.NewProgram(NewModel(o, s, opts...), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
