// Package orchestrator runs the per-tick narrative control loop: it evaluates
// health, applies interventions, plans arcs, sequences climaxes and reports
// directives for the systems that render the story.
package orchestrator

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/tatianab/storyloom/internal/clock"
	"github.com/tatianab/storyloom/internal/rules"
	"github.com/tatianab/storyloom/internal/story"
	"github.com/tatianab/storyloom/internal/tension"
	"github.com/tatianab/storyloom/internal/threads"
)

const (
	// climaxTension is the tension a rising thread needs before its
	// convergence can become a climax.
	climaxTension = 0.6
	// climaxWindow is how close, in hours, a convergence must be.
	climaxWindow = 0.5
	// climaxDelta is the tension released by a climax beat.
	climaxDelta = -0.3
	// maxClimaxesPerTick bounds how many convergences are sequenced per tick.
	maxClimaxesPerTick = 2
)

// Config gathers the settings of every component.
type Config struct {
	Threads        threads.Config `yaml:"threads"`
	Tension        tension.Config `yaml:"tension"`
	Rules          rules.Config   `yaml:"rules"`
	MaxActiveArcs  int            `yaml:"max_active_arcs"`
	ClimaxSpacing  float64        `yaml:"climax_spacing"`
	MaxOverlap     int            `yaml:"max_overlap"`
	ClimaxDuration float64        `yaml:"climax_duration"`
	Seed           int64          `yaml:"seed"`
}

// DefaultConfig returns the default settings with seed 1.
func DefaultConfig() Config {
	return Config{
		Threads:        threads.DefaultConfig(),
		Tension:        tension.DefaultConfig(),
		Rules:          rules.DefaultConfig(),
		MaxActiveArcs:  3,
		ClimaxSpacing:  0.5,
		MaxOverlap:     2,
		ClimaxDuration: 1,
		Seed:           1,
	}
}

// Orchestrator owns one narrative world. It is not safe for concurrent use.
type Orchestrator struct {
	cfg       Config
	clock     *clock.Manual
	rng       *Source
	logger    *zap.Logger
	generator ThreadGenerator
	fallback  *TemplateGenerator

	threads   *threads.Manager
	tension   *tension.Manager
	rules     *rules.Engine
	sequencer *ClimaticSequencer
	arcs      []*Arc
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock shares an existing clock instead of starting at hour zero.
func WithClock(c *clock.Manual) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.clock = c
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithGenerator sets the generator used for introduced threads. The template
// generator remains the fallback when it fails.
func WithGenerator(g ThreadGenerator) Option {
	return func(o *Orchestrator) { o.generator = g }
}

// New builds an Orchestrator and its components.
func New(cfg Config, opts ...Option) (*Orchestrator, error) {
	def := DefaultConfig()
	if cfg.MaxActiveArcs <= 0 {
		cfg.MaxActiveArcs = def.MaxActiveArcs
	}
	o := &Orchestrator{
		cfg:    cfg,
		clock:  clock.NewManual(0),
		rng:    NewSource(cfg.Seed),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.tension = tension.NewManager(cfg.Tension, tension.WithLogger(o.logger.Named("tension")))
	tm, err := threads.NewManager(cfg.Threads,
		threads.WithClock(o.clock),
		threads.WithRandom(o.rng),
		threads.WithTension(o.tension),
		threads.WithIDs(o.rng.NewID),
		threads.WithLogger(o.logger.Named("threads")))
	if err != nil {
		return nil, err
	}
	o.threads = tm
	o.rules = rules.NewEngine(cfg.Rules, o.tension, o.logger.Named("rules"))
	o.sequencer = NewSequencer(cfg.ClimaxSpacing, cfg.MaxOverlap, cfg.ClimaxDuration)
	o.fallback = NewTemplateGenerator(o.rng)
	if o.generator == nil {
		o.generator = o.fallback
	}
	o.cfg.Rules = o.rules.Config()
	o.cfg.Tension = o.tension.Config()
	o.cfg.Threads = o.threads.Config()
	return o, nil
}

func (o *Orchestrator) Config() Config            { return o.cfg }
func (o *Orchestrator) Now() float64              { return o.clock.Now() }
func (o *Orchestrator) Threads() *threads.Manager { return o.threads }
func (o *Orchestrator) Tension() *tension.Manager { return o.tension }
func (o *Orchestrator) Rules() *rules.Engine      { return o.rules }

// Sequencer exposes the climax schedule.
func (o *Orchestrator) Sequencer() *ClimaticSequencer { return o.sequencer }

// AddThread hands a thread to the thread manager.
func (o *Orchestrator) AddThread(t *story.Thread) bool {
	return o.threads.AddThread(t)
}

// Health evaluates narrative health without changing anything.
func (o *Orchestrator) Health(world story.World) rules.Report {
	return o.rules.EvaluateNarrativeHealth(o.threads.All(), world, o.clock.Now())
}

// OrchestrateNarrative runs one pass of the control loop: health evaluation,
// interventions, arc planning, climax sequencing and arc advancement.
// Pacing interventions apply at every health level; the rest only when health
// is poor or critical.
func (o *Orchestrator) OrchestrateNarrative(ctx context.Context, world story.World) []Directive {
	if world == nil {
		world = story.NullWorld{}
	}
	report := o.Health(world)
	o.logger.Debug("narrative health",
		zap.String("level", string(report.Level)),
		zap.Float64("score", report.Score))

	var out []Directive
	emergency := report.Level == rules.LevelPoor || report.Level == rules.LevelCritical
	for _, iv := range o.rules.GenerateInterventions(o.threads.All(), report, o.clock.Now()) {
		if !emergency && !iv.Pacing() {
			continue
		}
		out = append(out, o.apply(ctx, iv, world)...)
	}

	if len(o.activeArcs()) < o.cfg.MaxActiveArcs {
		o.planArcs()
	}
	out = append(out, o.climaxes(world)...)
	out = append(out, o.advanceArcs()...)
	return out
}

// apply turns an intervention into directives. Interventions against threads
// that are gone do nothing.
func (o *Orchestrator) apply(ctx context.Context, iv rules.Intervention, world story.World) []Directive {
	switch iv.Action {
	case rules.ActionPauseThread:
		if !o.threads.PauseThread(iv.ThreadID) {
			return nil
		}
		return []Directive{{Type: DirectivePauseThread, ThreadID: iv.ThreadID, Reason: iv.Reason}}

	case rules.ActionReduceTension:
		var delta, target float64
		ok := o.threads.Update(iv.ThreadID, func(t *story.Thread) {
			delta, target = o.retarget(t, t.CalculateTension()-iv.Params["amount"])
		})
		if !ok {
			return nil
		}
		return []Directive{{
			Type:     DirectiveAdjustTension,
			ThreadID: iv.ThreadID,
			Params:   map[string]float64{"delta": delta, "target": target},
			Reason:   iv.Reason,
		}}

	case rules.ActionBoostInvolvement:
		var after float64
		ok := o.threads.Update(iv.ThreadID, func(t *story.Thread) {
			t.SetInvolvement(t.Involvement + iv.Params["amount"])
			after = t.Involvement
		})
		if !ok {
			return nil
		}
		return []Directive{{
			Type:     DirectiveBoostInvolvement,
			ThreadID: iv.ThreadID,
			Params:   map[string]float64{"amount": iv.Params["amount"], "involvement": after},
			Reason:   iv.Reason,
		}}

	case rules.ActionAdvanceThread:
		if !o.threads.ForceAdvance(iv.ThreadID) {
			return nil
		}
		return []Directive{{
			Type:     DirectiveAdvanceThread,
			ThreadID: iv.ThreadID,
			Params:   iv.Params,
			Reason:   iv.Reason,
		}}

	case rules.ActionIntroduceThread:
		var out []Directive
		for i := 0; i < max(1, int(iv.Params["count"])); i++ {
			t := o.introduce(ctx, world)
			if t == nil {
				break
			}
			out = append(out, Directive{
				Type:     DirectiveIntroduceThread,
				ThreadID: t.ID,
				Params:   map[string]float64{"priority": float64(t.Priority)},
				Reason:   iv.Reason,
			})
		}
		return out
	}
	return nil
}

// retarget moves the tension t drifts toward by at most one step in the
// direction of want. Tension itself follows when threads advance.
func (o *Orchestrator) retarget(t *story.Thread, want float64) (delta, target float64) {
	cur := t.CalculateTension()
	t.AdjustTension(o.tension.StepToward(cur, want) - cur)
	target = t.CalculateTension()
	return target - cur, target
}

// introduce asks the generator for a thread of a type not yet active,
// falling back to the template generator when the configured one fails.
func (o *Orchestrator) introduce(ctx context.Context, world story.World) *story.Thread {
	present := map[story.ThreadType]bool{}
	for _, t := range o.threads.Active() {
		present[t.Type] = true
	}
	var missing []story.ThreadType
	for _, typ := range story.AllTypes {
		if !present[typ] {
			missing = append(missing, typ)
		}
	}
	req := story.Request{Priority: 2}
	if len(missing) > 0 {
		req.Type = missing[o.rng.Intn(len(missing))]
	}
	if ps := world.Participants(); len(ps) > 0 {
		req.Participants = append([]string(nil), ps[:min(2, len(ps))]...)
	}

	var t *story.Thread
	var err error
	if g, ok := o.generator.(AwareGenerator); ok {
		t, err = g.GenerateThreadAmong(ctx, req, o.threads.Summaries())
	} else {
		t, err = o.generator.GenerateThread(ctx, req)
	}
	if err != nil && o.generator != ThreadGenerator(o.fallback) {
		o.logger.Warn("thread generation failed, using template", zap.Error(err))
		t, err = o.fallback.GenerateThread(ctx, req)
	}
	if err != nil {
		o.logger.Warn("thread generation failed", zap.Error(err))
		return nil
	}
	now := o.clock.Now()
	t.CreatedAt, t.LastProgressAt = now, now
	t.RecalculateTension()
	if !o.threads.AddThread(t) {
		o.logger.Debug("introduced thread rejected", zap.String("thread", t.ID))
		return nil
	}
	o.logger.Info("thread introduced",
		zap.String("thread", t.ID),
		zap.String("title", t.Title),
		zap.String("type", string(t.Type)))
	return t
}

// climaxes sequences convergences between hot rising threads and plays every
// climax that has come due.
func (o *Orchestrator) climaxes(world story.World) []Directive {
	now := o.clock.Now()
	o.threads.DetectConvergences()

	scheduled := 0
	for _, c := range o.threads.PendingConvergences() {
		if scheduled == maxClimaxesPerTick || o.tension.RawGlobal() > o.cfg.Rules.GlobalTensionAlarm {
			break
		}
		if o.sequencer.HasConvergence(c.ID) || c.ScheduledAt-now > climaxWindow || !o.ready(c) {
			continue
		}
		m := &ClimaticMoment{
			ID:            o.rng.NewID(),
			ThreadIDs:     append([]string(nil), c.ThreadIDs...),
			ConvergenceID: c.ID,
		}
		if !o.sequencer.Schedule(m, max(now, c.ScheduledAt), now) {
			o.logger.Debug("no climax slot", zap.String("convergence", c.ID))
			continue
		}
		scheduled++
		o.logger.Info("climax scheduled",
			zap.String("moment", m.ID),
			zap.Strings("threads", m.ThreadIDs),
			zap.Float64("at", m.ScheduledAt))
	}

	var out []Directive
	for _, m := range o.sequencer.Due(now) {
		if d, ok := o.playClimax(m, world); ok {
			out = append(out, d)
		}
	}
	return out
}

// ready reports whether every thread of c is in rising action above the
// climax tension.
func (o *Orchestrator) ready(c *threads.Convergence) bool {
	for _, id := range c.ThreadIDs {
		t := o.threads.Get(id)
		if t == nil || t.Stage != story.StageRisingAction || t.Tension <= climaxTension {
			return false
		}
	}
	return true
}

func (o *Orchestrator) playClimax(m *ClimaticMoment, world story.World) (Directive, bool) {
	m.Executed = true
	now := o.clock.Now()
	multiplier := 1.0
	var shared []string
	if m.ConvergenceID != "" {
		c := o.threads.Convergence(m.ConvergenceID)
		if c == nil || !o.threads.ExecuteConvergence(c.ID, world) {
			return Directive{}, false
		}
		multiplier = c.TensionMultiplier
		shared = c.SharedParticipants
	}

	var played []string
	for _, id := range m.ThreadIDs {
		ok := o.threads.Update(id, func(t *story.Thread) {
			peak := t.Tension
			participants := shared
			if len(participants) == 0 {
				participants = t.Participants()
			}
			if len(participants) > 0 {
				b := &story.Beat{
					ID:           "climax-" + m.ID,
					Type:         story.BeatClimax,
					Description:  "climax of " + t.Title,
					Participants: append([]string(nil), participants...),
					TensionDelta: climaxDelta,
				}
				if err := t.RecordBeat(b, true, now); err != nil {
					o.logger.Warn("climax beat not recorded",
						zap.String("thread", t.ID),
						zap.Error(err))
				}
			}
			t.ForceStage(story.StageFallingAction, now)
			t.SetTension(peak + climaxDelta)
		})
		if ok {
			played = append(played, id)
		}
	}
	if len(played) == 0 {
		return Directive{}, false
	}
	sort.Strings(played)
	return Directive{
		Type:      DirectiveExecuteClimax,
		ThreadIDs: played,
		Params: map[string]float64{
			"tension_delta":      climaxDelta,
			"tension_multiplier": multiplier,
		},
		Reason: "scheduled climax",
	}, true
}

// TickResult is everything one tick produced.
type TickResult struct {
	Now           float64         `yaml:"now" json:"now"`
	Health        rules.Report    `yaml:"health" json:"health"`
	Directives    []Directive     `yaml:"directives" json:"directives"`
	Events        []threads.Event `yaml:"events" json:"events"`
	GlobalTension float64         `yaml:"global_tension" json:"global_tension"`
	Violations    []string        `yaml:"violations,omitempty" json:"violations,omitempty"`
	Summaries     []story.Summary `yaml:"summaries" json:"summaries"`
}

// Tick advances the clock by elapsed hours and runs one full cycle:
// orchestration, beat execution, tension update and pacing checks.
func (o *Orchestrator) Tick(ctx context.Context, elapsed float64, available []string, world story.World) TickResult {
	if world == nil {
		world = story.NullWorld{}
	}
	now := o.clock.Advance(elapsed)

	directives := o.OrchestrateNarrative(ctx, world)
	o.threads.AdvanceThreads(available, world)
	global := o.tension.UpdateGlobalTension(o.threads.Active(), now)
	violations := o.rules.CheckPacingRules(o.threads.All(), now)
	for _, v := range violations {
		o.logger.Debug("pacing rule violated", zap.String("violation", v))
	}

	return TickResult{
		Now:           now,
		Health:        o.Health(world),
		Directives:    directives,
		Events:        o.threads.DrainEvents(),
		GlobalTension: global,
		Violations:    violations,
		Summaries:     o.Summaries(),
	}
}

// Summaries returns display records for active and paused threads.
func (o *Orchestrator) Summaries() []story.Summary {
	return o.threads.Summaries()
}
