// Package tension tracks the global dramatic-tension signal and keeps
// per-thread adjustments smooth.
package tension

import (
	"go.uber.org/zap"

	"github.com/tatianab/storyloom/internal/story"
)

// Config tunes the tension manager.
type Config struct {
	// Ceiling caps global tension so it cannot stay pinned at the maximum.
	Ceiling float64 `yaml:"ceiling"`
	// MaxStep is the largest change a thread's tension makes in one tick.
	MaxStep float64 `yaml:"max_step"`
	// HistorySize bounds the rolling history.
	HistorySize int `yaml:"history_size"`
}

// DefaultConfig returns the default tension settings.
func DefaultConfig() Config {
	return Config{
		Ceiling:     0.8,
		MaxStep:     0.1,
		HistorySize: 288,
	}
}

// Sample is one global tension reading.
type Sample struct {
	At    float64 `yaml:"at" json:"at"`
	Value float64 `yaml:"value" json:"value"`
}

// Manager computes global tension and holds its history.
type Manager struct {
	cfg     Config
	global  float64
	raw     float64
	history []Sample
	logger  *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager builds a Manager. Non-positive settings fall back to defaults.
func NewManager(cfg Config, opts ...Option) *Manager {
	def := DefaultConfig()
	if cfg.Ceiling <= 0 || cfg.Ceiling > 1 {
		cfg.Ceiling = def.Ceiling
	}
	if cfg.MaxStep <= 0 {
		cfg.MaxStep = def.MaxStep
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	m := &Manager{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// typeWeight is how much a thread type counts toward global tension.
func typeWeight(t story.ThreadType) float64 {
	switch t {
	case story.TypeMainQuest:
		return 1.0
	case story.TypeMystery:
		return 0.9
	case story.TypeConflict:
		return 0.8
	case story.TypePolitical, story.TypeRomance, story.TypeCharacterArc:
		return 0.7
	case story.TypeSideQuest:
		return 0.6
	case story.TypeEconomic, story.TypeSocial:
		return 0.4
	default:
		return 0.5
	}
}

// UpdateGlobalTension recomputes global tension from the given threads and
// appends it to the history. Threads weigh in by involvement times type
// weight; when every weight is zero they count equally.
func (m *Manager) UpdateGlobalTension(threads []*story.Thread, now float64) float64 {
	var sum, weights, plain float64
	n := 0
	for _, t := range threads {
		if t == nil || !t.Playable() {
			continue
		}
		w := t.Involvement * typeWeight(t.Type)
		sum += t.Tension * w
		weights += w
		plain += t.Tension
		n++
	}

	raw := 0.0
	switch {
	case weights > 0:
		raw = sum / weights
	case n > 0:
		raw = plain / float64(n)
	}
	m.raw = story.Clamp01(raw)
	m.global = min(m.raw, m.cfg.Ceiling)

	m.history = append(m.history, Sample{At: now, Value: m.global})
	if over := len(m.history) - m.cfg.HistorySize; over > 0 {
		m.history = append([]Sample(nil), m.history[over:]...)
	}
	if m.raw > m.cfg.Ceiling {
		m.logger.Debug("global tension capped",
			zap.Float64("raw", m.raw),
			zap.Float64("ceiling", m.cfg.Ceiling))
	}
	return m.global
}

// Global is the last computed, ceiling-capped global tension.
func (m *Manager) Global() float64 {
	return m.global
}

// RawGlobal is the last global tension before the ceiling was applied.
func (m *Manager) RawGlobal() float64 {
	return m.raw
}

func (m *Manager) window(windowMinutes, now float64) []Sample {
	from := now - windowMinutes/60
	var out []Sample
	for _, s := range m.history {
		if s.At >= from && s.At <= now {
			out = append(out, s)
		}
	}
	return out
}

// Trend is the least-squares slope of the history inside the window, in
// tension per hour. It is zero with fewer than two samples.
func (m *Manager) Trend(windowMinutes, now float64) float64 {
	samples := m.window(windowMinutes, now)
	if len(samples) < 2 {
		return 0
	}
	n := float64(len(samples))
	var sx, sy, sxy, sxx float64
	for _, s := range samples {
		sx += s.At
		sy += s.Value
		sxy += s.At * s.Value
		sxx += s.At * s.At
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return 0
	}
	return (n*sxy - sx*sy) / den
}

// Variance is the population variance of the history inside the window.
func (m *Manager) Variance(windowMinutes, now float64) float64 {
	samples := m.window(windowMinutes, now)
	if len(samples) < 2 {
		return 0
	}
	var mean float64
	for _, s := range samples {
		mean += s.Value
	}
	mean /= float64(len(samples))
	var v float64
	for _, s := range samples {
		d := s.Value - mean
		v += d * d
	}
	return v / float64(len(samples))
}

func stageTarget(s story.Stage) float64 {
	switch s {
	case story.StageSetup:
		return 0.2
	case story.StageRisingAction:
		return 0.5
	case story.StageClimax:
		return 0.9
	case story.StageFallingAction:
		return 0.3
	case story.StageResolution:
		return 0.1
	default:
		return 0
	}
}

// typeMultiplier scales stage targets; mysteries simmer, conflicts run hot.
func typeMultiplier(t story.ThreadType) float64 {
	switch t {
	case story.TypeConflict:
		return 1.15
	case story.TypeMainQuest, story.TypePolitical:
		return 1.05
	case story.TypeMystery:
		return 0.95
	case story.TypeSocial, story.TypeEconomic:
		return 0.85
	default:
		return 1.0
	}
}

// Target is the stage-derived tension a thread should drift toward.
func Target(t *story.Thread) float64 {
	stage := t.Stage
	if stage == story.StagePaused {
		stage = t.PausedFrom
	}
	return story.Clamp01(stageTarget(stage) * typeMultiplier(t.Type))
}

// RecommendAdjustment returns the thread's next tension value: a move toward
// its target no larger than MaxStep.
func (m *Manager) RecommendAdjustment(t *story.Thread) float64 {
	return m.StepToward(t.Tension, Target(t))
}

// StepToward moves from current toward target by at most MaxStep.
func (m *Manager) StepToward(current, target float64) float64 {
	delta := target - current
	if delta > m.cfg.MaxStep {
		delta = m.cfg.MaxStep
	}
	if delta < -m.cfg.MaxStep {
		delta = -m.cfg.MaxStep
	}
	return story.Clamp01(current + delta)
}

// ApplyAdjustment sets the thread's tension to RecommendAdjustment and
// returns the new value.
func (m *Manager) ApplyAdjustment(t *story.Thread) float64 {
	next := m.RecommendAdjustment(t)
	t.SetTension(next)
	return next
}

// History returns a copy of the rolling history.
func (m *Manager) History() []Sample {
	return append([]Sample(nil), m.history...)
}

// Restore replaces the history. The last sample becomes the current global.
func (m *Manager) Restore(samples []Sample, raw float64) {
	m.history = append([]Sample(nil), samples...)
	if over := len(m.history) - m.cfg.HistorySize; over > 0 {
		m.history = m.history[over:]
	}
	m.global = 0
	if len(m.history) > 0 {
		m.global = m.history[len(m.history)-1].Value
	}
	m.raw = story.Clamp01(raw)
}
