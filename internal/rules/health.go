// Package rules scores narrative health and turns poor health into
// prioritised corrective interventions.
package rules

import (
	"math"

	"go.uber.org/zap"

	"github.com/tatianab/storyloom/internal/story"
	"github.com/tatianab/storyloom/internal/tension"
)

// Level is a discrete narrative-health rating.
type Level string

const (
	LevelExcellent Level = "excellent"
	LevelGood      Level = "good"
	LevelAdequate  Level = "adequate"
	LevelPoor      Level = "poor"
	LevelCritical  Level = "critical"
)

// levelThresholds is scanned top-down; the first floor the score reaches wins.
var levelThresholds = []struct {
	floor float64
	level Level
}{
	{0.8, LevelExcellent},
	{0.65, LevelGood},
	{0.5, LevelAdequate},
	{0.35, LevelPoor},
}

// LevelFor maps a weighted health score to a level.
func LevelFor(score float64) Level {
	for _, th := range levelThresholds {
		if score >= th.floor {
			return th.level
		}
	}
	return LevelCritical
}

// Component weights of the overall score.
const (
	weightPacing     = 0.3
	weightTension    = 0.25
	weightDiversity  = 0.2
	weightEngagement = 0.25
)

// Config holds the pacing rules and ideal targets.
type Config struct {
	StagnantMinutes         float64 `yaml:"stagnant_minutes"`
	MaxSimultaneousClimaxes int     `yaml:"max_simultaneous_climaxes"`
	MaxActiveThreads        int     `yaml:"max_active_threads"`
	MinActiveThreads        int     `yaml:"min_active_threads"`
	MaxTrendPerHour         float64 `yaml:"max_trend_per_hour"`
	TrendWindowMinutes      float64 `yaml:"trend_window_minutes"`
	HighTension             float64 `yaml:"high_tension"`
	GlobalTensionAlarm      float64 `yaml:"global_tension_alarm"`
	LowInvolvement          float64 `yaml:"low_involvement"`
	MaxInterventions        int     `yaml:"max_interventions"`
}

// DefaultConfig returns the default pacing rules.
func DefaultConfig() Config {
	return Config{
		StagnantMinutes:         45,
		MaxSimultaneousClimaxes: 2,
		MaxActiveThreads:        7,
		MinActiveThreads:        3,
		MaxTrendPerHour:         0.5,
		TrendWindowMinutes:      60,
		HighTension:             0.7,
		GlobalTensionAlarm:      0.8,
		LowInvolvement:          0.4,
		MaxInterventions:        5,
	}
}

// Metrics are the raw observations behind a Report.
type Metrics struct {
	Active         int     `yaml:"active" json:"active"`
	Completed      int     `yaml:"completed" json:"completed"`
	Climaxes       int     `yaml:"climaxes" json:"climaxes"`
	DistinctTypes  int     `yaml:"distinct_types" json:"distinct_types"`
	AvgInvolvement float64 `yaml:"avg_involvement" json:"avg_involvement"`
	Trend          float64 `yaml:"trend" json:"trend"`
	Variance       float64 `yaml:"variance" json:"variance"`
	Presence       float64 `yaml:"presence" json:"presence"`
}

// Report is the outcome of a health evaluation.
type Report struct {
	Level      Level   `yaml:"level" json:"level"`
	Score      float64 `yaml:"score" json:"score"`
	Pacing     float64 `yaml:"pacing" json:"pacing"`
	Tension    float64 `yaml:"tension" json:"tension"`
	Diversity  float64 `yaml:"diversity" json:"diversity"`
	Engagement float64 `yaml:"engagement" json:"engagement"`
	Metrics    Metrics `yaml:"metrics" json:"metrics"`
}

// Engine evaluates health and issues interventions.
type Engine struct {
	cfg      Config
	tension  *tension.Manager
	counters map[string]int
	logger   *zap.Logger
}

// NewEngine builds an Engine reading trends from tm. Zero settings fall back
// to defaults.
func NewEngine(cfg Config, tm *tension.Manager, logger *zap.Logger) *Engine {
	def := DefaultConfig()
	if cfg.StagnantMinutes <= 0 {
		cfg.StagnantMinutes = def.StagnantMinutes
	}
	if cfg.MaxSimultaneousClimaxes <= 0 {
		cfg.MaxSimultaneousClimaxes = def.MaxSimultaneousClimaxes
	}
	if cfg.MaxActiveThreads <= 0 {
		cfg.MaxActiveThreads = def.MaxActiveThreads
	}
	if cfg.MinActiveThreads <= 0 {
		cfg.MinActiveThreads = def.MinActiveThreads
	}
	if cfg.MaxTrendPerHour <= 0 {
		cfg.MaxTrendPerHour = def.MaxTrendPerHour
	}
	if cfg.TrendWindowMinutes <= 0 {
		cfg.TrendWindowMinutes = def.TrendWindowMinutes
	}
	if cfg.HighTension <= 0 {
		cfg.HighTension = def.HighTension
	}
	if cfg.GlobalTensionAlarm <= 0 {
		cfg.GlobalTensionAlarm = def.GlobalTensionAlarm
	}
	if cfg.LowInvolvement <= 0 {
		cfg.LowInvolvement = def.LowInvolvement
	}
	if cfg.MaxInterventions <= 0 {
		cfg.MaxInterventions = def.MaxInterventions
	}
	if tm == nil {
		tm = tension.NewManager(tension.DefaultConfig())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:      cfg,
		tension:  tm,
		counters: make(map[string]int),
		logger:   logger,
	}
}

// Config returns the effective rules.
func (e *Engine) Config() Config {
	return e.cfg
}

// closeness scores how near v is to ideal, reaching zero at distance span.
func closeness(v, ideal, span float64) float64 {
	return 1 - story.Clamp01(math.Abs(v-ideal)/span)
}

func split(threads []*story.Thread) (active []*story.Thread, completed int) {
	for _, t := range threads {
		switch {
		case t == nil:
		case t.Playable():
			active = append(active, t)
		case t.Stage.Terminal():
			completed++
		}
	}
	return active, completed
}

// EvaluateNarrativeHealth scores pacing, tension health, type diversity and
// player engagement and maps the weighted sum to a Level. It does not modify
// any state.
func (e *Engine) EvaluateNarrativeHealth(threads []*story.Thread, world story.World, now float64) Report {
	if world == nil {
		world = story.NullWorld{}
	}
	active, completed := split(threads)
	m := Metrics{
		Active:    len(active),
		Completed: completed,
		Trend:     e.tension.Trend(e.cfg.TrendWindowMinutes, now),
		Variance:  e.tension.Variance(e.cfg.TrendWindowMinutes, now),
	}

	types := map[story.ThreadType]bool{}
	present := map[string]bool{}
	for _, p := range world.Participants() {
		present[p] = true
	}
	withPresent := 0
	for _, t := range active {
		types[t.Type] = true
		m.AvgInvolvement += t.Involvement
		if t.Stage == story.StageClimax {
			m.Climaxes++
		}
		for _, p := range t.PrimaryParticipants {
			if present[p] {
				withPresent++
				break
			}
		}
	}
	m.DistinctTypes = len(types)
	if len(active) > 0 {
		m.AvgInvolvement /= float64(len(active))
		m.Presence = float64(withPresent) / float64(len(active))
	}

	r := Report{Metrics: m}
	r.Pacing = e.pacingScore(m)
	r.Tension = 1 - 0.5*story.Clamp01(m.Variance/0.05) - 0.5*story.Clamp01(math.Abs(m.Trend)/e.cfg.MaxTrendPerHour)
	r.Diversity = diversityScore(m.DistinctTypes)
	r.Engagement = engagementScore(m, len(present) > 0)
	r.Score = weightPacing*r.Pacing +
		weightTension*r.Tension +
		weightDiversity*r.Diversity +
		weightEngagement*r.Engagement
	r.Level = LevelFor(r.Score)
	return r
}

func (e *Engine) pacingScore(m Metrics) float64 {
	rate := math.Abs(m.Trend)
	tensionRate := 1.0
	if rate > 0.2 {
		tensionRate = 1 - story.Clamp01((rate-0.2)/0.8)
	}

	climaxFreq, resolution := 0.0, 0.0
	if m.Active > 0 {
		climaxFreq = float64(m.Climaxes) / float64(m.Active)
	}
	if total := m.Active + m.Completed; total > 0 {
		resolution = float64(m.Completed) / float64(total)
	}

	scores := []float64{
		tensionRate,
		closeness(climaxFreq, 0.2, 0.8),
		closeness(float64(m.Active), 5, 5),
		closeness(m.AvgInvolvement, 0.6, 0.6),
		closeness(resolution, 0.3, 0.7),
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

func diversityScore(distinct int) float64 {
	switch {
	case distinct <= 0:
		return 0
	case distinct < 3:
		return float64(distinct) / 3
	case distinct <= 5:
		return 1
	default:
		return math.Max(0.6, 1-0.1*float64(distinct-5))
	}
}

func engagementScore(m Metrics, worldKnowsPresence bool) float64 {
	if m.Active == 0 {
		return 0
	}
	base := closeness(m.AvgInvolvement, 0.7, 0.7)
	if !worldKnowsPresence {
		return base
	}
	return 0.8*base + 0.2*m.Presence
}
