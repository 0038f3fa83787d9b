package rules

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/tatianab/storyloom/internal/story"
)

// Action is the kind of corrective directive.
type Action string

const (
	ActionPauseThread      Action = "pause_thread"
	ActionReduceTension    Action = "reduce_tension"
	ActionIntroduceThread  Action = "introduce_thread"
	ActionBoostInvolvement Action = "boost_involvement"
	ActionAdvanceThread    Action = "advance_thread"
)

// Intervention priorities; higher runs first.
const (
	priorityPause     = 10
	priorityReduce    = 9
	priorityAdvance   = 7
	priorityIntroduce = 6
	priorityBoost     = 5
)

// Intervention is one corrective directive.
type Intervention struct {
	Action   Action             `yaml:"action" json:"action"`
	ThreadID string             `yaml:"thread_id,omitempty" json:"thread_id,omitempty"`
	Params   map[string]float64 `yaml:"params,omitempty" json:"params,omitempty"`
	Priority int                `yaml:"priority" json:"priority"`
	Reason   string             `yaml:"reason" json:"reason"`
}

// Pacing reports whether the intervention is a pacing correction, which
// applies at every health level.
func (i Intervention) Pacing() bool {
	return i.Action == ActionAdvanceThread
}

func byPriority(threads []*story.Thread) []*story.Thread {
	out := append([]*story.Thread(nil), threads...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}

func (e *Engine) stagnant(t *story.Thread, now float64) bool {
	return t.PendingFor(now)*60 > e.cfg.StagnantMinutes
}

// GenerateInterventions proposes corrections for the given health report:
// emergency measures when health is poor or critical, preventive measures
// when it is adequate or poor, and pacing fixes at every level. The result is
// ordered by priority and capped at MaxInterventions.
func (e *Engine) GenerateInterventions(threads []*story.Thread, report Report, now float64) []Intervention {
	active, _ := split(threads)
	active = byPriority(active)
	var out []Intervention

	if report.Level == LevelCritical || report.Level == LevelPoor {
		var climaxes []*story.Thread
		for _, t := range active {
			if t.Stage == story.StageClimax {
				climaxes = append(climaxes, t)
			}
		}
		if len(climaxes) > e.cfg.MaxSimultaneousClimaxes {
			for _, t := range climaxes[e.cfg.MaxSimultaneousClimaxes:] {
				out = append(out, Intervention{
					Action:   ActionPauseThread,
					ThreadID: t.ID,
					Priority: priorityPause,
					Reason:   "too many simultaneous climaxes",
				})
			}
		}
		if global := e.tension.RawGlobal(); global > e.cfg.GlobalTensionAlarm {
			for _, t := range active {
				if t.Tension > e.cfg.HighTension {
					out = append(out, Intervention{
						Action:   ActionReduceTension,
						ThreadID: t.ID,
						Params:   map[string]float64{"amount": 0.2, "global": global},
						Priority: priorityReduce,
						Reason:   "global tension too high",
					})
				}
			}
		}
	}

	if report.Level == LevelAdequate || report.Level == LevelPoor {
		if missing := e.cfg.MinActiveThreads - len(active); missing > 0 {
			out = append(out, Intervention{
				Action:   ActionIntroduceThread,
				Params:   map[string]float64{"count": float64(missing)},
				Priority: priorityIntroduce,
				Reason:   "too few active threads",
			})
		}
		for _, t := range active {
			if t.Involvement < e.cfg.LowInvolvement {
				out = append(out, Intervention{
					Action:   ActionBoostInvolvement,
					ThreadID: t.ID,
					Params:   map[string]float64{"amount": 0.15},
					Priority: priorityBoost,
					Reason:   "low player involvement",
				})
			}
		}
	}

	for _, t := range active {
		if e.stagnant(t, now) {
			out = append(out, Intervention{
				Action:   ActionAdvanceThread,
				ThreadID: t.ID,
				Params:   map[string]float64{"stalled_minutes": t.PendingFor(now) * 60},
				Priority: priorityAdvance,
				Reason:   "thread stalled",
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	if len(out) > e.cfg.MaxInterventions {
		out = out[:e.cfg.MaxInterventions]
	}
	if len(out) > 0 {
		e.logger.Debug("interventions generated",
			zap.String("level", string(report.Level)),
			zap.Int("count", len(out)))
	}
	return out
}

// Pacing rule names used as counter keys.
const (
	RuleSimultaneousClimaxes = "simultaneous_climaxes"
	RuleTooManyThreads       = "too_many_threads"
	RuleTensionEscalation    = "tension_escalation"
	RuleStagnantThread       = "stagnant_thread"
)

// CheckPacingRules returns a human-readable line per violated rule and counts
// each violation.
func (e *Engine) CheckPacingRules(threads []*story.Thread, now float64) []string {
	active, _ := split(threads)
	var violations []string
	violate := func(rule, msg string) {
		e.counters[rule]++
		violations = append(violations, msg)
	}

	climaxes := 0
	for _, t := range active {
		if t.Stage == story.StageClimax {
			climaxes++
		}
	}
	if climaxes > e.cfg.MaxSimultaneousClimaxes {
		violate(RuleSimultaneousClimaxes, fmt.Sprintf("%d threads at climax simultaneously (max %d)", climaxes, e.cfg.MaxSimultaneousClimaxes))
	}
	if len(active) > e.cfg.MaxActiveThreads {
		violate(RuleTooManyThreads, fmt.Sprintf("%d active threads (max %d)", len(active), e.cfg.MaxActiveThreads))
	}
	if trend := e.tension.Trend(e.cfg.TrendWindowMinutes, now); trend > e.cfg.MaxTrendPerHour {
		violate(RuleTensionEscalation, fmt.Sprintf("tension rising %.2f per hour (max %.2f)", trend, e.cfg.MaxTrendPerHour))
	}
	for _, t := range active {
		if e.stagnant(t, now) {
			violate(RuleStagnantThread, fmt.Sprintf("thread %q stagnant for %.0f minutes", t.Title, t.PendingFor(now)*60))
		}
	}
	return violations
}

// Counters returns the per-rule violation counts.
func (e *Engine) Counters() map[string]int {
	out := make(map[string]int, len(e.counters))
	for k, v := range e.counters {
		out[k] = v
	}
	return out
}

// RestoreCounters replaces the violation counts.
func (e *Engine) RestoreCounters(c map[string]int) {
	e.counters = make(map[string]int, len(c))
	for k, v := range c {
		e.counters[k] = v
	}
}
