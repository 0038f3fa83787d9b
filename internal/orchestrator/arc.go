package orchestrator

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/tatianab/storyloom/internal/story"
)

// arcCompletion is the resolved share of members that completes an arc.
const arcCompletion = 0.75

// Arc groups related threads toward a shared payoff.
type Arc struct {
	ID             string           `yaml:"id" json:"id"`
	Name           string           `yaml:"name" json:"name"`
	Type           story.ThreadType `yaml:"type" json:"type"`
	ThreadIDs      []string         `yaml:"thread_ids" json:"thread_ids"`
	TargetDuration float64          `yaml:"target_duration" json:"target_duration"`
	Priority       int              `yaml:"priority" json:"priority"`
	StartedAt      float64          `yaml:"started_at" json:"started_at"`
	Completed      bool             `yaml:"completed" json:"completed"`
	CompletedAt    *float64         `yaml:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// ArcSummary is the display record of an arc.
type ArcSummary struct {
	ID        string           `yaml:"id" json:"id"`
	Name      string           `yaml:"name" json:"name"`
	Type      story.ThreadType `yaml:"type" json:"type"`
	Threads   int              `yaml:"threads" json:"threads"`
	Resolved  int              `yaml:"resolved" json:"resolved"`
	Progress  float64          `yaml:"progress" json:"progress"`
	Overdue   bool             `yaml:"overdue,omitempty" json:"overdue,omitempty"`
	Completed bool             `yaml:"completed" json:"completed"`
}

func cloneArc(a *Arc) *Arc {
	c := *a
	c.ThreadIDs = append([]string(nil), a.ThreadIDs...)
	if a.CompletedAt != nil {
		at := *a.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}

func (o *Orchestrator) activeArcs() []*Arc {
	var out []*Arc
	for _, a := range o.arcs {
		if !a.Completed {
			out = append(out, a)
		}
	}
	return out
}

func (o *Orchestrator) inArc(threadID string) bool {
	for _, a := range o.activeArcs() {
		for _, id := range a.ThreadIDs {
			if id == threadID {
				return true
			}
		}
	}
	return false
}

// planArcs groups active threads of the same type that no open arc holds yet,
// creating at most two arcs and never exceeding MaxActiveArcs.
func (o *Orchestrator) planArcs() {
	room := o.cfg.MaxActiveArcs - len(o.activeArcs())
	if room <= 0 {
		return
	}
	room = min(room, 2)

	groups := map[story.ThreadType][]*story.Thread{}
	for _, t := range o.threads.Active() {
		if !o.inArc(t.ID) {
			groups[t.Type] = append(groups[t.Type], t)
		}
	}

	now := o.clock.Now()
	for _, typ := range story.AllTypes {
		if room == 0 {
			break
		}
		members := groups[typ]
		if len(members) < 2 {
			continue
		}
		a := &Arc{
			ID:        o.rng.NewID(),
			Name:      fmt.Sprintf("%s arc", typ),
			Type:      typ,
			StartedAt: now,
		}
		for _, t := range members {
			a.ThreadIDs = append(a.ThreadIDs, t.ID)
			a.Priority = max(a.Priority, t.Priority)
			a.TargetDuration = max(a.TargetDuration, t.EstimateRemainingTime())
		}
		o.arcs = append(o.arcs, a)
		room--
		o.logger.Info("arc planned",
			zap.String("arc", a.ID),
			zap.String("type", string(typ)),
			zap.Strings("threads", a.ThreadIDs))
	}
}

// overdue reports an arc running past its target duration.
func (a *Arc) overdue(now float64) bool {
	return !a.Completed && a.TargetDuration > 0 && now-a.StartedAt > a.TargetDuration
}

// winding reports whether every open member of a is past its climax.
func (o *Orchestrator) winding(a *Arc) bool {
	for _, id := range a.ThreadIDs {
		t := o.threads.Get(id)
		if t != nil && !t.Stage.Terminal() && t.Stage.Rank() < story.StageFallingAction.Rank() {
			return false
		}
	}
	return true
}

// arcProgress counts members that reached resolution and members that ended
// any other way.
func (o *Orchestrator) arcProgress(a *Arc) (resolved, closed int) {
	for _, id := range a.ThreadIDs {
		t := o.threads.Get(id)
		switch {
		case t == nil:
			closed++
		case t.Stage == story.StageResolution:
			resolved++
			closed++
		case t.Stage.Terminal():
			closed++
		}
	}
	return resolved, closed
}

// advanceArcs raises the target tension of quiet setup members toward 0.4
// and closes arcs whose members have mostly resolved. An arc whose members
// all ended without reaching that share is closed as well, and so is an
// overdue arc once every open member is past its climax.
func (o *Orchestrator) advanceArcs() []Directive {
	var out []Directive
	now := o.clock.Now()
	for _, a := range o.activeArcs() {
		for _, id := range a.ThreadIDs {
			var delta, target float64
			ok := o.threads.Update(id, func(t *story.Thread) {
				if t.Stage != story.StageSetup || t.CalculateTension() >= 0.3 {
					return
				}
				delta, target = o.retarget(t, 0.4)
			})
			if ok && delta > 0 {
				out = append(out, Directive{
					Type:     DirectiveAdjustTension,
					ThreadID: id,
					Params:   map[string]float64{"delta": delta, "target": target},
					Reason:   "arc build-up",
				})
			}
		}

		resolved, closed := o.arcProgress(a)
		n := len(a.ThreadIDs)
		if n == 0 || float64(resolved)/float64(n) >= arcCompletion || closed == n ||
			(a.overdue(now) && o.winding(a)) {
			a.Completed = true
			a.CompletedAt = &now
			o.logger.Info("arc completed",
				zap.String("arc", a.ID),
				zap.Int("resolved", resolved),
				zap.Int("threads", n))
		}
	}
	return out
}

// ArcSummaries returns display records for every arc in planning order.
func (o *Orchestrator) ArcSummaries() []ArcSummary {
	now := o.clock.Now()
	out := make([]ArcSummary, 0, len(o.arcs))
	for _, a := range o.arcs {
		resolved, _ := o.arcProgress(a)
		s := ArcSummary{
			ID:        a.ID,
			Name:      a.Name,
			Type:      a.Type,
			Threads:   len(a.ThreadIDs),
			Resolved:  resolved,
			Overdue:   a.overdue(now),
			Completed: a.Completed,
		}
		if s.Threads > 0 {
			s.Progress = float64(resolved) / float64(s.Threads)
		}
		out = append(out, s)
	}
	return out
}
