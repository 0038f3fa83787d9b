package orchestrator

// DirectiveType tags what external systems should render.
type DirectiveType string

const (
	DirectivePauseThread      DirectiveType = "pause_thread"
	DirectiveAdjustTension    DirectiveType = "adjust_tension"
	DirectiveExecuteClimax    DirectiveType = "execute_climax"
	DirectiveIntroduceThread  DirectiveType = "introduce_thread"
	DirectiveBoostInvolvement DirectiveType = "boost_involvement"
	DirectiveAdvanceThread    DirectiveType = "advance_thread"
)

// Directive is one orchestration action for dialogue, atmosphere and
// analytics consumers.
type Directive struct {
	Type      DirectiveType      `yaml:"type" json:"type"`
	ThreadID  string             `yaml:"thread_id,omitempty" json:"thread_id,omitempty"`
	ThreadIDs []string           `yaml:"thread_ids,omitempty" json:"thread_ids,omitempty"`
	Params    map[string]float64 `yaml:"params,omitempty" json:"params,omitempty"`
	Reason    string             `yaml:"reason,omitempty" json:"reason,omitempty"`
}
