package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/tatianab/storyloom/internal/models"
	"github.com/tatianab/storyloom/internal/orchestrator"
	"github.com/tatianab/storyloom/internal/rules"
	"github.com/tatianab/storyloom/internal/story"
)

type inspectReport struct {
	Name          string                         `yaml:"name"`
	SavedAt       time.Time                      `yaml:"saved_at"`
	Now           float64                        `yaml:"now"`
	Seed          int64                          `yaml:"seed"`
	GlobalTension float64                        `yaml:"global_tension"`
	Health        rules.Report                   `yaml:"health"`
	Threads       []story.Summary                `yaml:"threads"`
	Completed     int                            `yaml:"completed"`
	Arcs          []orchestrator.ArcSummary      `yaml:"arcs"`
	Climaxes      []*orchestrator.ClimaticMoment `yaml:"climaxes"`
	Recent        []models.LogEntry              `yaml:"recent"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	s, err := st.Load(args[0])
	if err != nil {
		return err
	}
	w, err := restore(s, nil)
	if err != nil {
		return err
	}
	o := w.orch

	recent := s.History.Entries
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	return writeYAML(cmd.OutOrStdout(), inspectReport{
		Name:          s.Name,
		SavedAt:       s.SavedAt,
		Now:           o.Now(),
		Seed:          s.Narrative.Seed,
		GlobalTension: o.Tension().Global(),
		Health:        o.Health(&s.State),
		Threads:       o.Summaries(),
		Completed:     len(o.Threads().Completed()),
		Arcs:          o.ArcSummaries(),
		Climaxes:      o.Sequencer().Moments(),
		Recent:        recent,
	})
}
