package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/tatianab/storyloom/internal/engine"
	"github.com/tatianab/storyloom/internal/orchestrator"
)

var (
	simTicks   int
	simHours   float64
	simYAML    bool
	simSave    string
	simNarrate bool
)

// simulateCmd runs the orchestrator headless
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run ticks without the dashboard and print what happened",
	Args:  cobra.NoArgs,
	RunE:  runSimulate,
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if simTicks <= 0 || simHours <= 0 {
		return fmt.Errorf("--ticks and --hours must be positive")
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	var eng *engine.Engine
	if simNarrate {
		var err error
		if eng, err = newEngine(ctx); err != nil {
			return err
		}
		if eng == nil {
			return fmt.Errorf("--narrate needs GEMINI_API_KEY")
		}
		defer eng.Close()
	}

	name := simSave
	if name == "" {
		name = "simulation"
	}
	w, err := create(name, eng)
	if err != nil {
		return err
	}
	s, o := w.session, w.orch
	fmt.Fprintf(out, "seed %d\n", s.Narrative.Seed)

	start := time.Now()
	for i := 0; i < simTicks; i++ {
		res := o.Tick(ctx, simHours, s.State.Participants(), &s.State)
		var narration string
		if eng != nil {
			if narration, err = eng.Narrate(ctx, res); err != nil {
				logger.Warn("narration failed", zap.Error(err))
			}
		}
		s.Record(res, narration)

		if simYAML {
			if err := writeYAML(out, []orchestrator.TickResult{res}); err != nil {
				return err
			}
			continue
		}
		printTick(out, res, narration)
	}
	logger.Info("simulation finished",
		zap.Int("ticks", simTicks),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("threads", len(o.Threads().All())))

	if simSave == "" {
		return nil
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	s.Narrative = o.Snapshot()
	if err := st.Save(s); err != nil {
		return err
	}
	fmt.Fprintf(out, "saved %s\n", s.Name)
	return nil
}

func printTick(out io.Writer, res orchestrator.TickResult, narration string) {
	fmt.Fprintf(out, "--- t=%.2fh  health %s (%.2f)  tension %.2f ---\n",
		res.Now, res.Health.Level, res.Health.Score, res.GlobalTension)
	for _, d := range res.Directives {
		target := d.ThreadID
		if target == "" {
			target = strings.Join(d.ThreadIDs, ", ")
		}
		fmt.Fprintf(out, "  %-18s %s  %s\n", d.Type, target, d.Reason)
	}
	for _, v := range res.Violations {
		fmt.Fprintf(out, "  ! %s\n", v)
	}
	if narration != "" {
		fmt.Fprintf(out, "  %s\n", narration)
	}
}

func writeYAML(out io.Writer, v any) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
