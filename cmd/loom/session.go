package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/tatianab/storyloom/internal/engine"
	"github.com/tatianab/storyloom/internal/models"
	"github.com/tatianab/storyloom/internal/orchestrator"
)

const defaultSession = "crooked-tankard"

// loom pairs a session with the orchestrator running it.
type loom struct {
	session *models.Session
	orch    *orchestrator.Orchestrator
}

func openStore() (models.Store, error) {
	if cfg.Store == "sqlite" {
		if err := os.MkdirAll(cfg.SaveDir, 0755); err != nil {
			return nil, fmt.Errorf("create save dir: %w", err)
		}
	}
	return models.OpenStore(cfg.Store, cfg.StorePath())
}

// newEngine returns nil when Gemini is not configured.
func newEngine(ctx context.Context) (*engine.Engine, error) {
	if !cfg.HasGemini() {
		return nil, nil
	}
	eng, err := engine.NewEngine(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, engine.WithLogger(logger.Named("engine")))
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return eng, nil
}

func newOrchestrator(seed int64, eng *engine.Engine) (*orchestrator.Orchestrator, error) {
	opts := []orchestrator.Option{orchestrator.WithLogger(logger.Named("loom"))}
	if eng != nil {
		opts = append(opts, orchestrator.WithGenerator(eng))
	}
	return orchestrator.New(cfg.Orchestrator(seed), opts...)
}

func newSession(name string) *models.Session {
	return &models.Session{
		Name: name,
		Setting: models.Setting{
			Title:       "The Crooked Tankard",
			ShortName:   name,
			Description: "A tavern at the edge of the marsh road, where every traveller owes somebody something.",
			Cast:        orchestrator.Cast,
		},
		State: models.WorldState{
			CurrentLocation: "common_room",
			Present:         []string{"gene", "mara", "old_tom"},
			Standing:        map[string]float64{"gene": 0.5, "mara": 0.3, "old_tom": 0.6},
			Inventory:       []string{"lantern"},
		},
	}
}

// loadOrCreate restores a saved session or starts a new one when none exists.
func loadOrCreate(st models.Store, name string, eng *engine.Engine) (*loom, error) {
	s, err := st.Load(name)
	switch {
	case errors.Is(err, models.ErrNotFound):
		return create(name, eng)
	case err != nil:
		return nil, err
	}
	return restore(s, eng)
}

func create(name string, eng *engine.Engine) (*loom, error) {
	seed := cfg.Seed
	if seed == 0 {
		var err error
		if seed, err = orchestrator.NewSeed(); err != nil {
			return nil, err
		}
	}
	o, err := newOrchestrator(seed, eng)
	if err != nil {
		return nil, err
	}
	s := newSession(name)
	s.Narrative = o.Snapshot()
	logger.Debug("created session", zap.String("name", name), zap.Int64("seed", seed))
	return &loom{session: s, orch: o}, nil
}

func restore(s *models.Session, eng *engine.Engine) (*loom, error) {
	o, err := newOrchestrator(s.Narrative.Seed, eng)
	if err != nil {
		return nil, err
	}
	if err := o.Restore(s.Narrative); err != nil {
		return nil, fmt.Errorf("restore %s: %w", s.Name, err)
	}
	return &loom{session: s, orch: o}, nil
}
