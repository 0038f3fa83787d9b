package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/tatianab/storyloom/internal/config"
	"github.com/tatianab/storyloom/internal/logging"
	"github.com/tatianab/storyloom/internal/models"
	"github.com/tatianab/storyloom/internal/tui"
)

var (
	// Global flags
	verbose bool
	offline bool
	seed    int64
	store   string
	saveDir string

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "loom",
	Short: "storyloom - a narrative orchestrator for living game worlds",
	Long: `storyloom weaves concurrent story threads over an in-game clock.

Each tick it scores narrative health, intervenes when pacing sags, groups
related threads into arcs, and schedules climaxes where threads converge.
Gemini is used for new threads and narration when GEMINI_API_KEY is set.

Run without arguments to play the default session.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig()
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("seed") {
			cfg.Seed = seed
		}
		if flags.Changed("store") {
			cfg.Store = store
		}
		if flags.Changed("save-dir") {
			cfg.SaveDir = saveDir
		}
		if offline {
			cfg.GeminiAPIKey = ""
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		logFile := cfg.LogFile
		// The dashboard owns the terminal, so its logs go to a file.
		if logFile == "" && (cmd.Name() == "loom" || cmd.Name() == "play") {
			if err := os.MkdirAll(cfg.SaveDir, 0755); err != nil {
				return fmt.Errorf("create save dir: %w", err)
			}
			logFile = filepath.Join(cfg.SaveDir, "loom.log")
		}
		logger, err = logging.New(level, logFile)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return play(cmd, defaultSession)
	},
}

// playCmd opens the dashboard on a new or saved session
var playCmd = &cobra.Command{
	Use:   "play [session]",
	Short: "Open the narrative dashboard for a session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := defaultSession
		if len(args) == 1 {
			name = args[0]
		}
		return play(cmd, name)
	},
}

// inspectCmd prints the state of a saved session
var inspectCmd = &cobra.Command{
	Use:   "inspect <session>",
	Short: "Print the threads, arcs and health of a saved session",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

// sessionsCmd lists saved sessions
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List saved sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		names, err := st.List()
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

// configCmd prints the orchestrator settings the environment resolves to
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved orchestrator configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(cfg.Orchestrator(cfg.Seed))
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "Use templates only, even when GEMINI_API_KEY is set")
	rootCmd.PersistentFlags().Int64Var(&seed, "seed", 0, "Random seed for new sessions (or set STORYLOOM_SEED)")
	rootCmd.PersistentFlags().StringVar(&store, "store", "dir", "Session store: dir or sqlite (or set STORYLOOM_STORE)")
	rootCmd.PersistentFlags().StringVar(&saveDir, "save-dir", models.DefaultSaveDir, "Where sessions are saved (or set STORYLOOM_SAVE_DIR)")

	// Simulate flags
	simulateCmd.Flags().IntVarP(&simTicks, "ticks", "n", 12, "Number of ticks to run")
	simulateCmd.Flags().Float64Var(&simHours, "hours", 0.5, "In-game hours per tick")
	simulateCmd.Flags().BoolVar(&simYAML, "yaml", false, "Print every tick result as YAML")
	simulateCmd.Flags().StringVar(&simSave, "save", "", "Save the simulated session under this name")
	simulateCmd.Flags().BoolVar(&simNarrate, "narrate", false, "Narrate each tick with Gemini")

	// Add commands to root
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func play(cmd *cobra.Command, name string) error {
	ctx := cmd.Context()
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	eng, err := newEngine(ctx)
	if err != nil {
		return err
	}
	w, err := loadOrCreate(st, name, eng)
	if err != nil {
		return err
	}

	opts := []tui.Option{tui.WithStore(st), tui.WithLogger(logger)}
	if eng != nil {
		defer eng.Close()
		opts = append(opts, tui.WithNarrator(eng))
	}
	logger.Info("opening session",
		zap.String("name", w.session.Name),
		zap.Int64("seed", w.session.Narrative.Seed),
		zap.Bool("gemini", eng != nil))
	return tui.Run(w.orch, w.session, opts...)
}
