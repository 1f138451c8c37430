package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/firebase/genkit/go/genkit"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rehearse/internal/core"
	"rehearse/internal/repository"
)

var (
	// Global flags
	verbose        bool
	dataDir        string
	recordFixtures string
	maxTurns       int

	cfg    *core.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "rehearse",
	Short: "Role-play practice sessions for front-desk staff",
	Long: `rehearse runs practice conversations between a trainee and a simulated
hotel guest. Every session gets a scenario and a guest persona, the guest
answers each trainee message, and the session ends with scored feedback.

Sessions are stored under the data directory and can be continued one
message at a time (say, end) or interactively (chat).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = core.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if verbose {
			cfg.LogLevel = "debug"
		}
		if dataDir != "" {
			cfg.DataDir = dataDir
		}
		if recordFixtures != "" {
			cfg.FixtureDir = recordFixtures
		}

		logger, err = core.NewLogger(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		zap.ReplaceGlobals(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// runtime is what commands that call a model need.
type runtime struct {
	orchestrator *core.Orchestrator
	flows        *core.Flows
	repo         *repository.Repository
}

// newRuntime builds the generation backend and registers the session flows.
func newRuntime(ctx context.Context) (*runtime, error) {
	g := genkit.Init(ctx)

	gen, err := cfg.NewGenerator(ctx, g)
	if err != nil {
		return nil, err
	}

	o := core.NewOrchestrator(gen,
		core.WithLogger(logger),
		core.WithMaxAttempts(cfg.LLMMaxRetries),
		core.WithMaxTurns(maxTurns),
	)
	return &runtime{
		orchestrator: o,
		flows:        core.DefineFlows(g, o),
		repo:         openRepo(),
	}, nil
}

func openRepo() *repository.Repository {
	return repository.NewRepository(cfg.DataDir)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Session storage directory (default: $REHEARSE_DATA_DIR or .rehearse)")
	rootCmd.PersistentFlags().StringVar(&recordFixtures, "record-fixtures", "", "Record every model output as a fixture in this directory")
	rootCmd.PersistentFlags().IntVar(&maxTurns, "max-turns", core.DefaultMaxTurns, "Guest turns before a session ends")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(sayCmd)
	rootCmd.AddCommand(endCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(refineCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}
