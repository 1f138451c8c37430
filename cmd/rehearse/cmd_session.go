package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"rehearse/internal/core"
	"rehearse/pkg/schema"
)

var (
	startDifficulty    string
	startScenarioDraft string
	startPersonaDraft  string
	startScenarioFile  string
	startPersonaFile   string
	startSteps         []string
	startID            string
	startChat          bool

	showYAML bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Create a session and prepare its scenario and guest",
	Long: `Generates a scenario and a guest persona (or uses the ones supplied) and
stores the session, ready for the trainee's first message.

Examples:
  rehearse start --difficulty beginner
  rehearse start --scenario-draft "guest locked out at 2 AM" --chat
  rehearse start --scenario-file scenario.yaml --persona-file persona.yaml`,
	Args: cobra.NoArgs,
	RunE: runStart,
}

var sayCmd = &cobra.Command{
	Use:   "say <session-id> <message>",
	Short: "Send one trainee message and print the guest's reply",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		message := strings.Join(args[1:], " ")
		return runTrigger(cmd.Context(), args[0], "continue", func(rt *runtime, state *schema.State) (*core.Outcome, error) {
			return rt.orchestrator.ContinueSession(cmd.Context(), state, message)
		})
	},
}

var endCmd = &cobra.Command{
	Use:   "end <session-id>",
	Short: "End a session and print its feedback",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrigger(cmd.Context(), args[0], "end", func(rt *runtime, state *schema.State) (*core.Outcome, error) {
			return rt.orchestrator.EndSession(cmd.Context(), state)
		})
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat <session-id>",
	Short: "Continue a session interactively",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd.Context())
		if err != nil {
			return err
		}
		_, err = core.NewCLISession(rt.orchestrator, rt.repo).Resume(cmd.Context(), args[0])
		return err
	},
}

var showCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print a stored session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := openRepo().Load(args[0])
		if err != nil {
			return err
		}
		if showYAML {
			return printYAML(state)
		}

		core.PrintSetup(os.Stdout, state)
		fmt.Println()
		fmt.Print(state.Transcript())
		if state.Scores != nil {
			fmt.Printf("\n📊 Average score: %d/100 after %d turns, %d critical errors\n",
				state.Scores.Average(), state.TurnCount, state.CriticalErrorCount)
		}
		if state.LastError != "" {
			fmt.Printf("\n❌ %s\n", state.LastError)
		}
		if state.Feedback != nil {
			core.PrintFeedback(os.Stdout, state)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		summaries, err := openRepo().List()
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		if len(summaries) == 0 {
			fmt.Println("No sessions found. Create one with: rehearse start")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tTURNS\tSCENARIO\tGUEST\tUPDATED")
		for _, s := range summaries {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
				s.ID, s.Status, s.TurnCount, s.Title, s.Guest, s.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

func init() {
	startCmd.Flags().StringVar(&startDifficulty, "difficulty", "", "Difficulty: beginner, medium or advanced")
	startCmd.Flags().StringVar(&startScenarioDraft, "scenario-draft", "", "Free-text scenario idea to build on")
	startCmd.Flags().StringVar(&startPersonaDraft, "persona-draft", "", "Free-text guest idea to build on")
	startCmd.Flags().StringVar(&startScenarioFile, "scenario-file", "", "YAML file with a complete scenario")
	startCmd.Flags().StringVar(&startPersonaFile, "persona-file", "", "YAML file with a complete persona")
	startCmd.Flags().StringArrayVar(&startSteps, "step", nil, "Required step (repeatable, defaults to the scenario's success criteria)")
	startCmd.Flags().StringVar(&startID, "id", "", "Session ID (default: generated)")
	startCmd.Flags().BoolVar(&startChat, "chat", false, "Chat with the guest right away")

	showCmd.Flags().BoolVar(&showYAML, "yaml", false, "Print the raw session state")
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	sessionCfg := schema.SessionConfig{
		SessionID:     startID,
		Difficulty:    startDifficulty,
		ScenarioDraft: startScenarioDraft,
		PersonaDraft:  startPersonaDraft,
		RequiredSteps: startSteps,
	}
	if startScenarioFile != "" {
		sessionCfg.Scenario = &schema.Scenario{}
		if err := readYAML(startScenarioFile, sessionCfg.Scenario); err != nil {
			return err
		}
	}
	if startPersonaFile != "" {
		sessionCfg.Persona = &schema.Persona{}
		if err := readYAML(startPersonaFile, sessionCfg.Persona); err != nil {
			return err
		}
	}

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}

	if startChat {
		_, err := core.NewCLISession(rt.orchestrator, rt.repo).Start(ctx, sessionCfg)
		return err
	}

	fmt.Println("🎬 Preparing your scenario...")
	out, err := rt.flows.Start.Run(ctx, sessionCfg)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	if err := rt.repo.Create(out.State); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	core.PrintSetup(os.Stdout, out.State)
	printDegraded(out)
	fmt.Printf("\nReply with: rehearse say %s \"<your message>\"\n", out.State.ID)
	return nil
}

// runTrigger runs one trigger against a stored session under its lock and
// persists the resulting delta, also when the trigger failed. It calls the
// orchestrator directly since a failed flow returns no outcome.
func runTrigger(ctx context.Context, id, trigger string, run func(*runtime, *schema.State) (*core.Outcome, error)) error {
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}

	lock, err := rt.repo.Lock(id, "cli")
	if err != nil {
		return &core.LockError{Operation: "create", Message: err.Error(), Err: err}
	}
	if err := lock.Acquire(); err != nil {
		return &core.LockError{Operation: "acquire", Message: "failed to acquire lock: " + err.Error(), Err: err}
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("failed to release lock", zap.String("session_id", id), zap.Error(err))
		}
	}()

	state, err := rt.repo.Load(id)
	if err != nil {
		return err
	}

	out, runErr := run(rt, state)
	if out != nil && !out.Delta.IsEmpty() {
		if state, err = rt.repo.Apply(id, out.Delta, trigger); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
	}
	if runErr != nil {
		var serr *core.SessionError
		if errors.As(runErr, &serr) && serr.Kind == core.KindTerminal {
			return fmt.Errorf("session %s is %s and accepts no more messages", id, state.Status)
		}
		if state.LastError != "" {
			return errors.New(state.LastError)
		}
		return runErr
	}

	for _, u := range out.Delta.Utterances {
		if u.Speaker == schema.SpeakerGuest {
			fmt.Printf("🗣️  Guest: %s\n", u.Text)
		}
	}
	printDegraded(out)
	if out.Route == core.RouteComplete {
		core.PrintFeedback(os.Stdout, state)
	}
	return nil
}

func printDegraded(out *core.Outcome) {
	for _, r := range out.Degraded() {
		fmt.Fprintf(os.Stderr, "⚠️  %s used a %s fallback\n", r.Stage, r.Tier)
	}
}

func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func printYAML(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
