package core

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"rehearse/internal/repository"
	"rehearse/pkg/schema"
)

// Chat commands.
const (
	cmdEnd  = "/end"
	cmdQuit = "/quit"
)

// CLISession runs an interactive practice session on a terminal, persisting
// every trigger's delta and holding the session lock for its duration.
type CLISession struct {
	Orchestrator *Orchestrator
	Repo         *repository.Repository
	In           io.Reader
	Out          io.Writer
}

// NewCLISession creates a chat session on stdin and stdout.
func NewCLISession(o *Orchestrator, repo *repository.Repository) *CLISession {
	return &CLISession{
		Orchestrator: o,
		Repo:         repo,
		In:           os.Stdin,
		Out:          os.Stdout,
	}
}

// Start creates a new session from cfg and chats until it completes, the
// trainee quits or input ends.
func (s *CLISession) Start(ctx context.Context, cfg schema.SessionConfig) (*schema.State, error) {
	if cfg.SessionID == "" {
		id, err := schema.NewSessionID()
		if err != nil {
			return nil, fmt.Errorf("generate session id: %w", err)
		}
		cfg.SessionID = id
	}

	release, err := s.lock(cfg.SessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	fmt.Fprintln(s.Out, "🎬 Preparing your scenario...")
	out, err := s.Orchestrator.StartSession(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	if err := s.Repo.Create(out.State); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	PrintSetup(s.Out, out.State)
	warnDegraded(s.Out, out)

	return s.chat(ctx, out.State)
}

// Resume continues a stored session.
func (s *CLISession) Resume(ctx context.Context, id string) (*schema.State, error) {
	release, err := s.lock(id)
	if err != nil {
		return nil, err
	}
	defer release()

	state, err := s.Repo.Load(id)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if state.Status.Terminal() {
		return state, &SessionError{SessionID: id, Kind: KindTerminal, Message: fmt.Sprintf("session is %s", state.Status), Err: ErrSessionTerminal}
	}

	PrintSetup(s.Out, state)
	for _, u := range state.Conversation() {
		printUtterance(s.Out, u)
	}
	return s.chat(ctx, state)
}

func (s *CLISession) lock(id string) (func(), error) {
	lock, err := s.Repo.Lock(id, "chat")
	if err != nil {
		return nil, &LockError{Operation: "create", Message: err.Error(), Err: err}
	}
	if err := lock.Acquire(); err != nil {
		return nil, &LockError{Operation: "acquire", Message: "failed to acquire lock: " + err.Error(), Err: err}
	}
	return func() {
		if err := lock.Release(); err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  Failed to release lock: %v\n", err)
		}
	}, nil
}

// chat reads trainee lines until the session ends.
func (s *CLISession) chat(ctx context.Context, state *schema.State) (*schema.State, error) {
	fmt.Fprintf(s.Out, "\nType your reply. %s asks for feedback now, %s leaves the session open.\n", cmdEnd, cmdQuit)

	scanner := bufio.NewScanner(s.In)
	for {
		fmt.Fprint(s.Out, "\n🧑 You: ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return state, fmt.Errorf("read input: %w", err)
			}
			fmt.Fprintf(s.Out, "\n💾 Session %s saved.\n", state.ID)
			return state, nil
		}

		line := strings.TrimSpace(scanner.Text())
		var (
			out     *Outcome
			err     error
			trigger string
		)
		switch strings.ToLower(line) {
		case "":
			continue
		case cmdQuit:
			fmt.Fprintf(s.Out, "💾 Session %s saved. Resume it later with the same ID.\n", state.ID)
			return state, nil
		case cmdEnd:
			fmt.Fprintln(s.Out, "📝 Preparing your feedback...")
			out, err = s.Orchestrator.EndSession(ctx, state)
			trigger = "end"
		default:
			out, err = s.Orchestrator.ContinueSession(ctx, state, line)
			trigger = "continue"
		}

		if out != nil && !out.Delta.IsEmpty() {
			saved, saveErr := s.Repo.Apply(state.ID, out.Delta, trigger)
			if saveErr != nil {
				return out.State, fmt.Errorf("save session: %w", saveErr)
			}
			state = saved
		}
		if err != nil {
			var serr *SessionError
			if errors.As(err, &serr) && state.LastError != "" {
				fmt.Fprintf(s.Out, "\n❌ %s\n", state.LastError)
			}
			return state, err
		}

		for _, u := range out.Delta.Utterances {
			if u.Speaker == schema.SpeakerGuest {
				printUtterance(s.Out, u)
			}
		}
		warnDegraded(s.Out, out)

		if out.Route == RouteComplete {
			PrintFeedback(s.Out, state)
			return state, nil
		}
	}
}

// PrintSetup prints the scenario, persona and readiness notice of a session.
func PrintSetup(w io.Writer, state *schema.State) {
	fmt.Fprintf(w, "\n📋 Session %s (%s)\n", state.ID, state.Status)
	if sc := state.Scenario; sc != nil {
		fmt.Fprintf(w, "\n🏨 %s [%s]\n", sc.Title, sc.Difficulty)
		fmt.Fprintf(w, "   %s\n", truncate(sc.BusinessContext, 400))
		fmt.Fprintf(w, "   %s\n", truncate(sc.Situation, 400))
		for _, c := range sc.Constraints {
			fmt.Fprintf(w, "   • %s\n", c)
		}
	}
	if p := state.Persona; p != nil {
		fmt.Fprintf(w, "\n👤 %s (%s)\n", p.Name, p.Demographics)
		fmt.Fprintf(w, "   %s, %s\n", p.CommunicationStyle, p.EmotionalTone)
	}
	if len(state.RequiredSteps) > 0 {
		fmt.Fprintln(w, "\n✅ Steps to complete:")
		for _, step := range state.RequiredSteps {
			fmt.Fprintf(w, "   • %s\n", step)
		}
	}
	for _, u := range state.Utterances {
		if u.Speaker == schema.SpeakerSystem {
			fmt.Fprintf(w, "\n🔔 %s\n", u.Text)
		}
	}
}

// PrintFeedback prints the end-of-session feedback.
func PrintFeedback(w io.Writer, state *schema.State) {
	fb := state.Feedback
	if fb == nil {
		fmt.Fprintln(w, "\n(no feedback recorded)")
		return
	}

	fmt.Fprintf(w, "\n🏁 Session complete: overall score %d/100\n", fb.OverallScore)
	fmt.Fprintf(w, "\n%s\n", fb.Summary)
	printList(w, "💪 Strengths", fb.Strengths)
	printList(w, "🎯 Improvements", fb.Improvements)
	printList(w, "➡️  Next steps", fb.NextSteps)
}

func printList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(w, "   • %s\n", item)
	}
}

func printUtterance(w io.Writer, u schema.Utterance) {
	switch u.Speaker {
	case schema.SpeakerGuest:
		fmt.Fprintf(w, "🗣️  Guest: %s\n", u.Text)
	case schema.SpeakerTrainee:
		fmt.Fprintf(w, "🧑 You: %s\n", u.Text)
	}
}

func warnDegraded(w io.Writer, out *Outcome) {
	for _, r := range out.Degraded() {
		fmt.Fprintf(w, "⚠️  %s used a %s fallback\n", r.Stage, r.Tier)
	}
}

// truncate truncates a string to max length.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
