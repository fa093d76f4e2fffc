package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/OpenVibeCoding/swe-cli-sub001/internal/agent"
	"github.com/OpenVibeCoding/swe-cli-sub001/internal/store"
	"github.com/OpenVibeCoding/swe-cli-sub001/pkg/models"
)

// runChat resolves configuration, the tool/session working directory,
// and the target session, then either prints the session list (--list-
// sessions) or hands off to the interactive REPL.
func runChat(flags chatFlags) error {
	mode, err := parseMode(flags.mode)
	if err != nil {
		return err
	}
	workingDir, err := flags.resolveWorkingDir()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}
	cfg, err := flags.loadConfig(workingDir)
	if err != nil {
		return err
	}

	if flags.listSessions {
		st, err := store.New(cfg.Session.Dir)
		if err != nil {
			return err
		}
		return printSessionList(st)
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	if rt.Sweeper != nil {
		defer rt.Sweeper.Stop()
	}

	sess, err := resolveSession(rt.Store, flags, workingDir)
	if err != nil {
		return fmt.Errorf("resolve session: %w", err)
	}

	return runREPL(rt, sess, mode)
}

func parseMode(s string) (models.Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return models.ModeNormal, nil
	case "plan":
		return models.ModePlan, nil
	default:
		return "", newInvocationError("--mode must be \"plan\" or \"normal\", got %q", s)
	}
}

// resolveSession implements --session, --continue, and the default
// "start a fresh session" behavior.
func resolveSession(st *store.Store, flags chatFlags, workingDir string) (*models.Session, error) {
	switch {
	case flags.sessionID != "":
		return st.Load(flags.sessionID)
	case flags.continueFlag:
		sess, err := st.ContinueLatest(workingDir)
		if err == store.ErrNotFound {
			return newAndSaveSession(st, workingDir)
		}
		return sess, err
	default:
		return newAndSaveSession(st, workingDir)
	}
}

func newAndSaveSession(st *store.Store, workingDir string) (*models.Session, error) {
	sess := store.NewSession(workingDir)
	if err := st.Save(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// runREPL drives the single-threaded interactive loop described in §5:
// it reads one line of user input at a time, either routing it to a
// local slash command or starting a turn on the orchestrator and
// rendering that turn's Event stream until a terminal state.
func runREPL(rt *Runtime, sess *models.Session, mode models.Mode) error {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("agentcore session %s (mode=%s, workdir=%s)\n", sess.ID, mode, sess.WorkingDirectory)
	fmt.Println("Type /help for commands, /quit or Ctrl-D to exit.")

	for {
		fmt.Printf("\n[%s]> ", mode)
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println()
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := handleSlashCommand(rt, &sess, &mode, reader, line)
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
			}
			if quit {
				return nil
			}
			continue
		}
		if err := runTurn(rt, sess, line, mode, reader); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
}

// runTurn starts one turn on the orchestrator and renders its Event
// stream to the terminal, including the AskUser suspension point
// (promptApproval) and a SIGINT-driven CancelTurn for the turn's
// duration only.
func runTurn(rt *Runtime, sess *models.Session, text string, mode models.Mode, reader *bufio.Reader) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	defer signal.Stop(sigCh)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\n^C received, cancelling turn...")
			rt.Orchestrator.CancelTurn(sess.ID)
		case <-done:
		}
	}()

	events := rt.Orchestrator.RunTurn(context.Background(), sess, text, mode)
	for ev := range events {
		switch ev.Kind {
		case agent.EventAssistantText:
			fmt.Print(ev.Text)
		case agent.EventToolCallStarted:
			fmt.Printf("\n[tool] %s(%s)\n", ev.ToolName, ev.ToolArgs)
		case agent.EventApprovalRequest:
			decision := promptApproval(reader, ev)
			rt.Orchestrator.ResolveApproval(ev.ToolCallID, decision)
		case agent.EventToolCallFinished:
			status := "ok"
			if !ev.ToolSuccess {
				status = "failed: " + ev.ToolError
			}
			fmt.Printf("[tool] %s -> %s\n", ev.ToolName, status)
		case agent.EventTurnCompleted:
			fmt.Println()
		case agent.EventTurnAborted:
			fmt.Printf("\n[turn aborted] %s\n", ev.Reason)
		case agent.EventTurnCancelled:
			fmt.Println("\n[turn cancelled]")
		}
	}
	return nil
}

// promptApproval renders an ApprovalRequest and reads the user's
// decision. It accepts four of the five responses §4.C defines;
// edit-arguments-then-ask-again is not offered, and any unrecognized
// input counts as "no".
func promptApproval(reader *bufio.Reader, ev agent.Event) models.UserResponse {
	if ev.ToolName == continueBatchToolName {
		fmt.Printf("\n%s [y/N] ", ev.Reason)
	} else {
		fmt.Printf("\napprove %s(%s)? [y]es/[n]o/[Y]es-remember/[N]o-remember: ", ev.ToolName, ev.ToolArgs)
	}
	line, _ := reader.ReadString('\n')
	switch strings.TrimSpace(line) {
	case "Y":
		return models.ResponseYesRememberForSession
	case "N":
		return models.ResponseNoRememberForSession
	case "y", "yes":
		return models.ResponseYes
	default:
		return models.ResponseNo
	}
}

const continueBatchToolName = "__continue_batch__"
