package main

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/OpenVibeCoding/swe-cli-sub001/internal/store"
	"github.com/OpenVibeCoding/swe-cli-sub001/pkg/models"
)

// handleSlashCommand dispatches one of the CLI surface's recognized
// commands (§6): /mode, /sessions, /resume, /clear, /help, /undo,
// /history, plus /quit and /exit to leave the REPL. quit is true once the
// caller should stop the loop.
func handleSlashCommand(rt *Runtime, sess **models.Session, mode *models.Mode, reader *bufio.Reader, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		printHelp()
	case "/mode":
		return false, handleModeCommand(mode, args)
	case "/sessions":
		return false, printSessionList(rt.Store)
	case "/resume":
		return false, handleResumeCommand(rt, sess, reader, args)
	case "/clear":
		fresh := store.NewSession((*sess).WorkingDirectory)
		if err := rt.Store.Save(fresh); err != nil {
			return false, err
		}
		*sess = fresh
		fmt.Printf("started a fresh session %s\n", fresh.ID)
	case "/history":
		printHistory(*sess)
	case "/undo":
		printUndoResult(rt, *sess)
	default:
		fmt.Printf("unrecognized command %q; try /help\n", cmd)
	}
	return false, nil
}

func printHelp() {
	fmt.Println(`Commands:
  /mode plan|normal   switch between PLAN (observe-only) and NORMAL mode
  /sessions           list known sessions
  /resume [id]        resume a session by id, or pick from a list
  /clear              start a fresh session in this working directory
  /undo               report whether the last tool call could be undone (nothing is reverted)
  /history            print this session's transcript
  /help               show this message
  /quit, /exit        leave the chat`)
}

func handleModeCommand(mode *models.Mode, args []string) error {
	if len(args) == 0 {
		fmt.Printf("current mode: %s\n", *mode)
		return nil
	}
	m, err := parseMode(args[0])
	if err != nil {
		return err
	}
	*mode = m
	fmt.Printf("mode set to %s\n", *mode)
	return nil
}

func handleResumeCommand(rt *Runtime, sess **models.Session, reader *bufio.Reader, args []string) error {
	id := ""
	if len(args) > 0 {
		id = args[0]
	} else {
		summaries, err := rt.Store.List()
		if err != nil {
			return err
		}
		if len(summaries) == 0 {
			fmt.Println("no sessions to resume")
			return nil
		}
		printSessionTable(summaries)
		fmt.Print("resume which number? ")
		line, _ := reader.ReadString('\n')
		idx, convErr := strconv.Atoi(strings.TrimSpace(line))
		if convErr != nil || idx < 1 || idx > len(summaries) {
			return fmt.Errorf("invalid selection %q", strings.TrimSpace(line))
		}
		id = summaries[idx-1].ID
	}
	loaded, err := rt.Store.Load(id)
	if err != nil {
		return err
	}
	*sess = loaded
	fmt.Printf("resumed session %s (%d messages)\n", loaded.ID, len(loaded.Messages))
	return nil
}

func printSessionList(st *store.Store) error {
	summaries, err := st.List()
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("no sessions found")
		return nil
	}
	printSessionTable(summaries)
	return nil
}

func printSessionTable(summaries []store.SessionSummary) {
	for i, s := range summaries {
		archived := ""
		if s.Archived {
			archived = " (archived)"
		}
		fmt.Printf("%3d. %s  updated=%s  workdir=%s%s\n", i+1, s.ID, s.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"), s.WorkingDirectory, archived)
	}
}

func printHistory(sess *models.Session) {
	if len(sess.Messages) == 0 {
		fmt.Println("(empty transcript)")
		return
	}
	for _, m := range sess.Messages {
		switch m.Kind {
		case models.KindUser:
			fmt.Printf("user: %s\n", m.Text)
		case models.KindAssistant:
			fmt.Printf("assistant: %s\n", m.Text)
			for _, tc := range m.ToolCalls {
				fmt.Printf("  -> requested %s\n", tc.Name)
			}
		case models.KindToolCall:
			fmt.Printf("tool_call[%s]: %s(%s)\n", m.ToolCallID, m.ToolName, string(m.ToolArguments))
		case models.KindToolResult:
			status := "ok"
			if !m.Success {
				status = "failed: " + string(m.Error)
			}
			fmt.Printf("tool_result[%s]: %s - %s\n", m.ToolCallID, status, m.Output)
		case models.KindSystem:
			label := "system"
			if m.CompactionSummary {
				label = "system(compaction summary)"
			}
			fmt.Printf("%s: %s\n", label, m.Text)
		}
	}
}

// printUndoResult implements "/undo (reverts the last reversible tool if
// any)". Both builtin dangerous tools (write_file, shell) are
// non-reversible by design (§4.B/builtin tool flags), so the honest
// answer for this tool set is almost always "nothing to revert" rather
// than an actual file-system rollback; this still reports the tool that
// would be the undo target so the user understands why.
func printUndoResult(rt *Runtime, sess *models.Session) {
	for i := len(sess.Messages) - 1; i >= 0; i-- {
		m := sess.Messages[i]
		if m.Kind != models.KindToolResult || !m.Success {
			continue
		}
		toolName := toolNameForResult(sess, m.ToolCallID)
		if toolName == "" {
			continue
		}
		tool, ok := rt.Registry.Lookup(toolName)
		if !ok {
			fmt.Printf("cannot undo %s: tool no longer registered\n", toolName)
			return
		}
		if !tool.Reversible() {
			fmt.Printf("cannot undo %s: it is not reversible\n", toolName)
			return
		}
		fmt.Printf("%s has no side effect to undo (it only reads state)\n", toolName)
		return
	}
	fmt.Println("nothing to undo")
}

func toolNameForResult(sess *models.Session, toolCallID string) string {
	for _, m := range sess.Messages {
		if m.Kind == models.KindToolCall && m.ToolCallID == toolCallID {
			return m.ToolName
		}
	}
	return ""
}
