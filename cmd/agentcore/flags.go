package main

import (
	"os"
	"path/filepath"

	"github.com/OpenVibeCoding/swe-cli-sub001/internal/config"
	"github.com/spf13/cobra"
)

// chatFlags holds the flag values buildChatCmd binds, mirroring §6's
// minimal CLI surface: --continue, --list-sessions, --session,
// --working-dir, plus a --config override and a --mode convenience flag
// the spec's front-end interface otherwise only exposes via the in-chat
// "/mode" command.
type chatFlags struct {
	configPath    string
	workingDir    string
	sessionID     string
	continueFlag  bool
	listSessions  bool
	mode          string
}

func buildChatCmd() *cobra.Command {
	var flags chatFlags
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start or resume an interactive agent session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(flags)
		},
	}
	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "Path to YAML configuration file (overrides the project-local default)")
	cmd.Flags().StringVar(&flags.workingDir, "working-dir", "", "Working directory tool calls and the session are scoped to (default: current directory)")
	cmd.Flags().StringVar(&flags.sessionID, "session", "", "Resume a specific session by id")
	cmd.Flags().BoolVar(&flags.continueFlag, "continue", false, "Resume the most recently updated session for --working-dir")
	cmd.Flags().BoolVar(&flags.listSessions, "list-sessions", false, "List known sessions and exit")
	cmd.Flags().StringVar(&flags.mode, "mode", "normal", `Initial mode: "plan" or "normal"`)
	return cmd
}

// resolveWorkingDir returns the absolute working directory flags.workingDir
// names, defaulting to the process's current directory.
func (f chatFlags) resolveWorkingDir() (string, error) {
	dir := f.workingDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		dir = wd
	}
	return filepath.Abs(dir)
}

// loadConfig applies the global->project->flag layer chain (§6), an
// explicit --config flag standing in for the project layer when set.
func (f chatFlags) loadConfig(workingDir string) (*config.Config, error) {
	globalPath := ""
	if p := config.DefaultGlobalPath(); p != "" {
		if _, err := os.Stat(p); err == nil {
			globalPath = p
		}
	}
	projectPath := f.configPath
	if projectPath == "" {
		if p := config.DefaultProjectPath(workingDir); fileExists(p) {
			projectPath = p
		}
	}
	cfg, err := config.Load(globalPath, projectPath)
	if err != nil {
		return nil, err
	}
	workspace := workingDir
	if err := (config.Overrides{Workspace: &workspace}).Apply(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
