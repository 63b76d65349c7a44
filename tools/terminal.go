// Terminal Command Tool.
//
// Information Hiding:
// - Shell selection per OS hidden
// - Allow-list policy hidden
// - Timeout and process-group teardown hidden

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	timeoutNotice  = "[Timeout] Command execution timed out."
	noOutputNotice = "[Success] (No output returned)"
)

// controlOperators are rejected so an allowed prefix cannot chain another
// command.
var controlOperators = []string{";", "&", "|", "`", "$(", ">", "<", "\n", "\r"}

// TerminalTool runs allow-listed commands through the system shell.
type TerminalTool struct {
	timeout         time.Duration
	allowedCommands []string
	dir             string
	command         func(ctx context.Context, command string) *exec.Cmd
}

// NewTerminalTool creates a terminal tool with the given timeout and the
// default allow-list.
func NewTerminalTool(timeout time.Duration) *TerminalTool {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &TerminalTool{
		timeout:         timeout,
		allowedCommands: DefaultAllowedCommands,
		command:         shellCommand,
	}
}

// WithAllowedCommands sets the prefix allow-list.
func (t *TerminalTool) WithAllowedCommands(commands []string) *TerminalTool {
	if len(commands) > 0 {
		t.allowedCommands = commands
	}
	return t
}

// WithDir sets the working directory. The default is the process's.
func (t *TerminalTool) WithDir(dir string) *TerminalTool {
	t.dir = dir
	return t
}

// Metadata returns the tool metadata.
func (t *TerminalTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "run_terminal_command",
		Description: "Execute a terminal command to check system status or project info. Only specific safe commands are allowed: " + strings.Join(t.allowedCommands, ", "),
		Parameters: []ToolParameter{
			{Name: "command", ParamType: "string", Description: "The command to execute (e.g. 'git status')", Required: true},
		},
	}
}

type terminalArgs struct {
	Command string `json:"command"`
}

// Validate validates the tool arguments.
func (t *TerminalTool) Validate(args json.RawMessage) error {
	a, err := decodeArgs[terminalArgs](args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(a.Command) == "" {
		return fmt.Errorf("command cannot be empty")
	}
	return nil
}

// Execute runs the command. Non-zero exits still return the merged output;
// a timeout kills the process group and appends a notice.
func (t *TerminalTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	a, err := decodeArgs[terminalArgs](args)
	if err != nil {
		return FailureResult(Permanent(err)), nil
	}
	command := strings.TrimSpace(a.Command)

	if !t.isCommandAllowed(command) {
		return Refusef("command '%s' is not in the allowlist", command), nil
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var out bytes.Buffer
	cmd := t.command(ctx, command)
	cmd.Dir = t.dir
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = time.Second

	err = cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return SuccessResult(out.String() + "\n" + timeoutNotice), nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return FailureResult(Permanent(fmt.Errorf("failed to execute command: %w", err))), nil
		}
	}

	if out.Len() == 0 {
		return SuccessResult(noOutputNotice), nil
	}
	return SuccessResult(out.String()), nil
}

// isCommandAllowed checks the command against the prefix allow-list.
func (t *TerminalTool) isCommandAllowed(command string) bool {
	if command == "" {
		return false
	}
	for _, op := range controlOperators {
		if strings.Contains(command, op) {
			return false
		}
	}
	for _, allowed := range t.allowedCommands {
		if strings.HasPrefix(command, allowed) {
			return true
		}
	}
	return false
}
