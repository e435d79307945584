package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"syscall"
	"time"

	einotool "github.com/cloudwego/eino/components/tool"
)

// Execution limits for the bash tool.
const (
	DefaultBashTimeout = 120 * time.Second
	MaxBashTimeout     = 10 * time.Minute
	MaxOutputLength    = 30000
	SigkillTimeout     = 200 * time.Millisecond
)

const bashDescription = `Executes a bash command and returns its combined output.

Usage:
- Command is required
- Optional timeout in milliseconds (max 600000)
- Provide a brief description of what the command does
- Output is captured from stdout and stderr
- Commands run in their own process group for proper cleanup`

// BashTool runs shell commands, optionally gated by an allowlist guard.
type BashTool struct {
	workDir string
	shell   string
	guard   *Guard
}

// BashInput is the argument shape the model sends.
type BashInput struct {
	Command     string `json:"command"`
	Timeout     int    `json:"timeout,omitempty"` // milliseconds
	Description string `json:"description"`
}

// BashToolOption configures the bash tool.
type BashToolOption func(*BashTool)

// WithGuard sets the allowlist gate commands must pass before running.
// A nil guard leaves the tool unguarded.
func WithGuard(g *Guard) BashToolOption {
	return func(t *BashTool) { t.guard = g }
}

// NewBashTool builds the tool. workDir is the default working directory
// when the call's context carries none.
func NewBashTool(workDir string, opts ...BashToolOption) *BashTool {
	t := &BashTool{workDir: workDir, shell: detectShell()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// detectShell picks the shell commands run under. $SHELL wins unless it
// is a non-POSIX shell (fish, nu) whose -c semantics differ.
func detectShell() string {
	switch s := os.Getenv("SHELL"); s {
	case "", "/bin/fish", "/usr/bin/fish", "/bin/nu", "/usr/bin/nu":
	default:
		return s
	}

	switch runtime.GOOS {
	case "darwin":
		return "/bin/zsh"
	case "windows":
		if comspec := os.Getenv("COMSPEC"); comspec != "" {
			return comspec
		}
		return "cmd.exe"
	}

	if bash, err := exec.LookPath("bash"); err == nil {
		return bash
	}
	return "/bin/sh"
}

func (t *BashTool) ID() string          { return "bash" }
func (t *BashTool) Description() string { return bashDescription }

func (t *BashTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {
				"type": "string",
				"description": "The command to execute"
			},
			"timeout": {
				"type": "integer",
				"description": "Optional timeout in milliseconds (max 600000)"
			},
			"description": {
				"type": "string",
				"description": "Brief description of what this command does"
			}
		},
		"required": ["command", "description"]
	}`)
}

func (t *BashTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params BashInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	if t.guard != nil {
		if err := t.guard.Check(params.Command); err != nil {
			return nil, err
		}
	}

	timeout := clampTimeout(params.Timeout)
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := t.buildCmd(cmdCtx, params.Command, toolCtx)
	output, err := cmd.CombinedOutput()
	timedOut := cmdCtx.Err() == context.DeadlineExceeded

	text := string(output)
	if len(text) > MaxOutputLength {
		text = text[:MaxOutputLength] + "\n\n(Output truncated)"
	}
	if timedOut {
		text += fmt.Sprintf("\n\n(Command timed out after %v)", timeout)
	}

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil && !timedOut {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			text += fmt.Sprintf("\n\nError: %v", err)
		}
	}

	title := params.Description
	if title == "" {
		title = "Run command"
	}

	return &Result{
		Title:  title,
		Output: text,
		Metadata: map[string]any{
			"output":      text,
			"exit":        exitCode,
			"description": params.Description,
		},
	}, nil
}

func clampTimeout(ms int) time.Duration {
	if ms <= 0 {
		return DefaultBashTimeout
	}
	timeout := time.Duration(ms) * time.Millisecond
	if timeout > MaxBashTimeout {
		return MaxBashTimeout
	}
	return timeout
}

func (t *BashTool) buildCmd(ctx context.Context, command string, toolCtx *Context) *exec.Cmd {
	flag := "-c"
	if runtime.GOOS == "windows" {
		flag = "/c"
	}
	cmd := exec.CommandContext(ctx, t.shell, flag, command)

	switch {
	case toolCtx != nil && toolCtx.WorkDir != "":
		cmd.Dir = toolCtx.WorkDir
	case t.workDir != "":
		cmd.Dir = t.workDir
	}
	cmd.Env = os.Environ()

	// Own process group on Unix so cancellation kills child processes too.
	if runtime.GOOS != "windows" {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		cmd.Cancel = func() error { return killProcessGroup(cmd) }
	}
	return cmd
}

// killProcessGroup terminates the command's process group, escalating to
// SIGKILL when SIGTERM is not enough.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}

	pid := cmd.Process.Pid
	syscall.Kill(-pid, syscall.SIGTERM)
	time.Sleep(SigkillTimeout)

	if cmd.ProcessState == nil {
		syscall.Kill(-pid, syscall.SIGKILL)
	}
	return nil
}

func (t *BashTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
