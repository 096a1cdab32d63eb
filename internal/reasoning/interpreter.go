package reasoning

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ChamsBouzaiene/dodo/internal/sandbox"
)

// Interpreter runs one <python> block against a persistent context and
// returns its captured stdout, or a formatted traceback on failure (never
// a Go error for the script's own exceptions — only for infrastructure
// failures, e.g. the sandbox couldn't start).
type Interpreter interface {
	Run(ctx context.Context, code string) (string, error)
	Close() error
}

// sandboxInterpreter is a best-effort Python-like evaluator: each call
// appends the new code to an accumulated script, so variable bindings
// persist across steps, then re-runs the whole script in a throwaway
// container. Docker containers don't keep Go-level process state between
// `docker run` invocations, so persistence is modeled as "replay the
// accumulated script", not as a live REPL.
type sandboxInterpreter struct {
	runner    sandbox.Runner
	workspace string
	script    string
}

// NewSandboxInterpreter builds an interpreter backed by runner, using a
// throwaway directory as the bind-mounted workspace.
func NewSandboxInterpreter(runner sandbox.Runner) (Interpreter, error) {
	dir, err := os.MkdirTemp("", "dodo-mcp-interpreter-")
	if err != nil {
		return nil, fmt.Errorf("create interpreter workspace: %w", err)
	}
	return &sandboxInterpreter{runner: runner, workspace: dir}, nil
}

func (s *sandboxInterpreter) Run(ctx context.Context, code string) (string, error) {
	s.script += code + "\n"

	scriptFile := filepath.Join(s.workspace, fmt.Sprintf("step-%s.py", uuid.New().String()))
	if err := os.WriteFile(scriptFile, []byte(s.script), 0o644); err != nil {
		return "", fmt.Errorf("write interpreter script: %w", err)
	}

	result, err := s.runner.RunCmd(ctx, s.workspace, "python3", []string{filepath.Base(scriptFile)}, 30*time.Second)
	// Runners report a timeout or a non-zero exit with an error as well as a
	// filled Result; only an error without an exit status is infrastructure.
	if result.TimedOut {
		return "Traceback: interpreter step timed out", nil
	}
	if err != nil && result.Code == 0 {
		return "", fmt.Errorf("run interpreter step: %w", err)
	}
	if result.Code != 0 {
		return fmt.Sprintf("Traceback (most recent call last):\n%s", result.Stderr), nil
	}
	return result.Stdout, nil
}

func (s *sandboxInterpreter) Close() error {
	return os.RemoveAll(s.workspace)
}

// NoopInterpreter reports every <python> block as unavailable without
// attempting to run anything, for callers that enable the reasoning
// engine without opting into code execution.
type NoopInterpreter struct{}

func (NoopInterpreter) Run(ctx context.Context, code string) (string, error) {
	return "", fmt.Errorf("code execution is disabled")
}

func (NoopInterpreter) Close() error { return nil }
