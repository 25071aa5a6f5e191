package git

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"time"
)

// CommandRunner executes shell commands.
// This interface allows mocking command execution in tests.
type CommandRunner interface {
	// Run executes a command and returns the trimmed stdout.
	// workDir is the working directory for the command.
	// If the command fails, it returns the stderr/stdout as the error message.
	Run(workDir string, name string, args ...string) (stdout string, err error)
}

// ExecRunner is the default CommandRunner using exec.Command.
type ExecRunner struct {
	env     []string // extra environment entries appended to the inherited environment
	timeout time.Duration
}

// RunnerOption configures an ExecRunner.
type RunnerOption func(*ExecRunner)

// WithEnv appends environment entries ("KEY=value") to every spawned
// command. Used to pass proxy settings to git without mutating the
// process-wide environment.
func WithEnv(env []string) RunnerOption {
	return func(r *ExecRunner) {
		r.env = append(r.env, env...)
	}
}

// WithTimeout bounds every spawned command. Zero means no limit.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *ExecRunner) {
		r.timeout = d
	}
}

// NewExecRunner creates a new ExecRunner.
func NewExecRunner(opts ...RunnerOption) *ExecRunner {
	r := &ExecRunner{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the command using exec.Command.
func (r *ExecRunner) Run(workDir, name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	if r.timeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		cmd = exec.CommandContext(ctx, name, args...)
	}
	cmd.Dir = workDir
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg == "" {
			errMsg = strings.TrimSpace(stdout.String())
		}
		if errMsg == "" {
			errMsg = err.Error()
		}
		return strings.TrimSpace(stdout.String()), &CommandError{
			Command: name,
			Args:    args,
			WorkDir: workDir,
			Output:  errMsg,
			Err:     err,
		}
	}

	return strings.TrimSpace(stdout.String()), nil
}

// CommandError represents a command execution error.
type CommandError struct {
	Command string
	Args    []string
	WorkDir string
	Output  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Output != "" {
		return e.Output
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "command failed"
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
