package system

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

//go:generate mockgen -destination mocks/runner_mock.go -package mocks -mock_names Runner=RunnerMock . Runner

// Runner runs external commands. Executor is the production implementation.
type Runner interface {
	// Run executes a command and discards output
	Run(name string, args ...string) error
	// RunOutput executes a command and returns stdout
	RunOutput(name string, args ...string) (string, error)
	// RunInput executes a command with input on stdin and returns stdout
	RunInput(input, name string, args ...string) (string, error)
}

// Executor handles execution of external commands
type Executor struct {
	debug bool
	trace io.Writer
}

// NewExecutor creates a new executor. With debug set every command line is
// echoed to stderr before it runs.
func NewExecutor(debug bool) *Executor {
	return &Executor{
		debug: debug,
		trace: os.Stderr,
	}
}

// Run executes a command and discards output
func (e *Executor) Run(name string, args ...string) error {
	_, err := e.RunOutput(name, args...)
	return err
}

// RunOutput executes a command and returns stdout
func (e *Executor) RunOutput(name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	return e.RunCmd(cmd)
}

// RunInput executes a command feeding input to its stdin
func (e *Executor) RunInput(input, name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	cmd.Stdin = strings.NewReader(input)
	return e.RunCmd(cmd)
}

// RunCmd executes a prepared command
func (e *Executor) RunCmd(cmd *exec.Cmd) (string, error) {
	if e.debug {
		fmt.Fprintf(e.trace, "[DEBUG] Executing: %s\n", cmd.String())
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		return "", fmt.Errorf("%s failed: %w\nStderr: %s",
			cmd.Args[0], err, strings.TrimSpace(stderr.String()))
	}

	return stdout.String(), nil
}

// CommandExists checks if a command is available in PATH
func (e *Executor) CommandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// CheckDependencies verifies required commands are available
func (e *Executor) CheckDependencies(deps []string) error {
	var missing []string
	for _, dep := range deps {
		if !e.CommandExists(dep) {
			missing = append(missing, dep)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required commands: %s",
			strings.Join(missing, ", "))
	}
	return nil
}
