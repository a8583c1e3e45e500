package process

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	defaultTimeout         = 60 * time.Second
	defaultGracefulTimeout = 5 * time.Second
)

// Config describes one invocation of an external tool.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Binary is the path to the executable, or a name resolved through PATH.
	Binary string

	// Args are command-line arguments to pass to the binary.
	Args []string

	// Env are additional environment variables (key=value format) appended
	// to the parent environment.
	Env []string

	// WorkDir is the working directory; empty inherits the parent's.
	WorkDir string

	// Timeout bounds the whole run. Zero means 60s.
	Timeout time.Duration

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration
}

// Result is the outcome of a completed run.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Output returns stdout followed by stderr.
func (r Result) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	return r.Stdout + r.Stderr
}

// Logger defines the logging interface for the runner.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Runner executes external tools (J-Link Commander, radio and accelerometer
// test utilities) to completion and captures their output.
type Runner struct {
	logger Logger
}

// NewRunner creates a runner that logs nothing until SetLogger is called.
func NewRunner() *Runner {
	return &Runner{logger: noopLogger{}}
}

// SetLogger sets the logger; every output line is logged at debug level.
func (r *Runner) SetLogger(logger Logger) {
	r.logger = logger
}

// Run starts the process in its own process group and waits for it.
//
// A non-zero exit status is not an error: it is reported in Result.ExitCode.
// Errors are returned when the binary cannot be started (ErrStartFailed),
// when the timeout expires (ErrTimeout) or when ctx is cancelled. In the
// last two cases the whole process group receives SIGTERM, then SIGKILL
// after GracefulTimeout.
func (r *Runner) Run(ctx context.Context, cfg Config) (Result, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Binary
	}

	cmd := exec.Command(cfg.Binary, cfg.Args...) //nolint:gosec // Binary comes from station config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if cfg.Env != nil {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	if cfg.WorkDir != "" {
		cmd.Dir = cfg.WorkDir
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("creating stderr pipe: %w", err)
	}

	r.logger.Debug("starting process", "name", cfg.Name, "binary", cfg.Binary, "args", cfg.Args)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", ErrStartFailed, cfg.Name, err)
	}

	var outBuf, errBuf bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.capture(cfg.Name, "stdout", stdout, &outBuf)
	}()
	go func() {
		defer wg.Done()
		r.capture(cfg.Name, "stderr", stderr, &errBuf)
	}()

	exitCh := make(chan error, 1)
	go func() {
		// Pipes must be drained before Wait closes them.
		wg.Wait()
		exitCh <- cmd.Wait()
	}()

	timer := time.NewTimer(cfg.Timeout)
	defer timer.Stop()

	var waitErr, runErr error
	select {
	case waitErr = <-exitCh:
	case <-timer.C:
		runErr = fmt.Errorf("%w: %s after %v", ErrTimeout, cfg.Name, cfg.Timeout)
		waitErr = terminate(cmd, exitCh, cfg.GracefulTimeout)
	case <-ctx.Done():
		runErr = fmt.Errorf("%s: %w", cfg.Name, ctx.Err())
		waitErr = terminate(cmd, exitCh, cfg.GracefulTimeout)
	}

	result := Result{
		ExitCode: exitCode(cmd, waitErr),
		Stdout:   outBuf.String(),
		Stderr:   errBuf.String(),
		Duration: time.Since(start),
	}

	r.logger.Debug("process finished",
		"name", cfg.Name,
		"exit_code", result.ExitCode,
		"duration", result.Duration,
	)

	return result, runErr
}

// terminate signals the process group and waits for the exit.
func terminate(cmd *exec.Cmd, exitCh <-chan error, grace time.Duration) error {
	pgid := -cmd.Process.Pid
	_ = syscall.Kill(pgid, syscall.SIGTERM) //nolint:errcheck // Process may already be gone

	select {
	case err := <-exitCh:
		return err
	case <-time.After(grace):
		_ = syscall.Kill(pgid, syscall.SIGKILL) //nolint:errcheck // Process may already be gone
		return <-exitCh
	}
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}

// capture copies one output stream into buf, logging each line.
func (r *Runner) capture(name, stream string, src io.Reader, buf *bytes.Buffer) {
	scanner := bufio.NewScanner(src)
	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteString(line)
		buf.WriteByte('\n')
		if strings.TrimSpace(line) != "" {
			r.logger.Debug("process output", "name", name, "stream", stream, "line", line)
		}
	}
}
