// Package process launches one child program with redirected streams and a wall-clock limit.
package process

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"

	appErr "grader/pkg/errors"
)

const (
	defaultMaxOutputBytes int64 = 16 << 20
	defaultWaitDelay            = 2 * time.Second
)

// Request describes one program launch.
type Request struct {
	Path    string
	Args    []string
	Dir     string
	Env     []string
	Stdin   io.Reader
	Timeout time.Duration
}

// Result is what the child left behind.
type Result struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	TimedOut  bool
	Truncated bool
	Duration  time.Duration
}

// Output returns stdout followed by stderr.
func (r Result) Output() string {
	return r.Stdout + r.Stderr
}

// Runner runs a single child process to completion.
type Runner interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// Config bounds the resources a single run may hold.
type Config struct {
	MaxOutputBytes int64         `yaml:"maxOutputBytes"`
	WaitDelay      time.Duration `yaml:"waitDelay"`
}

// ExecRunner implements Runner with os/exec.
type ExecRunner struct {
	cfg Config
}

// NewExecRunner creates a runner, filling unset limits with defaults.
func NewExecRunner(cfg Config) *ExecRunner {
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = defaultMaxOutputBytes
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = defaultWaitDelay
	}
	return &ExecRunner{cfg: cfg}
}

// Run starts req.Path, feeds it req.Stdin and waits for it to exit or for req.Timeout to pass.
// A non-zero exit status is reported in Result, not as an error.
func (r *ExecRunner) Run(ctx context.Context, req Request) (Result, error) {
	if req.Path == "" {
		return Result{}, appErr.New(appErr.ProcessLaunchFailed).WithMessage("executable path is required")
	}

	cmd := exec.Command(req.Path, req.Args...)
	cmd.Dir = req.Dir
	if len(req.Env) > 0 {
		cmd.Env = append(os.Environ(), req.Env...)
	}
	cmd.WaitDelay = r.cfg.WaitDelay
	configureProcessGroup(cmd)

	stdout := newCappedBuffer(r.cfg.MaxOutputBytes)
	stderr := newCappedBuffer(r.cfg.MaxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	var stdinPipe io.WriteCloser
	if req.Stdin != nil {
		pipe, err := cmd.StdinPipe()
		if err != nil {
			return Result{}, appErr.Wrapf(err, appErr.ProcessIOFailed, "open stdin of %s", req.Path)
		}
		stdinPipe = pipe
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, appErr.Wrapf(err, appErr.ProcessLaunchFailed, "start %s", req.Path).
			WithDetail("path", req.Path)
	}
	// The child and anything it spawned are gone once Run returns.
	defer killTree(cmd)

	stdinErr := make(chan error, 1)
	if stdinPipe != nil {
		go func() {
			_, err := io.Copy(stdinPipe, req.Stdin)
			if cerr := stdinPipe.Close(); err == nil {
				err = cerr
			}
			stdinErr <- err
		}()
	} else {
		stdinErr <- nil
	}

	var timedOut atomic.Bool
	done := make(chan struct{})
	go func() {
		var timer <-chan time.Time
		if req.Timeout > 0 {
			t := time.NewTimer(req.Timeout)
			defer t.Stop()
			timer = t.C
		}
		select {
		case <-ctx.Done():
			killTree(cmd)
		case <-timer:
			timedOut.Store(true)
			killTree(cmd)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)

	res := Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		ExitCode:  exitCode(cmd.ProcessState),
		TimedOut:  timedOut.Load(),
		Truncated: stdout.Truncated() || stderr.Truncated(),
		Duration:  time.Since(start),
	}

	if res.TimedOut {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return res, appErr.Wrapf(err, appErr.Timeout, "run %s canceled", req.Path)
	}
	if err := <-stdinErr; err != nil && !isBrokenPipe(err) {
		return res, appErr.Wrapf(err, appErr.ProcessIOFailed, "write stdin of %s", req.Path)
	}
	if waitErr != nil && !isExitStatus(waitErr) && !errors.Is(waitErr, exec.ErrWaitDelay) {
		return res, appErr.Wrapf(waitErr, appErr.ProcessIOFailed, "wait %s", req.Path)
	}
	return res, nil
}

func exitCode(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	return state.ExitCode()
}

func isExitStatus(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}

// A child that exits without draining stdin closes the pipe under the writer.
func isBrokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
