package procrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

var (
	// ErrTimeout marks a run killed for exceeding its deadline.
	ErrTimeout = errors.New("process timeout")
	// ErrCancelled marks a run stopped by cooperative cancellation.
	ErrCancelled = errors.New("process cancelled")
)

const (
	// terminateGrace is how long a child gets to exit after SIGTERM
	// before it is killed.
	terminateGrace = 5 * time.Second
)

// Result captures the outcome of a completed run.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes commands while tracking them in a shared registry.
type Runner struct {
	registry *Registry
}

// NewRunner constructs a Runner. A nil registry gets a private one.
func NewRunner(registry *Registry) *Runner {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Runner{registry: registry}
}

// Registry exposes the runner's process registry for signal handlers.
func (r *Runner) Registry() *Registry {
	return r.registry
}

// Run starts binary with args and waits for completion, a timeout, or
// context cancellation. A non-zero child exit is not an error here; callers
// inspect Result.ExitCode. Timeout and cancellation are reported through
// ErrTimeout and ErrCancelled.
func (r *Runner) Run(ctx context.Context, binary string, args []string, timeout time.Duration) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return Result{}, errors.New("procrun: empty binary")
	}
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	cmd := exec.Command(binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start %s: %w", binary, err)
	}

	handle := r.registry.register(cmd)
	defer r.registry.unregister(handle)

	// One drain goroutine per captured stream. The child must never be
	// able to fill the pipe buffer and stall while we wait for exit.
	var (
		outBuf bytes.Buffer
		errBuf bytes.Buffer
		drains sync.WaitGroup
	)
	drains.Add(2)
	go drain(&drains, &outBuf, stdout)
	go drain(&drains, &errBuf, stderr)

	waitCh := make(chan error, 1)
	go func() {
		drains.Wait()
		waitCh <- cmd.Wait()
	}()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case waitErr := <-waitCh:
		return finish(cmd, &outBuf, &errBuf, waitErr)
	case <-ctx.Done():
		// Graceful terminate first; kill after the grace period.
		_ = cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-waitCh:
		case <-time.After(terminateGrace):
			_ = cmd.Process.Kill()
			<-waitCh
		}
		return Result{}, fmt.Errorf("%w: %s: %w", ErrCancelled, binary, ctx.Err())
	case <-deadline:
		_ = cmd.Process.Kill()
		<-waitCh
		return Result{}, fmt.Errorf("%w: %s after %s", ErrTimeout, binary, timeout)
	}
}

func drain(wg *sync.WaitGroup, dst *bytes.Buffer, src io.Reader) {
	defer wg.Done()
	_, _ = io.Copy(dst, src)
}

func finish(cmd *exec.Cmd, outBuf, errBuf *bytes.Buffer, waitErr error) (Result, error) {
	result := Result{
		Stdout: outBuf.String(),
		Stderr: errBuf.String(),
	}
	if waitErr == nil {
		return result, nil
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	return result, fmt.Errorf("wait %s: %w", cmd.Path, waitErr)
}
