package procrun

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRunCapturesOutput(t *testing.T) {
	runner := NewRunner(nil)
	result, err := runner.Run(context.Background(), "sh", []string{"-c", "echo out; echo err >&2"}, 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.ExitCode != 0 {
		t.Fatalf("exit code = %d, want 0", result.ExitCode)
	}
	if got := strings.TrimSpace(result.Stdout); got != "out" {
		t.Errorf("stdout = %q, want %q", got, "out")
	}
	if got := strings.TrimSpace(result.Stderr); got != "err" {
		t.Errorf("stderr = %q, want %q", got, "err")
	}
}

func TestRunNonZeroExitIsNotError(t *testing.T) {
	runner := NewRunner(nil)
	result, err := runner.Run(context.Background(), "sh", []string{"-c", "exit 3"}, 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.ExitCode != 3 {
		t.Fatalf("exit code = %d, want 3", result.ExitCode)
	}
}

func TestRunLargeOutputDoesNotDeadlock(t *testing.T) {
	runner := NewRunner(nil)
	// Well past the 64 KiB pipe buffer.
	result, err := runner.Run(context.Background(), "sh",
		[]string{"-c", "head -c 1048576 /dev/zero | tr '\\0' 'x'"}, 30*time.Second)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.Stdout) != 1<<20 {
		t.Fatalf("stdout length = %d, want %d", len(result.Stdout), 1<<20)
	}
}

func TestRunTimeout(t *testing.T) {
	runner := NewRunner(nil)
	start := time.Now()
	_, err := runner.Run(context.Background(), "sleep", []string{"60"}, 100*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("timeout took %s", elapsed)
	}
}

func TestRunCancellation(t *testing.T) {
	runner := NewRunner(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	_, err := runner.Run(ctx, "sleep", []string{"60"}, 0)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
}

func TestRunAlreadyCancelled(t *testing.T) {
	runner := NewRunner(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runner.Run(ctx, "true", nil, 0)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
}

func TestRegistryTracksProcesses(t *testing.T) {
	registry := NewRegistry()
	runner := NewRunner(registry)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = runner.Run(context.Background(), "sleep", []string{"30"}, 0)
	}()

	deadline := time.After(5 * time.Second)
	for registry.Len() == 0 {
		select {
		case <-deadline:
			t.Fatal("process never registered")
		case <-time.After(10 * time.Millisecond):
		}
	}
	registry.KillAll()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after KillAll")
	}
	if registry.Len() != 0 {
		t.Fatalf("registry still holds %d processes", registry.Len())
	}
}
