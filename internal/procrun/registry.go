package procrun

import (
	"os/exec"
	"sync"
	"syscall"
)

// Registry tracks live child processes so a shutdown path can reach them.
// All mutation happens under one mutex; handles are opaque to callers.
type Registry struct {
	mu     sync.Mutex
	nextID uint64
	procs  map[uint64]*exec.Cmd
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{procs: make(map[uint64]*exec.Cmd)}
}

func (r *Registry) register(cmd *exec.Cmd) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.procs[id] = cmd
	return id
}

func (r *Registry) unregister(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.procs, id)
}

// Len reports how many processes are currently outstanding.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.procs)
}

// TerminateAll sends SIGTERM to every outstanding process. Signalling
// happens on a snapshot taken under the lock so a worker holding the lock
// elsewhere cannot deadlock against a signal handler.
func (r *Registry) TerminateAll() {
	for _, cmd := range r.snapshot() {
		if cmd.Process != nil {
			_ = cmd.Process.Signal(syscall.SIGTERM)
		}
	}
}

// KillAll forcibly kills every outstanding process.
func (r *Registry) KillAll() {
	for _, cmd := range r.snapshot() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
}

func (r *Registry) snapshot() []*exec.Cmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*exec.Cmd, 0, len(r.procs))
	for _, cmd := range r.procs {
		out = append(out, cmd)
	}
	return out
}
