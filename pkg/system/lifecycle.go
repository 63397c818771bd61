package system

import (
	"sync"
)

// Lifecycle dispatches host start and shutdown notifications to registered
// hooks. Components whose background work must live exactly as long as the
// host register here instead of managing goroutines per request.
type Lifecycle struct {
	mu       sync.Mutex
	started  []func()
	stopping []func()
	running  bool
}

func NewLifecycle() *Lifecycle {
	return &Lifecycle{}
}

// OnStarted registers a hook run once the host has finished starting.
// Hooks registered while the host is already running are invoked immediately.
func (l *Lifecycle) OnStarted(hook func()) {
	l.mu.Lock()
	l.started = append(l.started, hook)
	running := l.running
	l.mu.Unlock()
	if running {
		hook()
	}
}

// OnStopping registers a hook run when the host begins shutting down.
func (l *Lifecycle) OnStopping(hook func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopping = append(l.stopping, hook)
}

// Started fires the start hooks in registration order. Repeated calls are no-ops.
func (l *Lifecycle) Started() {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	hooks := append([]func(){}, l.started...)
	l.mu.Unlock()

	for _, h := range hooks {
		h()
	}
}

// Stopping fires the stop hooks in reverse registration order.
func (l *Lifecycle) Stopping() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	hooks := append([]func(){}, l.stopping...)
	l.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
}
