// Package shutdown keeps the cleanup actions that must run when a worker is
// torn down by a signal while a job is in flight: removing partial segment
// files and marking the held record broken.
package shutdown

import (
	"log/slog"
	"slices"
	"sync"

	"reeler/internal/logging"
)

// Hooks is an ordered registry of teardown actions. Actions run at most once,
// newest first, and can be disarmed once the job reaches a terminal state.
type Hooks struct {
	mu     sync.Mutex
	nextID int
	hooks  map[int]hook
	ran    bool
	logger *slog.Logger
}

type hook struct {
	name string
	fn   func()
}

// Handle identifies one registered action.
type Handle struct {
	id    int
	hooks *Hooks
}

// New constructs an empty registry.
func New(logger *slog.Logger) *Hooks {
	return &Hooks{
		hooks:  make(map[int]hook),
		logger: logging.NewComponentLogger(logger, "shutdown"),
	}
}

// Register adds an action. A nil registry returns a no-op handle so callers
// without teardown wiring (tests, one-shot tools) need no special casing.
func (h *Hooks) Register(name string, fn func()) *Handle {
	if h == nil || fn == nil {
		return &Handle{}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	h.hooks[h.nextID] = hook{name: name, fn: fn}
	return &Handle{id: h.nextID, hooks: h}
}

// Protect disarms the action so Run no longer executes it.
func (hd *Handle) Protect() {
	if hd == nil || hd.hooks == nil {
		return
	}
	hd.hooks.mu.Lock()
	delete(hd.hooks.hooks, hd.id)
	hd.hooks.mu.Unlock()
}

// Pending reports how many actions are still armed.
func (h *Hooks) Pending() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.hooks)
}

// Run executes every armed action once, newest first. Subsequent calls are no-ops.
func (h *Hooks) Run() {
	if h == nil {
		return
	}
	h.mu.Lock()
	if h.ran {
		h.mu.Unlock()
		return
	}
	h.ran = true
	ids := make([]int, 0, len(h.hooks))
	for id := range h.hooks {
		ids = append(ids, id)
	}
	pending := h.hooks
	h.hooks = make(map[int]hook)
	h.mu.Unlock()

	slices.Sort(ids)
	for i := len(ids) - 1; i >= 0; i-- {
		entry := pending[ids[i]]
		h.logger.Info("running exit hook", logging.String("hook", entry.name))
		h.runOne(entry)
	}
}

func (h *Hooks) runOne(entry hook) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("exit hook panicked", logging.String("hook", entry.name), logging.Any("panic", r))
		}
	}()
	entry.fn()
}
