package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// WorkerGroup tracks daemon-owned goroutines and provides a safe shutdown
// boundary so we never call WaitGroup.Add concurrently with Wait.
type WorkerGroup struct {
	log *slog.Logger

	mu       sync.Mutex
	wg       sync.WaitGroup
	stopping bool
}

// NewWorkerGroup returns a group that logs worker panics to logger.
func NewWorkerGroup(logger *slog.Logger) *WorkerGroup {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerGroup{log: logger}
}

// Go starts a named worker if the group is not stopping. A panic in fn is
// recovered and logged; it does not take the daemon down.
func (g *WorkerGroup) Go(name string, fn func()) bool {
	if fn == nil {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopping {
		return false
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer g.recoverWorker(name)
		fn()
	}()
	return true
}

func (g *WorkerGroup) recoverWorker(name string) {
	r := recover()
	if r == nil {
		return
	}
	log := g.log
	if log == nil {
		log = slog.Default()
	}
	log.Error("Worker panicked",
		slog.String("worker", name),
		slog.String("panic", fmt.Sprint(r)),
		slog.String("stack", string(debug.Stack())))
}

// StopAndWait prevents new workers from being started and waits for all current
// workers to exit, bounded by ctx.
func (g *WorkerGroup) StopAndWait(ctx context.Context) error {
	g.mu.Lock()
	g.stopping = true
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
