// SPDX-License-Identifier: Apache-2.0

// Package cancel shuts a client down when the context it was created with
// ends, and remembers why.
package cancel

import (
	"context"
	"sync"
)

type Watch struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	shutdown func()

	mu    sync.Mutex
	cause error
}

// New watches ctx until Stop is called. If ctx ends first, its cause is
// recorded and shutdown runs on the watching goroutine.
func New(ctx context.Context, shutdown func()) *Watch {
	w := &Watch{
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		shutdown: shutdown,
	}
	go w.watch(ctx)
	return w
}

// Cause is the cause of the watched context once it has triggered the
// shutdown, and nil otherwise.
func (w *Watch) Cause() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cause
}

// Done is closed once the watch has finished, after any shutdown it ran.
func (w *Watch) Done() <-chan struct{} {
	return w.done
}

// Stop ends the watch and waits for it, including a shutdown that is already
// running. It reports whether the watch ended without running the shutdown.
func (w *Watch) Stop() bool {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	<-w.done
	return w.Cause() == nil
}

func (w *Watch) watch(ctx context.Context) {
	select {
	case <-ctx.Done():
		w.mu.Lock()
		w.cause = context.Cause(ctx)
		w.mu.Unlock()
		w.shutdown()
	case <-w.stop:
	}
	close(w.done)
}
