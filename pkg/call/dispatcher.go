// SPDX-License-Identifier: Apache-2.0

package call

import (
	"context"
	"runtime"
	"sync"
	"time"

	logging "github.com/loopholelabs/logging/types"
)

// OverflowWait is how long Submit blocks on a full queue before running the
// notification on its own goroutine.
const OverflowWait = time.Millisecond * 100

var (
	defaultOnce sync.Once
	defaultPool *Dispatcher
)

func defaultDispatcher() *Dispatcher {
	defaultOnce.Do(func() {
		defaultPool = NewDispatcher(runtime.NumCPU(), runtime.NumCPU()+1, nil)
	})
	return defaultPool
}

// Dispatcher runs observer notifications on a fixed set of workers fed by a
// bounded queue. Submit blocks while the queue is full, for at most
// OverflowWait, so an observer that resolves other calls from a worker cannot
// wedge the pool.
type Dispatcher struct {
	queue    chan func()
	overflow time.Duration
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool

	logger logging.Logger
	wg     sync.WaitGroup
}

// NewDispatcher starts workers goroutines. The logger may be nil.
func NewDispatcher(workers int, queueSize int, logger logging.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	d := &Dispatcher{
		queue:    make(chan func(), queueSize),
		overflow: OverflowWait,
	}
	if logger != nil {
		d.logger = logger.SubLogger("dispatcher")
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	return d
}

// Submit queues fn for execution. Once the dispatcher is closed, or when the
// queue stays full for longer than OverflowWait, fn runs on its own goroutine
// so that no notification is ever dropped.
func (d *Dispatcher) Submit(fn func()) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		go d.run(-1, fn)
		return
	}
	select {
	case d.queue <- fn:
		return
	default:
	}
	if d.logger != nil {
		d.logger.Warn().Int("queue", cap(d.queue)).Msg("dispatch queue is full, submission will block")
	}
	timer := time.NewTimer(d.overflow)
	defer timer.Stop()
	select {
	case d.queue <- fn:
	case <-d.ctx.Done():
		go d.run(-1, fn)
	case <-timer.C:
		if d.logger != nil {
			d.logger.Warn().Str("elapsed", d.overflow.String()).Msg("dispatch queue stayed full, running observer on its own goroutine")
		}
		go d.run(-1, fn)
	}
}

// Close stops the workers and runs whatever is still queued on the calling
// goroutine.
func (d *Dispatcher) Close() {
	d.cancel()
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
	for {
		select {
		case fn := <-d.queue:
			d.run(-1, fn)
		default:
			return
		}
	}
}

func (d *Dispatcher) worker(id int) {
	for {
		select {
		case <-d.ctx.Done():
			goto OUT
		case fn := <-d.queue:
			d.run(id, fn)
		}
	}
OUT:
	d.wg.Done()
}

func (d *Dispatcher) run(id int, fn func()) {
	defer func() {
		if r := recover(); r != nil && d.logger != nil {
			d.logger.Error().Int("worker", id).Msgf("observer panicked: %v", r)
		}
	}()
	fn()
}
