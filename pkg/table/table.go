// SPDX-License-Identifier: Apache-2.0

// Package table correlates in-flight calls with their responses by serial
// number, bounds how many may be outstanding, and expires the ones that are
// never answered.
package table

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	logging "github.com/loopholelabs/logging/types"

	"github.com/loopholelabs/faceclient/pkg/call"
)

var (
	OptionsErr          = errors.New("invalid options")
	CapacityExceededErr = errors.New("excessive number of concurrent requests")
	DuplicateSerialErr  = errors.New("request with the same serial number already exists")
	RequestTimeoutErr   = errors.New("request timed out")
	ClosedErr           = errors.New("table closed")
)

type Table struct {
	maxConcurrent int
	timeout       time.Duration
	period        time.Duration
	onTimeout     func(*call.Call)

	mu      sync.Mutex
	pending map[int32]*call.Call
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	logger logging.Logger
	wg     sync.WaitGroup
}

func New(options *Options) (*Table, error) {
	if !validOptions(options) {
		return nil, OptionsErr
	}
	t := &Table{
		maxConcurrent: options.MaxConcurrent,
		timeout:       options.ResponseTimeout,
		period:        options.SweepPeriod,
		onTimeout:     options.OnTimeout,
		pending:       make(map[int32]*call.Call),
		logger:        options.Logger.SubLogger("table"),
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())
	if t.period > 0 {
		t.wg.Add(1)
		go t.sweep()
	}
	return t, nil
}

// Register starts tracking c. A call rejected for capacity, for reusing the
// serial of a pending call, or because the table is closed is never inserted;
// it is failed with the matching error, which is also returned. An existing
// pending call is never replaced.
func (t *Table) Register(c *call.Call) error {
	serial := c.Serial()
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		c.Fail(ClosedErr)
		return ClosedErr
	}
	if t.maxConcurrent > 0 && len(t.pending) >= t.maxConcurrent {
		t.mu.Unlock()
		err := errors.Join(CapacityExceededErr, fmt.Errorf("the limit is %d", t.maxConcurrent))
		c.Fail(err)
		return err
	}
	if _, ok := t.pending[serial]; ok {
		t.mu.Unlock()
		err := errors.Join(DuplicateSerialErr, fmt.Errorf("serial %d", serial))
		c.Fail(err)
		return err
	}
	t.pending[serial] = c
	t.mu.Unlock()
	return nil
}

// Remove deletes and returns the call registered under serial.
func (t *Table) Remove(serial int32) (*call.Call, bool) {
	t.mu.Lock()
	c, ok := t.pending[serial]
	if ok {
		delete(t.pending, serial)
	}
	t.mu.Unlock()
	return c, ok
}

// Discard deletes c if it is still registered under its serial number.
func (t *Table) Discard(c *call.Call) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending[c.Serial()] != c {
		return false
	}
	delete(t.pending, c.Serial())
	return true
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Sweep removes every call older than the response timeout at now and fails
// it with RequestTimeoutErr. It returns the number of calls expired.
func (t *Table) Sweep(now time.Time) int {
	var expired []*call.Call
	t.mu.Lock()
	for serial, c := range t.pending {
		if c.Age(now) > t.timeout {
			delete(t.pending, serial)
			expired = append(expired, c)
		}
	}
	t.mu.Unlock()

	for _, c := range expired {
		age := c.Age(now)
		if c.Fail(errors.Join(RequestTimeoutErr, fmt.Errorf("serial %d after %s", c.Serial(), age))) {
			t.logger.Warn().Int("serial", int(c.Serial())).Str("elapsed", age.String()).Msg("request timed out")
		}
		if t.onTimeout != nil {
			t.onTimeout(c)
		}
	}
	return len(expired)
}

// FailAll removes every pending call and fails it with err.
func (t *Table) FailAll(err error) int {
	t.mu.Lock()
	pending := t.pending
	t.pending = make(map[int32]*call.Call)
	t.mu.Unlock()
	for _, c := range pending {
		c.Fail(err)
	}
	return len(pending)
}

// Close stops the sweeper and fails every pending call with ClosedErr. Calls
// registered afterwards are rejected.
func (t *Table) Close() {
	t.cancel()
	t.wg.Wait()
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	if n := t.FailAll(ClosedErr); n > 0 {
		t.logger.Info().Int("pending", n).Msg("failed pending requests on close")
	}
}

func (t *Table) sweep() {
	ticker := time.NewTicker(t.period)
	defer ticker.Stop()
	for {
		select {
		case <-t.ctx.Done():
			goto OUT
		case now := <-ticker.C:
			start := time.Now()
			if n := t.Sweep(now); n > 0 {
				t.logger.Debug().Int("expired", n).Str("elapsed", time.Since(start).String()).Msg("sweep finished")
			}
		}
	}
OUT:
	t.wg.Done()
}
