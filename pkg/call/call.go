// SPDX-License-Identifier: Apache-2.0

package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/loopholelabs/faceclient/pkg/wire"
)

var (
	WaitTimeoutErr    = errors.New("timed out waiting for response")
	UnexpectedBodyErr = errors.New("unexpected response body")
	errNilResponse    = errors.New("nil response")
)

// Call is the handle returned for every request. It is resolved exactly once,
// either with a response packet or with an error, and later resolutions are
// ignored.
type Call struct {
	request    *wire.Packet
	expect     wire.Command
	dispatcher *Dispatcher
	done       chan struct{}

	mu         sync.Mutex
	resolved   bool
	response   *wire.Packet
	err        error
	built      time.Time
	sent       time.Time
	resolvedAt time.Time
	observers  []observerEntry
	token      uint64
	abandon    func(*Call)
}

// New creates a pending call for request whose response is expected to carry
// the expect command. Observers are dispatched on dispatcher, or on the
// package default when dispatcher is nil.
func New(request *wire.Packet, expect wire.Command, dispatcher *Dispatcher) *Call {
	if dispatcher == nil {
		dispatcher = defaultDispatcher()
	}
	return &Call{
		request:    request,
		expect:     expect,
		dispatcher: dispatcher,
		done:       make(chan struct{}),
		built:      time.Now(),
	}
}

func (c *Call) Serial() int32 {
	return c.request.Header.Serial
}

func (c *Call) Request() *wire.Packet {
	return c.request
}

// Expect is the command of the response this call is waiting for.
func (c *Call) Expect() wire.Command {
	return c.expect
}

// Resolve completes the call successfully. It returns false if the call was
// already resolved.
func (c *Call) Resolve(response *wire.Packet) bool {
	if response == nil {
		return c.Fail(errNilResponse)
	}
	return c.resolve(response, nil)
}

// Fail completes the call with err. It returns false if the call was already
// resolved.
func (c *Call) Fail(err error) bool {
	return c.resolve(nil, err)
}

func (c *Call) resolve(response *wire.Packet, err error) bool {
	c.mu.Lock()
	if c.resolved {
		c.mu.Unlock()
		return false
	}
	c.resolved = true
	c.response = response
	c.err = err
	c.resolvedAt = time.Now()
	observers := c.observers
	c.observers = nil
	close(c.done)
	c.mu.Unlock()

	for _, entry := range observers {
		c.dispatch(entry.observer)
	}
	return true
}

// Done is closed once the call has been resolved.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

func (c *Call) Resolved() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the call is resolved.
func (c *Call) Wait() (*wire.Packet, error) {
	<-c.done
	return c.result()
}

// WaitTimeout blocks until the call is resolved or timeout elapses. When the
// timeout wins the call is failed locally with WaitTimeoutErr; a response that
// arrives afterwards is discarded.
func (c *Call) WaitTimeout(timeout time.Duration) (*wire.Packet, error) {
	if timeout <= 0 {
		if !c.Resolved() {
			c.giveUp(errors.Join(WaitTimeoutErr, fmt.Errorf("after %s", timeout)))
		}
		return c.result()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-c.done:
	case <-timer.C:
		c.giveUp(errors.Join(WaitTimeoutErr, fmt.Errorf("after %s", timeout)))
	}
	return c.result()
}

// WaitContext blocks until the call is resolved or ctx is done, in which case
// the call is failed with WaitTimeoutErr joined with the context error.
func (c *Call) WaitContext(ctx context.Context) (*wire.Packet, error) {
	select {
	case <-c.done:
	case <-ctx.Done():
		c.giveUp(errors.Join(WaitTimeoutErr, ctx.Err()))
	}
	return c.result()
}

// OnAbandon sets fn to run, on the waiting goroutine, when WaitTimeout or
// WaitContext gives up and fails the call. It is not run for any other
// resolution.
func (c *Call) OnAbandon(fn func(*Call)) {
	c.mu.Lock()
	c.abandon = fn
	c.mu.Unlock()
}

func (c *Call) giveUp(err error) {
	if !c.Fail(err) {
		return
	}
	c.mu.Lock()
	fn := c.abandon
	c.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

// Features waits for the call and returns its face features body.
func (c *Call) Features() (*wire.FaceFeatures, error) {
	response, err := c.Wait()
	if err != nil {
		return nil, err
	}
	features, ok := response.Body.(*wire.FaceFeatures)
	if !ok {
		return nil, errors.Join(UnexpectedBodyErr, fmt.Errorf("%s response has body %T", response.Header.Command, response.Body))
	}
	return features, nil
}

func (c *Call) result() (*wire.Packet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.response, c.err
}

// MarkSent records the moment the request bytes were written.
func (c *Call) MarkSent(t time.Time) {
	c.mu.Lock()
	c.sent = t
	c.mu.Unlock()
}

func (c *Call) Built() time.Time {
	return c.built
}

func (c *Call) Sent() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent
}

func (c *Call) ResolvedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolvedAt
}

// Age is the time elapsed since the call was built.
func (c *Call) Age(now time.Time) time.Duration {
	return now.Sub(c.built)
}

// Latency is the time between building and resolving the call, or zero while
// the call is pending.
func (c *Call) Latency() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.resolved {
		return 0
	}
	return c.resolvedAt.Sub(c.built)
}

func (c *Call) String() string {
	return fmt.Sprintf("call(serial=%d, cmd=%s)", c.Serial(), c.request.Header.Command)
}
