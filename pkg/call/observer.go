// SPDX-License-Identifier: Apache-2.0

package call

import (
	"github.com/loopholelabs/faceclient/pkg/wire"
)

// Observer is notified once a call is resolved. OnSuccess or OnFailure runs
// first, followed by OnComplete, all on a dispatcher worker. An observer that
// resolves or observes other calls sharing the dispatcher may find the queue
// full; its submissions then run on their own goroutines after OverflowWait.
type Observer interface {
	OnSuccess(response *wire.Packet)
	OnFailure(err error)
	OnComplete(c *Call)
}

// ObserverFuncs adapts plain functions to an Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Success  func(response *wire.Packet)
	Failure  func(err error)
	Complete func(c *Call)
}

func (o ObserverFuncs) OnSuccess(response *wire.Packet) {
	if o.Success != nil {
		o.Success(response)
	}
}

func (o ObserverFuncs) OnFailure(err error) {
	if o.Failure != nil {
		o.Failure(err)
	}
}

func (o ObserverFuncs) OnComplete(c *Call) {
	if o.Complete != nil {
		o.Complete(c)
	}
}

type observerEntry struct {
	token    uint64
	observer Observer
}

// AddObserver registers o and returns a token for RemoveObserver. If the call
// is already resolved, o is dispatched immediately.
func (c *Call) AddObserver(o Observer) uint64 {
	c.mu.Lock()
	c.token++
	token := c.token
	if c.resolved {
		c.mu.Unlock()
		c.dispatch(o)
		return token
	}
	c.observers = append(c.observers, observerEntry{token: token, observer: o})
	c.mu.Unlock()
	return token
}

// RemoveObserver unregisters the observer behind token. It returns false when
// the observer is unknown or has already been dispatched.
func (c *Call) RemoveObserver(token uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, entry := range c.observers {
		if entry.token == token {
			c.observers = append(c.observers[:i], c.observers[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Call) dispatch(o Observer) {
	c.dispatcher.Submit(func() {
		response, err := c.result()
		if err != nil {
			o.OnFailure(err)
		} else {
			o.OnSuccess(response)
		}
		o.OnComplete(c)
	})
}
