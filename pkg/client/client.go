// SPDX-License-Identifier: Apache-2.0

// Package client keeps one persistent connection to a face-analysis service.
// It serializes outbound frames, correlates responses with the calls waiting
// for them, and heals the connection when heartbeats stop being answered.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	logging "github.com/loopholelabs/logging/types"

	"github.com/loopholelabs/faceclient/internal/cancel"
	"github.com/loopholelabs/faceclient/pkg/call"
	"github.com/loopholelabs/faceclient/pkg/table"
)

var (
	OptionsErr           = errors.New("invalid options")
	ConnectionErr        = errors.New("connection error")
	UnmatchedResponseErr = errors.New("response does not match any pending request")
	UnexpectedReplyErr   = errors.New("unexpected reply")
	MetricsErr           = errors.New("unable to register metrics")
	ClosedErr            = errors.New("client closed")
)

type State uint32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(s))
	}
}

// session is a single connection lifetime. done is closed when its read-loop
// has exited.
type session struct {
	id   uuid.UUID
	conn io.ReadWriteCloser
	done chan struct{}
}

type Client struct {
	options    *Options
	table      *table.Table
	dispatcher *call.Dispatcher
	metrics    *metrics
	watch      *cancel.Watch

	state     atomic.Uint32
	active    atomic.Pointer[session]
	heartbeat atomic.Pointer[call.Call]

	writeMu     sync.Mutex
	reconnectMu sync.Mutex

	readyMu sync.Mutex
	ready   chan struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	logger    logging.Logger
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New connects to the service and starts the heartbeat. It blocks until the
// first connection succeeds or ctx is done. Cancelling ctx later closes the
// client.
func New(ctx context.Context, options *Options) (*Client, error) {
	if !validOptions(options) {
		return nil, OptionsErr
	}
	options = options.withDefaults()

	c := &Client{
		options:    options,
		dispatcher: call.NewDispatcher(options.DispatchWorkers, options.DispatchQueue, options.Logger),
		logger:     options.Logger.SubLogger("client"),
		ready:      make(chan struct{}),
	}
	c.metrics = newMetrics(options.Registerer, func() float64 {
		return float64(c.Pending())
	})

	var err error
	c.table, err = table.New(&table.Options{
		MaxConcurrent:   options.MaxConcurrent,
		ResponseTimeout: options.ResponseTimeout,
		SweepPeriod:     options.SweepPeriod,
		OnTimeout: func(*call.Call) {
			c.metrics.timeouts.Inc()
		},
		Logger: options.Logger,
	})
	if err != nil {
		c.dispatcher.Close()
		return nil, errors.Join(OptionsErr, err)
	}
	if err = c.metrics.register(); err != nil {
		c.table.Close()
		c.dispatcher.Close()
		return nil, err
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.watch = cancel.New(ctx, c.shutdown)

	if !c.reconnect() || c.ctx.Err() != nil {
		c.watch.Stop()
		c.shutdown()
		return nil, errors.Join(ClosedErr, context.Cause(ctx))
	}

	c.wg.Add(1)
	go c.heartbeatLoop()
	return c, nil
}

func (c *Client) State() State {
	return State(c.state.Load())
}

// Pending is the number of requests waiting for a response.
func (c *Client) Pending() int {
	return c.table.Len()
}

// Session identifies the current connection, or is uuid.Nil while
// disconnected.
func (c *Client) Session() uuid.UUID {
	if s := c.active.Load(); s != nil {
		return s.id
	}
	return uuid.Nil
}

// Close stops the heartbeat, waits for the read-loop, closes the connection
// and fails every pending call with ClosedErr. It is safe to call more than
// once. Requests made after the context given to New has ended fail with
// ClosedErr joined with that context's cause.
func (c *Client) Close() error {
	c.watch.Stop()
	c.shutdown()
	return nil
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		c.logger.Info().Msg("closing client")
		c.cancel()
		c.wg.Wait()

		c.reconnectMu.Lock()
		c.disconnect()
		c.reconnectMu.Unlock()

		c.table.Close()
		if hb := c.heartbeat.Load(); hb != nil {
			hb.Fail(ClosedErr)
		}
		c.metrics.unregister()
		c.dispatcher.Close()
		c.state.Store(uint32(StateDisconnected))
		c.logger.Info().Msg("client closed")
	})
}

// reconnect tears down the current session, then dials until a new one is
// established. It returns false only when the client is closing.
func (c *Client) reconnect() bool {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()

	c.disconnect()
	c.state.Store(uint32(StateConnecting))
	for {
		if c.ctx.Err() != nil {
			c.state.Store(uint32(StateDisconnected))
			return false
		}
		start := time.Now()
		conn, err := c.options.Dial(c.ctx)
		if err == nil {
			s := &session{
				id:   uuid.New(),
				conn: conn,
				done: make(chan struct{}),
			}
			c.active.Store(s)
			c.state.Store(uint32(StateConnected))
			c.setReady(true)
			c.logger.Info().Str("session", s.id.String()).Str("elapsed", time.Since(start).String()).Msg("connected")
			go c.read(s)
			return true
		}
		c.metrics.dialFailures.Inc()
		c.logger.Warn().Err(err).Msgf("unable to connect, retrying in %s", c.options.ReconnectPeriod)
		timer := time.NewTimer(c.options.ReconnectPeriod)
		select {
		case <-c.ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}

// disconnect unblocks and joins the read-loop of the active session before
// closing its connection. The caller holds reconnectMu.
func (c *Client) disconnect() {
	c.setReady(false)
	s := c.active.Swap(nil)
	if s == nil {
		return
	}
	c.state.Store(uint32(StateClosing))
	c.logger.Info().Str("session", s.id.String()).Msg("disconnecting")
	if d, ok := s.conn.(interface{ SetDeadline(time.Time) error }); ok && d.SetDeadline(time.Now()) == nil {
		<-s.done
		_ = s.conn.Close()
	} else {
		_ = s.conn.Close()
		<-s.done
	}
	c.state.Store(uint32(StateDisconnected))
}

// setReady opens or closes the gate that sends wait on while a connection is
// being established.
func (c *Client) setReady(ready bool) {
	c.readyMu.Lock()
	defer c.readyMu.Unlock()
	select {
	case <-c.ready:
		if !ready {
			c.ready = make(chan struct{})
		}
	default:
		if ready {
			close(c.ready)
		}
	}
}

// awaitConnected blocks until a session is established, the client is closed,
// or deadline passes.
func (c *Client) awaitConnected(deadline time.Time) error {
	c.readyMu.Lock()
	ready := c.ready
	c.readyMu.Unlock()
	select {
	case <-ready:
		return nil
	default:
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case <-ready:
		return nil
	case <-c.ctx.Done():
		return c.closedErr()
	case <-timer.C:
		return errors.Join(ConnectionErr, errNotConnected, fmt.Errorf("no connection within %s", c.options.ResponseTimeout))
	}
}
