// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bufio"
	"errors"

	"github.com/loopholelabs/faceclient/pkg/call"
	"github.com/loopholelabs/faceclient/pkg/wire"
)

// read is the read-loop of s. Any read or framing failure ends it and leaves
// the client disconnected; recovery is left to the heartbeat.
func (c *Client) read(s *session) {
	reader := bufio.NewReader(s.conn)
	for {
		h, data, err := wire.ReadFrame(reader, c.options.MaxBodySize)
		if err != nil {
			if c.active.Load() != s {
				c.logger.Debug().Str("session", s.id.String()).Err(err).Msg("read-loop stopped")
			} else if errors.Is(err, wire.FramingErr) {
				c.logger.Error().Str("session", s.id.String()).Err(err).Msg("corrupt frame, dropping connection")
			} else {
				c.logger.Error().Str("session", s.id.String()).Err(errors.Join(ConnectionErr, err)).Msg("unable to read from connection")
			}
			goto OUT
		}
		if h.Command.Heartbeat() {
			if err = c.acknowledge(h, data); err != nil {
				c.logger.Error().Str("session", s.id.String()).Err(err).Msg("corrupt heartbeat acknowledgement, dropping connection")
				goto OUT
			}
			continue
		}
		if err = c.respond(h, data); err != nil {
			c.logger.Error().Str("session", s.id.String()).Err(err).Msg("corrupt response, dropping connection")
			goto OUT
		}
	}
OUT:
	if c.active.Load() == s {
		c.setReady(false)
		c.state.CompareAndSwap(uint32(StateConnected), uint32(StateDisconnected))
	}
	close(s.done)
}

// acknowledge resolves the outstanding heartbeat if h answers it.
func (c *Client) acknowledge(h wire.Header, data []byte) error {
	if _, err := wire.DecodeBody(h.Command, data); err != nil {
		return err
	}
	if h.Command != wire.CommandHeartbeatAck {
		c.logger.Warn().Int("serial", int(h.Serial)).Str("cmd", h.Command.String()).Msg("discarding heartbeat sent by the server")
		return nil
	}
	hb := c.heartbeat.Load()
	if hb != nil && hb.Serial() == h.Serial && hb.Resolve(&wire.Packet{Header: h}) {
		return nil
	}
	c.metrics.unmatched.Inc()
	c.logger.Warn().Int("serial", int(h.Serial)).Msg("discarding unknown heartbeat acknowledgement, it may have timed out")
	return nil
}

// respond decodes data with the body type recorded on the pending call that
// h answers and resolves it. A decode failure fails that call and is returned
// so the read-loop can drop the connection.
func (c *Client) respond(h wire.Header, data []byte) error {
	pending, ok := c.table.Remove(h.Serial)
	if !ok {
		// A response may overtake the registration that follows a write.
		c.writeMu.Lock()
		c.writeMu.Unlock()
		pending, ok = c.table.Remove(h.Serial)
	}
	if !ok {
		c.metrics.unmatched.Inc()
		c.logger.Warn().Int("serial", int(h.Serial)).Str("cmd", h.Command.String()).Err(UnmatchedResponseErr).Msg("discarding response, it may have timed out")
		return nil
	}
	if h.Command != pending.Expect() {
		c.logger.Warn().Int("serial", int(h.Serial)).Str("cmd", h.Command.String()).Msgf("expected %s", pending.Expect())
	}
	body, err := wire.DecodeBody(pending.Expect(), data)
	if err != nil {
		pending.Fail(err)
		return err
	}
	if pending.Resolve(&wire.Packet{Header: h, Body: body}) {
		c.observe(pending)
	}
	return nil
}

func (c *Client) observe(pending *call.Call) {
	if sent := pending.Sent(); !sent.IsZero() {
		c.metrics.requestLatency.Observe(pending.ResolvedAt().Sub(sent).Seconds())
	}
	c.logger.Debug().Int("serial", int(pending.Serial())).Str("elapsed", pending.Latency().String()).Msgf("%s resolved", pending)
}
