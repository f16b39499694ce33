// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loopholelabs/faceclient/pkg/call"
	"github.com/loopholelabs/faceclient/pkg/wire"
)

// heartbeatLoop sends a heartbeat every HeartbeatPeriod, measured from the
// end of the previous one. A failed heartbeat is the only event that causes a
// reconnect.
func (c *Client) heartbeatLoop() {
	timer := time.NewTimer(c.options.HeartbeatPeriod)
	defer timer.Stop()
	for {
		select {
		case <-c.ctx.Done():
			goto OUT
		case <-timer.C:
		}
		if err := c.beat(); err != nil {
			if c.ctx.Err() != nil {
				goto OUT
			}
			c.metrics.reconnects.Inc()
			c.logger.Warn().Str("session", c.Session().String()).Err(err).Msg("heartbeat failed, reconnecting")
			if !c.reconnect() {
				goto OUT
			}
		}
		timer.Reset(c.options.HeartbeatPeriod)
	}
OUT:
	c.wg.Done()
}

func (c *Client) beat() error {
	request := wire.NewPacket(wire.CommandHeartbeat, nil)
	hb := call.New(request, wire.CommandHeartbeatAck, c.dispatcher)
	c.heartbeat.Store(hb)
	if err := c.Send(request); err != nil {
		hb.Fail(err)
		return err
	}
	hb.MarkSent(time.Now())

	ctx, cancel := context.WithTimeout(c.ctx, c.options.HeartbeatTimeout)
	defer cancel()
	response, err := hb.WaitContext(ctx)
	if err != nil {
		return err
	}
	if response.Header.Command != wire.CommandHeartbeatAck {
		return errors.Join(UnexpectedReplyErr, fmt.Errorf("heartbeat answered with %s", response.Header.Command))
	}

	rtt := hb.Latency()
	c.metrics.heartbeatLatency.Observe(rtt.Seconds())
	if rtt > c.options.HeartbeatTimeout/2 {
		c.logger.Warn().Int("serial", int(hb.Serial())).Str("elapsed", rtt.String()).Msg("heartbeat took too long")
	} else {
		c.logger.Debug().Int("serial", int(hb.Serial())).Str("elapsed", rtt.String()).Msg("heartbeat complete")
	}
	return nil
}
