// SPDX-License-Identifier: Apache-2.0

package client

import (
	"errors"
	"time"

	"github.com/loopholelabs/polyglot/v2"

	"github.com/loopholelabs/faceclient/pkg/call"
	"github.com/loopholelabs/faceclient/pkg/table"
	"github.com/loopholelabs/faceclient/pkg/wire"
)

var errNotConnected = errors.New("not connected")

// GetFeatures requests face features for img. The returned call resolves with
// a GET_FEATURE_ACK packet carrying *wire.FaceFeatures, or fails. Like
// SendCall it may block while the client reconnects.
func (c *Client) GetFeatures(img []byte, useFeature bool, useAge bool, useGender bool) *call.Call {
	request := wire.NewPacket(wire.CommandGetFeature, wire.NewImageData(img, useFeature, useAge, useGender))
	pending := call.New(request, wire.CommandGetFeatureAck, c.dispatcher)
	_ = c.SendCall(request, pending)
	return pending
}

// Send writes p as a single frame.
func (c *Client) Send(p *wire.Packet) error {
	buf := polyglot.GetBuffer()
	defer polyglot.PutBuffer(buf)
	if err := p.Encode(buf); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.write(buf.Bytes())
}

// SendCall writes p and, once the frame is written, stamps the send time on
// pending and registers it for the response. While the client is reconnecting
// the write waits up to ResponseTimeout for a connection. Any failure fails
// pending and is returned.
func (c *Client) SendCall(p *wire.Packet, pending *call.Call) error {
	buf := polyglot.GetBuffer()
	defer polyglot.PutBuffer(buf)
	if err := p.Encode(buf); err != nil {
		pending.Fail(err)
		return err
	}
	// A call abandoned by its caller's wait budget stops being tracked, so a
	// late response is treated as unmatched.
	pending.OnAbandon(func(abandoned *call.Call) {
		c.table.Discard(abandoned)
	})

	deadline := time.Now().Add(c.options.ResponseTimeout)
	for {
		if err := c.awaitConnected(deadline); err != nil {
			pending.Fail(err)
			return err
		}
		c.writeMu.Lock()
		err := c.write(buf.Bytes())
		if errors.Is(err, errNotConnected) {
			c.writeMu.Unlock()
			continue
		}
		if err != nil {
			c.writeMu.Unlock()
			pending.Fail(err)
			return err
		}
		pending.MarkSent(time.Now())
		err = c.table.Register(pending)
		c.writeMu.Unlock()
		if errors.Is(err, table.DuplicateSerialErr) {
			c.logger.Error().Int("serial", int(pending.Serial())).Err(err).Msg("serial number collision")
		}
		return err
	}
}

// write sends b on the active session. The caller holds writeMu.
func (c *Client) write(b []byte) error {
	if c.ctx.Err() != nil {
		return c.closedErr()
	}
	s := c.active.Load()
	if s == nil || c.State() != StateConnected {
		return errors.Join(ConnectionErr, errNotConnected)
	}
	if _, err := s.conn.Write(b); err != nil {
		return errors.Join(ConnectionErr, err)
	}
	return nil
}

// closedErr is ClosedErr joined with the cause of the context New was given,
// when that is what closed the client.
func (c *Client) closedErr() error {
	if cause := c.watch.Cause(); cause != nil {
		return errors.Join(ClosedErr, cause)
	}
	return ClosedErr
}
