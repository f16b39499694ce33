// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"errors"
	"io"

	"github.com/loopholelabs/polyglot/v2"
)

// Packet is a header plus its optional body. Heartbeat family packets have a
// nil Body.
type Packet struct {
	Header Header
	Body   Body
}

// NewPacket builds a packet for cmd with a fresh serial number and a header
// whose DataLen matches body.
func NewPacket(cmd Command, body Body) *Packet {
	p := &Packet{
		Header: NewHeader(cmd),
		Body:   body,
	}
	if body != nil {
		p.Header.DataLen = uint32(body.Size())
	}
	return p
}

func (p *Packet) size() int {
	if p.Body == nil {
		return 0
	}
	return p.Body.Size()
}

// Encode appends the full frame to buf. Nothing is written when the packet
// violates one of its length invariants.
func (p *Packet) Encode(buf *polyglot.Buffer) error {
	if p.Body != nil {
		if err := p.Body.Validate(); err != nil {
			return err
		}
	}
	if p.Header.Command.Heartbeat() && p.Body != nil {
		return encodeError("%s carries no body", p.Header.Command)
	}
	if uint64(p.Header.DataLen) != uint64(p.size()) {
		return encodeError("header declares %d body bytes, body is %d", p.Header.DataLen, p.size())
	}
	p.Header.Encode(buf)
	if p.Body != nil {
		p.Body.Encode(buf)
	}
	return nil
}

// Marshal returns the encoded frame as a freshly allocated slice.
func Marshal(p *Packet) ([]byte, error) {
	buf := polyglot.GetBuffer()
	defer polyglot.PutBuffer(buf)
	if err := p.Encode(buf); err != nil {
		return nil, err
	}
	return append([]byte(nil), buf.Bytes()...), nil
}

// DecodeBody decodes buf as the body type carried by cmd. The heartbeat
// family never allocates a body.
func DecodeBody(cmd Command, buf []byte) (Body, error) {
	var body Body
	switch cmd {
	case CommandHeartbeat, CommandHeartbeatAck:
		if len(buf) != 0 {
			return nil, framingError("%s carries no body, got %d bytes", cmd, len(buf))
		}
		return nil, nil
	case CommandGetFeature:
		body = new(ImageData)
	case CommandGetFeatureAck:
		body = new(FaceFeatures)
	default:
		return nil, errors.Join(DecodeErr, UnknownCommandErr, errors.New(cmd.String()))
	}
	if err := body.Decode(buf); err != nil {
		return nil, err
	}
	return body, nil
}

// Unmarshal decodes one complete frame held in buf.
func Unmarshal(buf []byte) (*Packet, error) {
	p := new(Packet)
	if err := p.Header.Decode(buf); err != nil {
		return nil, err
	}
	data := buf[HeaderSize:]
	if uint64(len(data)) != uint64(p.Header.DataLen) {
		return nil, framingError("header declares %d body bytes, frame has %d", p.Header.DataLen, len(data))
	}
	body, err := DecodeBody(p.Header.Command, data)
	if err != nil {
		return nil, err
	}
	p.Body = body
	return p, nil
}

// ReadFrame blocks until a full header and the DataLen bytes it declares have
// been read from r. Bodies larger than maxBody are rejected as framing errors
// before any allocation; a maxBody of zero disables the check.
func ReadFrame(r io.Reader, maxBody uint32) (Header, []byte, error) {
	var h Header
	var head [HeaderSize]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return h, nil, err
	}
	if err := h.Decode(head[:]); err != nil {
		return h, nil, err
	}
	if maxBody > 0 && h.DataLen > maxBody {
		return h, nil, framingError("body of %d bytes exceeds limit of %d", h.DataLen, maxBody)
	}
	if h.DataLen == 0 {
		return h, nil, nil
	}
	data := make([]byte, h.DataLen)
	if _, err := io.ReadFull(r, data); err != nil {
		return h, nil, err
	}
	return h, data, nil
}
