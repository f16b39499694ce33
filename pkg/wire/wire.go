// SPDX-License-Identifier: Apache-2.0

// Package wire implements the framing and body codecs of the face-analysis
// protocol. Every multi-byte field is big-endian and no field is padded.
package wire

import (
	"errors"
	"fmt"

	"github.com/loopholelabs/polyglot/v2"
)

var (
	DecodeErr         = errors.New("unable to decode buffer")
	FramingErr        = errors.New("malformed frame")
	UnknownCommandErr = errors.New("unknown command")
	EncodeErr         = errors.New("unable to encode message")
)

const (
	Version = 1

	HeaderSize           = 12
	ImageDataMinSize     = 7
	FaceFeaturesMinSize  = 2
	FaceFeatureMinSize   = 23
	floatSize            = 4
	MaximumFeatureLength = 1<<15 - 1
)

type Command uint16

const (
	CommandHeartbeat     Command = 0
	CommandHeartbeatAck  Command = 1
	CommandGetFeature    Command = 10
	CommandGetFeatureAck Command = 11
)

func (c Command) String() string {
	switch c {
	case CommandHeartbeat:
		return "HEARTBEAT"
	case CommandHeartbeatAck:
		return "HEARTBEAT_ACK"
	case CommandGetFeature:
		return "GET_FEATURE"
	case CommandGetFeatureAck:
		return "GET_FEATURE_ACK"
	}
	return fmt.Sprintf("COMMAND(%d)", uint16(c))
}

// Heartbeat reports whether c belongs to the heartbeat family, which never
// carries a body.
func (c Command) Heartbeat() bool {
	return c == CommandHeartbeat || c == CommandHeartbeatAck
}

// Body is a typed message body. Size must always equal the number of bytes
// Encode appends.
type Body interface {
	Size() int
	Validate() error
	Encode(buf *polyglot.Buffer)
	Decode(buf []byte) error
}

func framingError(format string, args ...any) error {
	return errors.Join(DecodeErr, FramingErr, fmt.Errorf(format, args...))
}

func encodeError(format string, args ...any) error {
	return errors.Join(EncodeErr, fmt.Errorf(format, args...))
}
