// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"

	"github.com/loopholelabs/polyglot/v2"
)

// Header is the fixed 12 byte record that precedes every body:
// version:u8 serial:i32 cmd:u16 status:u8 dataLen:u32.
type Header struct {
	Version uint8
	Serial  int32
	Command Command
	Status  uint8
	DataLen uint32
}

// NewHeader returns a header for cmd carrying a fresh serial number.
func NewHeader(cmd Command) Header {
	return Header{
		Version: Version,
		Serial:  NextSerial(),
		Command: cmd,
	}
}

func (h *Header) Encode(buf *polyglot.Buffer) {
	var b [HeaderSize]byte
	b[0] = h.Version
	binary.BigEndian.PutUint32(b[1:5], uint32(h.Serial))
	binary.BigEndian.PutUint16(b[5:7], uint16(h.Command))
	b[7] = h.Status
	binary.BigEndian.PutUint32(b[8:12], h.DataLen)
	buf.Write(b[:])
}

func (h *Header) Decode(buf []byte) error {
	if len(buf) < HeaderSize {
		return framingError("header needs %d bytes, got %d", HeaderSize, len(buf))
	}
	h.Version = buf[0]
	h.Serial = int32(binary.BigEndian.Uint32(buf[1:5]))
	h.Command = Command(binary.BigEndian.Uint16(buf[5:7]))
	h.Status = buf[7]
	h.DataLen = binary.BigEndian.Uint32(buf[8:12])
	return nil
}
