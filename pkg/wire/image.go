// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"

	"github.com/loopholelabs/polyglot/v2"
)

// ImageData is the GET_FEATURE request body.
type ImageData struct {
	UseAge     bool
	UseGender  bool
	UseFeature bool
	ImgSize    uint32
	ImgData    []byte
}

// NewImageData references img without copying it.
func NewImageData(img []byte, useFeature bool, useAge bool, useGender bool) *ImageData {
	return &ImageData{
		UseAge:     useAge,
		UseGender:  useGender,
		UseFeature: useFeature,
		ImgSize:    uint32(len(img)),
		ImgData:    img,
	}
}

func (d *ImageData) Size() int {
	return ImageDataMinSize + len(d.ImgData)
}

func (d *ImageData) Validate() error {
	if uint64(d.ImgSize) != uint64(len(d.ImgData)) {
		return encodeError("image size %d does not match %d image bytes", d.ImgSize, len(d.ImgData))
	}
	return nil
}

func (d *ImageData) Encode(buf *polyglot.Buffer) {
	var b [ImageDataMinSize]byte
	b[0] = boolByte(d.UseAge)
	b[1] = boolByte(d.UseGender)
	b[2] = boolByte(d.UseFeature)
	binary.BigEndian.PutUint32(b[3:7], d.ImgSize)
	buf.Write(b[:])
	buf.Write(d.ImgData)
}

func (d *ImageData) Decode(buf []byte) error {
	if len(buf) < ImageDataMinSize {
		return framingError("image data needs at least %d bytes, got %d", ImageDataMinSize, len(buf))
	}
	size := binary.BigEndian.Uint32(buf[3:7])
	remaining := uint64(len(buf) - ImageDataMinSize)
	if uint64(size) != remaining {
		return framingError("image size %d does not match %d remaining bytes", size, remaining)
	}
	d.UseAge = buf[0] != 0
	d.UseGender = buf[1] != 0
	d.UseFeature = buf[2] != 0
	d.ImgSize = size
	d.ImgData = append(make([]byte, 0, size), buf[ImageDataMinSize:]...)
	return nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
