// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"math"

	"github.com/loopholelabs/polyglot/v2"
)

// FaceFeature describes a single detected face. FeatureLen is the number of
// floats in Feature.
type FaceFeature struct {
	Left             int16
	Top              int16
	Width            int16
	Height           int16
	FeatureLen       int16
	Age              int16
	Gender           uint8
	Rotate           int16
	ConfidenceAge    float32
	ConfidenceGender float32
	Feature          []float32
}

func (f *FaceFeature) Size() int {
	return FaceFeatureMinSize + floatSize*len(f.Feature)
}

func (f *FaceFeature) Validate() error {
	if f.FeatureLen < 0 {
		return encodeError("negative feature length %d", f.FeatureLen)
	}
	if int(f.FeatureLen) != len(f.Feature) {
		return encodeError("feature length %d does not match %d floats", f.FeatureLen, len(f.Feature))
	}
	return nil
}

func (f *FaceFeature) Encode(buf *polyglot.Buffer) {
	b := make([]byte, f.Size())
	binary.BigEndian.PutUint16(b[0:2], uint16(f.Left))
	binary.BigEndian.PutUint16(b[2:4], uint16(f.Top))
	binary.BigEndian.PutUint16(b[4:6], uint16(f.Width))
	binary.BigEndian.PutUint16(b[6:8], uint16(f.Height))
	binary.BigEndian.PutUint16(b[8:10], uint16(f.FeatureLen))
	binary.BigEndian.PutUint16(b[10:12], uint16(f.Age))
	b[12] = f.Gender
	binary.BigEndian.PutUint16(b[13:15], uint16(f.Rotate))
	binary.BigEndian.PutUint32(b[15:19], math.Float32bits(f.ConfidenceAge))
	binary.BigEndian.PutUint32(b[19:23], math.Float32bits(f.ConfidenceGender))
	offset := FaceFeatureMinSize
	for _, v := range f.Feature {
		binary.BigEndian.PutUint32(b[offset:offset+floatSize], math.Float32bits(v))
		offset += floatSize
	}
	buf.Write(b)
}

func (f *FaceFeature) Decode(buf []byte) error {
	n, err := f.decode(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return framingError("face feature is %d bytes, buffer has %d", n, len(buf))
	}
	return nil
}

// decode reads one record from the front of buf and returns the number of
// bytes it consumed.
func (f *FaceFeature) decode(buf []byte) (int, error) {
	if len(buf) < FaceFeatureMinSize {
		return 0, framingError("face feature needs at least %d bytes, got %d", FaceFeatureMinSize, len(buf))
	}
	featureLen := int16(binary.BigEndian.Uint16(buf[8:10]))
	if featureLen < 0 {
		return 0, framingError("negative feature length %d", featureLen)
	}
	size := FaceFeatureMinSize + floatSize*int(featureLen)
	if len(buf) < size {
		return 0, framingError("feature length %d needs %d bytes, got %d", featureLen, size, len(buf))
	}
	f.Left = int16(binary.BigEndian.Uint16(buf[0:2]))
	f.Top = int16(binary.BigEndian.Uint16(buf[2:4]))
	f.Width = int16(binary.BigEndian.Uint16(buf[4:6]))
	f.Height = int16(binary.BigEndian.Uint16(buf[6:8]))
	f.FeatureLen = featureLen
	f.Age = int16(binary.BigEndian.Uint16(buf[10:12]))
	f.Gender = buf[12]
	f.Rotate = int16(binary.BigEndian.Uint16(buf[13:15]))
	f.ConfidenceAge = math.Float32frombits(binary.BigEndian.Uint32(buf[15:19]))
	f.ConfidenceGender = math.Float32frombits(binary.BigEndian.Uint32(buf[19:23]))
	f.Feature = make([]float32, featureLen)
	offset := FaceFeatureMinSize
	for i := range f.Feature {
		f.Feature[i] = math.Float32frombits(binary.BigEndian.Uint32(buf[offset : offset+floatSize]))
		offset += floatSize
	}
	return size, nil
}

// FaceFeatures is the GET_FEATURE_ACK response body. A FaceNum of zero is
// encoded as the bare 2 byte count.
type FaceFeatures struct {
	FaceNum  uint16
	Features []FaceFeature
}

func NewFaceFeatures(features ...FaceFeature) *FaceFeatures {
	return &FaceFeatures{
		FaceNum:  uint16(len(features)),
		Features: features,
	}
}

func (f *FaceFeatures) Size() int {
	if f.FaceNum == 0 {
		return FaceFeaturesMinSize
	}
	size := FaceFeaturesMinSize
	for i := range f.Features {
		size += f.Features[i].Size()
	}
	return size
}

func (f *FaceFeatures) Validate() error {
	if int(f.FaceNum) != len(f.Features) {
		return encodeError("face count %d does not match %d records", f.FaceNum, len(f.Features))
	}
	for i := range f.Features {
		if err := f.Features[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (f *FaceFeatures) Encode(buf *polyglot.Buffer) {
	var b [FaceFeaturesMinSize]byte
	binary.BigEndian.PutUint16(b[:], f.FaceNum)
	buf.Write(b[:])
	if f.FaceNum == 0 {
		return
	}
	for i := range f.Features {
		f.Features[i].Encode(buf)
	}
}

func (f *FaceFeatures) Decode(buf []byte) error {
	if len(buf) < FaceFeaturesMinSize {
		return framingError("face features need at least %d bytes, got %d", FaceFeaturesMinSize, len(buf))
	}
	f.FaceNum = binary.BigEndian.Uint16(buf[0:2])
	f.Features = nil
	offset := FaceFeaturesMinSize
	if need := int(f.FaceNum) * FaceFeatureMinSize; need > len(buf)-offset {
		return framingError("%d faces need at least %d bytes, buffer has %d", f.FaceNum, need, len(buf)-offset)
	}
	if f.FaceNum > 0 {
		f.Features = make([]FaceFeature, f.FaceNum)
		for i := range f.Features {
			n, err := f.Features[i].decode(buf[offset:])
			if err != nil {
				return err
			}
			offset += n
		}
	}
	if offset != len(buf) {
		return framingError("%d faces use %d bytes, buffer has %d", f.FaceNum, offset, len(buf))
	}
	return nil
}
