// SPDX-License-Identifier: Apache-2.0

package mockserver

import (
	"github.com/loopholelabs/faceclient/pkg/wire"
)

const maxFeatureLength = 128

// Features answers every image with a single face derived from the image
// bytes, so that callers can tell responses apart. Left and Top carry the
// image length, Age the first byte when age was requested, Gender the last
// byte when gender was requested, and Feature the leading bytes as floats
// when the embedding was requested. An empty image yields no faces.
func Features(request *wire.Packet) wire.Body {
	img, ok := request.Body.(*wire.ImageData)
	if !ok || len(img.ImgData) == 0 {
		return wire.NewFaceFeatures()
	}
	face := wire.FaceFeature{
		Left:             int16(len(img.ImgData)),
		Top:              int16(len(img.ImgData)),
		Width:            64,
		Height:           64,
		ConfidenceAge:    0.5,
		ConfidenceGender: 0.5,
	}
	if img.UseAge {
		face.Age = int16(img.ImgData[0])
	}
	if img.UseGender {
		face.Gender = img.ImgData[len(img.ImgData)-1]
	}
	if img.UseFeature {
		n := min(len(img.ImgData), maxFeatureLength)
		face.Feature = make([]float32, n)
		for i := range face.Feature {
			face.Feature[i] = float32(img.ImgData[i])
		}
		face.FeatureLen = int16(n)
	}
	return wire.NewFaceFeatures(face)
}
