// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"math"
	"math/rand/v2"
	"sync/atomic"
)

var sequence atomic.Int32

func init() {
	sequence.Store(seed())
}

func seed() int32 {
	return rand.Int32N(math.MaxInt32 / 10)
}

// NextSerial returns the next process-wide serial number. Serials are always
// positive; the sequence restarts from a random point instead of wrapping.
func NextSerial() int32 {
	for {
		id := sequence.Add(1)
		if id > 0 && id < math.MaxInt32 {
			return id
		}
		sequence.CompareAndSwap(id, seed())
	}
}
