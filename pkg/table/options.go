// SPDX-License-Identifier: Apache-2.0

package table

import (
	"time"

	logging "github.com/loopholelabs/logging/types"

	"github.com/loopholelabs/faceclient/pkg/call"
)

type Options struct {
	// MaxConcurrent bounds the number of pending calls, zero means unlimited.
	MaxConcurrent int

	ResponseTimeout time.Duration

	// SweepPeriod is the interval of the background sweep. Zero disables the
	// sweeper, leaving Sweep to the caller.
	SweepPeriod time.Duration

	// OnTimeout, when set, is called for every call the sweep expires.
	OnTimeout func(c *call.Call)

	Logger logging.Logger
}

func validOptions(options *Options) bool {
	return options != nil && options.MaxConcurrent >= 0 && options.ResponseTimeout > 0 && options.SweepPeriod >= 0 && options.Logger != nil
}
