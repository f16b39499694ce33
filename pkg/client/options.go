// SPDX-License-Identifier: Apache-2.0

package client

import (
	"runtime"
	"time"

	logging "github.com/loopholelabs/logging/types"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultMaxConcurrent    = 200
	DefaultHeartbeatTimeout = time.Second * 10
	DefaultHeartbeatPeriod  = time.Second * 5
	DefaultResponseTimeout  = time.Second * 10
	DefaultReconnectPeriod  = time.Second * 5
	DefaultDialTimeout      = time.Second * 5
	DefaultMaxBodySize      = 64 << 20
)

type Options struct {
	// Address of the face-analysis service, used by the default dialer.
	Address string

	// Dial overrides the default TCP dialer.
	Dial DialFunc

	// MaxConcurrent bounds the number of in-flight requests. Zero means
	// unlimited; DefaultOptions sets DefaultMaxConcurrent.
	MaxConcurrent int

	HeartbeatTimeout time.Duration
	HeartbeatPeriod  time.Duration
	ResponseTimeout  time.Duration

	// SweepPeriod defaults to half of ResponseTimeout.
	SweepPeriod time.Duration

	ReconnectPeriod time.Duration
	DialTimeout     time.Duration

	// MaxBodySize rejects frames declaring larger bodies as corrupt.
	MaxBodySize uint32

	DispatchWorkers int
	DispatchQueue   int

	Logger logging.Logger

	// Registerer, when set, receives the client's metrics. Wrap it with
	// prometheus.WrapRegistererWith to run several clients on one registry.
	Registerer prometheus.Registerer
}

// DefaultOptions returns options with every knob at its default value.
func DefaultOptions(address string, logger logging.Logger) *Options {
	return &Options{
		Address:          address,
		MaxConcurrent:    DefaultMaxConcurrent,
		HeartbeatTimeout: DefaultHeartbeatTimeout,
		HeartbeatPeriod:  DefaultHeartbeatPeriod,
		ResponseTimeout:  DefaultResponseTimeout,
		SweepPeriod:      DefaultResponseTimeout / 2,
		ReconnectPeriod:  DefaultReconnectPeriod,
		DialTimeout:      DefaultDialTimeout,
		MaxBodySize:      DefaultMaxBodySize,
		Logger:           logger,
	}
}

func validOptions(options *Options) bool {
	return options != nil && (options.Address != "" || options.Dial != nil) && options.Logger != nil &&
		options.MaxConcurrent >= 0 && options.HeartbeatTimeout >= 0 && options.HeartbeatPeriod >= 0 &&
		options.ResponseTimeout >= 0 && options.SweepPeriod >= 0 && options.ReconnectPeriod >= 0 &&
		options.DialTimeout >= 0 && options.DispatchWorkers >= 0 && options.DispatchQueue >= 0
}

// withDefaults returns a copy of options with zero durations and sizes
// replaced by their defaults.
func (options *Options) withDefaults() *Options {
	o := *options
	if o.HeartbeatTimeout == 0 {
		o.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if o.HeartbeatPeriod == 0 {
		o.HeartbeatPeriod = DefaultHeartbeatPeriod
	}
	if o.ResponseTimeout == 0 {
		o.ResponseTimeout = DefaultResponseTimeout
	}
	if o.SweepPeriod == 0 {
		o.SweepPeriod = o.ResponseTimeout / 2
	}
	if o.ReconnectPeriod == 0 {
		o.ReconnectPeriod = DefaultReconnectPeriod
	}
	if o.DialTimeout == 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.MaxBodySize == 0 {
		o.MaxBodySize = DefaultMaxBodySize
	}
	if o.DispatchWorkers == 0 {
		o.DispatchWorkers = runtime.NumCPU()
	}
	if o.DispatchQueue == 0 {
		o.DispatchQueue = o.DispatchWorkers + 1
	}
	if o.Dial == nil {
		o.Dial = TCPDialFunc(o.Address, o.DialTimeout, o.HeartbeatTimeout)
	}
	return &o
}
