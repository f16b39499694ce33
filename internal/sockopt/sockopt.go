// SPDX-License-Identifier: Apache-2.0

// Package sockopt tunes the TCP sockets opened by the default dialer.
package sockopt

import (
	"errors"
	"strings"
)

var (
	ControlErr     = errors.New("unable to set socket options")
	UnsupportedErr = errors.New("not supported on this platform")
)

func tcp(network string) bool {
	return strings.HasPrefix(network, "tcp")
}
