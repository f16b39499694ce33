// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/loopholelabs/faceclient/internal/sockopt"
)

type DialFunc func(ctx context.Context) (io.ReadWriteCloser, error)

// TCPDialFunc dials address over TCP. Unacknowledged writes are bounded by
// userTimeout on platforms that support it.
func TCPDialFunc(address string, timeout time.Duration, userTimeout time.Duration) DialFunc {
	dialer := &net.Dialer{
		Timeout: timeout,
		Control: sockopt.Control(userTimeout),
	}
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		return dialer.DialContext(ctx, "tcp", address)
	}
}
