//go:build linux

// SPDX-License-Identifier: Apache-2.0

package sockopt

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestControl(t *testing.T) {
	defer goleak.VerifyNone(t)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := lis.Accept()
		if err == nil {
			accepted <- conn
		}
		close(accepted)
	}()

	dialer := &net.Dialer{
		Timeout: time.Second,
		Control: Control(time.Second * 7),
	}
	conn, err := dialer.DialContext(context.Background(), "tcp", lis.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	rc, err := conn.(*net.TCPConn).SyscallConn()
	require.NoError(t, err)
	timeout, err := UserTimeout(rc)
	require.NoError(t, err)
	assert.Equal(t, time.Second*7, timeout)

	server, ok := <-accepted
	require.True(t, ok)
	require.NoError(t, server.Close())
}

func TestControlSkipsNonTCP(t *testing.T) {
	require.NoError(t, Control(time.Second)("unix", "/tmp/ignored.sock", nil))
}
