// SPDX-License-Identifier: Apache-2.0

package listener

import (
	"net"
	"testing"

	"github.com/loopholelabs/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestListener(t *testing.T) {
	defer goleak.VerifyNone(t)

	lis, err := New(&Options{
		Address: "127.0.0.1:0",
		MaxConn: 1,
		Logger:  logging.Test(t, logging.Zerolog, t.Name()),
	})
	require.NoError(t, err)

	client, err := net.Dial("tcp", lis.Addr().String())
	require.NoError(t, err)

	server, err := lis.Accept()
	require.NoError(t, err)
	assert.Equal(t, client.LocalAddr().String(), server.RemoteAddr().String())

	require.NoError(t, server.Close())
	require.NoError(t, client.Close())

	require.NoError(t, lis.Close())
	require.NoError(t, lis.Close())

	_, err = lis.Accept()
	require.ErrorIs(t, err, ClosedErr)
}

func TestListenerOptions(t *testing.T) {
	_, err := New(&Options{Address: "127.0.0.1:0", MaxConn: 0, Logger: logging.Test(t, logging.Zerolog, t.Name())})
	require.ErrorIs(t, err, OptionsErr)

	_, err = New(nil)
	require.ErrorIs(t, err, OptionsErr)
}
