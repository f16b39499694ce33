//go:build linux

// SPDX-License-Identifier: Apache-2.0

package sockopt

import (
	"errors"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Control returns a net.Dialer Control hook that enables keepalive, disables
// Nagle's algorithm and bounds how long written data may stay unacknowledged
// before the kernel drops the connection. A userTimeout of zero leaves the
// kernel default in place.
func Control(userTimeout time.Duration) func(network string, address string, rc syscall.RawConn) error {
	return func(network string, _ string, rc syscall.RawConn) error {
		if !tcp(network) {
			return nil
		}
		var opErr error
		err := rc.Control(func(fd uintptr) {
			opErr = apply(int(fd), userTimeout)
		})
		if err != nil {
			return errors.Join(ControlErr, err)
		}
		if opErr != nil {
			return errors.Join(ControlErr, opErr)
		}
		return nil
	}
}

func apply(fd int, userTimeout time.Duration) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); err != nil {
		return err
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		return err
	}
	if userTimeout > 0 {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_USER_TIMEOUT, int(userTimeout.Milliseconds())); err != nil {
			return err
		}
	}
	return nil
}

// UserTimeout reads TCP_USER_TIMEOUT back from rc.
func UserTimeout(rc syscall.RawConn) (time.Duration, error) {
	var value int
	var opErr error
	err := rc.Control(func(fd uintptr) {
		value, opErr = unix.GetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_USER_TIMEOUT)
	})
	if err != nil {
		return 0, err
	}
	if opErr != nil {
		return 0, opErr
	}
	return time.Duration(value) * time.Millisecond, nil
}
