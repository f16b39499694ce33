//go:build !linux

// SPDX-License-Identifier: Apache-2.0

package sockopt

import (
	"syscall"
	"time"
)

func Control(time.Duration) func(string, string, syscall.RawConn) error {
	return func(string, string, syscall.RawConn) error {
		return nil
	}
}

func UserTimeout(syscall.RawConn) (time.Duration, error) {
	return 0, UnsupportedErr
}
