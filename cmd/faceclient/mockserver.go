// SPDX-License-Identifier: Apache-2.0

package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/loopholelabs/faceclient/internal/mockserver"
)

type mockServerOptions struct {
	address string
	delay   time.Duration
	hold    int
}

var mockServerOpts mockServerOptions

var mockServerCmd = &cobra.Command{
	Use:   "mock-server",
	Short: "Run a fake face-analysis service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := mockserver.New(&mockserver.Options{
			Address: mockServerOpts.address,
			Delay:   mockServerOpts.delay,
			Hold:    mockServerOpts.hold,
			Logger:  newLogger(),
		})
		if err != nil {
			return err
		}
		cmd.Printf("listening on %s\n", s.Addr())
		<-cmd.Context().Done()
		return s.Close()
	},
}

func init() {
	flags := mockServerCmd.Flags()
	flags.StringVar(&mockServerOpts.address, "addr", "127.0.0.1:9000", "listen address")
	flags.DurationVar(&mockServerOpts.delay, "delay", 0, "delay before every response")
	flags.IntVar(&mockServerOpts.hold, "hold", 0, "answer requests in reverse order, this many at a time")
	rootCmd.AddCommand(mockServerCmd)
}
