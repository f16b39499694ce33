// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loopholelabs/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopholelabs/faceclient/pkg/client"
)

func writeConfig(t *testing.T, contents string) string {
	path := filepath.Join(t.TempDir(), "faceclient.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `address = " 10.0.0.1:9000 "`))
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1:9000", cfg.Address)
	assert.Equal(t, 200, cfg.MaxConcurrent)
	assert.Equal(t, 10, cfg.HeartbeatTimeout)
	assert.Equal(t, 5, cfg.HeartbeatPeriod)
	assert.Equal(t, 10, cfg.ResponseTimeout)
	assert.Equal(t, 5, cfg.CheckTimeoutPeriod)
	assert.Equal(t, 5, cfg.ReconnectPeriod)
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
address = "127.0.0.1:7000"
max_concurrent = 0
heartbeat_timeout = 4
heartbeat_period = 2
response_timeout = 8
reconnect_period = 1
`))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.MaxConcurrent)
	assert.Equal(t, 4, cfg.CheckTimeoutPeriod)

	cfg, err = Load(writeConfig(t, `
address = "127.0.0.1:7000"
response_timeout = 8
check_timeout_period = 3
`))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.CheckTimeoutPeriod)
}

func TestLoadInvalid(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.ErrorIs(t, err, LoadErr)

	_, err = Load(writeConfig(t, `address = `))
	require.ErrorIs(t, err, LoadErr)

	_, err = Load(writeConfig(t, "address = \"127.0.0.1:7000\"\nip = \"127.0.0.1\""))
	require.ErrorIs(t, err, LoadErr)

	_, err = Load(writeConfig(t, `max_concurrent = 1`))
	require.ErrorIs(t, err, InvalidErr)

	_, err = Load(writeConfig(t, "address = \"127.0.0.1:7000\"\nmax_concurrent = -1"))
	require.ErrorIs(t, err, InvalidErr)

	_, err = Load(writeConfig(t, "address = \"127.0.0.1:7000\"\nheartbeat_timeout = 0"))
	require.ErrorIs(t, err, InvalidErr)
}

func TestOptions(t *testing.T) {
	logger := logging.Test(t, logging.Zerolog, t.Name())
	cfg := Default()
	cfg.Address = "127.0.0.1:7000"
	cfg.ResponseTimeout = 6
	cfg.CheckTimeoutPeriod = 3

	options := cfg.Options(logger, nil)
	assert.Equal(t, "127.0.0.1:7000", options.Address)
	assert.Equal(t, client.DefaultMaxConcurrent, options.MaxConcurrent)
	assert.Equal(t, time.Second*10, options.HeartbeatTimeout)
	assert.Equal(t, time.Second*5, options.HeartbeatPeriod)
	assert.Equal(t, time.Second*6, options.ResponseTimeout)
	assert.Equal(t, time.Second*3, options.SweepPeriod)
	assert.Equal(t, time.Second*5, options.ReconnectPeriod)
	assert.Equal(t, logger, options.Logger)
}
