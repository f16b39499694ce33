// SPDX-License-Identifier: Apache-2.0

// Package config loads client settings from a TOML file. Durations are whole
// seconds.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	logging "github.com/loopholelabs/logging/types"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/loopholelabs/faceclient/pkg/client"
)

var (
	LoadErr    = errors.New("unable to load config")
	InvalidErr = errors.New("invalid config")
)

type Config struct {
	Address            string `toml:"address"`
	MaxConcurrent      int    `toml:"max_concurrent"`
	HeartbeatTimeout   int    `toml:"heartbeat_timeout"`
	HeartbeatPeriod    int    `toml:"heartbeat_period"`
	ResponseTimeout    int    `toml:"response_timeout"`
	CheckTimeoutPeriod int    `toml:"check_timeout_period"`
	ReconnectPeriod    int    `toml:"reconnect_period"`
}

func Default() *Config {
	return &Config{
		MaxConcurrent:      client.DefaultMaxConcurrent,
		HeartbeatTimeout:   seconds(client.DefaultHeartbeatTimeout),
		HeartbeatPeriod:    seconds(client.DefaultHeartbeatPeriod),
		ResponseTimeout:    seconds(client.DefaultResponseTimeout),
		CheckTimeoutPeriod: seconds(client.DefaultResponseTimeout) / 2,
		ReconnectPeriod:    seconds(client.DefaultReconnectPeriod),
	}
}

// Load reads path over the defaults. When response_timeout is set and
// check_timeout_period is not, the sweep runs at half the response timeout.
func Load(path string) (*Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, errors.Join(LoadErr, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, errors.Join(LoadErr, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", ")))
	}
	if meta.IsDefined("response_timeout") && !meta.IsDefined("check_timeout_period") {
		cfg.CheckTimeoutPeriod = cfg.ResponseTimeout / 2
	}
	cfg.Address = strings.TrimSpace(cfg.Address)
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Address == "":
		return errors.Join(InvalidErr, errors.New("address is required"))
	case c.MaxConcurrent < 0:
		return errors.Join(InvalidErr, fmt.Errorf("max_concurrent must not be negative, got %d", c.MaxConcurrent))
	case c.HeartbeatTimeout <= 0:
		return errors.Join(InvalidErr, fmt.Errorf("heartbeat_timeout must be positive, got %d", c.HeartbeatTimeout))
	case c.HeartbeatPeriod <= 0:
		return errors.Join(InvalidErr, fmt.Errorf("heartbeat_period must be positive, got %d", c.HeartbeatPeriod))
	case c.ResponseTimeout <= 0:
		return errors.Join(InvalidErr, fmt.Errorf("response_timeout must be positive, got %d", c.ResponseTimeout))
	case c.CheckTimeoutPeriod < 0:
		return errors.Join(InvalidErr, fmt.Errorf("check_timeout_period must not be negative, got %d", c.CheckTimeoutPeriod))
	case c.ReconnectPeriod <= 0:
		return errors.Join(InvalidErr, fmt.Errorf("reconnect_period must be positive, got %d", c.ReconnectPeriod))
	}
	return nil
}

// Options converts the config to client options. A check_timeout_period of
// zero, as produced by a one second response timeout, falls back to the
// client default.
func (c *Config) Options(logger logging.Logger, registerer prometheus.Registerer) *client.Options {
	return &client.Options{
		Address:          c.Address,
		MaxConcurrent:    c.MaxConcurrent,
		HeartbeatTimeout: time.Duration(c.HeartbeatTimeout) * time.Second,
		HeartbeatPeriod:  time.Duration(c.HeartbeatPeriod) * time.Second,
		ResponseTimeout:  time.Duration(c.ResponseTimeout) * time.Second,
		SweepPeriod:      time.Duration(c.CheckTimeoutPeriod) * time.Second,
		ReconnectPeriod:  time.Duration(c.ReconnectPeriod) * time.Second,
		Logger:           logger,
		Registerer:       registerer,
	}
}

func seconds(d time.Duration) int {
	return int(d / time.Second)
}
