// Package config loads YAML endpoint configuration for the SWP
// command-line tools. Unset fields fall back to the protocol defaults.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"swp/pkg/swpstack"
)

// EndpointConfig mirrors the on-disk YAML layout.
type EndpointConfig struct {
	LocalAddr       string  `yaml:"local_addr"`
	RemoteAddr      string  `yaml:"remote_addr"`
	LossProbability float64 `yaml:"loss_probability"`

	MaxDataSize         int     `yaml:"max_data_size"`
	SendWindowSize      int     `yaml:"send_window_size"`
	RecvWindowSize      int     `yaml:"recv_window_size"`
	RetransmitTimeoutMS int     `yaml:"retransmit_timeout_ms"`
	MaxRetries          int     `yaml:"max_retries"`
	BackoffFactor       float64 `yaml:"backoff_factor"`
	EagerAck            bool    `yaml:"eager_ack"`
}

// Load reads an endpoint config from the given YAML file. An empty path
// returns a zero config (all defaults).
func Load(path string) (*EndpointConfig, error) {
	cfg := &EndpointConfig{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	return cfg, nil
}

// Protocol converts the file values into a swpstack.Config, leaving
// unset fields at their protocol defaults.
func (c *EndpointConfig) Protocol() swpstack.Config {
	cfg := swpstack.DefaultConfig()
	if c.MaxDataSize > 0 {
		cfg.MaxDataSize = c.MaxDataSize
	}
	if c.SendWindowSize > 0 {
		cfg.SendWindowSize = c.SendWindowSize
	}
	if c.RecvWindowSize > 0 {
		cfg.RecvWindowSize = c.RecvWindowSize
	}
	if c.RetransmitTimeoutMS > 0 {
		cfg.RetransmitTimeout = time.Duration(c.RetransmitTimeoutMS) * time.Millisecond
	}
	if c.MaxRetries > 0 {
		cfg.MaxRetries = c.MaxRetries
	}
	if c.BackoffFactor > 0 {
		cfg.BackoffFactor = c.BackoffFactor
	}
	cfg.EagerAck = c.EagerAck
	return cfg
}
