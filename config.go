package netloop

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

// Config is the file-based counterpart to Options: everything a host
// program needs to start a TcpServer, loaded from TOML or YAML.
type Config struct {
	LogLevel string `yaml:"log_level" toml:"log_level"`

	ListenAddress      string `yaml:"listen_address" toml:"listen_address"`
	WorkerCount        int    `yaml:"worker_count" toml:"worker_count"`
	Backlog            int    `yaml:"backlog" toml:"backlog"`
	ReceiveBufferSize  int    `yaml:"receive_buffer_size" toml:"receive_buffer_size"`
	IdleTimeoutSeconds int    `yaml:"idle_timeout_seconds" toml:"idle_timeout_seconds"`
}

// LoadConfig reads filePath and unmarshals it as TOML or YAML depending
// on its extension. Unlike a config loader that logs and exits on a bad
// file, this returns the error to the caller: a library has no business
// deciding whether its process should live or die.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("netloop: read config %s: %w", filePath, err)
	}
	cfg := &Config{}
	switch {
	case strings.HasSuffix(filePath, ".toml"):
		err = toml.Unmarshal(data, cfg)
	case strings.HasSuffix(filePath, ".yaml"), strings.HasSuffix(filePath, ".yml"):
		err = yaml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("netloop: config %s: unrecognised extension", filePath)
	}
	if err != nil {
		return nil, fmt.Errorf("netloop: parse config %s: %w", filePath, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ListenAddress == "" {
		return fmt.Errorf("netloop: config: listen_address is required")
	}
	if c.WorkerCount < 0 {
		return fmt.Errorf("netloop: config: worker_count must be >= 0")
	}
	return nil
}

// IdleTimeout returns the configured idle timeout as a time.Duration,
// falling back to defaultIdleTimeout when unset.
func (c *Config) IdleTimeout() time.Duration {
	if c.IdleTimeoutSeconds <= 0 {
		return defaultIdleTimeout
	}
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

// ToOptions resolves a Config into Options, leaving the callback fields
// for the caller to fill in.
func (c *Config) ToOptions() (Options, error) {
	addr, err := ParseInetSocketAddress(c.ListenAddress)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Addr:              addr,
		NumLoops:          c.WorkerCount,
		Backlog:           c.Backlog,
		ReceiveBufferSize: c.ReceiveBufferSize,
		IdleTimeout:       c.IdleTimeout(),
	}, nil
}
