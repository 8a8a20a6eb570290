// Package config carries the channel layer's tunables, grounded on
// Lzww0608-AetherFlow's cmd/*/config packages: a plain struct with
// yaml tags, loaded with gopkg.in/yaml.v3.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries the window size, resend attempt cap, and extra
// resend delay a channel needs to operate. It is a collaborator:
// channels read it but never mutate it.
type Config struct {
	Reliability ReliabilityConfig `yaml:"Reliability"`
}

// ReliabilityConfig is the set of tunables that shape retransmission.
type ReliabilityConfig struct {
	// WindowSize is the capacity of both send and receive sliding
	// windows. Must be positive.
	WindowSize uint16 `yaml:"WindowSize"`

	// MaxResendAttempts is the number of retransmissions a reliable
	// packet gets after its first send. Once its attempt count (which
	// counts the first send) exceeds this value, the next tick
	// disconnects the connection.
	MaxResendAttempts int `yaml:"MaxResendAttempts"`

	// ResendExtraDelay is added to the current RTT estimate to form
	// the resend threshold.
	ResendExtraDelay time.Duration `yaml:"ResendExtraDelay"`
}

// UnmarshalYAML lets ResendExtraDelay be written as a duration string
// ("50ms") in the YAML document instead of raw nanoseconds, the way
// time.ParseDuration expects; yaml.v3 has no built-in support for
// decoding a string into time.Duration since it's just an int64 alias.
func (r *ReliabilityConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		WindowSize        uint16 `yaml:"WindowSize"`
		MaxResendAttempts int    `yaml:"MaxResendAttempts"`
		ResendExtraDelay  string `yaml:"ResendExtraDelay"`
	}
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("config: decode Reliability: %w", err)
	}

	d, err := time.ParseDuration(raw.ResendExtraDelay)
	if err != nil {
		return fmt.Errorf("config: parse Reliability.ResendExtraDelay %q: %w", raw.ResendExtraDelay, err)
	}

	r.WindowSize = raw.WindowSize
	r.MaxResendAttempts = raw.MaxResendAttempts
	r.ResendExtraDelay = d
	return nil
}

// Default returns window_size=64, max_resend_attempts=10,
// resend_extra_delay=50ms.
func Default() Config {
	return Config{
		Reliability: ReliabilityConfig{
			WindowSize:        64,
			MaxResendAttempts: 10,
			ResendExtraDelay:  50 * time.Millisecond,
		},
	}
}

// Validate rejects configurations the channel layer can't operate
// under.
func (c Config) Validate() error {
	if c.Reliability.WindowSize == 0 {
		return fmt.Errorf("config: Reliability.WindowSize must be positive")
	}
	if c.Reliability.MaxResendAttempts <= 0 {
		return fmt.Errorf("config: Reliability.MaxResendAttempts must be positive")
	}
	if c.Reliability.ResendExtraDelay < 0 {
		return fmt.Errorf("config: Reliability.ResendExtraDelay must not be negative")
	}
	return nil
}

// Load reads and validates a Config from a YAML reader.
func Load(r io.Reader) (Config, error) {
	var c Config
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&c); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadFile reads and validates a Config from a YAML file on disk.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}
