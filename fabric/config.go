package fabric

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sarchlab/hetsim/regs"
)

// Config holds the tunable parameters of a fabric instance.
type Config struct {
	// RegSize is the byte size of the register zone. Must be a
	// multiple of 4 and large enough for the register fields.
	// Default: 4096.
	RegSize int `json:"reg_size"`

	// SharedSize is the byte size of the shared-data zone. Must be a
	// multiple of 4. Default: 32768.
	SharedSize int `json:"shared_size"`

	// IOCoreDelay is the simulated firmware processing delay of the
	// IO core (core 0) between reading a command and publishing the
	// response. It must be nonzero so pollers can observe the
	// triggered-but-unanswered window. Default: 1ms.
	IOCoreDelay Duration `json:"io_core_delay"`

	// RTCoreDelay is the response delay of the real-time core
	// (core 1). The RT core is modeled as answering immediately, so
	// zero is allowed and is the default.
	RTCoreDelay Duration `json:"rt_core_delay"`

	// EnableMask is the initial IPI enable mask, one bit per
	// auxiliary core. Default: 0x3 (both cores enabled).
	EnableMask uint32 `json:"enable_mask"`
}

// Duration is a time.Duration with JSON string encoding ("1ms").
type Duration time.Duration

// MarshalJSON encodes the duration in time.Duration string form.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts either a duration string or nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("bad duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var ns int64
	if err := json.Unmarshal(data, &ns); err != nil {
		return fmt.Errorf("bad duration %s", data)
	}
	*d = Duration(ns)
	return nil
}

// DefaultConfig returns a Config with the modeled hardware's default
// values.
func DefaultConfig() *Config {
	return &Config{
		RegSize:     regs.DefaultRegSize,
		SharedSize:  regs.DefaultSharedSize,
		IOCoreDelay: Duration(time.Millisecond),
		RTCoreDelay: 0,
		EnableMask:  (1 << regs.NumAuxCores) - 1,
	}
}

// LoadConfig loads a Config from a JSON file. Missing fields keep
// their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fabric config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse fabric config: %w", err)
	}

	return config, nil
}

// SaveConfig writes the Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize fabric config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write fabric config file: %w", err)
	}

	return nil
}

// Validate checks that the configuration describes a buildable
// fabric.
func (c *Config) Validate() error {
	if c.RegSize <= 0 || c.RegSize%4 != 0 {
		return fmt.Errorf("reg_size must be a positive multiple of 4")
	}
	if c.SharedSize < 0 || c.SharedSize%4 != 0 {
		return fmt.Errorf("shared_size must be a non-negative multiple of 4")
	}
	if c.IOCoreDelay <= 0 {
		return fmt.Errorf("io_core_delay must be > 0")
	}
	if c.RTCoreDelay < 0 {
		return fmt.Errorf("rt_core_delay must be >= 0")
	}
	return nil
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
