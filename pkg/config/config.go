package config

import (
	"fmt"
	"os"
	"time"

	. "github.com/DIvanCode/rwlatch/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Latch  LatchConfig  `yaml:"latch"`
	Stress StressConfig `yaml:"stress"`
	HTTP   HTTPConfig   `yaml:"http"`
}

type LatchConfig struct {
	Name string `yaml:"name"`
	// 0 means no cap besides the counter width.
	MaxReaders uint32 `yaml:"max_readers"`
	// Waits longer than this are logged. 0 disables logging.
	SlowWait time.Duration `yaml:"slow_wait"`
}

type StressConfig struct {
	Readers  int           `yaml:"readers"`
	Writers  int           `yaml:"writers"`
	Keys     int           `yaml:"keys"`
	Duration time.Duration `yaml:"duration"`
	HoldTime time.Duration `yaml:"hold_time"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

func Default() Config {
	return Config{
		Latch: LatchConfig{
			Name:     "main",
			SlowWait: 100 * time.Millisecond,
		},
		Stress: StressConfig{
			Readers:  8,
			Writers:  2,
			Keys:     16,
			Duration: 5 * time.Second,
			HoldTime: 100 * time.Microsecond,
		},
	}
}

// Load reads a yaml config from path on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if err := c.Stress.Validate(); err != nil {
		return fmt.Errorf("invalid stress config: %w", err)
	}
	return nil
}

func (c StressConfig) Validate() error {
	if c.Readers < 0 || c.Writers < 0 || c.Keys < 0 {
		return ErrInvalidWorkers
	}
	if c.Readers+c.Writers == 0 {
		return ErrNoWorkers
	}
	return nil
}
