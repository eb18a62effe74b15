package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/motorbench/internal/control"
	"github.com/san-kum/motorbench/internal/load"
	"github.com/san-kum/motorbench/internal/motor"
	"github.com/san-kum/motorbench/internal/sched"
	"github.com/san-kum/motorbench/internal/sequence"
)

const (
	DefaultMotor       = motor.DefaultMotorID
	DefaultDataDir     = "runs"
	DefaultRunDuration = 10.0
)

type Config struct {
	Motor       string                  `yaml:"motor"`
	Duration    float64                 `yaml:"duration"`
	DataDir     string                  `yaml:"data_dir"`
	Mode        string                  `yaml:"mode"`
	Target      float64                 `yaml:"target"`
	Gains       *control.Gains          `yaml:"gains,omitempty"`
	Inverter    *control.InverterParams `yaml:"inverter,omitempty"`
	Load        *load.Profile           `yaml:"load,omitempty"`
	Runner      sched.Config            `yaml:"runner"`
	Sequences   []sequence.Sequence     `yaml:"sequences,omitempty"`
	SettleDelay float64                 `yaml:"settle_delay"`
}

func DefaultConfig() *Config {
	return &Config{
		Motor:       DefaultMotor,
		Duration:    DefaultRunDuration,
		DataDir:     DefaultDataDir,
		Mode:        string(control.ModeSpeed),
		Target:      2000,
		Runner:      sched.DefaultRunnerConfig(),
		SettleDelay: sequence.DefaultSettleDelay,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if cfg.Runner.PhysicsDt <= 0 {
		cfg.Runner.PhysicsDt = sched.DefaultRunnerConfig().PhysicsDt
	}
	if cfg.Runner.TickInterval <= 0 {
		cfg.Runner.TickInterval = 5 * time.Millisecond
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ControlGains resolves the configured gains, falling back to the tuned
// defaults for the selected motor.
func (c *Config) ControlGains(p motor.Params) control.Gains {
	if c.Gains != nil {
		return *c.Gains
	}
	return control.DefaultGains(p)
}
