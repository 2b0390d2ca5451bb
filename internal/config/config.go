// Package config loads the service configuration. Missing file means
// defaults, which run the ride fully simulated.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "20ms" as well as plain integer nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := node.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration %q", node.Value)
	}
	*d = Duration(n)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Control  ControlConfig  `yaml:"control"`
	Serial   SerialConfig   `yaml:"serial"`
	Cycles   CyclesConfig   `yaml:"cycles"`
	Web      WebConfig      `yaml:"web"`
	Redis    RedisConfig    `yaml:"redis"`
	LogLevel string         `yaml:"log_level"`
}

type ControlConfig struct {
	TickInterval Duration `yaml:"tick_interval"`
	// Simulated swaps the GPIO/serial stack for the software model.
	Simulated bool `yaml:"simulated"`
	// DemoMode loops the ride cycle from idle without dispatch.
	// Maintenance use only.
	DemoMode bool `yaml:"demo_mode"`
}

type SerialConfig struct {
	Port        string   `yaml:"port"`
	BaudRate    int      `yaml:"baud_rate"`
	Address     byte     `yaml:"address"`
	Timeout     Duration `yaml:"timeout"`
	AutoRecover bool     `yaml:"auto_recover"`
}

type CyclesConfig struct {
	File   string `yaml:"file"`
	Active string `yaml:"active"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func Defaults() *Config {
	return &Config{
		Control: ControlConfig{
			TickInterval: Duration(20 * time.Millisecond),
			Simulated:    true,
		},
		Serial: SerialConfig{
			Port:        "/dev/ttyS0",
			BaudRate:    38400,
			Address:     0x80,
			Timeout:     Duration(100 * time.Millisecond),
			AutoRecover: true,
		},
		Cycles: CyclesConfig{
			File:   "cycles.yaml",
			Active: "default",
		},
		Web: WebConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
		},
		Redis: RedisConfig{
			Enabled: false,
			Address: "localhost:6379",
		},
		LogLevel: "info",
	}
}

func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Control.TickInterval <= 0 {
		return fmt.Errorf("control.tick_interval must be positive")
	}
	if !c.Control.Simulated {
		if c.Serial.Port == "" {
			return fmt.Errorf("serial.port is required for hardware mode")
		}
		if c.Serial.BaudRate <= 0 {
			return fmt.Errorf("serial.baud_rate must be positive")
		}
	}
	if c.Cycles.File == "" {
		return fmt.Errorf("cycles.file is required")
	}
	if c.Cycles.Active == "" {
		return fmt.Errorf("cycles.active is required")
	}
	if c.Web.Enabled && (c.Web.Port <= 0 || c.Web.Port > 65535) {
		return fmt.Errorf("web.port out of range: %d", c.Web.Port)
	}
	return nil
}
