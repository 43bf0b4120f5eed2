// Package config loads the fleet-server configuration from YAML with
// environment overrides for the deployment-specific fields.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/routewise/fleet-simulator/core"
)

// FleetConfig holds the engine tunables as they appear in YAML.
type FleetConfig struct {
	DefaultSpeed            float64 `yaml:"default_speed"`
	EnergyPerUnit           float64 `yaml:"energy_per_unit"`
	ChargeRate              float64 `yaml:"charge_rate"`
	LowEnergyThreshold      float64 `yaml:"low_energy_threshold"`
	CriticalEnergyThreshold float64 `yaml:"critical_energy_threshold"`
}

// Config is the full fleet-server configuration.
type Config struct {
	ListenAddr  string        `yaml:"listen_addr"`
	MetricsAddr string        `yaml:"metrics_addr"`
	GraphPath   string        `yaml:"graph_path"`
	Tick        time.Duration `yaml:"tick"`
	Accelerated bool          `yaml:"accelerated"`
	Fleet       FleetConfig   `yaml:"fleet"`
}

// Default returns the stock configuration.
func Default() Config {
	params := core.DefaultParams()
	return Config{
		ListenAddr:  ":8080",
		MetricsAddr: ":9090",
		GraphPath:   "configs/warehouse_graph.json",
		Tick:        100 * time.Millisecond,
		Fleet: FleetConfig{
			DefaultSpeed:            params.DefaultSpeed,
			EnergyPerUnit:           params.EnergyPerUnit,
			ChargeRate:              params.ChargeRate,
			LowEnergyThreshold:      params.LowEnergyThreshold,
			CriticalEnergyThreshold: params.CriticalEnergyThreshold,
		},
	}
}

// Load reads a YAML config file on top of the defaults and then applies
// environment overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv lets deployments override the addressing and graph fields
// without a config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("FLEET_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("FLEET_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv("FLEET_GRAPH_PATH"); v != "" {
		c.GraphPath = v
	}
	if v := os.Getenv("FLEET_TICK"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Tick = d
		}
	}
}

func (c *Config) validate() error {
	if c.Tick <= 0 {
		return fmt.Errorf("config: tick must be positive, got %s", c.Tick)
	}
	if c.Fleet.DefaultSpeed <= 0 {
		return fmt.Errorf("config: fleet.default_speed must be positive, got %g", c.Fleet.DefaultSpeed)
	}
	if c.Fleet.ChargeRate <= 0 {
		return fmt.Errorf("config: fleet.charge_rate must be positive, got %g", c.Fleet.ChargeRate)
	}
	if c.Fleet.CriticalEnergyThreshold > c.Fleet.LowEnergyThreshold {
		return fmt.Errorf("config: fleet.critical_energy_threshold (%g) must not exceed fleet.low_energy_threshold (%g)",
			c.Fleet.CriticalEnergyThreshold, c.Fleet.LowEnergyThreshold)
	}
	return nil
}

// Params converts the YAML tunables into engine parameters.
func (c *Config) Params() core.Params {
	return core.Params{
		DefaultSpeed:            c.Fleet.DefaultSpeed,
		EnergyPerUnit:           c.Fleet.EnergyPerUnit,
		ChargeRate:              c.Fleet.ChargeRate,
		LowEnergyThreshold:      c.Fleet.LowEnergyThreshold,
		CriticalEnergyThreshold: c.Fleet.CriticalEnergyThreshold,
	}
}
