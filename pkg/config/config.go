// Package config defines the experiment configuration for the exchange
// simulator and provides validation helpers. Everything here is read once
// at session start; there is no runtime reconfiguration.
package config

import (
	"fmt"

	"github.com/davecliff/BristolStockExchange/pkg/trader"
)

// Config is the root configuration structure, populated from a TOML file
// and optionally overridden by command-line flags.
type Config struct {
	Session  SessionConfig  `toml:"session"`
	Signal   SignalConfig   `toml:"signal"`
	Supply   ScheduleConfig `toml:"supply"`
	Demand   ScheduleConfig `toml:"demand"`
	Buyers   []Population   `toml:"buyers"`
	Sellers  []Population   `toml:"sellers"`
	Output   OutputConfig   `toml:"output"`
	LogLevel string         `toml:"log_level"`
}

// SessionConfig controls one trading day.
type SessionConfig struct {
	Ticks    int     `toml:"ticks"`
	Days     int     `toml:"days"`
	Seed     int64   `toml:"seed"`
	Parallel int     `toml:"parallel"` // concurrent independent days, 0 = days
	Interval float64 `toml:"interval"` // assignment replenishment interval, sim-time units
	TimeMode string  `toml:"time_mode"`
}

// SignalConfig carries the MLOFI tunables for the impact-sensitive
// traders.
type SignalConfig struct {
	Depth       int     `toml:"depth"` // m: how many book levels the signal reads
	Threshold   float64 `toml:"threshold"`
	ImpactCoeff float64 `toml:"impact_coeff"`
}

// ScheduleConfig is one side's customer-order price schedule.
type ScheduleConfig struct {
	PriceLow  int64  `toml:"price_low"`
	PriceHigh int64  `toml:"price_high"`
	StepMode  string `toml:"step_mode"` // fixed | jittered | random
}

// Population is one (strategy type, head-count) entry.
type Population struct {
	Type  string `toml:"type"`
	Count int    `toml:"count"`
}

// OutputConfig names the tabular outputs and optional live endpoints.
type OutputConfig struct {
	Dir         string `toml:"dir"`
	MetricsAddr string `toml:"metrics_addr"` // empty disables the endpoint
	StreamAddr  string `toml:"stream_addr"`  // empty disables the tape stream
}

// Defaults returns the built-in experiment setup: a balanced market of
// baseline and impact-sensitive traders over a single day.
func Defaults() Config {
	return Config{
		Session: SessionConfig{
			Ticks:    5000,
			Days:     1,
			Seed:     1,
			Interval: 30,
			TimeMode: "drip-poisson",
		},
		Signal: SignalConfig{Depth: 3, Threshold: 0.6, ImpactCoeff: 5},
		Supply: ScheduleConfig{PriceLow: 95, PriceHigh: 95, StepMode: "fixed"},
		Demand: ScheduleConfig{PriceLow: 105, PriceHigh: 105, StepMode: "fixed"},
		Buyers: []Population{
			{Type: trader.TypeZIC, Count: 5},
			{Type: trader.TypeShaver, Count: 5},
			{Type: trader.TypeImpactSensitive, Count: 5},
		},
		Sellers: []Population{
			{Type: trader.TypeZIC, Count: 5},
			{Type: trader.TypeShaver, Count: 5},
			{Type: trader.TypeImpactSensitive, Count: 5},
		},
		Output:   OutputConfig{Dir: "."},
		LogLevel: "info",
	}
}

var stepModes = map[string]bool{"fixed": true, "jittered": true, "random": true}

var timeModes = map[string]bool{
	"periodic": true, "drip-fixed": true, "drip-jitter": true, "drip-poisson": true,
}

// Validate reports the first malformed field. A validation failure here is
// the only fatal error in the simulator: it is surfaced before any
// scheduler starts.
func (c *Config) Validate() error {
	if c.Session.Ticks <= 0 {
		return fmt.Errorf("session.ticks must be positive, got %d", c.Session.Ticks)
	}
	if c.Session.Days <= 0 {
		return fmt.Errorf("session.days must be positive, got %d", c.Session.Days)
	}
	if c.Session.Interval <= 0 {
		return fmt.Errorf("session.interval must be positive, got %g", c.Session.Interval)
	}
	if !timeModes[c.Session.TimeMode] {
		return fmt.Errorf("unknown session.time_mode %q", c.Session.TimeMode)
	}
	if c.Signal.Depth <= 0 {
		return fmt.Errorf("signal.depth must be positive, got %d", c.Signal.Depth)
	}
	if c.Signal.Threshold < 0 {
		return fmt.Errorf("signal.threshold must be non-negative, got %g", c.Signal.Threshold)
	}
	if err := validateSchedule("supply", c.Supply); err != nil {
		return err
	}
	if err := validateSchedule("demand", c.Demand); err != nil {
		return err
	}
	if err := validatePopulation("buyers", c.Buyers); err != nil {
		return err
	}
	return validatePopulation("sellers", c.Sellers)
}

func validateSchedule(name string, s ScheduleConfig) error {
	if s.PriceLow <= 0 || s.PriceHigh <= 0 {
		return fmt.Errorf("%s prices must be positive", name)
	}
	if s.PriceLow > s.PriceHigh {
		return fmt.Errorf("%s price_low %d above price_high %d", name, s.PriceLow, s.PriceHigh)
	}
	if !stepModes[s.StepMode] {
		return fmt.Errorf("unknown %s step_mode %q", name, s.StepMode)
	}
	return nil
}

func validatePopulation(name string, pop []Population) error {
	total := 0
	known := make(map[string]bool, len(trader.Types()))
	for _, t := range trader.Types() {
		known[t] = true
	}
	for _, p := range pop {
		if !known[p.Type] {
			return fmt.Errorf("unknown trader type %q in %s", p.Type, name)
		}
		if p.Count < 0 {
			return fmt.Errorf("negative count for %s %q", name, p.Type)
		}
		total += p.Count
	}
	if total == 0 {
		return fmt.Errorf("%s population is empty", name)
	}
	return nil
}
