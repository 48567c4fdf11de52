package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/banshee-data/picker/internal/planner"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/picker.defaults.json"

// PlannerConfig is the process configuration. Every field is optional; the
// Get* methods supply defaults for anything left out, so partial files are
// safe.
type PlannerConfig struct {
	// Hazard interval on the x axis
	HazardStart *int `json:"hazard_start,omitempty"`
	HazardEnd   *int `json:"hazard_end,omitempty"`

	BaggingSlot *string `json:"bagging_slot,omitempty"`
	DBPath      *string `json:"db_path,omitempty"`

	// Arm link
	SerialPort     *string `json:"serial_port,omitempty"`
	BaudRate       *int    `json:"baud_rate,omitempty"`
	RequestTimeout *string `json:"request_timeout,omitempty"` // per arm command, e.g. "10s"

	Listen       *string `json:"listen,omitempty"`
	OrderTimeout *string `json:"order_timeout,omitempty"` // whole order, e.g. "5m"

	Simulator *SimulatorConfig `json:"simulator,omitempty"`
}

// SimulatorConfig tunes the simulated arm used in dev mode.
type SimulatorConfig struct {
	MoveLatency       *string `json:"move_latency,omitempty"`
	MotionLatency     *string `json:"motion_latency,omitempty"`
	TelemetryInterval *string `json:"telemetry_interval,omitempty"`
	// Jammed lists [x, y] positions where every PICK fails.
	Jammed [][2]int `json:"jammed,omitempty"`
}

// EnvOverrides are read from the environment and applied over the file.
type EnvOverrides struct {
	DBPath      string `env:"PICKER_DB_PATH"`
	SerialPort  string `env:"PICKER_SERIAL_PORT"`
	Listen      string `env:"PICKER_LISTEN"`
	BaggingSlot string `env:"PICKER_BAGGING_SLOT"`
}

func ptrInt(v int) *int          { return &v }
func ptrString(v string) *string { return &v }

// EmptyConfig returns a PlannerConfig with all fields set to nil.
func EmptyConfig() *PlannerConfig {
	return &PlannerConfig{}
}

// Load loads a PlannerConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func Load(path string) (*PlannerConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching from the current
// directory up towards the repository root. Panics if the file cannot be
// loaded, intended for test setup.
func MustLoadDefaultConfig() *PlannerConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/<pkg>/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := Load(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// ApplyEnv overlays PICKER_* environment variables onto c.
func (c *PlannerConfig) ApplyEnv() error {
	var o EnvOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	c.applyOverrides(o)
	return c.Validate()
}

// ApplyEnvFrom is ApplyEnv over an explicit environment.
func (c *PlannerConfig) ApplyEnvFrom(environ map[string]string) error {
	var o EnvOverrides
	if err := env.ParseWithOptions(&o, env.Options{Environment: environ}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	c.applyOverrides(o)
	return c.Validate()
}

func (c *PlannerConfig) applyOverrides(o EnvOverrides) {
	if o.DBPath != "" {
		c.DBPath = ptrString(o.DBPath)
	}
	if o.SerialPort != "" {
		c.SerialPort = ptrString(o.SerialPort)
	}
	if o.Listen != "" {
		c.Listen = ptrString(o.Listen)
	}
	if o.BaggingSlot != "" {
		c.BaggingSlot = ptrString(o.BaggingSlot)
	}
}

// Validate checks that the configuration values are valid.
func (c *PlannerConfig) Validate() error {
	if err := c.GetHazard().Validate(); err != nil {
		return err
	}
	if c.BaggingSlot != nil && strings.TrimSpace(*c.BaggingSlot) == "" {
		return fmt.Errorf("bagging_slot must not be empty")
	}
	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
	}

	durations := map[string]*string{
		"request_timeout": c.RequestTimeout,
		"order_timeout":   c.OrderTimeout,
	}
	if c.Simulator != nil {
		durations["simulator.move_latency"] = c.Simulator.MoveLatency
		durations["simulator.motion_latency"] = c.Simulator.MotionLatency
		durations["simulator.telemetry_interval"] = c.Simulator.TelemetryInterval
	}
	for name, v := range durations {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, d)
		}
	}
	return nil
}

// GetHazard returns the hazard interval or the default [1000, 2000].
func (c *PlannerConfig) GetHazard() planner.Hazard {
	h := planner.DefaultHazard()
	if c.HazardStart != nil {
		h.Start = *c.HazardStart
	}
	if c.HazardEnd != nil {
		h.End = *c.HazardEnd
	}
	return h
}

// GetBaggingSlot returns the bagging slot id or the default.
func (c *PlannerConfig) GetBaggingSlot() string {
	if c.BaggingSlot == nil {
		return "BAG-1"
	}
	return strings.TrimSpace(*c.BaggingSlot)
}

// GetDBPath returns the database path or the default.
func (c *PlannerConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "picker.db"
	}
	return *c.DBPath
}

// GetSerialPort returns the serial device path or the default.
func (c *PlannerConfig) GetSerialPort() string {
	if c.SerialPort == nil || *c.SerialPort == "" {
		return "/dev/ttyUSB0"
	}
	return *c.SerialPort
}

// GetBaudRate returns the baud rate or the default.
func (c *PlannerConfig) GetBaudRate() int {
	if c.BaudRate == nil {
		return 115200
	}
	return *c.BaudRate
}

// GetListen returns the HTTP listen address or the default.
func (c *PlannerConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return ":8080"
	}
	return *c.Listen
}

// GetRequestTimeout returns the per-command arm timeout.
func (c *PlannerConfig) GetRequestTimeout() time.Duration {
	return parseDuration(c.RequestTimeout, 10*time.Second)
}

// GetOrderTimeout returns the time allowed for a whole order.
func (c *PlannerConfig) GetOrderTimeout() time.Duration {
	return parseDuration(c.OrderTimeout, 5*time.Minute)
}

// GetSimulator returns the simulator settings, never nil.
func (c *PlannerConfig) GetSimulator() *SimulatorConfig {
	if c.Simulator == nil {
		return &SimulatorConfig{}
	}
	return c.Simulator
}

// GetMoveLatency returns how long a simulated MOVE takes.
func (s *SimulatorConfig) GetMoveLatency() time.Duration {
	return parseDuration(s.MoveLatency, 150*time.Millisecond)
}

// GetMotionLatency returns how long a simulated MOTION takes.
func (s *SimulatorConfig) GetMotionLatency() time.Duration {
	return parseDuration(s.MotionLatency, 80*time.Millisecond)
}

// GetTelemetryInterval returns the simulated telemetry period.
func (s *SimulatorConfig) GetTelemetryInterval() time.Duration {
	return parseDuration(s.TelemetryInterval, time.Second)
}

// GetJammed returns the jammed positions.
func (s *SimulatorConfig) GetJammed() []planner.Position {
	out := make([]planner.Position, 0, len(s.Jammed))
	for _, p := range s.Jammed {
		out = append(out, planner.Position{X: p[0], Y: p[1]})
	}
	return out
}

func parseDuration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}
