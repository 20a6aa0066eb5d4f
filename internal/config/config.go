package config

import (
	"io/fs"
	"os"
	"strings"

	"codeberg.org/mutker/stepperctl/internal/archive"
	"codeberg.org/mutker/stepperctl/internal/errors"
	"codeberg.org/mutker/stepperctl/internal/metrics"
	"codeberg.org/mutker/stepperctl/internal/telemetry"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel   = "info"
	DefaultConfigFile = "/etc/stepperctl.toml"
	DefaultEnvPrefix  = "STEPPERCTL"
	DefaultPIDFile    = "/run/stepperctl.pid"
	DefaultListen     = "127.0.0.1:8470"
	DefaultBackend    = BackendSim
	DefaultEstimator  = EstimatorKval

	BackendSim    = "sim"
	BackendPeriph = "periph"

	EstimatorKval = "kval"
	EstimatorNone = "none"
)

type Config struct {
	LogLevel  string          `mapstructure:"log_level"`
	PIDFile   string          `mapstructure:"pid_file"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Hardware  HardwareConfig  `mapstructure:"hardware"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	API       APIConfig       `mapstructure:"api"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type TelemetryConfig struct {
	MaxMotors                int     `mapstructure:"max_motors"`
	DatasetCapacity          int     `mapstructure:"dataset_capacity"`
	MaxSampleRateHz          uint32  `mapstructure:"max_sample_rate_hz"`
	DefaultSampleRateHz      uint32  `mapstructure:"default_sample_rate_hz"`
	SupplyVoltage            float64 `mapstructure:"supply_voltage"`
	PhaseResistanceOhm       float64 `mapstructure:"phase_resistance_ohm"`
	SafetyCurrentRatio       float64 `mapstructure:"safety_current_ratio"`
	SafetySpeedRatio         float64 `mapstructure:"safety_speed_ratio"`
	MotorMaxCurrentA         float64 `mapstructure:"motor_max_current_a"`
	MotorMaxSpeedDps         float64 `mapstructure:"motor_max_speed_dps"`
	PositionErrorLimitDeg    float64 `mapstructure:"position_error_limit_deg"`
	CPUOverheadTargetPercent float64 `mapstructure:"cpu_overhead_target_percent"`
	TimingTolerancePercent   float64 `mapstructure:"timing_tolerance_percent"`
	RealtimeRatio            float64 `mapstructure:"realtime_ratio"`
	CurrentEstimator         string  `mapstructure:"current_estimator"`
}

type HardwareConfig struct {
	Backend string        `mapstructure:"backend"`
	Motors  []MotorConfig `mapstructure:"motors"`
}

// MotorConfig binds one motor slot to its buses. The sim_* keys only apply
// to the sim backend.
type MotorConfig struct {
	ID               int     `mapstructure:"id"`
	I2CBus           string  `mapstructure:"i2c_bus"`
	SPIPort          string  `mapstructure:"spi_port"`
	EncoderOffsetDeg float64 `mapstructure:"encoder_offset_deg"`
	SampleRateHz     uint32  `mapstructure:"sample_rate_hz"`
	MaxCurrentA      float64 `mapstructure:"max_current_a"`
	MaxSpeedDps      float64 `mapstructure:"max_speed_dps"`
	SimInitialAngle  float64 `mapstructure:"sim_initial_angle"`
	SimVelocityDps   float64 `mapstructure:"sim_velocity_dps"`
}

type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	DBPath    string `mapstructure:"db_path"`
	BackupDir string `mapstructure:"backup_dir"`
}

type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// flagKeys maps command line flags onto configuration keys
var flagKeys = map[string]string{
	"log-level": "log_level",
	"pid-file":  "pid_file",
	"backend":   "hardware.backend",
	"db":        "archive.db_path",
	"listen":    "api.listen",
}

// RegisterFlags defines the flags understood by WithFlags on fs
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to the configuration file")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.String("pid-file", DefaultPIDFile, "Path to the PID file")
	fs.String("backend", DefaultBackend, "Hardware backend (sim, periph)")
	fs.String("db", archive.DefaultConfig().DBPath, "Path to the dataset archive")
	fs.String("listen", DefaultListen, "Address of the HTTP API")
}

func setDefaults(v *viper.Viper) {
	tc := telemetry.DefaultConfig()

	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("pid_file", DefaultPIDFile)

	v.SetDefault("telemetry.max_motors", tc.MaxMotors)
	v.SetDefault("telemetry.dataset_capacity", tc.DatasetCapacity)
	v.SetDefault("telemetry.max_sample_rate_hz", tc.MaxSampleRateHz)
	v.SetDefault("telemetry.default_sample_rate_hz", tc.DefaultSampleRateHz)
	v.SetDefault("telemetry.supply_voltage", tc.SupplyVoltage)
	v.SetDefault("telemetry.phase_resistance_ohm", tc.PhaseResistanceOhm)
	v.SetDefault("telemetry.safety_current_ratio", tc.SafetyCurrentRatio)
	v.SetDefault("telemetry.safety_speed_ratio", tc.SafetySpeedRatio)
	v.SetDefault("telemetry.motor_max_current_a", tc.MotorMaxCurrentA)
	v.SetDefault("telemetry.motor_max_speed_dps", tc.MotorMaxSpeedDps)
	v.SetDefault("telemetry.position_error_limit_deg", tc.PositionErrorLimitDeg)
	v.SetDefault("telemetry.cpu_overhead_target_percent", tc.CPUOverheadTargetPercent)
	v.SetDefault("telemetry.timing_tolerance_percent", tc.TimingTolerancePercent)
	v.SetDefault("telemetry.realtime_ratio", tc.RealtimeRatio)
	v.SetDefault("telemetry.current_estimator", DefaultEstimator)

	v.SetDefault("hardware.backend", DefaultBackend)

	ac := archive.DefaultConfig()
	v.SetDefault("archive.enabled", ac.Enabled)
	v.SetDefault("archive.db_path", ac.DBPath)
	v.SetDefault("archive.backup_dir", "")

	v.SetDefault("api.enabled", false)
	v.SetDefault("api.listen", DefaultListen)

	mc := metrics.DefaultConfig()
	v.SetDefault("metrics.enabled", mc.Enabled)
	v.SetDefault("metrics.namespace", mc.Namespace)
}

// Load reads the configuration file, then environment variables, then
// flags, each overriding the previous source.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if o.flags != nil {
		for flag, key := range flagKeys {
			if f := o.flags.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errFactory.Wrap(errors.ErrBindFlags, err)
				}
			}
		}
	}

	path, explicit := configPath(o)
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return nil, errFactory.Wrap(errors.ErrReadConfig, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	if len(cfg.Hardware.Motors) == 0 {
		for id := 0; id < cfg.Telemetry.MaxMotors; id++ {
			cfg.Hardware.Motors = append(cfg.Hardware.Motors, MotorConfig{ID: id})
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// configPath resolves the file to read. An empty environment override
// disables the file entirely.
func configPath(o options) (string, bool) {
	if o.configPath != "" {
		return o.configPath, true
	}

	if o.flags != nil {
		if f := o.flags.Lookup("config"); f != nil && f.Changed {
			return f.Value.String(), true
		}
	}

	if path, ok := os.LookupEnv(o.envPrefix + "_CONFIG"); ok {
		return path, path != ""
	}

	return DefaultConfigFile, false
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	if err := c.Engine().Validate(); err != nil {
		return errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	invalid := func(field string, value interface{}, reason string) error {
		return errFactory.WithData(errors.ErrInvalidConfig, &fieldError{
			field:  field,
			value:  value,
			reason: reason,
		})
	}

	switch c.Telemetry.CurrentEstimator {
	case EstimatorKval, EstimatorNone:
	default:
		return invalid("telemetry.current_estimator", c.Telemetry.CurrentEstimator, "must be kval or none")
	}

	switch c.Hardware.Backend {
	case BackendSim, BackendPeriph:
	default:
		return errFactory.WithData(errors.ErrInvalidBackend, c.Hardware.Backend)
	}

	seen := make(map[int]bool, len(c.Hardware.Motors))
	for _, m := range c.Hardware.Motors {
		if m.ID < 0 || m.ID >= c.Telemetry.MaxMotors {
			return invalid("hardware.motors.id", m.ID, "outside the configured motor slots")
		}
		if seen[m.ID] {
			return invalid("hardware.motors.id", m.ID, "configured twice")
		}
		seen[m.ID] = true

		if m.SampleRateHz > c.Telemetry.MaxSampleRateHz {
			return invalid("hardware.motors.sample_rate_hz", m.SampleRateHz, "above max_sample_rate_hz")
		}
		if m.MaxCurrentA < 0 || m.MaxSpeedDps < 0 {
			return invalid("hardware.motors.max_current_a", m.MaxCurrentA, "motor limits must not be negative")
		}
	}

	if err := c.ArchiveSettings().Validate(); err != nil {
		return errFactory.Wrap(errors.ErrInvalidConfig, err)
	}
	if err := c.MetricsSettings().Validate(); err != nil {
		return errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if c.API.Enabled && c.API.Listen == "" {
		return invalid("api.listen", c.API.Listen, "required when the API is enabled")
	}

	return nil
}

// Engine returns the sampling engine constants
func (c *Config) Engine() telemetry.Config {
	t := c.Telemetry

	return telemetry.Config{
		MaxMotors:                t.MaxMotors,
		DatasetCapacity:          t.DatasetCapacity,
		MaxSampleRateHz:          t.MaxSampleRateHz,
		DefaultSampleRateHz:      t.DefaultSampleRateHz,
		SupplyVoltage:            t.SupplyVoltage,
		PhaseResistanceOhm:       t.PhaseResistanceOhm,
		SafetyCurrentRatio:       t.SafetyCurrentRatio,
		SafetySpeedRatio:         t.SafetySpeedRatio,
		MotorMaxCurrentA:         t.MotorMaxCurrentA,
		MotorMaxSpeedDps:         t.MotorMaxSpeedDps,
		PositionErrorLimitDeg:    t.PositionErrorLimitDeg,
		CPUOverheadTargetPercent: t.CPUOverheadTargetPercent,
		TimingTolerancePercent:   t.TimingTolerancePercent,
		RealtimeRatio:            t.RealtimeRatio,
	}
}

// Estimator returns the configured current estimator
func (c *Config) Estimator() telemetry.CurrentEstimator {
	if c.Telemetry.CurrentEstimator == EstimatorNone {
		return telemetry.NullEstimator{}
	}

	return telemetry.KvalEstimator{
		SupplyVoltage:      c.Telemetry.SupplyVoltage,
		PhaseResistanceOhm: c.Telemetry.PhaseResistanceOhm,
	}
}

// Motor returns the engine settings of one motor slot
func (m MotorConfig) Motor() telemetry.MotorConfig {
	return telemetry.MotorConfig{
		EncoderOffsetDeg: m.EncoderOffsetDeg,
		MaxCurrentA:      m.MaxCurrentA,
		MaxSpeedDps:      m.MaxSpeedDps,
		SampleRateHz:     m.SampleRateHz,
	}
}

func (c *Config) ArchiveSettings() archive.Config {
	return archive.Config{
		DBPath:    c.Archive.DBPath,
		BackupDir: c.Archive.BackupDir,
		Enabled:   c.Archive.Enabled,
	}
}

func (c *Config) MetricsSettings() metrics.Config {
	return metrics.Config{
		Namespace: c.Metrics.Namespace,
		Enabled:   c.Metrics.Enabled,
	}
}
