package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Signal source transports.
const (
	SourceCache = "cache"
	SourceMQTT  = "mqtt"
)

// Config carries every tuning knob of the pump station. Durations that the
// config file expresses in seconds are converted on load.
type Config struct {
	LogLevel string
	HTTPPort string

	DBPath       string
	ErrorLogPath string

	// Controller timing.
	ErrorThreshold time.Duration // continuous error span before fatal
	LoopDelay      time.Duration // controller and relay loop cadence
	ControlHold    time.Duration // hold-to-confirm duration

	// Signal acquisition.
	SignalSource      string // "cache" or "mqtt"
	ADCBoolThresholdV float64
	DebounceSamples   int
	DebounceDelay     time.Duration
	ADCStale          time.Duration // snapshot age beyond which reads fail
	ADCStaleFatal     time.Duration // continuous staleness before fatal
	CachePath         string
	MQTTBroker        string
	MQTTTopic         string

	// Relay output line.
	RelayChip string
	RelayLine int

	// Script invoked by the service_on/service_off holds.
	ServiceTogglePath string

	DebugSignalLog bool
}

// defaults mirror the field-proven values of the deployed station.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("port", "8080")
	v.SetDefault("db.path", "data/pump.db")
	v.SetDefault("error_log_path", "data/pump_error_log.txt")
	v.SetDefault("error_threshold", 30.0)
	v.SetDefault("loop_delay", 0.1)
	v.SetDefault("control_hold_seconds", 5.0)
	v.SetDefault("signal_source", SourceCache)
	v.SetDefault("adc_bool_threshold_v", 1.0)
	v.SetDefault("debounce_samples", 3)
	v.SetDefault("debounce_delay", 0.01)
	v.SetDefault("adc_stale_seconds", 2.0)
	v.SetDefault("adc_stale_fatal_seconds", 10.0)
	v.SetDefault("cache_path", "/dev/shm/pump_adc_cache.json")
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic", "sappump/adc/snapshot")
	v.SetDefault("relay.chip", "gpiochip0")
	v.SetDefault("relay.line", 17)
	v.SetDefault("service_toggle_path", "scripts/systemd_setup.sh")
	v.SetDefault("debug_signal_log", false)
}

// Load reads pump.yml from the given directory (defaults apply when the file
// is absent) and validates the result.
func Load(dir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AddConfigPath(dir)
	v.SetConfigName("pump")
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		LogLevel:          v.GetString("log_level"),
		HTTPPort:          v.GetString("port"),
		DBPath:            v.GetString("db.path"),
		ErrorLogPath:      v.GetString("error_log_path"),
		ErrorThreshold:    secondsDuration(v.GetFloat64("error_threshold")),
		LoopDelay:         secondsDuration(v.GetFloat64("loop_delay")),
		ControlHold:       secondsDuration(v.GetFloat64("control_hold_seconds")),
		SignalSource:      v.GetString("signal_source"),
		ADCBoolThresholdV: v.GetFloat64("adc_bool_threshold_v"),
		DebounceSamples:   v.GetInt("debounce_samples"),
		DebounceDelay:     secondsDuration(v.GetFloat64("debounce_delay")),
		ADCStale:          secondsDuration(v.GetFloat64("adc_stale_seconds")),
		ADCStaleFatal:     secondsDuration(v.GetFloat64("adc_stale_fatal_seconds")),
		CachePath:         v.GetString("cache_path"),
		MQTTBroker:        v.GetString("mqtt.broker"),
		MQTTTopic:         v.GetString("mqtt.topic"),
		RelayChip:         v.GetString("relay.chip"),
		RelayLine:         v.GetInt("relay.line"),
		ServiceTogglePath: v.GetString("service_toggle_path"),
		DebugSignalLog:    v.GetBool("debug_signal_log"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.SignalSource != SourceCache && c.SignalSource != SourceMQTT {
		return fmt.Errorf("signal_source must be %q or %q, got %q", SourceCache, SourceMQTT, c.SignalSource)
	}
	if c.DebounceSamples < 1 {
		return fmt.Errorf("debounce_samples must be >= 1, got %d", c.DebounceSamples)
	}
	if c.LoopDelay <= 0 {
		return fmt.Errorf("loop_delay must be positive, got %s", c.LoopDelay)
	}
	if c.ErrorThreshold <= 0 {
		return fmt.Errorf("error_threshold must be positive, got %s", c.ErrorThreshold)
	}
	if c.ADCStaleFatal <= 0 {
		return fmt.Errorf("adc_stale_fatal_seconds must be positive, got %s", c.ADCStaleFatal)
	}
	if c.ControlHold < 0 {
		return fmt.Errorf("control_hold_seconds must not be negative, got %s", c.ControlHold)
	}
	return nil
}

func secondsDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
