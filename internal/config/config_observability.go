package config

import "time"

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is json or text.
	Format string `yaml:"format"`
	// AddSource includes caller file and line in records.
	AddSource bool `yaml:"add_source"`
}

// TracingConfig controls OpenTelemetry tracing. An empty Endpoint disables export.
type TracingConfig struct {
	Endpoint     string            `yaml:"endpoint"`
	ServiceName  string            `yaml:"service_name"`
	Environment  string            `yaml:"environment"`
	SamplingRate float64           `yaml:"sampling_rate"`
	Insecure     bool              `yaml:"insecure"`
	Attributes   map[string]string `yaml:"attributes"`
}

// ServerConfig configures the HTTP surface used by `profileqa serve`.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	MetricsPath  string        `yaml:"metrics_path"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}
