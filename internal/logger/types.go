// Package logger provides structured logging for the crawl engine, built on zap.
package logger

// Level is a logging level understood by Config.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
	FatalLevel Level = "fatal"
)

// Default configuration values.
const (
	DefaultLevel  = InfoLevel
	DefaultFormat = "console"
)

// DefaultOutputPaths is the default list of paths log output is written to.
var DefaultOutputPaths = []string{"stdout"}

// Config configures a Logger instance.
type Config struct {
	Level       Level    `env:"LOG_LEVEL"       yaml:"level"`
	Format      string   `env:"LOG_FORMAT"      yaml:"format"`
	Development bool     `env:"LOG_DEVELOPMENT" yaml:"development"`
	OutputPaths []string `yaml:"output_paths"`
}

// SetDefaults fills zero-value fields with production-safe defaults.
func (c *Config) SetDefaults() {
	if c.Level == "" {
		c.Level = DefaultLevel
	}
	if c.Format == "" {
		c.Format = DefaultFormat
	}
	if len(c.OutputPaths) == 0 {
		c.OutputPaths = DefaultOutputPaths
	}
}
