package logger

import (
	"cmp"

	"github.com/Michael--/modular-runtime/validation"
)

// Config is the logging section of a service config. Output is stdout,
// stderr or a file path.
type Config struct {
	Level     string `yaml:"level" mapstructure:"level"`
	Format    string `yaml:"format" mapstructure:"format"`
	Output    string `yaml:"output" mapstructure:"output"`
	NoColor   bool   `yaml:"no_color" mapstructure:"no_color"`
	Timestamp bool   `yaml:"timestamp" mapstructure:"timestamp"`
	Caller    bool   `yaml:"caller" mapstructure:"caller"`
}

var (
	levels  = []string{"trace", "debug", "info", "warn", "error", "fatal", "disabled"}
	formats = []string{"json", "console", FormatPretty}
)

// ApplyDefaults logs info and above to stdout on the console, always
// timestamped.
func (c *Config) ApplyDefaults() {
	c.Level = cmp.Or(c.Level, "info")
	c.Format = cmp.Or(c.Format, "console")
	c.Output = cmp.Or(c.Output, "stdout")
	c.Timestamp = true
}

// Validate checks the level and format names.
func (c *Config) Validate() error {
	return validation.New().
		Check(c.Level != "", "level", "is required").
		OneOf("level", c.Level, levels).
		Check(c.Format != "", "format", "is required").
		OneOf("format", c.Format, formats).
		Err()
}

