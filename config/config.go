// Package config holds the dexpack command line configuration: defaults, a TOML
// file, DEXPACK_* environment variables and explicit flags, in increasing order
// of precedence.
package config

import (
	"fmt"
	"strconv"

	"github.com/tliron/commonlog"

	"github.com/dhamidi/dexpack/dex"
	"github.com/dhamidi/dexpack/dx"
)

// Log formats understood by the CLI.
const (
	LogFormatSimple  = "simple"
	LogFormatZerolog = "zerolog"
)

// Config holds CLI configuration for dexpack.
type Config struct {
	MinSdk          int
	Strict          bool
	StrictNameCheck bool
	StripDebug      bool
	SkipSynthetic   bool

	Output string
	Jar    bool

	LogFormat string
	LogFile   string
	Verbosity int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		MinSdk:          dx.SDK26,
		StrictNameCheck: true,
		Output:          "classes.dex",
		LogFormat:       LogFormatSimple,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.MinSdk < dx.SDK13 {
		return fmt.Errorf("min-sdk must be at least %d, got %d", dx.SDK13, c.MinSdk)
	}
	if c.Output == "" {
		return fmt.Errorf("output is required")
	}
	switch c.LogFormat {
	case "":
		c.LogFormat = LogFormatSimple
	case LogFormatSimple, LogFormatZerolog:
	default:
		return fmt.Errorf("unknown log format %q (want %s or %s)", c.LogFormat, LogFormatSimple, LogFormatZerolog)
	}
	if c.Verbosity < 0 {
		return fmt.Errorf("verbosity must not be negative")
	}
	return nil
}

// TranslateOptions returns the per-class options this configuration selects.
func (c *Config) TranslateOptions() *dx.TranslateOptions {
	return &dx.TranslateOptions{
		StrictNameCheck: c.StrictNameCheck,
		StripDebugInfo:  c.StripDebug,
		SkipSynthetic:   c.SkipSynthetic,
	}
}

// Factory builds a dx.Factory honoring the configuration. Extra options are
// applied last.
func (c *Config) Factory(reporter dex.ErrorReporter, log commonlog.Logger, extra ...dx.FactoryOption) *dx.Factory {
	opts := []dx.FactoryOption{
		dx.WithStrictParsing(c.Strict),
		dx.WithTranslateOptions(c.TranslateOptions()),
	}
	if reporter != nil {
		opts = append(opts, dx.WithReporter(reporter))
	}
	if log != nil {
		opts = append(opts, dx.WithLogger(log))
	}
	return dx.NewFactory(append(opts, extra...)...)
}

// configSetter applies values only when the corresponding flag was not set
// explicitly.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses an environment value. Non-positive values are
// ignored.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString accepts "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
