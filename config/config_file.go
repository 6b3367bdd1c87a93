package config

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// LocalConfigFile is looked up in the working directory before the per-user file.
const LocalConfigFile = "dexpack.toml"

// FileConfig mirrors Config for TOML. Booleans are pointers so an absent key
// leaves the current value alone.
type FileConfig struct {
	MinSdk          int    `toml:"min_sdk"`
	Strict          *bool  `toml:"strict"`
	StrictNameCheck *bool  `toml:"strict_name_check"`
	StripDebug      *bool  `toml:"strip_debug"`
	SkipSynthetic   *bool  `toml:"skip_synthetic"`
	Output          string `toml:"output"`
	Jar             *bool  `toml:"jar"`
	LogFormat       string `toml:"log_format"`
	LogFile         string `toml:"log_file"`
	Verbosity       int    `toml:"verbosity"`
}

// LoadFileConfig reads and parses a TOML config file.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ./dexpack.toml when it exists, otherwise
// ~/.dexpack/config.toml, or "" when no home directory is known.
func DefaultConfigPath() string {
	if FileExists(LocalConfigFile) {
		return LocalConfigFile
	}
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".dexpack", "config.toml")
	}
	return ""
}

// ApplyFileConfig copies file values into cfg, skipping flags in changed.
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) {
	s := newConfigSetter(changed)

	s.setInt("min-sdk", fc.MinSdk, &cfg.MinSdk)
	s.setInt("verbose", fc.Verbosity, &cfg.Verbosity)

	s.setString("output", fc.Output, &cfg.Output)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)
	s.setString("log-file", fc.LogFile, &cfg.LogFile)

	s.setBool("strict", fc.Strict, &cfg.Strict)
	s.setBool("no-name-check", fc.StrictNameCheck, &cfg.StrictNameCheck)
	s.setBool("strip-debug", fc.StripDebug, &cfg.StripDebug)
	s.setBool("skip-synthetic", fc.SkipSynthetic, &cfg.SkipSynthetic)
	s.setBool("jar", fc.Jar, &cfg.Jar)
}

// FileExists reports whether a file exists at p.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
