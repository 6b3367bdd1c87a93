package config

import "os"

// ApplyEnvConfig overlays DEXPACK_* environment variables onto cfg. Flags in
// changed keep their values.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	if err := s.setIntFromString("min-sdk", os.Getenv("DEXPACK_MIN_SDK"), &cfg.MinSdk); err != nil {
		return err
	}
	s.setBoolFromString("strict", os.Getenv("DEXPACK_STRICT"), &cfg.Strict)
	s.setBoolFromString("strip-debug", os.Getenv("DEXPACK_STRIP_DEBUG"), &cfg.StripDebug)
	s.setString("output", os.Getenv("DEXPACK_OUTPUT"), &cfg.Output)
	s.setString("log-format", os.Getenv("DEXPACK_LOG_FORMAT"), &cfg.LogFormat)

	return nil
}
