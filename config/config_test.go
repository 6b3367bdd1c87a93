package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tliron/commonlog"

	"github.com/dhamidi/dexpack/dex"
	"github.com/dhamidi/dexpack/dx"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, dx.SDK26, cfg.MinSdk)
	assert.True(t, cfg.StrictNameCheck)
	assert.Equal(t, "classes.dex", cfg.Output)
	assert.Equal(t, LogFormatSimple, cfg.LogFormat)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "sdk 13 is the floor", mutate: func(c *Config) { c.MinSdk = 13 }},
		{name: "sdk below floor", mutate: func(c *Config) { c.MinSdk = 12 }, wantErr: true},
		{name: "missing output", mutate: func(c *Config) { c.Output = "" }, wantErr: true},
		{name: "zerolog format", mutate: func(c *Config) { c.LogFormat = LogFormatZerolog }},
		{name: "unknown format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: true},
		{name: "negative verbosity", mutate: func(c *Config) { c.Verbosity = -1 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	cfg := DefaultConfig()
	cfg.LogFormat = ""
	require.NoError(t, cfg.Validate())
	assert.Equal(t, LogFormatSimple, cfg.LogFormat)
}

func TestTranslateOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StripDebug = true
	assert.Equal(t, &dx.TranslateOptions{StrictNameCheck: true, StripDebugInfo: true}, cfg.TranslateOptions())
}

func TestFactory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strict = true
	cfg.SkipSynthetic = true
	collector := &dex.Collector{}

	f := cfg.Factory(collector, commonlog.GetLogger("dexpack.test"))
	assert.True(t, f.NewParser().Strict())
	assert.Same(t, collector, f.NewFile().Options().Reporter)
	assert.True(t, f.NewWriter().TranslateOptions().SkipSynthetic)

	f = cfg.Factory(nil, nil, dx.WithStrictParsing(false))
	assert.False(t, f.NewParser().Strict(), "extra options are applied last")
}

func TestApplyFileConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dexpack.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
min_sdk = 21
strict = true
strict_name_check = false
output = "out.dex"
log_format = "zerolog"
verbosity = 2
`), 0o644))

	fc, err := LoadFileConfig(path)
	require.NoError(t, err)

	cfg := DefaultConfig()
	ApplyFileConfig(&cfg, fc, map[string]bool{"output": true})

	assert.Equal(t, 21, cfg.MinSdk)
	assert.True(t, cfg.Strict)
	assert.False(t, cfg.StrictNameCheck)
	assert.Equal(t, "classes.dex", cfg.Output, "explicit flag wins")
	assert.Equal(t, LogFormatZerolog, cfg.LogFormat)
	assert.Equal(t, 2, cfg.Verbosity)
	assert.False(t, cfg.StripDebug, "absent keys keep defaults")
}

func TestLoadFileConfigErrors(t *testing.T) {
	_, err := LoadFileConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("min_sdk = = 3"), 0o644))
	_, err = LoadFileConfig(path)
	assert.Error(t, err)

	assert.False(t, FileExists(filepath.Join(t.TempDir(), "nope")))
	assert.True(t, FileExists(path))
}

func TestApplyEnvConfig(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		changed  map[string]bool
		expected func(*Config)
		wantErr  bool
	}{
		{
			name: "applies all env vars",
			envVars: map[string]string{
				"DEXPACK_MIN_SDK":     "24",
				"DEXPACK_STRICT":      "1",
				"DEXPACK_STRIP_DEBUG": "true",
				"DEXPACK_OUTPUT":      "env.dex",
				"DEXPACK_LOG_FORMAT":  "zerolog",
			},
			changed: map[string]bool{},
			expected: func(c *Config) {
				c.MinSdk = 24
				c.Strict = true
				c.StripDebug = true
				c.Output = "env.dex"
				c.LogFormat = LogFormatZerolog
			},
		},
		{
			name:     "respects changed flags",
			envVars:  map[string]string{"DEXPACK_MIN_SDK": "24", "DEXPACK_OUTPUT": "env.dex"},
			changed:  map[string]bool{"min-sdk": true},
			expected: func(c *Config) { c.Output = "env.dex" },
		},
		{
			name:     "ignores non-positive sdk",
			envVars:  map[string]string{"DEXPACK_MIN_SDK": "0"},
			changed:  map[string]bool{},
			expected: func(c *Config) {},
		},
		{
			name:    "rejects malformed sdk",
			envVars: map[string]string{"DEXPACK_MIN_SDK": "twenty"},
			changed: map[string]bool{},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			cfg := DefaultConfig()
			err := ApplyEnvConfig(&cfg, tt.changed)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			want := DefaultConfig()
			tt.expected(&want)
			assert.Equal(t, want, cfg)
		})
	}
}
