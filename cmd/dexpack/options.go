package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tliron/commonlog"
	"github.com/tliron/commonlog/simple"
	"github.com/tliron/commonlog/zerolog"

	"github.com/dhamidi/dexpack/config"
)

// rootOptions is shared by every sub-command. Flags write into cfg directly;
// load fills in whatever the user did not set on the command line.
type rootOptions struct {
	cfg     config.Config
	cfgPath string
}

func (o *rootOptions) load(cmd *cobra.Command) error {
	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	cfgFile := o.cfgPath
	if cfgFile == "" {
		cfgFile = config.DefaultConfigPath()
	}
	if cfgFile != "" && config.FileExists(cfgFile) {
		fc, err := config.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		config.ApplyFileConfig(&o.cfg, fc, changed)
	} else if o.cfgPath != "" {
		return fmt.Errorf("config file %s does not exist", o.cfgPath)
	}

	if err := config.ApplyEnvConfig(&o.cfg, changed); err != nil {
		return err
	}
	if err := o.cfg.Validate(); err != nil {
		return err
	}
	setupLogging(&o.cfg)
	return nil
}

func setupLogging(cfg *config.Config) {
	switch cfg.LogFormat {
	case config.LogFormatZerolog:
		commonlog.SetBackend(zerolog.NewBackend())
	default:
		commonlog.SetBackend(simple.NewBackend())
	}

	var path *string
	if cfg.LogFile != "" {
		path = &cfg.LogFile
	}
	commonlog.Configure(cfg.Verbosity, path)
}
