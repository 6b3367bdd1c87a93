package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dhamidi/dexpack/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{cfg: config.DefaultConfig()}

	rootCmd := &cobra.Command{
		Use:          "dexpack",
		Short:        "Assemble Java class files into Android dex files",
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.cfgPath, "config", "", "config file (default ./dexpack.toml or ~/.dexpack/config.toml)")
	pf.CountVarP(&opts.cfg.Verbosity, "verbose", "v", "increase log verbosity (repeatable)")
	pf.StringVar(&opts.cfg.LogFile, "log-file", "", "write logs to this file instead of stderr")
	pf.StringVar(&opts.cfg.LogFormat, "log-format", opts.cfg.LogFormat, "log backend (simple, zerolog)")

	rootCmd.AddCommand(newPackCmd(opts))
	rootCmd.AddCommand(newDumpCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}
