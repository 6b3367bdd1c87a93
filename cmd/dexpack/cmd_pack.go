package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	"github.com/dhamidi/dexpack/config"
	"github.com/dhamidi/dexpack/dex"
	"github.com/dhamidi/dexpack/dx"
)

// DexEntryName is the member that holds the dex file inside a jar or apk.
const DexEntryName = "classes.dex"

func newPackCmd(opts *rootOptions) *cobra.Command {
	var noNameCheck, watch, failOnError bool

	cmd := &cobra.Command{
		Use:   "pack <input>...",
		Short: "Pack class files, directories and jars into one dex file",
		Long: `Pack reads every .class file found in the inputs and writes their
declarations to a single dex file. Inputs may be class files, directories
(searched recursively) or .jar/.zip archives. Class files that cannot be
parsed or translated are reported and skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.load(cmd); err != nil {
				return err
			}
			if cmd.Flags().Changed("no-name-check") {
				opts.cfg.StrictNameCheck = !noNameCheck
			}

			p := &packer{
				cfg:    opts.cfg,
				inputs: args,
				out:    cmd.OutOrStdout(),
				errOut: cmd.ErrOrStderr(),
				log:    commonlog.GetLogger("dexpack.pack"),
			}

			if watch {
				ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt)
				defer stop()
				return p.watch(ctx)
			}

			res, err := p.pack()
			if err != nil {
				return err
			}
			if failOnError && res.failed > 0 {
				return fmt.Errorf("%d class files could not be packed", res.failed)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.cfg.Output, "output", "o", opts.cfg.Output, "output file")
	f.IntVar(&opts.cfg.MinSdk, "min-sdk", opts.cfg.MinSdk, "minimum Android API level to target")
	f.BoolVar(&opts.cfg.Strict, "strict", opts.cfg.Strict, "reject unsupported class versions and misplaced classes")
	f.BoolVar(&opts.cfg.StripDebug, "strip-debug", opts.cfg.StripDebug, "omit source file names")
	f.BoolVar(&opts.cfg.SkipSynthetic, "skip-synthetic", opts.cfg.SkipSynthetic, "omit synthetic fields and methods")
	f.BoolVar(&opts.cfg.Jar, "jar", opts.cfg.Jar, "wrap the output in a jar as "+DexEntryName)
	f.BoolVar(&noNameCheck, "no-name-check", false, "accept classes whose name does not match their path")
	f.BoolVar(&watch, "watch", false, "rebuild whenever an input changes")
	f.BoolVar(&failOnError, "fail-on-error", false, "exit with an error if any class file was skipped")

	return cmd
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

type packer struct {
	cfg    config.Config
	inputs []string
	out    io.Writer
	errOut io.Writer
	log    commonlog.Logger
}

type packResult struct {
	added  int
	failed int
}

// pack builds the dex file from scratch and writes it to the configured
// output.
func (p *packer) pack() (packResult, error) {
	var res packResult

	reporter := dex.WriterReporter(p.errOut)
	if p.cfg.LogFile != "" {
		reporter = dex.MultiReporter(reporter, dex.LogReporter(p.log))
	}
	f := p.cfg.Factory(reporter, commonlog.GetLogger("dexpack.dx"))
	w := f.NewWriterForFile(f.NewFileWithVersion(p.cfg.MinSdk))

	for _, in := range p.inputs {
		if err := p.add(w, in); err != nil {
			return res, err
		}
	}
	res.added, res.failed = w.Added(), w.Failed()

	if err := p.writeOutput(w); err != nil {
		return res, err
	}
	fmt.Fprintf(p.out, "%s: %d classes, %d skipped\n", p.cfg.Output, res.added, res.failed)
	return res, nil
}

func (p *packer) add(w *dx.Writer, input string) error {
	info, err := os.Stat(input)
	if err != nil {
		return err
	}

	switch {
	case info.IsDir():
		p.log.Infof("adding directory %s", input)
		return w.WriteAll(dx.OpenDir(input))

	case isArchive(input):
		p.log.Infof("adding archive %s", input)
		a, closer, err := dx.OpenZip(input)
		if err != nil {
			return err
		}
		defer closer.Close()
		return w.WriteAll(a)

	case strings.HasSuffix(input, dx.ClassSuffix):
		file, err := os.Open(input)
		if err != nil {
			return err
		}
		if err := w.PutNextClass(filepath.ToSlash(input)); err != nil {
			file.Close()
			return err
		}
		if err := w.WriteStream(file, true); err != nil {
			return err
		}
		return w.CloseClass()

	default:
		return fmt.Errorf("unsupported input %s (expected a directory, .class, .jar or .zip)", input)
	}
}

func isArchive(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jar", ".zip", ".apk":
		return true
	}
	return false
}

func (p *packer) writeOutput(w *dx.Writer) error {
	out, err := os.Create(p.cfg.Output)
	if err != nil {
		return err
	}
	if !p.cfg.Jar {
		return w.Flush(out, true)
	}

	zw := zip.NewWriter(out)
	entry, err := zw.Create(DexEntryName)
	if err == nil {
		_, err = w.WriteTo(entry)
	}
	return errors.Join(err, zw.Close(), out.Close())
}
