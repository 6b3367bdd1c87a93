package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/cobra"

	"github.com/dhamidi/dexpack/dx"
	"github.com/dhamidi/dexpack/format"
)

func newDumpCmd(opts *rootOptions) *cobra.Command {
	var dumpFormat string

	cmd := &cobra.Command{
		Use:   "dump <file>",
		Short: "Dump the classes declared in a .dex file or in the classes.dex of a jar or apk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.load(cmd); err != nil {
				return err
			}
			enc := format.New(dumpFormat, cmd.OutOrStdout())
			if enc == nil {
				return fmt.Errorf("unknown format: %s (expected json or line)", dumpFormat)
			}

			src, err := openDex(args[0])
			if err != nil {
				return err
			}
			r, err := dx.Default().NewReaderFrom(src, true)
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			d, err := r.Materialize()
			if err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}

			for _, class := range d.Classes {
				if err := enc.Encode(class); err != nil {
					return fmt.Errorf("encode %s: %w", dumpFormat, err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dumpFormat, "format", "f", "line", "output format (json, line)")

	return cmd
}

// openDex opens filename as a dex file, or the classes.dex member when
// filename is an archive.
func openDex(filename string) (io.ReadCloser, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".dex":
		return os.Open(filename)
	case ".jar", ".zip", ".apk":
		zr, err := zip.OpenReader(filename)
		if err != nil {
			return nil, err
		}
		for _, f := range zr.File {
			if f.Name != DexEntryName {
				continue
			}
			rc, err := f.Open()
			if err != nil {
				zr.Close()
				return nil, err
			}
			return &zipMember{ReadCloser: rc, archive: zr}, nil
		}
		zr.Close()
		return nil, fmt.Errorf("%s has no %s", filename, DexEntryName)
	default:
		return nil, fmt.Errorf("unsupported file extension: %s (expected .dex, .jar, .zip or .apk)", filepath.Ext(filename))
	}
}

// zipMember closes the enclosing archive together with the member.
type zipMember struct {
	io.ReadCloser
	archive *zip.ReadCloser
}

func (m *zipMember) Close() error {
	err := m.ReadCloser.Close()
	if cerr := m.archive.Close(); err == nil {
		err = cerr
	}
	return err
}
