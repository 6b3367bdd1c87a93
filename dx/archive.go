package dx

import (
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/klauspost/compress/zip"
)

// ArchiveEntry is one member of an Archive.
type ArchiveEntry struct {
	// Name is the slash separated path inside the archive.
	Name string
	Dir  bool
	// Size is the uncompressed size when known, 0 otherwise.
	Size int64
	Open func() (io.ReadCloser, error)
}

// Archive yields its entries in order. Next returns io.EOF after the last one.
type Archive interface {
	Next() (*ArchiveEntry, error)
}

type zipArchive struct {
	files []*zip.File
	next  int
}

// ZipArchive iterates the members of a zip or jar file.
func ZipArchive(r *zip.Reader) Archive {
	return &zipArchive{files: r.File}
}

func (a *zipArchive) Next() (*ArchiveEntry, error) {
	if a.next >= len(a.files) {
		return nil, io.EOF
	}
	f := a.files[a.next]
	a.next++
	return &ArchiveEntry{
		Name: f.Name,
		Dir:  f.FileInfo().IsDir(),
		Size: int64(f.UncompressedSize64),
		Open: f.Open,
	}, nil
}

// OpenZip opens the zip file at path. The caller closes the returned closer
// when done with the archive.
func OpenZip(path string) (Archive, io.Closer, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return ZipArchive(&r.Reader), r, nil
}

type dirArchive struct {
	fsys    fs.FS
	entries []*ArchiveEntry
	walked  bool
	next    int
}

// DirArchive iterates the files below the root of fsys in lexical order.
func DirArchive(fsys fs.FS) Archive {
	return &dirArchive{fsys: fsys}
}

// OpenDir is DirArchive(os.DirFS(dir)).
func OpenDir(dir string) Archive {
	return DirArchive(os.DirFS(dir))
}

func (a *dirArchive) Next() (*ArchiveEntry, error) {
	if !a.walked {
		a.walked = true
		if err := a.walk(); err != nil {
			return nil, err
		}
	}
	if a.next >= len(a.entries) {
		return nil, io.EOF
	}
	e := a.entries[a.next]
	a.next++
	return e, nil
}

func (a *dirArchive) walk() error {
	return fs.WalkDir(a.fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == "." {
			return nil
		}
		name := path
		var size int64
		if !d.IsDir() {
			if info, err := d.Info(); err == nil {
				size = info.Size()
			}
		}
		a.entries = append(a.entries, &ArchiveEntry{
			Name: name,
			Dir:  d.IsDir(),
			Size: size,
			Open: func() (io.ReadCloser, error) {
				return a.fsys.Open(name)
			},
		})
		return nil
	})
}
