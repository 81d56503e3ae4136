package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/starford/agora/internal/checksum"
)

// RecordExt is the extension of record files.
const RecordExt = ".json"

// tmpPrefix marks in-flight writes. List skips dot files, so a reader never
// sees a half-written record.
const tmpPrefix = ".agora-tmp-"

// FS implements Provider over one replica directory. Reads go through an
// fs.FS rooted at the directory; writes use the os package.
type FS struct {
	root string
	fsys fs.FS
}

// NewFS opens the replica directory at root, which must exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs, fsys: os.DirFS(abs)}, nil
}

// Root returns the absolute replica directory.
func (f *FS) Root() string {
	return f.root
}

// name turns a slash-separated relative path into an fs.FS name. "" and "."
// both mean the replica root. Anything that would leave the root is refused.
func name(rel string) (string, error) {
	if rel == "" {
		return ".", nil
	}
	if strings.Contains(rel, `\`) || path.IsAbs(rel) {
		return "", fmt.Errorf("storage: invalid path: %s", rel)
	}
	cleaned := path.Clean(rel)
	if !fs.ValidPath(cleaned) {
		return "", fmt.Errorf("storage: path escapes replica root: %s", rel)
	}
	return cleaned, nil
}

// List returns metadata for every record file under dir. A missing dir
// yields no entries.
func (f *FS) List(dir string) ([]FileMeta, error) {
	base, err := name(dir)
	if err != nil {
		return nil, err
	}

	var out []FileMeta
	err = fs.WalkDir(f.fsys, base, func(p string, d fs.DirEntry, walkErr error) error {
		switch {
		case walkErr != nil && p == base && errors.Is(walkErr, fs.ErrNotExist):
			return fs.SkipAll
		case walkErr != nil:
			return walkErr
		case d.IsDir():
			if p != base && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		case strings.HasPrefix(d.Name(), ".") || path.Ext(p) != RecordExt:
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		sum, err := checksum.File(f.fsys, p)
		if err != nil {
			return err
		}
		out = append(out, FileMeta{Path: p, Checksum: sum, UpdatedAt: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list %s: %w", dir, err)
	}
	return out, nil
}

// Read returns the raw bytes of the file at rel.
func (f *FS) Read(rel string) ([]byte, error) {
	n, err := name(rel)
	if err != nil {
		return nil, err
	}
	data, err := fs.ReadFile(f.fsys, n)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", rel, err)
	}
	return data, nil
}

// Exists reports whether a regular file is present at rel.
func (f *FS) Exists(rel string) (bool, error) {
	n, err := name(rel)
	if err != nil {
		return false, err
	}
	info, err := fs.Stat(f.fsys, n)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("storage: stat %s: %w", rel, err)
	}
	return info.Mode().IsRegular(), nil
}

// Write replaces the file at rel with content. The bytes are written to a
// temp file in the same directory, synced and renamed into place.
func (f *FS) Write(rel string, content []byte) error {
	n, err := name(rel)
	if err != nil {
		return err
	}
	if n == "." {
		return fmt.Errorf("storage: cannot write replica root")
	}
	dst := filepath.Join(f.root, filepath.FromSlash(n))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}
	if err := writeAtomic(dst, content); err != nil {
		return fmt.Errorf("storage: write %s: %w", rel, err)
	}
	return nil
}

func writeAtomic(dst string, content []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(dst), tmpPrefix+"*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(content); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
