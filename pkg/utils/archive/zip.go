// Package archive builds and extracts ZIP containers with the safety
// rails the web boundary needs: path-traversal rejection on both
// directions and hard size/file-count caps against zip bombs.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrTooManyFiles = errors.New("too many files for archive")
	ErrTooLarge     = errors.New("archive size limit exceeded")
	ErrUnsafePath   = errors.New("unsafe path in archive")
	ErrNotArchive   = errors.New("not a valid zip archive")
)

// Limits caps a ZIP build. Zero values mean the defaults below.
type Limits struct {
	MaxFiles int
	MaxBytes int64
}

const (
	DefaultMaxFiles = 100_000
	DefaultMaxBytes = 10 * 1024 * 1024 * 1024
)

func (l Limits) withDefaults() Limits {
	if l.MaxFiles <= 0 {
		l.MaxFiles = DefaultMaxFiles
	}
	if l.MaxBytes <= 0 {
		l.MaxBytes = DefaultMaxBytes
	}
	return l
}

// ZipDir packages every regular file under root into dest.
//
// Arcnames are the slash-separated paths relative to root, with no
// extra nesting. Entries that would escape root are skipped. When a
// cap is exceeded the partial dest is removed and an error returned.
//
// # Returns
//
// - int: number of files written.
//
// - int64: total uncompressed bytes.
//
// - error: ErrTooManyFiles / ErrTooLarge, or an I/O failure.
func ZipDir(root, dest string, limits Limits) (int, int64, error) {
	limits = limits.withDefaults()

	out, err := os.Create(dest)
	if err != nil {
		return 0, 0, err
	}

	zw := zip.NewWriter(out)
	fileCount := 0
	var totalSize int64

	err = filepath.Walk(root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		if fileCount >= limits.MaxFiles {
			return fmt.Errorf("%w (max: %d)", ErrTooManyFiles, limits.MaxFiles)
		}

		totalSize += info.Size()
		if totalSize > limits.MaxBytes {
			return fmt.Errorf("%w (max: %d bytes)", ErrTooLarge, limits.MaxBytes)
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		arcname := filepath.ToSlash(rel)
		if strings.HasPrefix(arcname, "/") || hasDotDot(arcname) {
			return nil
		}

		w, err := zw.Create(arcname)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(w, f); err != nil {
			return err
		}
		fileCount++
		return nil
	})
	if err == nil {
		err = zw.Close()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}

	if err != nil {
		os.Remove(dest)
		return 0, 0, err
	}
	return fileCount, totalSize, nil
}

// Unzip extracts src into destDir, rejecting any entry whose path is
// absolute or contains "..".
func Unzip(src, destDir string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotArchive, src)
	}
	defer zr.Close()
	return extract(&zr.Reader, destDir)
}

// UnzipReader is Unzip over an in-memory or spooled upload.
func UnzipReader(src io.ReaderAt, size int64, destDir string) error {
	zr, err := zip.NewReader(src, size)
	if err != nil {
		return ErrNotArchive
	}
	return extract(zr, destDir)
}

func extract(zr *zip.Reader, destDir string) error {
	for _, entry := range zr.File {
		name := filepath.ToSlash(entry.Name)
		if strings.HasPrefix(name, "/") || hasDotDot(name) {
			return fmt.Errorf("%w: %s", ErrUnsafePath, entry.Name)
		}

		target := filepath.Join(destDir, filepath.FromSlash(name))
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		rc, err := entry.Open()
		if err != nil {
			return err
		}
		f, err := os.Create(target)
		if err != nil {
			rc.Close()
			return err
		}
		_, err = io.Copy(f, rc)
		rc.Close()
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Validate checks that path is a readable zip container.
func Validate(path string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotArchive, path)
	}
	return zr.Close()
}

func hasDotDot(slashPath string) bool {
	for _, part := range strings.Split(slashPath, "/") {
		if part == ".." {
			return true
		}
	}
	return false
}
