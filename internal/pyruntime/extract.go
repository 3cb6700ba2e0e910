package pyruntime

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pylaunch/pylaunch/internal/pathutil"
)

// ErrExtractFailed covers unreadable or malformed archives, including
// entries that would escape the destination.
var ErrExtractFailed = errors.New("extract failed")

// extractArchive unpacks the distribution at src into destDir, dispatching
// on the archive suffix. Every entry path is containment-checked against
// destDir before anything is written.
func extractArchive(src, destDir string) error {
	switch {
	case strings.HasSuffix(src, ".zip"):
		return extractZip(src, destDir)
	case strings.HasSuffix(src, ".tar.gz"), strings.HasSuffix(src, ".tgz"):
		return extractTarGz(src, destDir)
	default:
		return fmt.Errorf("%w: unrecognized archive %s", ErrExtractFailed, filepath.Base(src))
	}
}

func extractZip(src, destDir string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExtractFailed, err)
	}
	defer func() { _ = zr.Close() }()

	for _, f := range zr.File {
		target, err := entryPath(destDir, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o750); err != nil {
				return fmt.Errorf("%w: %v", ErrExtractFailed, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return fmt.Errorf("%w: %v", ErrExtractFailed, err)
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrExtractFailed, err)
		}
		err = writeEntry(target, rc, f.Mode())
		_ = rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func extractTarGz(src, destDir string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExtractFailed, err)
	}
	defer func() { _ = f.Close() }()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExtractFailed, err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrExtractFailed, err)
		}
		target, err := entryPath(destDir, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o750); err != nil {
				return fmt.Errorf("%w: %v", ErrExtractFailed, err)
			}
		case tar.TypeSymlink:
			// Distribution tarballs link e.g. bin/python3 -> python3.11.
			if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
				return fmt.Errorf("%w: %v", ErrExtractFailed, err)
			}
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return fmt.Errorf("%w: %v", ErrExtractFailed, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
				return fmt.Errorf("%w: %v", ErrExtractFailed, err)
			}
			if err := writeEntry(target, tr, hdr.FileInfo().Mode()); err != nil {
				return err
			}
		}
	}
}

// entryPath joins name under destDir and rejects traversal outside it.
func entryPath(destDir, name string) (string, error) {
	target := filepath.Join(destDir, filepath.FromSlash(name))
	if !pathutil.Contains(destDir, target) {
		return "", fmt.Errorf("%w: entry %q escapes destination", ErrExtractFailed, name)
	}
	return target, nil
}

func writeEntry(target string, r io.Reader, mode os.FileMode) error {
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExtractFailed, err)
	}
	defer func() { _ = out.Close() }()
	if _, err := io.Copy(out, r); err != nil { // #nosec G110 -- trusted distribution archives
		return fmt.Errorf("%w: %v", ErrExtractFailed, err)
	}
	return nil
}
