package archive

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Known archive suffixes, longest first for suffix stripping.
var archiveSuffixes = []string{".tar.gz", ".tgz", ".tar"}

// IsArchive reports whether the path looks like a supported archive file.
func IsArchive(path string) bool {
	for _, s := range archiveSuffixes {
		if strings.HasSuffix(path, s) {
			return true
		}
	}
	return false
}

// IsCompressed reports whether the archive is gzip-framed, by suffix.
func IsCompressed(path string) bool {
	return strings.HasSuffix(path, ".tgz") || strings.HasSuffix(path, ".tar.gz")
}

// StripSuffix removes a known archive suffix from a base name (no-op for
// directories and unknown suffixes).
func StripSuffix(base string) string {
	for _, s := range archiveSuffixes {
		if strings.HasSuffix(base, s) {
			return strings.TrimSuffix(base, s)
		}
	}
	return base
}

// TarDir streams dir as a tar archive into w. Paths inside the archive are
// relative to dir. The context is checked between file entries so a
// cancelled transfer stops without finishing the walk.
func TarDir(ctx context.Context, dir string, w io.Writer) error {
	tw := tar.NewWriter(w)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == dir {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		var link string
		if info.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}

		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
		}

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", dir, err)
	}

	return tw.Close()
}

// Extract unpacks a tar stream into dir. Entries escaping dir are
// rejected.
func Extract(ctx context.Context, r io.Reader, dir string) error {
	tr := tar.NewReader(r)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}

		target := filepath.Join(dir, filepath.FromSlash(hdr.Name))
		if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) && target != filepath.Clean(dir) {
			return fmt.Errorf("archive entry %q escapes destination", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, fs.FileMode(hdr.Mode)); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil && !os.IsExist(err) {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fs.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
		}
	}
}

// Compress wraps w in a gzip frame.
func Compress(w io.Writer) *gzip.Writer {
	return gzip.NewWriter(w)
}

// Decompress wraps r in a gzip reader.
func Decompress(r io.Reader) (*gzip.Reader, error) {
	return gzip.NewReader(r)
}

// Verify walks the archive without extracting, returning an error for a
// corrupt tar structure or a failed gzip checksum.
func Verify(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	if IsCompressed(path) {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("bad gzip framing in %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	tr := tar.NewReader(r)
	for {
		_, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("corrupt archive %s: %w", path, err)
		}
		if _, err := io.Copy(io.Discard, tr); err != nil {
			return fmt.Errorf("corrupt archive %s: %w", path, err)
		}
	}
}

// DirUsage measures a directory tree: total bytes of regular files and the
// file count.
func DirUsage(dir string) (bytes, files int64, err error) {
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			bytes += info.Size()
			files++
		}
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to measure %s: %w", dir, err)
	}
	return bytes, files, nil
}

// compressedSizeFallback multiplies the compressed file size when the gzip
// trailer is unusable.
const compressedSizeFallback = 5

// EstimateSize approximates the uncompressed byte size of an import
// source: directories by disk usage, plain archives by file size,
// compressed archives by the gzip ISIZE trailer with a 5x-compressed-size
// fallback (ISIZE is modulo 2^32, so implausibly small values are
// ignored).
func EstimateSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}

	if info.IsDir() {
		bytes, _, err := DirUsage(path)
		return bytes, err
	}

	if !IsCompressed(path) {
		return info.Size(), nil
	}

	if size, ok := gzipUncompressedSize(path, info.Size()); ok {
		return size, nil
	}
	return info.Size() * compressedSizeFallback, nil
}

// gzipUncompressedSize reads the ISIZE field from the last four bytes of a
// gzip file. The field wraps at 4 GiB; a value smaller than the compressed
// file is taken as wrapped and rejected.
func gzipUncompressedSize(path string, compressed int64) (int64, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	if compressed < 4 {
		return 0, false
	}

	var trailer [4]byte
	if _, err := f.ReadAt(trailer[:], compressed-4); err != nil {
		return 0, false
	}

	size := int64(trailer[0]) | int64(trailer[1])<<8 | int64(trailer[2])<<16 | int64(trailer[3])<<24
	if size < compressed {
		return 0, false
	}
	return size, true
}
