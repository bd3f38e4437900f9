package testsupport

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, Payload(size), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Payload returns size bytes of a repeating pattern.
func Payload(size int64) []byte {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte('A' + i%26)
	}
	return buf
}

// TarEntry is one member of a generated archive. Linkname makes it a symlink,
// or a hard link when Hard is set.
type TarEntry struct {
	Name     string
	Body     string
	Linkname string
	Hard     bool
	Dir      bool
}

// TarGz builds a gzip-compressed tar archive in memory.
func TarGz(t testing.TB, entries ...TarEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, entry := range entries {
		hdr := &tar.Header{Name: entry.Name, Mode: 0o644}
		switch {
		case entry.Dir:
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = 0o755
		case entry.Linkname != "" && entry.Hard:
			hdr.Typeflag = tar.TypeLink
			hdr.Linkname = entry.Linkname
		case entry.Linkname != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = entry.Linkname
		default:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(entry.Body))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write tar header %s: %v", entry.Name, err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := tw.Write([]byte(entry.Body)); err != nil {
				t.Fatalf("write tar body %s: %v", entry.Name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return buf.Bytes()
}

// WriteTarGz writes a generated archive to path.
func WriteTarGz(t testing.TB, path string, entries ...TarEntry) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, TarGz(t, entries...), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
