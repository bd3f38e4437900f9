package archive_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"sceneflow/internal/archive"
	"sceneflow/internal/services"
	"sceneflow/internal/testsupport"
)

func TestExtractWritesMembers(t *testing.T) {
	base := t.TempDir()
	archivePath := filepath.Join(base, "scene.tgz")
	testsupport.WriteTarGz(t, archivePath,
		testsupport.TarEntry{Name: "LC08_B4.TIF", Body: "band4"},
		testsupport.TarEntry{Name: "meta", Dir: true},
		testsupport.TarEntry{Name: "meta/LC08_MTL.txt", Body: "GROUP = L1_METADATA_FILE"},
		testsupport.TarEntry{Name: "meta/current", Linkname: "LC08_MTL.txt"},
	)

	target := filepath.Join(base, "Bands")
	extracted, err := archive.Extract(archivePath, target)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(extracted) != 3 {
		t.Fatalf("expected 3 extracted entries, got %v", extracted)
	}
	data, err := os.ReadFile(filepath.Join(target, "meta", "current"))
	if err != nil {
		t.Fatalf("read through symlink: %v", err)
	}
	if string(data) != "GROUP = L1_METADATA_FILE" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	base := t.TempDir()
	archivePath := filepath.Join(base, "evil.tgz")
	testsupport.WriteTarGz(t, archivePath,
		testsupport.TarEntry{Name: "ok.TIF", Body: "fine"},
		testsupport.TarEntry{Name: "../../etc/passwd", Body: "root:x:0:0"},
		testsupport.TarEntry{Name: "after.TIF", Body: "never"},
	)

	target := filepath.Join(base, "scenes", "037035", "20200115", "Bands")
	extracted, err := archive.Extract(archivePath, target)
	if !errors.Is(err, services.ErrSecurity) {
		t.Fatalf("expected security error, got %v", err)
	}
	if len(extracted) != 1 {
		t.Fatalf("expected the member before the escape to stay extracted, got %v", extracted)
	}
	if _, err := os.Stat(filepath.Join(target, "ok.TIF")); err != nil {
		t.Fatalf("expected earlier member to remain: %v", err)
	}
	if _, err := os.Stat(filepath.Join(target, "after.TIF")); !os.IsNotExist(err) {
		t.Fatalf("expected extraction to stop at the escaping member, stat err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "scenes", "037035", "etc", "passwd")); !os.IsNotExist(err) {
		t.Fatalf("escaping member was written, stat err=%v", err)
	}
}

func TestExtractRejectsAbsoluteAndEscapingLinks(t *testing.T) {
	cases := map[string][]testsupport.TarEntry{
		"absolute": {{Name: "/tmp/owned", Body: "x"}},
		"symlink":  {{Name: "link", Linkname: "../../outside"}},
		"via link": {
			{Name: "up", Linkname: "."},
			{Name: "up/../../escape", Body: "x"},
		},
	}
	for name, entries := range cases {
		base := t.TempDir()
		archivePath := filepath.Join(base, "evil.tgz")
		testsupport.WriteTarGz(t, archivePath, entries...)

		_, err := archive.Extract(archivePath, filepath.Join(base, "target"))
		if !errors.Is(err, services.ErrSecurity) {
			t.Fatalf("%s: expected security error, got %v", name, err)
		}
	}
}

func TestExtractRejectsSymlinkResolvingOutsideTarget(t *testing.T) {
	cases := map[string][]testsupport.TarEntry{
		"through existing link": {
			{Name: "l2", Linkname: "."},
			{Name: "f", Linkname: "l2/../escaped.txt"},
			{Name: "f", Body: "pwned"},
		},
		"through later link": {
			{Name: "f", Linkname: "l2/../escaped.txt"},
			{Name: "l2", Linkname: "."},
			{Name: "f", Body: "pwned"},
		},
	}
	for name, entries := range cases {
		base := t.TempDir()
		archivePath := filepath.Join(base, "evil.tgz")
		testsupport.WriteTarGz(t, archivePath, entries...)

		_, err := archive.Extract(archivePath, filepath.Join(base, "Bands"))
		if !errors.Is(err, services.ErrSecurity) {
			t.Fatalf("%s: expected security error, got %v", name, err)
		}
		if _, err := os.Stat(filepath.Join(base, "escaped.txt")); !os.IsNotExist(err) {
			t.Fatalf("%s: file written outside target, stat err=%v", name, err)
		}
	}
}

func TestExtractReplacesSymlinkWithRegularFile(t *testing.T) {
	base := t.TempDir()
	archivePath := filepath.Join(base, "scene.tgz")
	testsupport.WriteTarGz(t, archivePath,
		testsupport.TarEntry{Name: "LC08_MTL.txt", Body: "meta"},
		testsupport.TarEntry{Name: "current", Linkname: "LC08_MTL.txt"},
		testsupport.TarEntry{Name: "current", Body: "replaced"},
	)

	target := filepath.Join(base, "Bands")
	if _, err := archive.Extract(archivePath, target); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	info, err := os.Lstat(filepath.Join(target, "current"))
	if err != nil || !info.Mode().IsRegular() {
		t.Fatalf("expected current to be a regular file, info=%v err=%v", info, err)
	}
	data, err := os.ReadFile(filepath.Join(target, "LC08_MTL.txt"))
	if err != nil || string(data) != "meta" {
		t.Fatalf("link target was overwritten: %q (%v)", data, err)
	}
}

func TestExtractRejectsHardLinkFromOutsideTarget(t *testing.T) {
	base := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(base, "secret"), 16)
	archivePath := filepath.Join(base, "evil.tgz")
	testsupport.WriteTarGz(t, archivePath,
		testsupport.TarEntry{Name: "up", Linkname: "."},
		testsupport.TarEntry{Name: "copy", Linkname: "up/../secret", Hard: true},
	)

	target := filepath.Join(base, "Bands")
	_, err := archive.Extract(archivePath, target)
	if !errors.Is(err, services.ErrSecurity) {
		t.Fatalf("expected security error, got %v", err)
	}
	if _, err := os.Lstat(filepath.Join(target, "copy")); !os.IsNotExist(err) {
		t.Fatalf("hard link was created, stat err=%v", err)
	}
}

func TestExtractAllowsHardLinkInsideTarget(t *testing.T) {
	base := t.TempDir()
	archivePath := filepath.Join(base, "scene.tgz")
	testsupport.WriteTarGz(t, archivePath,
		testsupport.TarEntry{Name: "LC08_B4.TIF", Body: "red"},
		testsupport.TarEntry{Name: "B4.TIF", Linkname: "LC08_B4.TIF", Hard: true},
	)

	target := filepath.Join(base, "Bands")
	if _, err := archive.Extract(archivePath, target); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(target, "B4.TIF"))
	if err != nil || string(data) != "red" {
		t.Fatalf("unexpected hard link content %q (%v)", data, err)
	}
}

func TestExtractMissingArchive(t *testing.T) {
	_, err := archive.Extract(filepath.Join(t.TempDir(), "missing.tgz"), t.TempDir())
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestExtractCorruptArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.tgz")
	testsupport.WriteFile(t, path, 64)
	_, err := archive.Extract(path, t.TempDir())
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for corrupt archive, got %v", err)
	}
}
