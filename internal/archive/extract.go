package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"sceneflow/internal/services"
)

const component = "archive"

// maxLinkDepth bounds symlink chains followed while resolving a member path.
const maxLinkDepth = 40

// Extract unpacks the gzip-compressed tar at archivePath into targetDir and
// returns the extracted paths in archive order.
//
// Every member must resolve inside targetDir. The first member that would
// escape aborts extraction with services.ErrSecurity; members already written
// stay on disk.
func Extract(archivePath, targetDir string) ([]string, error) {
	root, err := filepath.Abs(targetDir)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, component, "extract", "resolve target", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, services.Wrap(services.ErrStorage, component, "extract", "create target", err)
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	file, err := os.Open(archivePath)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, component, "extract", archivePath, err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, component, "extract", "open gzip stream", err)
	}
	defer gz.Close()

	var extracted []string
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return extracted, nil
		}
		if err != nil {
			return extracted, services.Wrap(services.ErrValidation, component, "extract", "read tar header", err)
		}

		dest, err := memberPath(root, hdr.Name)
		if err != nil {
			return extracted, err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return extracted, services.Wrap(services.ErrStorage, component, "extract", hdr.Name, err)
			}
			continue
		case tar.TypeReg:
			if err := ensureParent(root, dest, hdr.Name); err != nil {
				return extracted, err
			}
			if err := replaceSymlink(dest); err != nil {
				return extracted, services.Wrap(services.ErrStorage, component, "extract", hdr.Name, err)
			}
			if err := writeFile(dest, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return extracted, services.Wrap(services.ErrStorage, component, "extract", hdr.Name, err)
			}
		case tar.TypeSymlink:
			if err := ensureParent(root, dest, hdr.Name); err != nil {
				return extracted, err
			}
			target := hdr.Linkname
			if !filepath.IsAbs(target) {
				target = filepath.Dir(dest) + string(filepath.Separator) + target
			}
			if !resolvesWithin(root, target) {
				return extracted, escapeError(hdr.Name, "symlink target "+hdr.Linkname)
			}
			_ = os.Remove(dest)
			if err := os.Symlink(hdr.Linkname, dest); err != nil {
				return extracted, services.Wrap(services.ErrStorage, component, "extract", hdr.Name, err)
			}
		case tar.TypeLink:
			if _, err := memberPath(root, hdr.Linkname); err != nil {
				return extracted, err
			}
			source := root + string(filepath.Separator) + filepath.FromSlash(hdr.Linkname)
			if !resolvesWithin(root, source) {
				return extracted, escapeError(hdr.Name, "hard link source "+hdr.Linkname)
			}
			if err := ensureParent(root, dest, hdr.Name); err != nil {
				return extracted, err
			}
			_ = os.Remove(dest)
			if err := os.Link(source, dest); err != nil {
				return extracted, services.Wrap(services.ErrStorage, component, "extract", hdr.Name, err)
			}
		default:
			// Devices, fifos, and pax metadata entries carry nothing to extract.
			continue
		}
		extracted = append(extracted, dest)
	}
}

func memberPath(root, name string) (string, error) {
	if name == "" {
		return "", escapeError(name, "empty member name")
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", escapeError(name, "absolute member path")
	}
	dest := filepath.Join(root, filepath.FromSlash(name))
	if !within(root, dest) {
		return "", escapeError(name, "resolves outside "+root)
	}
	return dest, nil
}

// ensureParent creates dest's directory and rejects it when an earlier
// symlink member redirected it outside root.
func ensureParent(root, dest, name string) error {
	parent := filepath.Dir(dest)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return services.Wrap(services.ErrStorage, component, "extract", name, err)
	}
	resolved, err := filepath.EvalSymlinks(parent)
	if err != nil {
		return services.Wrap(services.ErrStorage, component, "extract", name, err)
	}
	if !within(root, resolved) {
		return escapeError(name, "parent directory resolves outside "+root)
	}
	return nil
}

// resolvesWithin walks path one component at a time against the filesystem,
// following symlinks the way the kernel would, and reports whether the result
// stays inside root. Components that do not exist yet are taken literally; a
// ".." after such a component is rejected since its meaning could change once
// the component is created.
func resolvesWithin(root, path string) bool {
	resolved, err := resolvePath(path, 0)
	if err != nil {
		return false
	}
	return within(root, resolved)
}

func resolvePath(path string, depth int) (string, error) {
	if depth > maxLinkDepth {
		return "", errors.New("too many symlinks")
	}
	current := string(filepath.Separator)
	missing := false
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			if missing {
				return "", errors.New("parent reference after missing component")
			}
			current = filepath.Dir(current)
			continue
		}
		next := filepath.Join(current, part)
		if missing {
			current = next
			continue
		}
		info, err := os.Lstat(next)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			missing = true
			current = next
		case err != nil:
			return "", err
		case info.Mode()&fs.ModeSymlink != 0:
			link, err := os.Readlink(next)
			if err != nil {
				return "", err
			}
			if !filepath.IsAbs(link) {
				link = current + string(filepath.Separator) + link
			}
			if current, err = resolvePath(link, depth+1); err != nil {
				return "", err
			}
		default:
			current = next
		}
	}
	return current, nil
}

// replaceSymlink removes dest when an earlier member left a symlink there so
// the regular file replaces the link instead of writing through it.
func replaceSymlink(dest string) error {
	info, err := os.Lstat(dest)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return os.Remove(dest)
	}
	return nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func writeFile(dest string, r io.Reader, perm os.FileMode) error {
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC|unix.O_NOFOLLOW, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func escapeError(name, detail string) error {
	return services.Wrap(services.ErrSecurity, component, "extract", fmt.Sprintf("member %q %s", name, detail), nil)
}
