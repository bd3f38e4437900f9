package scene

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sceneflow/internal/services"
)

// Candidate is one catalog row eligible for download.
type Candidate struct {
	Sensor             string
	CollectionNumber   int
	CollectionCategory string
	Path               int
	Row                int
	AcquisitionDate    time.Time
	SceneID            string
	ProductID          string
	CloudCover         float64
	LandCloudCover     float64
	DayNight           string
}

// Key returns the scene key for the candidate.
func (c Candidate) Key() Key {
	return NewKey(c.Path, c.Row, c.AcquisitionDate)
}

// ArchiveName is the on-disk filename of the candidate's archive.
func (c Candidate) ArchiveName() string {
	return c.ProductID + ".tgz"
}

// Scene is the unit of work handed from the transfer manager to the step runner.
type Scene struct {
	Key            Key
	Candidate      Candidate
	ArchiveRef     string
	CleanupAllowed bool

	stop bool
}

// Stop returns the end-of-work sentinel.
func Stop() Scene {
	return Scene{stop: true}
}

// IsStop reports whether s is the end-of-work sentinel.
func (s Scene) IsStop() bool {
	return s.stop
}

// HasArchive reports whether the scene carries a local archive to extract.
func (s Scene) HasArchive() bool {
	return strings.TrimSpace(s.ArchiveRef) != ""
}

// Validate rejects the sentinel and malformed keys.
func (s *Scene) Validate() error {
	if s == nil || s.stop {
		return services.Wrap(services.ErrValidation, "scene", "validate", "sentinel is not processable", nil)
	}
	return s.Key.Validate()
}

// DisableCleanup keeps the working area for inspection after a failure.
func (s *Scene) DisableCleanup() {
	s.CleanupAllowed = false
}

// Cleanup removes files under dir that match any pattern and no exclusion.
// Patterns are slash-separated globs relative to dir. Returns the removed paths.
func Cleanup(dir string, patterns, exclude []string) ([]string, error) {
	var removed []string
	var errs []error
	seen := map[string]struct{}{}
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, filepath.FromSlash(pattern)))
		if err != nil {
			return removed, services.Wrap(services.ErrConfiguration, "scene", "cleanup", pattern, err)
		}
		for _, match := range matches {
			if _, ok := seen[match]; ok {
				continue
			}
			seen[match] = struct{}{}
			if excluded(dir, match, exclude) {
				continue
			}
			info, err := os.Lstat(match)
			if err != nil || info.IsDir() {
				continue
			}
			if err := os.Remove(match); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
				continue
			}
			removed = append(removed, match)
		}
	}
	return removed, errors.Join(errs...)
}

func excluded(dir, path string, exclude []string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	base := filepath.Base(path)
	for _, pattern := range exclude {
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}
