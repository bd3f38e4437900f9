package scene

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"sceneflow/internal/services"
)

// DateLayout is the compact acquisition date format used in keys and directories.
const DateLayout = "20060102"

// Key identifies a scene by path, row, and acquisition date. Keys are values;
// the zero Key is reserved for the stop sentinel.
type Key struct {
	Path int
	Row  int
	Date time.Time
}

// NewKey normalizes date to UTC midnight.
func NewKey(path, row int, date time.Time) Key {
	y, m, d := date.Date()
	return Key{Path: path, Row: row, Date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseKey parses the canonical PPPRRR_YYYYMMDD form.
func ParseKey(value string) (Key, error) {
	if len(value) != 15 || value[6] != '_' {
		return Key{}, services.Wrap(services.ErrValidation, "scene", "parse key", fmt.Sprintf("malformed key %q", value), nil)
	}
	path, err := strconv.Atoi(value[0:3])
	if err != nil {
		return Key{}, services.Wrap(services.ErrValidation, "scene", "parse key", "path", err)
	}
	row, err := strconv.Atoi(value[3:6])
	if err != nil {
		return Key{}, services.Wrap(services.ErrValidation, "scene", "parse key", "row", err)
	}
	date, err := time.Parse(DateLayout, value[7:])
	if err != nil {
		return Key{}, services.Wrap(services.ErrValidation, "scene", "parse key", "date", err)
	}
	key := Key{Path: path, Row: row, Date: date}
	return key, key.Validate()
}

// IsZero reports whether k is the reserved stop key.
func (k Key) IsZero() bool {
	return k.Path == 0 && k.Row == 0 && k.Date.IsZero()
}

// Validate checks path and row ranges and that a date is present.
func (k Key) Validate() error {
	switch {
	case k.Path < 1 || k.Path > 999:
		return services.Wrap(services.ErrValidation, "scene", "validate key", fmt.Sprintf("path %d out of range 1..999", k.Path), nil)
	case k.Row < 1 || k.Row > 999:
		return services.Wrap(services.ErrValidation, "scene", "validate key", fmt.Sprintf("row %d out of range 1..999", k.Row), nil)
	case k.Date.IsZero():
		return services.Wrap(services.ErrValidation, "scene", "validate key", "acquisition date missing", nil)
	}
	return nil
}

// PathRow renders the zero-padded PPPRRR directory name.
func (k Key) PathRow() string {
	return fmt.Sprintf("%03d%03d", k.Path, k.Row)
}

// String renders the canonical PPPRRR_YYYYMMDD form.
func (k Key) String() string {
	if k.IsZero() {
		return "stop"
	}
	return k.PathRow() + "_" + k.Date.Format(DateLayout)
}

// Dir returns <root>/PPPRRR/YYYYMMDD.
func (k Key) Dir(root string) string {
	return filepath.Join(root, k.PathRow(), k.Date.Format(DateLayout))
}

// BandsDir returns the extraction target inside the scene directory.
func (k Key) BandsDir(root string) string {
	return filepath.Join(k.Dir(root), "Bands")
}
