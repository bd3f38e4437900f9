package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"sceneflow/internal/scene"
	"sceneflow/internal/services"
)

// importColumns are the bulk-metadata CSV headers read by Import, matched case-insensitively.
var importColumns = []string{
	"sensor", "collection_number", "collection_category", "path", "row", "acquisitiondate",
	"sceneid", "landsat_product_id", "cloudcover", "cloud_cover_land", "dayornight",
}

var acquisitionLayouts = []string{"2006-01-02", "2006/01/02", "20060102"}

// Import replaces the catalog with the rows of a bulk-metadata CSV stream and
// returns the number of rows stored. A malformed row aborts the import and
// leaves the previous catalog untouched.
func (s *Store) Import(ctx context.Context, r io.Reader) (int, error) {
	candidates, err := ParseCSV(r)
	if err != nil {
		return 0, err
	}
	return s.write(ctx, true, candidates)
}

// ParseCSV reads candidates from a bulk-metadata CSV stream.
func ParseCSV(r io.Reader) ([]scene.Candidate, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, component, "import", "read header", err)
	}
	index, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var out []scene.Candidate
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		line++
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, component, "import", fmt.Sprintf("line %d", line), err)
		}
		c, err := parseRecord(record, index)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, component, "import", fmt.Sprintf("line %d", line), err)
		}
		out = append(out, c)
	}
}

func columnIndex(header []string) (map[string]int, error) {
	positions := make(map[string]int, len(header))
	for i, name := range header {
		positions[strings.ToLower(strings.TrimSpace(name))] = i
	}
	index := make(map[string]int, len(importColumns))
	for _, name := range importColumns {
		pos, ok := positions[name]
		if !ok {
			return nil, services.Wrap(services.ErrValidation, component, "import", fmt.Sprintf("header field %q not found", name), nil)
		}
		index[name] = pos
	}
	return index, nil
}

func parseRecord(record []string, index map[string]int) (scene.Candidate, error) {
	field := func(name string) string {
		pos := index[name]
		if pos >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[pos])
	}

	var (
		c   scene.Candidate
		err error
	)
	c.Sensor = field("sensor")
	c.CollectionCategory = field("collection_category")
	c.SceneID = field("sceneid")
	c.ProductID = field("landsat_product_id")
	c.DayNight = field("dayornight")
	if c.SceneID == "" {
		return c, errors.New("sceneid is empty")
	}
	if c.CollectionNumber, err = atoiOrZero(field("collection_number")); err != nil {
		return c, fmt.Errorf("collection_number: %w", err)
	}
	if c.Path, err = strconv.Atoi(field("path")); err != nil {
		return c, fmt.Errorf("path: %w", err)
	}
	if c.Row, err = strconv.Atoi(field("row")); err != nil {
		return c, fmt.Errorf("row: %w", err)
	}
	if c.AcquisitionDate, err = parseAcquisition(field("acquisitiondate")); err != nil {
		return c, err
	}
	if c.CloudCover, err = floatOrZero(field("cloudcover")); err != nil {
		return c, fmt.Errorf("cloudcover: %w", err)
	}
	if c.LandCloudCover, err = floatOrZero(field("cloud_cover_land")); err != nil {
		return c, fmt.Errorf("cloud_cover_land: %w", err)
	}
	return c, nil
}

func parseAcquisition(value string) (time.Time, error) {
	for _, layout := range acquisitionLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("acquisitiondate %q is not a date", value)
}

func atoiOrZero(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}

func floatOrZero(value string) (float64, error) {
	if value == "" {
		return 0, nil
	}
	return strconv.ParseFloat(value, 64)
}
