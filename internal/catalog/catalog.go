package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"sceneflow/internal/dbutil"
	"sceneflow/internal/scene"
	"sceneflow/internal/services"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

const component = "catalog"

// Catalog resolves download candidates for a path/row over a date range.
type Catalog interface {
	// ResolveCandidates returns candidates with start <= date <= end and land
	// cloud cover <= maxCloud, ordered by acquisition date ascending.
	ResolveCandidates(ctx context.Context, path, row int, start, end time.Time, maxCloud float64) ([]scene.Candidate, error)
}

// Store is a SQLite-backed Catalog.
type Store struct {
	db   *sql.DB
	path string
}

var _ Catalog = (*Store)(nil)

// Open initializes or connects to the catalog database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := dbutil.Open(ctx, path, dbutil.Schema{Name: component, SQL: schemaSQL, Version: schemaVersion})
	if err != nil {
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ResolveCandidates implements Catalog.
func (s *Store) ResolveCandidates(ctx context.Context, path, row int, start, end time.Time, maxCloud float64) ([]scene.Candidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sensor, collection_number, collection_category, wrs_path, wrs_row, acquisition_date,
		        scene_id, product_id, cloud_cover, land_cloud_cover, day_night
		 FROM scene_meta
		 WHERE wrs_path = ? AND wrs_row = ? AND acquisition_date >= ? AND acquisition_date <= ? AND land_cloud_cover <= ?
		 ORDER BY acquisition_date ASC, product_id ASC`,
		path, row, start.Format(scene.DateLayout), end.Format(scene.DateLayout), maxCloud,
	)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, component, "resolve", fmt.Sprintf("%03d/%03d", path, row), err)
	}
	defer rows.Close()

	var out []scene.Candidate
	for rows.Next() {
		var (
			c        scene.Candidate
			acquired string
		)
		if err := rows.Scan(&c.Sensor, &c.CollectionNumber, &c.CollectionCategory, &c.Path, &c.Row, &acquired,
			&c.SceneID, &c.ProductID, &c.CloudCover, &c.LandCloudCover, &c.DayNight); err != nil {
			return nil, services.Wrap(services.ErrStorage, component, "resolve", "scan", err)
		}
		date, err := time.Parse(scene.DateLayout, acquired)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, component, "resolve", "acquisition date "+acquired, err)
		}
		c.AcquisitionDate = date
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrStorage, component, "resolve", "", err)
	}
	return out, nil
}

// Upsert inserts candidates, replacing rows with the same scene and product id.
func (s *Store) Upsert(ctx context.Context, candidates []scene.Candidate) (int, error) {
	return s.write(ctx, false, candidates)
}

// Count returns the number of catalog rows.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM scene_meta`).Scan(&n); err != nil {
		return 0, services.Wrap(services.ErrStorage, component, "count", "", err)
	}
	return n, nil
}

func (s *Store) write(ctx context.Context, replace bool, candidates []scene.Candidate) (int, error) {
	written := 0
	err := dbutil.WithTx(ctx, s.db, component, "write", func(tx *sql.Tx) error {
		written = 0
		if replace {
			if _, err := tx.ExecContext(ctx, `DELETE FROM scene_meta`); err != nil {
				return err
			}
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO scene_meta (sensor, collection_number, collection_category, wrs_path, wrs_row, acquisition_date,
			                         scene_id, product_id, cloud_cover, land_cloud_cover, day_night)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (scene_id, product_id) DO UPDATE SET
			     sensor = excluded.sensor,
			     collection_number = excluded.collection_number,
			     collection_category = excluded.collection_category,
			     wrs_path = excluded.wrs_path,
			     wrs_row = excluded.wrs_row,
			     acquisition_date = excluded.acquisition_date,
			     cloud_cover = excluded.cloud_cover,
			     land_cloud_cover = excluded.land_cloud_cover,
			     day_night = excluded.day_night`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, c := range candidates {
			if _, err := stmt.ExecContext(ctx, c.Sensor, c.CollectionNumber, c.CollectionCategory, c.Path, c.Row,
				c.AcquisitionDate.Format(scene.DateLayout), c.SceneID, c.ProductID, c.CloudCover, c.LandCloudCover, c.DayNight); err != nil {
				return fmt.Errorf("insert %s: %w", c.SceneID, err)
			}
			written++
		}
		return nil
	})
	return written, err
}
