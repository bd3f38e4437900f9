package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"sceneflow/internal/dbutil"
	"sceneflow/internal/scene"
	"sceneflow/internal/services"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

const component = "ledger"

// ErrConflict reports an insert whose size disagrees with the existing record.
var ErrConflict = errors.New("ledger record size conflict")

// Record describes one completed archive download.
type Record struct {
	Sensor             string
	CollectionNumber   int
	CollectionCategory string
	Path               int
	Row                int
	AcquisitionDate    time.Time
	Filename           string
	Filesize           int64
	Location           string
	RecordedAt         time.Time
}

// Key returns the scene key of the downloaded archive.
func (r Record) Key() scene.Key {
	return scene.NewKey(r.Path, r.Row, r.AcquisitionDate)
}

// FromCandidate builds the ledger record for a candidate stored at location.
func FromCandidate(c scene.Candidate, location string, size int64) Record {
	return Record{
		Sensor:             c.Sensor,
		CollectionNumber:   c.CollectionNumber,
		CollectionCategory: c.CollectionCategory,
		Path:               c.Path,
		Row:                c.Row,
		AcquisitionDate:    c.AcquisitionDate,
		Filename:           c.ArchiveName(),
		Filesize:           size,
		Location:           location,
	}
}

// Ledger persists download records in SQLite.
type Ledger struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open initializes or connects to the ledger database at path.
func Open(ctx context.Context, path string) (*Ledger, error) {
	db, err := dbutil.Open(ctx, path, dbutil.Schema{Name: component, SQL: schemaSQL, Version: schemaVersion})
	if err != nil {
		return nil, err
	}
	return &Ledger{db: db, path: path, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Path returns the database file location.
func (l *Ledger) Path() string {
	return l.path
}

// LookupSize returns the recorded size for (filename, location), or -1 when absent.
func (l *Ledger) LookupSize(ctx context.Context, filename, location string) (int64, error) {
	var size int64
	err := dbutil.RetryOnBusy(ctx, func() error {
		return l.db.QueryRowContext(ctx,
			`SELECT filesize FROM downloads WHERE filename = ? AND location = ?`,
			filename, location,
		).Scan(&size)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return -1, nil
	}
	if err != nil {
		return -1, services.Wrap(services.ErrStorage, component, "lookup", filename, err)
	}
	return size, nil
}

// Insert stores rec. Inserting the same (filename, location, size) again is a
// no-op; a differing size returns ErrConflict and leaves the existing record.
func (l *Ledger) Insert(ctx context.Context, rec Record) error {
	if err := validate(rec); err != nil {
		return err
	}
	return dbutil.WithTx(ctx, l.db, component, "insert", func(tx *sql.Tx) error {
		var existing int64
		err := tx.QueryRowContext(ctx,
			`SELECT filesize FROM downloads WHERE filename = ? AND location = ?`,
			rec.Filename, rec.Location,
		).Scan(&existing)
		switch {
		case err == nil && existing == rec.Filesize:
			return nil
		case err == nil:
			return services.Wrap(services.ErrValidation, component, "insert",
				fmt.Sprintf("%s recorded with %d bytes, refusing %d", rec.Filename, existing, rec.Filesize), ErrConflict)
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO downloads (sensor, collection_number, collection_category, wrs_path, wrs_row, acquisition_date, filename, filesize, location, recorded_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.Sensor, rec.CollectionNumber, rec.CollectionCategory, rec.Path, rec.Row,
			rec.AcquisitionDate.Format(scene.DateLayout), rec.Filename, rec.Filesize, rec.Location,
			dbutil.FormatTime(l.now()),
		)
		return err
	})
}

// DeleteByKey removes the record for (filename, location). Missing records are not an error.
func (l *Ledger) DeleteByKey(ctx context.Context, filename, location string) (int64, error) {
	return dbutil.Exec(ctx, l.db, component, "delete", `DELETE FROM downloads WHERE filename = ? AND location = ?`, filename, location)
}

// DeleteAll empties the ledger.
func (l *Ledger) DeleteAll(ctx context.Context) (int64, error) {
	return dbutil.Exec(ctx, l.db, component, "delete all", `DELETE FROM downloads`)
}

// List returns every record ordered by path, row, and acquisition date.
func (l *Ledger) List(ctx context.Context) ([]Record, error) {
	var rows *sql.Rows
	err := dbutil.RetryOnBusy(ctx, func() error {
		var err error
		rows, err = l.db.QueryContext(ctx,
			`SELECT sensor, collection_number, collection_category, wrs_path, wrs_row, acquisition_date, filename, filesize, location, recorded_at
			 FROM downloads ORDER BY wrs_path, wrs_row, acquisition_date, filename`)
		return err
	})
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, component, "list", "", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec      Record
			acquired string
			recorded string
		)
		if err := rows.Scan(&rec.Sensor, &rec.CollectionNumber, &rec.CollectionCategory, &rec.Path, &rec.Row,
			&acquired, &rec.Filename, &rec.Filesize, &rec.Location, &recorded); err != nil {
			return nil, services.Wrap(services.ErrStorage, component, "list", "scan", err)
		}
		if ts, err := time.Parse(scene.DateLayout, acquired); err == nil {
			rec.AcquisitionDate = ts
		}
		if ts, err := dbutil.ParseTime(recorded); err == nil {
			rec.RecordedAt = ts
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrStorage, component, "list", "", err)
	}
	return records, nil
}

func validate(rec Record) error {
	switch {
	case strings.TrimSpace(rec.Filename) == "":
		return services.Wrap(services.ErrValidation, component, "insert", "filename required", nil)
	case strings.TrimSpace(rec.Location) == "":
		return services.Wrap(services.ErrValidation, component, "insert", "location required", nil)
	case rec.Filesize < 0:
		return services.Wrap(services.ErrValidation, component, "insert", fmt.Sprintf("negative size %d", rec.Filesize), nil)
	}
	return nil
}
