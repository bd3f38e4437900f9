package catalog_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sceneflow/internal/catalog"
	"sceneflow/internal/services"
)

const bulkCSV = `sceneID,sensor,LANDSAT_PRODUCT_ID,acquisitionDate,path,row,cloudCover,CLOUD_COVER_LAND,dayOrNight,COLLECTION_NUMBER,COLLECTION_CATEGORY
LC80370352020031LGN00,OLI_TIRS,LC08_L1TP_037035_20200131_20200211_01_T1,2020-01-31,37,35,12.5,10.0,DAY,1,T1
LC80370352020015LGN00,OLI_TIRS,LC08_L1TP_037035_20200115_20200127_01_T1,2020/01/15,37,35,2.0,1.5,DAY,1,T1
LC80370352020047LGN00,OLI_TIRS,LC08_L1TP_037035_20200216_20200225_01_T1,2020-02-16,37,35,80,75,DAY,1,T1
LC80370362020015LGN00,OLI_TIRS,LC08_L1TP_037036_20200115_20200127_01_T1,2020-01-15,37,36,0,0,DAY,1,T1
`

func openCatalog(t *testing.T) *catalog.Store {
	t.Helper()
	store, err := catalog.Open(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestImportAndResolveOrdersByDate(t *testing.T) {
	store := openCatalog(t)
	ctx := context.Background()

	n, err := store.Import(ctx, strings.NewReader(bulkCSV))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 rows imported, got %d", n)
	}

	got, err := store.ResolveCandidates(ctx, 37, 35, day(2020, 1, 1), day(2020, 12, 31), 50)
	if err != nil {
		t.Fatalf("ResolveCandidates: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates under 50%% land cloud, got %d", len(got))
	}
	if !got[0].AcquisitionDate.Equal(day(2020, 1, 15)) || !got[1].AcquisitionDate.Equal(day(2020, 1, 31)) {
		t.Fatalf("candidates not ordered by date: %v, %v", got[0].AcquisitionDate, got[1].AcquisitionDate)
	}
	if got[0].ArchiveName() != "LC08_L1TP_037035_20200115_20200127_01_T1.tgz" {
		t.Fatalf("unexpected archive name %q", got[0].ArchiveName())
	}
	if got[0].Key().String() != "037035_20200115" {
		t.Fatalf("unexpected key %s", got[0].Key())
	}
}

func TestResolveDateBoundsAreInclusive(t *testing.T) {
	store := openCatalog(t)
	ctx := context.Background()
	if _, err := store.Import(ctx, strings.NewReader(bulkCSV)); err != nil {
		t.Fatalf("Import: %v", err)
	}

	got, err := store.ResolveCandidates(ctx, 37, 35, day(2020, 1, 15), day(2020, 1, 15), 100)
	if err != nil {
		t.Fatalf("ResolveCandidates: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected the single scene on the boundary date, got %d", len(got))
	}
}

func TestImportReplacesPreviousRows(t *testing.T) {
	store := openCatalog(t)
	ctx := context.Background()
	if _, err := store.Import(ctx, strings.NewReader(bulkCSV)); err != nil {
		t.Fatalf("Import: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(bulkCSV), "\n")
	if _, err := store.Import(ctx, strings.NewReader(lines[0]+"\n"+lines[1]+"\n")); err != nil {
		t.Fatalf("second Import: %v", err)
	}
	count, err := store.Count(ctx)
	if err != nil || count != 1 {
		t.Fatalf("expected catalog to hold only the second import, got %d %v", count, err)
	}
}

func TestImportRejectsMissingColumns(t *testing.T) {
	store := openCatalog(t)
	_, err := store.Import(context.Background(), strings.NewReader("sceneID,path\nX,37\n"))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestImportMalformedRowLeavesCatalogUntouched(t *testing.T) {
	store := openCatalog(t)
	ctx := context.Background()
	if _, err := store.Import(ctx, strings.NewReader(bulkCSV)); err != nil {
		t.Fatalf("Import: %v", err)
	}
	broken := strings.Replace(bulkCSV, "2020-02-16", "someday", 1)
	if _, err := store.Import(ctx, strings.NewReader(broken)); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if count, _ := store.Count(ctx); count != 4 {
		t.Fatalf("expected previous 4 rows to remain, got %d", count)
	}
}
