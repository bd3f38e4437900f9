package pipeline_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"sceneflow/internal/catalog"
	"sceneflow/internal/config"
	"sceneflow/internal/pipeline"
	"sceneflow/internal/scene"
	"sceneflow/internal/services"
	"sceneflow/internal/testsupport"
)

const productID = "LC08_L1TP_037035_20200115_20200127_01_T1"

const catalogCSV = `sensor,collection_number,collection_category,path,row,acquisitionDate,sceneID,LANDSAT_PRODUCT_ID,cloudCover,CLOUD_COVER_LAND,dayOrNight
OLI_TIRS,1,T1,37,35,2020-01-15,LC80370352020015LGN00,` + productID + `,1.0,0.5,DAY
`

type service struct {
	*httptest.Server
	downloads atomic.Int32
}

// newService serves a login form and the scene archive, which is only
// returned to clients holding the session cookie.
func newService(t *testing.T, archive []byte) *service {
	t.Helper()
	svc := &service{}
	mux := http.NewServeMux()
	mux.HandleFunc("/login/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`<form><input type="hidden" name="csrf" value="abc"></form>`))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "ok", Path: "/"})
	})
	mux.HandleFunc("/download/", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err != nil || c.Value != "ok" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		svc.downloads.Add(1)
		if strings.TrimPrefix(r.URL.Path, "/download/") != productID {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(archive)))
		_, _ = w.Write(archive)
	})
	svc.Server = httptest.NewServer(mux)
	t.Cleanup(svc.Close)
	return svc
}

func newBatchConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t,
		testsupport.WithRemote(baseURL),
		testsupport.WithWorkflow("example"),
		testsupport.WithSceneFilter(config.SceneFilter{
			Path:          37,
			Rows:          []int{35},
			Start:         time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			End:           time.Date(2020, 1, 31, 0, 0, 0, 0, time.UTC),
			MaxCloudCover: 20,
		}),
	)
	cfg.Workflow.CleanupPatterns = []string{"Bands/*_B[0-9]*.TIF"}

	store, err := catalog.Open(context.Background(), cfg.Catalog.Path)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	if _, err := store.Import(context.Background(), strings.NewReader(catalogCSV)); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close catalog: %v", err)
	}
	return cfg
}

func sceneArchive(t *testing.T) []byte {
	return testsupport.TarGz(t,
		testsupport.TarEntry{Name: productID + "_B4.TIF", Body: "red"},
		testsupport.TarEntry{Name: productID + "_MTL.txt", Body: "meta"},
	)
}

func TestBatchDownloadsOnceAndResumes(t *testing.T) {
	svc := newService(t, sceneArchive(t))
	cfg := newBatchConfig(t, svc.URL)
	ctx := context.Background()

	first, err := pipeline.Run(ctx, pipeline.Options{Config: cfg})
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.RunID == "" || first.Workflow != "example" {
		t.Fatalf("unexpected summary identity %+v", first)
	}
	if first.Transfer.Downloaded != 1 || first.Processing.Processed != 1 {
		t.Fatalf("unexpected first summary %+v", first)
	}
	key := scene.NewKey(37, 35, time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC))
	if _, err := os.Stat(filepath.Join(key.BandsDir(cfg.Paths.WorkingDir), productID+"_MTL.txt")); err != nil {
		t.Fatalf("expected extracted metadata to be kept: %v", err)
	}
	if _, err := os.Stat(filepath.Join(key.BandsDir(cfg.Paths.WorkingDir), productID+"_B4.TIF")); !os.IsNotExist(err) {
		t.Fatalf("expected band cleaned up, stat err=%v", err)
	}

	second, err := pipeline.Run(ctx, pipeline.Options{Config: cfg})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if svc.downloads.Load() != 1 {
		t.Fatalf("expected a single download across runs, got %d", svc.downloads.Load())
	}
	if second.Transfer.Reused != 1 || second.Processing.Processed != 1 {
		t.Fatalf("unexpected second summary %+v", second)
	}
	if second.RunID == first.RunID {
		t.Fatal("expected distinct run ids")
	}
}

func TestBatchRejectsUnknownWorkflow(t *testing.T) {
	svc := newService(t, sceneArchive(t))
	cfg := newBatchConfig(t, svc.URL)
	cfg.Workflow.Name = "missing"

	_, err := pipeline.Run(context.Background(), pipeline.Options{Config: cfg})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if svc.downloads.Load() != 0 {
		t.Fatal("no transfer should start for an unknown workflow")
	}
}

func TestBatchRefusesConcurrentRun(t *testing.T) {
	svc := newService(t, sceneArchive(t))
	cfg := newBatchConfig(t, svc.URL)

	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock: %v %v", ok, err)
	}
	defer lock.Unlock()

	_, err = pipeline.Run(context.Background(), pipeline.Options{Config: cfg})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected lock conflict, got %v", err)
	}
}

func TestProcessArchiveRunsWorkflowWithoutTransfer(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	archivePath := filepath.Join(t.TempDir(), productID+".tgz")
	testsupport.WriteTarGz(t, archivePath, testsupport.TarEntry{Name: "B1.TIF", Body: "x"})
	key := scene.NewKey(37, 35, time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC))

	result, err := pipeline.ProcessArchive(context.Background(), pipeline.Options{Config: cfg}, key, archivePath)
	if err != nil {
		t.Fatalf("ProcessArchive: %v", err)
	}
	if len(result.Executed) != 7 || result.Executed[0] != 0 {
		t.Fatalf("expected preparation plus six main steps, got %v", result.Executed)
	}

	again, err := pipeline.ProcessArchive(context.Background(), pipeline.Options{Config: cfg}, key, archivePath)
	if err != nil {
		t.Fatalf("second ProcessArchive: %v", err)
	}
	if len(again.Executed) != 0 || len(again.Skipped) != 7 {
		t.Fatalf("expected every step skipped, got %+v", again)
	}
}

func TestProcessArchiveRequiresExistingFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	key := scene.NewKey(37, 35, time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC))
	_, err := pipeline.ProcessArchive(context.Background(), pipeline.Options{Config: cfg}, key, filepath.Join(t.TempDir(), "none.tgz"))
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
