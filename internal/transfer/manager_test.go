package transfer_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sceneflow/internal/config"
	"sceneflow/internal/ledger"
	"sceneflow/internal/scene"
	"sceneflow/internal/services"
	"sceneflow/internal/testsupport"
	"sceneflow/internal/transfer"
	"sceneflow/internal/workqueue"
)

var acquired = time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC)

func testCandidate() scene.Candidate {
	return scene.Candidate{
		Sensor:             "OLI_TIRS",
		CollectionNumber:   1,
		CollectionCategory: "T1",
		Path:               37,
		Row:                35,
		AcquisitionDate:    acquired,
		SceneID:            "LC80370352020015LGN00",
		ProductID:          "LC08_L1TP_037035_20200115_20200127_01_T1",
		LandCloudCover:     1.5,
	}
}

type fakeCatalog struct {
	mu         sync.Mutex
	candidates []scene.Candidate
	err        error
	calls      int
}

func (f *fakeCatalog) ResolveCandidates(_ context.Context, path, row int, start, end time.Time, maxCloud float64) ([]scene.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []scene.Candidate
	for _, c := range f.candidates {
		if c.Path == path && c.Row == row && !c.AcquisitionDate.Before(start) && !c.AcquisitionDate.After(end) && c.LandCloudCover <= maxCloud {
			out = append(out, c)
		}
	}
	return out, nil
}

type remote struct {
	server    *httptest.Server
	downloads atomic.Int32

	mu       sync.Mutex
	payloads map[string][]byte
	// truncate makes the server declare more bytes than it sends.
	truncate map[string]bool
	// chunked streams the body without declaring its length.
	chunked map[string]bool
	// hold, when set, blocks every download until it is closed.
	hold chan struct{}
}

func newRemote(t *testing.T) *remote {
	t.Helper()
	r := &remote{payloads: map[string][]byte{}, truncate: map[string]bool{}, chunked: map[string]bool{}}
	r.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		name, ok := strings.CutPrefix(req.URL.Path, "/download/")
		if !ok {
			http.NotFound(w, req)
			return
		}
		r.downloads.Add(1)
		r.mu.Lock()
		body, found := r.payloads[name]
		truncate := r.truncate[name]
		chunked := r.chunked[name]
		hold := r.hold
		r.mu.Unlock()
		if !found {
			http.Error(w, "gone", http.StatusGone)
			return
		}
		if hold != nil {
			select {
			case <-hold:
			case <-req.Context().Done():
				return
			}
		}
		if chunked {
			half := len(body) / 2
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(body[:half])
			w.(http.Flusher).Flush()
			_, _ = w.Write(body[half:])
			return
		}
		declared := len(body)
		if truncate {
			declared += 128
		}
		w.Header().Set("Content-Length", strconv.Itoa(declared))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}))
	t.Cleanup(r.server.Close)
	return r
}

func (r *remote) serve(productID string, body []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads[productID] = body
}

type fakeSession struct {
	client   *http.Client
	loginErr error
	logins   atomic.Int32
}

func (s *fakeSession) Login(context.Context) error {
	s.logins.Add(1)
	return s.loginErr
}

func (s *fakeSession) Client() *http.Client {
	return s.client
}

type harness struct {
	cfg     *config.Config
	catalog *fakeCatalog
	ledger  *ledger.Ledger
	queue   *workqueue.Queue
	session *fakeSession
	remote  *remote
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	rem := newRemote(t)
	cfg := testsupport.NewConfig(t,
		testsupport.WithRemote(rem.server.URL),
		testsupport.WithSceneFilter(config.SceneFilter{
			Path:          37,
			Rows:          []int{35},
			Start:         time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			End:           time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC),
			MaxCloudCover: 100,
		}),
	)
	cfg.Remote.ChunkSize = 1000
	return &harness{
		cfg:     cfg,
		catalog: &fakeCatalog{candidates: []scene.Candidate{testCandidate()}},
		ledger:  testsupport.MustOpenLedger(t, cfg),
		queue:   workqueue.New(),
		session: &fakeSession{client: rem.server.Client()},
		remote:  rem,
	}
}

func (h *harness) manager(t *testing.T, offline bool) *transfer.Manager {
	t.Helper()
	opts := transfer.Options{
		Config:  h.cfg,
		Catalog: h.catalog,
		Ledger:  h.ledger,
		Queue:   h.queue,
		Offline: offline,
	}
	if !offline {
		opts.Session = h.session
	}
	m, err := transfer.New(opts)
	if err != nil {
		t.Fatalf("transfer.New: %v", err)
	}
	return m
}

func (h *harness) archivePath() string {
	c := testCandidate()
	return filepath.Join(c.Key().Dir(h.cfg.Paths.WorkingDir), c.ArchiveName())
}

func (h *harness) location() string {
	return testCandidate().Key().Dir(h.cfg.Paths.WorkingDir)
}

// drain returns every scene queued before the sentinel and fails if the
// sentinel is missing.
func drain(t *testing.T, q *workqueue.Queue) []scene.Scene {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var out []scene.Scene
	for {
		s, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue: %v (sentinel never pushed?)", err)
		}
		if s.IsStop() {
			if q.Len() != 0 {
				t.Fatalf("expected sentinel to be last, %d items remain", q.Len())
			}
			return out
		}
		out = append(out, s)
	}
}

func TestRunDownloadsRecordsAndEnqueues(t *testing.T) {
	h := newHarness(t)
	payload := testsupport.Payload(4096)
	h.remote.serve(testCandidate().ProductID, payload)

	summary, err := h.manager(t, false).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Downloaded != 1 || summary.Bytes != int64(len(payload)) {
		t.Fatalf("unexpected summary %+v", summary)
	}

	size, err := h.ledger.LookupSize(context.Background(), testCandidate().ArchiveName(), h.location())
	if err != nil || size != int64(len(payload)) {
		t.Fatalf("expected ledger size %d, got %d (%v)", len(payload), size, err)
	}
	info, err := os.Stat(h.archivePath())
	if err != nil || info.Size() != int64(len(payload)) {
		t.Fatalf("archive not written correctly: %v", err)
	}
	if _, err := os.Stat(h.archivePath() + ".part"); !os.IsNotExist(err) {
		t.Fatalf("expected part file to be gone, stat err=%v", err)
	}

	scenes := drain(t, h.queue)
	if len(scenes) != 1 {
		t.Fatalf("expected one scene, got %d", len(scenes))
	}
	if scenes[0].ArchiveRef != h.archivePath() || scenes[0].Key.String() != "037035_20200115" {
		t.Fatalf("unexpected scene %+v", scenes[0])
	}
	if !scenes[0].CleanupAllowed {
		t.Fatalf("expected cleanup to follow workflow config")
	}
}

func TestRunTwiceMakesNoSecondNetworkRead(t *testing.T) {
	h := newHarness(t)
	h.remote.serve(testCandidate().ProductID, testsupport.Payload(2048))

	if _, err := h.manager(t, false).Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	drain(t, h.queue)
	if got := h.remote.downloads.Load(); got != 1 {
		t.Fatalf("expected 1 download request, got %d", got)
	}

	summary, err := h.manager(t, false).Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if got := h.remote.downloads.Load(); got != 1 {
		t.Fatalf("expected no further download requests, got %d total", got)
	}
	if summary.Reused != 1 || summary.Downloaded != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if scenes := drain(t, h.queue); len(scenes) != 1 || !scenes[0].HasArchive() {
		t.Fatalf("expected the reused scene to be enqueued with its archive, got %+v", scenes)
	}
}

func TestRunRecoversFromSizeMismatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	payload := testsupport.Payload(3000)
	h.remote.serve(testCandidate().ProductID, payload)

	testsupport.WriteFile(t, h.archivePath(), 50)
	if err := h.ledger.Insert(ctx, ledger.FromCandidate(testCandidate(), h.location(), 100)); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	summary, err := h.manager(t, false).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Downloaded != 1 {
		t.Fatalf("expected a fresh download, got %+v", summary)
	}
	size, _ := h.ledger.LookupSize(ctx, testCandidate().ArchiveName(), h.location())
	if size != int64(len(payload)) {
		t.Fatalf("expected ledger to hold the new size %d, got %d", len(payload), size)
	}
	if info, err := os.Stat(h.archivePath()); err != nil || info.Size() != int64(len(payload)) {
		t.Fatalf("expected archive replaced on disk, err=%v", err)
	}
	drain(t, h.queue)
}

func TestRunSkipsUnavailableScenes(t *testing.T) {
	h := newHarness(t)

	summary, err := h.manager(t, false).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Unavailable != 1 {
		t.Fatalf("expected unavailable scene, got %+v", summary)
	}
	if size, _ := h.ledger.LookupSize(context.Background(), testCandidate().ArchiveName(), h.location()); size != -1 {
		t.Fatalf("expected no ledger record, got size %d", size)
	}
	if scenes := drain(t, h.queue); len(scenes) != 0 {
		t.Fatalf("expected only the sentinel, got %d scenes", len(scenes))
	}
}

func TestRunDropsTruncatedDownloads(t *testing.T) {
	h := newHarness(t)
	id := testCandidate().ProductID
	h.remote.serve(id, testsupport.Payload(1024))
	h.remote.mu.Lock()
	h.remote.truncate[id] = true
	h.remote.mu.Unlock()

	summary, err := h.manager(t, false).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Dropped != 1 || summary.Downloaded != 0 {
		t.Fatalf("expected dropped download, got %+v", summary)
	}
	if size, _ := h.ledger.LookupSize(context.Background(), testCandidate().ArchiveName(), h.location()); size != -1 {
		t.Fatalf("expected no ledger record, got size %d", size)
	}
	if _, err := os.Stat(h.archivePath()); !os.IsNotExist(err) {
		t.Fatalf("expected no archive on disk, stat err=%v", err)
	}
	if scenes := drain(t, h.queue); len(scenes) != 0 {
		t.Fatalf("expected only the sentinel, got %d scenes", len(scenes))
	}
}

func TestRunAcceptsObservedSizeWithoutContentLength(t *testing.T) {
	h := newHarness(t)
	id := testCandidate().ProductID
	payload := testsupport.Payload(5000)
	h.remote.serve(id, payload)
	h.remote.mu.Lock()
	h.remote.chunked[id] = true
	h.remote.mu.Unlock()

	summary, err := h.manager(t, false).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Downloaded != 1 || summary.Bytes != int64(len(payload)) {
		t.Fatalf("unexpected summary %+v", summary)
	}
	size, err := h.ledger.LookupSize(context.Background(), testCandidate().ArchiveName(), h.location())
	if err != nil || size != int64(len(payload)) {
		t.Fatalf("expected ledger size %d, got %d (%v)", len(payload), size, err)
	}
	scenes := drain(t, h.queue)
	if len(scenes) != 1 || scenes[0].ArchiveRef != h.archivePath() {
		t.Fatalf("expected the streamed scene to be enqueued, got %+v", scenes)
	}
}

func TestRunRenewsSessionAndStopsTimerOnReturn(t *testing.T) {
	h := newHarness(t)
	h.cfg.Remote.LoginInterval = 1
	h.remote.serve(testCandidate().ProductID, testsupport.Payload(1024))
	hold := make(chan struct{})
	h.remote.mu.Lock()
	h.remote.hold = hold
	h.remote.mu.Unlock()

	// Release the download once the timer has renewed the session twice.
	go func() {
		deadline := time.Now().Add(10 * time.Second)
		for h.session.logins.Load() < 3 && time.Now().Before(deadline) {
			time.Sleep(20 * time.Millisecond)
		}
		close(hold)
	}()

	summary, err := h.manager(t, false).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Downloaded != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	logins := h.session.logins.Load()
	if logins < 3 {
		t.Fatalf("expected the initial login plus renewals, got %d logins", logins)
	}

	time.Sleep(1500 * time.Millisecond)
	if got := h.session.logins.Load(); got != logins {
		t.Fatalf("session renewed after Run returned: %d logins, then %d", logins, got)
	}
	drain(t, h.queue)
}

func TestRunPushesSentinelWhenCatalogFails(t *testing.T) {
	h := newHarness(t)
	h.catalog.err = services.Wrap(services.ErrStorage, "catalog", "resolve", "", errors.New("disk gone"))

	_, err := h.manager(t, false).Run(context.Background())
	if !errors.Is(err, services.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if scenes := drain(t, h.queue); len(scenes) != 0 {
		t.Fatalf("expected only the sentinel, got %d scenes", len(scenes))
	}
}

func TestRunPushesSentinelWhenLoginFails(t *testing.T) {
	h := newHarness(t)
	h.session.loginErr = services.Wrap(services.ErrTransfer, "credentials", "login", "", errors.New("denied"))

	_, err := h.manager(t, false).Run(context.Background())
	if !errors.Is(err, services.ErrTransfer) {
		t.Fatalf("expected transfer error, got %v", err)
	}
	if h.catalog.calls != 0 {
		t.Fatalf("catalog should not be consulted after login failure")
	}
	drain(t, h.queue)
}

func TestOfflineRunUsesLedgerOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.ledger.Insert(ctx, ledger.FromCandidate(testCandidate(), h.location(), 100)); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
	other := testCandidate()
	other.AcquisitionDate = acquired.AddDate(0, 0, 16)
	other.ProductID = "LC08_L1TP_037035_20200131_20200211_01_T1"
	h.catalog.candidates = append(h.catalog.candidates, other)

	summary, err := h.manager(t, true).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.remote.downloads.Load() != 0 {
		t.Fatalf("offline run must not touch the network")
	}
	if summary.Reused != 1 || summary.Dropped != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	scenes := drain(t, h.queue)
	if len(scenes) != 1 {
		t.Fatalf("expected the recorded scene only, got %d", len(scenes))
	}
	if scenes[0].HasArchive() {
		t.Fatalf("archive is missing on disk; scene should carry no archive reference")
	}
}

func TestNewRequiresSessionOnline(t *testing.T) {
	h := newHarness(t)
	_, err := transfer.New(transfer.Options{
		Config:  h.cfg,
		Catalog: h.catalog,
		Ledger:  h.ledger,
		Queue:   h.queue,
	})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
