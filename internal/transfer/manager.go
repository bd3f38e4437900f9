package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/time/rate"

	"sceneflow/internal/catalog"
	"sceneflow/internal/config"
	"sceneflow/internal/credentials"
	"sceneflow/internal/ledger"
	"sceneflow/internal/logging"
	"sceneflow/internal/scene"
	"sceneflow/internal/services"
)

const component = "transfer"

const defaultChunkSize = 32 * 1024

// Ledger is the subset of the download ledger the manager uses.
type Ledger interface {
	LookupSize(ctx context.Context, filename, location string) (int64, error)
	Insert(ctx context.Context, rec ledger.Record) error
	DeleteByKey(ctx context.Context, filename, location string) (int64, error)
}

// Sink receives scenes ready for processing.
type Sink interface {
	Push(scene.Scene)
	PushStop()
}

// Session supplies an authenticated HTTP client.
type Session interface {
	Login(ctx context.Context) error
	Client() *http.Client
}

// Options wires a Manager's collaborators.
type Options struct {
	Config  *config.Config
	Catalog catalog.Catalog
	Ledger  Ledger
	Queue   Sink
	// Session is required unless Offline is set.
	Session Session
	Logger  *slog.Logger
	// Offline resolves scenes from the ledger only and never touches the network.
	Offline bool
	// Progress receives a per-download progress bar. Nil disables the bar.
	Progress io.Writer
}

// Summary counts per-candidate outcomes of a Run.
type Summary struct {
	Candidates  int
	Downloaded  int
	Reused      int
	Unavailable int
	Dropped     int
	Bytes       int64
}

// Manager resolves candidates, downloads missing archives, and feeds the work queue.
type Manager struct {
	cfg      *config.Config
	catalog  catalog.Catalog
	ledger   Ledger
	queue    Sink
	session  Session
	logger   *slog.Logger
	offline  bool
	progress io.Writer
	limiter  *rate.Limiter
	chunk    int
}

// New validates options and constructs a Manager.
func New(opts Options) (*Manager, error) {
	switch {
	case opts.Config == nil:
		return nil, services.Wrap(services.ErrConfiguration, component, "init", "config required", nil)
	case opts.Catalog == nil:
		return nil, services.Wrap(services.ErrConfiguration, component, "init", "catalog required", nil)
	case opts.Ledger == nil:
		return nil, services.Wrap(services.ErrConfiguration, component, "init", "ledger required", nil)
	case opts.Queue == nil:
		return nil, services.Wrap(services.ErrConfiguration, component, "init", "queue required", nil)
	}
	offline := opts.Offline || !opts.Config.Remote.Online
	if !offline && opts.Session == nil {
		return nil, services.Wrap(services.ErrConfiguration, component, "init", "session required in online mode", nil)
	}

	limit := rate.Inf
	if rps := opts.Config.Remote.RequestsPerSecond; rps > 0 {
		limit = rate.Limit(rps)
	}
	chunk := opts.Config.Remote.ChunkSize
	if chunk <= 0 {
		chunk = defaultChunkSize
	}

	return &Manager{
		cfg:      opts.Config,
		catalog:  opts.Catalog,
		ledger:   opts.Ledger,
		queue:    opts.Queue,
		session:  opts.Session,
		logger:   logging.NewComponentLogger(opts.Logger, component),
		offline:  offline,
		progress: opts.Progress,
		limiter:  rate.NewLimiter(limit, 1),
		chunk:    chunk,
	}, nil
}

// TerminalProgress returns stderr when it is a terminal, else nil.
func TerminalProgress() io.Writer {
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return os.Stderr
	}
	return nil
}

// Run processes every configured scene filter, then pushes the sentinel and
// stops the credential timer. The sentinel is pushed on every return path.
// Candidate-level problems are logged and skipped; catalog, ledger storage,
// and initial login failures abort the run.
func (m *Manager) Run(ctx context.Context) (summary Summary, err error) {
	var timer *credentials.Timer
	defer func() {
		m.queue.PushStop()
		timer.Stop()
		m.logger.Info("transfer finished",
			logging.Int("candidates", summary.Candidates),
			logging.Int("downloaded", summary.Downloaded),
			logging.Int("reused", summary.Reused),
			logging.Int("unavailable", summary.Unavailable),
			logging.Int("dropped", summary.Dropped),
			logging.Int64("downloaded_bytes", summary.Bytes),
		)
	}()

	if !m.offline {
		if err := m.session.Login(ctx); err != nil {
			logging.ErrorWithContext(m.logger, "initial login failed", "login_failed",
				append(logging.ErrorAttrs(err), logging.String(logging.FieldErrorHint, "check remote.username, remote.password, and remote.login_url"))...)
			return summary, err
		}
		timer = credentials.NewTimer(m.cfg.LoginInterval(), m.session.Login, m.logger)
		timer.Start(ctx)
	} else {
		m.logger.Info("offline mode; using ledger records only")
	}

	for _, filter := range m.cfg.Scenes {
		for _, row := range filter.Rows {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			candidates, err := m.catalog.ResolveCandidates(ctx, filter.Path, row, filter.Start, filter.End, filter.MaxCloudCover)
			if err != nil {
				logging.ErrorWithContext(m.logger, "catalog lookup failed", "catalog_failed",
					append(logging.ErrorAttrs(err), logging.Int("path", filter.Path), logging.Int("row", row))...)
				return summary, err
			}
			m.logger.Info("candidates resolved",
				logging.Int("path", filter.Path),
				logging.Int("row", row),
				logging.Int("count", len(candidates)),
			)
			for _, candidate := range candidates {
				summary.Candidates++
				if err := m.handle(ctx, candidate, &summary); err != nil {
					return summary, err
				}
			}
		}
	}
	return summary, nil
}

// handle returns an error only for failures that must stop the whole run.
func (m *Manager) handle(ctx context.Context, c scene.Candidate, summary *Summary) error {
	key := c.Key()
	logger := m.logger.With(logging.String(logging.FieldEntity, key.String()))
	if err := key.Validate(); err != nil {
		logging.WarnWithContext(logger, "candidate has invalid key", "candidate_invalid",
			append(logging.ErrorAttrs(err), logging.String("scene_id", c.SceneID))...)
		summary.Dropped++
		return nil
	}

	location := key.Dir(m.cfg.Paths.WorkingDir)
	filename := c.ArchiveName()
	archivePath := filepath.Join(location, filename)

	recorded, err := m.ledger.LookupSize(ctx, filename, location)
	if err != nil {
		return err
	}
	onDisk, present, err := fileSize(archivePath)
	if err != nil {
		return services.Wrap(services.ErrStorage, component, "stat", archivePath, err)
	}

	if recorded >= 0 && present && recorded == onDisk {
		logger.Info("archive already downloaded",
			logging.String(logging.FieldReason, "ledger matches file on disk"),
			logging.Int64("archive_bytes", onDisk),
		)
		summary.Reused++
		m.enqueue(c, archivePath)
		return nil
	}

	if m.offline {
		if recorded < 0 {
			logger.Info("scene skipped", logging.String(logging.FieldReason, "not downloaded and running offline"))
			summary.Dropped++
			return nil
		}
		ref := ""
		if present && recorded == onDisk {
			ref = archivePath
		}
		logger.Info("scene taken from ledger", logging.String(logging.FieldReason, "offline"), logging.Bool("archive_present", ref != ""))
		summary.Reused++
		m.enqueue(c, ref)
		return nil
	}

	if recorded >= 0 {
		logging.WarnWithContext(logger, "stale ledger record; downloading again", "ledger_stale",
			logging.Int64("recorded_bytes", recorded),
			logging.Int64("disk_bytes", onDisk),
			logging.Bool("archive_present", present),
			logging.String(logging.FieldImpact, "archive will be fetched again"),
		)
		if _, err := m.ledger.DeleteByKey(ctx, filename, location); err != nil {
			return err
		}
	}

	url, err := BuildURL(m.cfg.Remote.DownloadURL, m.cfg.Remote.Repositories, c)
	if err != nil {
		logging.WarnWithContext(logger, "cannot build download url", "url_invalid", logging.ErrorAttrs(err)...)
		summary.Dropped++
		return nil
	}

	size, outcome, err := m.download(ctx, logger, url, archivePath)
	switch outcome {
	case outcomeUnavailable:
		logger.Info("scene skipped",
			logging.String(logging.FieldReason, "not available from the remote"),
			logging.String("url", url),
		)
		summary.Unavailable++
		return nil
	case outcomeFailed:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.WarnWithContext(logger, "download failed", "download_failed",
			append(logging.ErrorAttrs(err), logging.String("url", url))...)
		summary.Dropped++
		return nil
	}

	if err := m.ledger.Insert(ctx, ledger.FromCandidate(c, location, size)); err != nil {
		if errors.Is(err, ledger.ErrConflict) {
			logging.WarnWithContext(logger, "ledger refused record", "ledger_conflict", logging.ErrorAttrs(err)...)
			summary.Dropped++
			return nil
		}
		return err
	}
	logger.Info("archive downloaded", logging.Int64("archive_bytes", size))
	summary.Downloaded++
	summary.Bytes += size
	m.enqueue(c, archivePath)
	return nil
}

func (m *Manager) enqueue(c scene.Candidate, archivePath string) {
	m.queue.Push(scene.Scene{
		Key:            c.Key(),
		Candidate:      c,
		ArchiveRef:     archivePath,
		CleanupAllowed: m.cfg.Workflow.Cleanup,
	})
}

type outcome int

const (
	outcomeComplete outcome = iota
	outcomeUnavailable
	outcomeFailed
)

// download streams url into archivePath through a .part file. The archive is
// only renamed into place when the byte count matches the declared length.
func (m *Manager) download(ctx context.Context, logger *slog.Logger, url, archivePath string) (int64, outcome, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return 0, outcomeFailed, err
	}
	client := m.session.Client()
	if client == nil {
		return 0, outcomeFailed, services.Wrap(services.ErrTransfer, component, "download", "no authenticated session", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, outcomeFailed, services.Wrap(services.ErrTransfer, component, "download", url, err)
	}
	started := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, outcomeFailed, services.Wrap(services.ErrTransfer, component, "download", "request", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return 0, outcomeUnavailable, nil
	case resp.StatusCode >= http.StatusBadRequest:
		return 0, outcomeFailed, services.Wrap(services.ErrTransfer, component, "download", fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return 0, outcomeFailed, services.Wrap(services.ErrStorage, component, "download", "create scene directory", err)
	}
	partPath := archivePath + ".part"
	file, err := os.Create(partPath)
	if err != nil {
		return 0, outcomeFailed, services.Wrap(services.ErrStorage, component, "download", "create part file", err)
	}

	var dst io.Writer = file
	var bar *progressbar.ProgressBar
	if m.progress != nil {
		bar = progressbar.NewOptions64(resp.ContentLength,
			progressbar.OptionSetWriter(m.progress),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetDescription(filepath.Base(archivePath)),
			progressbar.OptionClearOnFinish(),
		)
		dst = io.MultiWriter(file, bar)
	}

	written, copyErr := m.copyChunks(dst, resp.Body)
	closeErr := file.Close()
	if bar != nil {
		_ = bar.Finish()
	}
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(partPath)
		return written, outcomeFailed, services.Wrap(services.ErrTransfer, component, "download", "stream body", copyErr)
	}

	if declared := resp.ContentLength; declared >= 0 && written != declared {
		_ = os.Remove(partPath)
		return written, outcomeFailed, services.Wrap(services.ErrTransfer, component, "download",
			fmt.Sprintf("size mismatch: received %s of %s", humanize.IBytes(uint64(written)), humanize.IBytes(uint64(declared))), nil)
	}

	if err := os.Rename(partPath, archivePath); err != nil {
		_ = os.Remove(partPath)
		return written, outcomeFailed, services.Wrap(services.ErrStorage, component, "download", "move archive into place", err)
	}
	logger.Debug("archive streamed",
		logging.Int64("archive_bytes", written),
		logging.Duration("elapsed", time.Since(started)),
	)
	return written, outcomeComplete, nil
}

// copyChunks copies src to dst in fixed-size reads and returns the byte count.
func (m *Manager) copyChunks(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, m.chunk)
	var total int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return total, err
			}
			total += int64(n)
		}
		if errors.Is(readErr, io.EOF) {
			return total, nil
		}
		if readErr != nil {
			return total, readErr
		}
	}
}

func fileSize(path string) (int64, bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return -1, false, nil
	}
	if err != nil {
		return -1, false, err
	}
	if info.IsDir() {
		return -1, false, fmt.Errorf("%s is a directory", path)
	}
	return info.Size(), true, nil
}
