package credentials

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sceneflow/internal/logging"
)

// Timer periodically renews a session in the background until stopped.
type Timer struct {
	interval time.Duration
	renew    func(context.Context) error
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewTimer builds a timer that calls renew every interval. A non-positive
// interval disables the timer.
func NewTimer(interval time.Duration, renew func(context.Context) error, logger *slog.Logger) *Timer {
	return &Timer{
		interval: interval,
		renew:    renew,
		logger:   logging.NewComponentLogger(logger, "credential-timer"),
	}
}

// Start launches the renewal loop. Calling Start on a running timer does nothing.
func (t *Timer) Start(ctx context.Context) {
	if t == nil || t.interval <= 0 || t.renew == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.running = true
	t.wg.Add(1)
	go t.loop(loopCtx)
}

// Stop signals the loop and waits for it to exit. A renewal in flight is
// cancelled. Stop is safe to call more than once and on a timer never started.
func (t *Timer) Stop() {
	if t == nil {
		return
	}
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.running = false
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.wg.Wait()
}

func (t *Timer) loop(ctx context.Context) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.renew(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				logging.WarnWithContext(t.logger, "session renewal failed; keeping previous session", "session_renewal_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check remote credentials and login_url"),
					logging.String(logging.FieldImpact, "downloads may fail once the session expires"),
				)
				continue
			}
			t.logger.Debug("session renewed")
		}
	}
}
