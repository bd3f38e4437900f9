package credentials

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/net/html"

	"sceneflow/internal/config"
	"sceneflow/internal/logging"
	"sceneflow/internal/services"
)

const component = "credentials"

// Settings configures login against the download service.
type Settings struct {
	LoginURL       string
	Username       string
	Password       string
	Retries        int
	RequestTimeout time.Duration
	// InitialBackoff overrides the first retry delay; zero keeps the library default.
	InitialBackoff time.Duration
}

// SettingsFromConfig extracts login settings from the application config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		LoginURL:       cfg.Remote.LoginURL,
		Username:       cfg.Remote.Username,
		Password:       cfg.Remote.Password,
		Retries:        cfg.Remote.LoginRetries,
		RequestTimeout: cfg.RequestTimeout(),
	}
}

// Session holds the authenticated HTTP client used for downloads. Login
// replaces the client atomically; callers fetch the current one per request.
type Session struct {
	settings Settings
	logger   *slog.Logger

	mu       sync.RWMutex
	client   *http.Client
	renewals int
}

// NewSession constructs an unauthenticated session.
func NewSession(settings Settings, logger *slog.Logger) *Session {
	return &Session{
		settings: settings,
		logger:   logging.NewComponentLogger(logger, component),
	}
}

// Client returns the current authenticated client, or nil before the first login.
func (s *Session) Client() *http.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// Renewals returns how many successful logins the session has performed.
func (s *Session) Renewals() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.renewals
}

// Login authenticates with exponential backoff and swaps in the new client on
// success. On failure the previous client, if any, stays in place.
func (s *Session) Login(ctx context.Context) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = 2 * time.Minute
	if s.settings.InitialBackoff > 0 {
		expBackoff.InitialInterval = s.settings.InitialBackoff
	}
	retries := s.settings.Retries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, uint64(retries)), ctx)

	var client *http.Client
	attempt := 0
	operation := func() error {
		attempt++
		c, err := s.login(ctx)
		if err != nil {
			s.logger.Debug("login attempt failed", logging.Int("attempt", attempt), logging.Error(err))
			return err
		}
		client = c
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return services.Wrap(services.ErrTransfer, component, "login", fmt.Sprintf("after %d attempt(s)", attempt), err)
	}

	s.mu.Lock()
	s.client = client
	s.renewals++
	renewals := s.renewals
	s.mu.Unlock()

	s.logger.Debug("session established", logging.Int("renewals", renewals))
	return nil
}

func (s *Session) login(ctx context.Context) (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Jar: jar, Timeout: s.settings.RequestTimeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.settings.LoginURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open login page: %w", err)
	}
	hidden, parseErr := hiddenFields(resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("open login page: status %d", resp.StatusCode)
	}
	if parseErr != nil {
		return nil, fmt.Errorf("parse login page: %w", parseErr)
	}

	form := url.Values{}
	for name, value := range hidden {
		form.Set(name, value)
	}
	form.Set("username", s.settings.Username)
	form.Set("password", s.settings.Password)

	post, err := http.NewRequestWithContext(ctx, http.MethodPost, s.settings.LoginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	post.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	post.Header.Set("Referer", s.settings.LoginURL)

	resp, err = client.Do(post)
	if err != nil {
		return nil, fmt.Errorf("submit credentials: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("submit credentials: status %d", resp.StatusCode)
	}
	return client, nil
}

// hiddenFields collects name/value pairs of hidden inputs (CSRF tokens and
// similar) from the login page.
func hiddenFields(r io.Reader) (map[string]string, error) {
	fields := map[string]string{}
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return fields, nil
			}
			return fields, z.Err()
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data != "input" {
				continue
			}
			var name, value, typ string
			for _, attr := range tok.Attr {
				switch strings.ToLower(attr.Key) {
				case "name":
					name = attr.Val
				case "value":
					value = attr.Val
				case "type":
					typ = strings.ToLower(attr.Val)
				}
			}
			if typ == "hidden" && name != "" {
				fields[name] = value
			}
		}
	}
}
