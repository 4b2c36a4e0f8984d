package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"traffic-ingester/internal/config"
	"traffic-ingester/internal/metrics"
	"traffic-ingester/internal/util"
)

// ErrAuthFailed reports a token endpoint response that was not a 200 with an
// access_token field. Callers decide the fallback (e.g. prompting).
var ErrAuthFailed = errors.New("token acquisition failed")

// State tracks the credential lifecycle. Transitions happen only on
// construction, SetToken, a successful Acquire, or an observed 401
// (MarkExpired).
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateExpired:
		return "expired"
	default:
		return "unauthenticated"
	}
}

// Manager owns the bearer credential shared by all portal requests. The
// token has a server-determined expiry discovered reactively via 401, so no
// local expiry is tracked.
type Manager struct {
	portal config.PortalConfig
	cfg    config.AuthConfig
	client *http.Client
	log    *zap.Logger
	mets   *metrics.Metrics

	mu    sync.Mutex
	state State
	token string
}

func NewManager(portal config.PortalConfig, cfg config.AuthConfig, log *zap.Logger, mets *metrics.Metrics) *Manager {
	to := cfg.Timeout
	if to == 0 {
		to = 30 * time.Second
	}
	return &Manager{
		portal: portal,
		cfg:    cfg,
		client: util.NewHTTPClient(to),
		log:    log,
		mets:   mets,
	}
}

// SetToken installs a credential for all subsequent requests. The expected
// prefix is soft-validated: a mismatch logs a warning but the token is kept.
func (m *Manager) SetToken(token string) {
	token = strings.TrimSpace(token)
	if p := m.cfg.TokenPrefix; p != "" && !strings.HasPrefix(token, p) {
		m.log.Warn("token does not have the expected prefix, it may not be valid",
			zap.String("expected_prefix", p))
	}
	m.mu.Lock()
	m.token = token
	m.state = StateAuthenticated
	m.mu.Unlock()
	m.log.Info("authorization token set")
}

// AuthHeader returns the Authorization header value for the current
// credential, or false when no credential is installed.
func (m *Manager) AuthHeader() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == "" {
		return "", false
	}
	return "Bearer " + m.token, true
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// MarkExpired records an observed 401 from the data endpoint.
func (m *Manager) MarkExpired() {
	m.mu.Lock()
	if m.state == StateAuthenticated {
		m.state = StateExpired
	}
	m.mu.Unlock()
}

// Acquire performs a single unauthenticated password-grant exchange against
// the portal token endpoint. On success the new credential replaces any
// prior one. No retries at this layer.
func (m *Manager) Acquire(ctx context.Context) (string, error) {
	m.log.Info("attempting to obtain authentication token automatically")

	form := url.Values{
		"grant_type": {"password"},
		"client_id":  {m.cfg.ClientID},
		"scope":      {m.cfg.Scope},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		m.portal.TokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=UTF-8")
	req.Header.Set("Accept", "*/*")
	if al := m.portal.AcceptLanguage; al != "" {
		req.Header.Set("Accept-Language", al)
	}
	req.Header.Set("tenant", m.portal.Tenant)
	if ua := m.portal.UserAgent; ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	base := strings.TrimRight(m.portal.BaseURL, "/")
	if u, err := url.Parse(base); err == nil && u.Host != "" {
		req.Header.Set("Origin", u.Scheme+"://"+u.Host)
	}
	req.Header.Set("Referer", fmt.Sprintf("%s/Apps/?appId=%s&tenant=%s", base, m.portal.AppID, m.portal.Tenant))

	resp, err := m.client.Do(req)
	if err != nil {
		m.renewalOutcome("error")
		return "", fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		m.renewalOutcome("failure")
		m.log.Warn("failed to obtain authentication token",
			zap.Int("status", resp.StatusCode),
			zap.String("body", strings.TrimSpace(string(b))))
		return "", fmt.Errorf("%w: token endpoint status %d", ErrAuthFailed, resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		m.renewalOutcome("failure")
		return "", fmt.Errorf("%w: decode token response: %v", ErrAuthFailed, err)
	}
	if body.AccessToken == "" {
		m.renewalOutcome("failure")
		m.log.Warn("authentication response did not contain an access token")
		return "", fmt.Errorf("%w: response missing access_token", ErrAuthFailed)
	}

	m.mu.Lock()
	m.token = body.AccessToken
	m.state = StateAuthenticated
	m.mu.Unlock()
	m.renewalOutcome("success")
	m.log.Info("obtained authentication token automatically")
	return body.AccessToken, nil
}

func (m *Manager) renewalOutcome(outcome string) {
	if m.mets != nil {
		m.mets.TokenRenewals.WithLabelValues(outcome).Inc()
	}
}
