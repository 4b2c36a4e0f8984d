// Package fetch retrieves dataset values from the portal with retry,
// backoff, and 401-triggered credential renewal.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"traffic-ingester/internal/auth"
	"traffic-ingester/internal/config"
	"traffic-ingester/internal/metrics"
	"traffic-ingester/internal/model"
	"traffic-ingester/internal/normalize"
	"traffic-ingester/internal/util"
)

// ErrUnauthorized reports a 401 that survived the single automatic renewal
// attempt. It is terminal for the dataset: no further retries follow.
var ErrUnauthorized = errors.New("unauthorized after token renewal")

// StatusError is a non-200 response from the values endpoint.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %s", e.Status)
}

type Client struct {
	portal config.PortalConfig
	cfg    config.FetchConfig
	attrs  []string
	format config.Format
	auth   *auth.Manager
	norm   *normalize.Normalizer
	client *http.Client
	log    *zap.Logger
	mets   *metrics.Metrics
}

func NewClient(cfg config.Config, am *auth.Manager, norm *normalize.Normalizer, log *zap.Logger, mets *metrics.Metrics) *Client {
	to := cfg.Portal.Timeout
	if to == 0 {
		to = 60 * time.Second
	}
	return &Client{
		portal: cfg.Portal,
		cfg:    cfg.Fetch,
		attrs:  cfg.Attributes,
		format: cfg.Format,
		auth:   am,
		norm:   norm,
		client: util.NewHTTPClient(to),
		log:    log,
		mets:   mets,
	}
}

// Fetch retrieves one dataset and normalizes the body. Transport errors and
// non-200/401 statuses are retried with exponential backoff; a 401 triggers
// exactly one renewal attempt and, if still unauthorized, fails the dataset
// immediately.
func (c *Client) Fetch(ctx context.Context, dataset string) (model.Payload, error) {
	endpoint := c.portal.ValuesURL(dataset, c.attrs)
	c.log.Info("fetching dataset", zap.String("dataset", dataset))

	backoff := c.cfg.Backoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	maxBackoff := c.cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 8 * time.Second
	}
	attempts := c.cfg.MaxRetries
	if attempts <= 0 {
		attempts = 3
	}

	var body []byte
	renewed := false
	err := util.Retry(ctx, attempts, backoff, maxBackoff, func() error {
		b, err := c.doRequest(ctx, endpoint)
		if err == nil {
			body = b
			return nil
		}

		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusUnauthorized {
			c.log.Error("authentication failed (401 unauthorized), the bearer token has likely expired",
				zap.String("dataset", dataset))
			c.outcome(dataset, "unauthorized")
			if renewed {
				return util.Permanent(ErrUnauthorized)
			}
			renewed = true
			c.auth.MarkExpired()
			if _, aerr := c.auth.Acquire(ctx); aerr != nil {
				c.log.Error("failed to obtain a new token automatically, consider providing one with --token",
					zap.Error(aerr))
				return util.Permanent(fmt.Errorf("%w: %v", ErrUnauthorized, aerr))
			}
			b, err = c.doRequest(ctx, endpoint)
			if err == nil {
				body = b
				return nil
			}
			if errors.As(err, &se) && se.Code == http.StatusUnauthorized {
				c.log.Error("still unauthorized after obtaining a new token, manual intervention required",
					zap.String("dataset", dataset))
				return util.Permanent(ErrUnauthorized)
			}
			return err
		}

		c.log.Warn("fetch attempt failed, will retry",
			zap.String("dataset", dataset), zap.Error(err))
		c.outcome(dataset, "retry")
		return err
	})
	if err != nil {
		c.outcome(dataset, "failure")
		return nil, fmt.Errorf("fetch %s: %w", dataset, err)
	}
	c.outcome(dataset, "success")

	if p, ok := c.norm.FromJSON(body); ok {
		c.log.Info("successfully fetched data", zap.String("dataset", dataset))
		return p, nil
	}
	c.log.Info("response is not JSON, processing as delimited text",
		zap.String("dataset", dataset))
	return c.norm.FromText(string(body), c.format), nil
}

func (c *Client) doRequest(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/plain, */*; q=0.01")
	if al := c.portal.AcceptLanguage; al != "" {
		req.Header.Set("Accept-Language", al)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Tenant", c.portal.Tenant)
	// The portal checks the lowercase variant too; bypass canonicalization.
	req.Header["tenant"] = []string{c.portal.Tenant}
	if ua := c.portal.UserAgent; ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	req.Header.Set("Referer", fmt.Sprintf("%s/Dashboard/?tenant=%s&view=%s&viewer=1&appId=%s&runtime=dashboard-1",
		c.portal.BaseURL, c.portal.Tenant, c.portal.ViewID, c.portal.DashboardAppID))
	if h, ok := c.auth.AuthHeader(); ok {
		req.Header.Set("Authorization", h)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) outcome(dataset, outcome string) {
	if c.mets != nil {
		c.mets.FetchAttempts.WithLabelValues(dataset, outcome).Inc()
	}
}
