package extract

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	// RedirectTimeout bounds short link resolution.
	RedirectTimeout = 10 * time.Second
	maxRedirects    = 10
)

var errTooManyRedirects = errors.New("too many redirects")

// Redirector expands short links by following redirects of a HEAD request.
type Redirector struct {
	client *http.Client
	logger *zap.Logger
}

func NewRedirector(logger *zap.Logger) *Redirector {
	return &Redirector{
		client: &http.Client{
			Timeout: RedirectTimeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return errTooManyRedirects
				}
				return nil
			},
		},
		logger: logger,
	}
}

// Resolve returns the final URL after redirects. Any failure yields rawURL
// unchanged so extraction can still try the short link directly.
func (r *Redirector) Resolve(ctx context.Context, rawURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, http.NoBody)
	if err != nil {
		return rawURL
	}
	req.Header.Set("User-Agent", tiktokUserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Debug("Short link resolution failed", zap.String("url", rawURL), zap.Error(err))
		return rawURL
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.Request == nil || resp.Request.URL == nil {
		return rawURL
	}
	return resp.Request.URL.String()
}
