package spotify

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuebox/internal/domain/failure"
)

const (
	// DefaultRetryAfter is used when a 429 carries no usable Retry-After.
	DefaultRetryAfter = 5 * time.Second
	// DefaultMaxRetries bounds the retries after the first rate-limited attempt.
	DefaultMaxRetries = 3
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RateLimitTransport retries requests rejected with HTTP 429, waiting for
// the server's Retry-After between attempts.
type RateLimitTransport struct {
	Base        http.RoundTripper
	MaxRetries  int
	DefaultWait time.Duration
	Sleep       SleepFunc
}

// NewRateLimitTransport wraps base with the default rate-limit policy.
func NewRateLimitTransport(base http.RoundTripper) *RateLimitTransport {
	return &RateLimitTransport{
		Base:        base,
		MaxRetries:  DefaultMaxRetries,
		DefaultWait: DefaultRetryAfter,
		Sleep:       sleepContext,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *RateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.roundTrip(req, 0)
}

func (t *RateLimitTransport) roundTrip(req *http.Request, attempt int) (*http.Response, error) {
	resp, err := t.base().RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusTooManyRequests {
		return resp, err
	}

	wait := RetryAfter(resp.Header, t.defaultWait())
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	if attempt >= t.maxRetries() {
		return nil, errors.Wrapf(failure.ErrRateLimited, "%s %s: gave up after %d attempts", req.Method, req.URL.Path, attempt+1)
	}

	next, err := rewind(req)
	if err != nil {
		return nil, errors.Wrapf(failure.ErrRateLimited, "%s %s: cannot replay request: %v", req.Method, req.URL.Path, err)
	}

	zlog.Warn().Msgf("spotify: rate limited: method=%s path=%s attempt=%d wait=%v", req.Method, req.URL.Path, attempt+1, wait)
	if err := t.sleep()(req.Context(), wait); err != nil {
		return nil, errors.Wrap(err, "rate limit backoff interrupted")
	}

	return t.roundTrip(next, attempt+1)
}

func (t *RateLimitTransport) base() http.RoundTripper {
	if t.Base == nil {
		return http.DefaultTransport
	}
	return t.Base
}

func (t *RateLimitTransport) maxRetries() int {
	if t.MaxRetries < 0 {
		return 0
	}
	return t.MaxRetries
}

func (t *RateLimitTransport) defaultWait() time.Duration {
	if t.DefaultWait <= 0 {
		return DefaultRetryAfter
	}
	return t.DefaultWait
}

func (t *RateLimitTransport) sleep() SleepFunc {
	if t.Sleep == nil {
		return sleepContext
	}
	return t.Sleep
}

// RetryAfter reads the Retry-After header as whole seconds.
// Missing, malformed or negative values yield fallback.
func RetryAfter(h http.Header, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return fallback
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}

// rewind clones req with a fresh body so it can be sent again.
func rewind(req *http.Request) (*http.Request, error) {
	next := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return next, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("request body is not replayable")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	next.Body = body
	return next, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
