// internal/adapters/sbrfeed/client.go
package sbrfeed

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"pnr_quality/internal/adapters/observability"
	"pnr_quality/internal/domain"
)

// Client downloads SBR booking extracts published over HTTP under one feed
// origin. The token is only ever sent to that origin.
type Client struct {
	hc       *http.Client
	base     *url.URL
	token    string
	rl       *rate.Limiter
	maxBytes int64
}

func New(baseURL, token string, rps int, maxBytes int64) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("sbrfeed: base url: %w", err)
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("sbrfeed: base url %q must be absolute http(s)", baseURL)
	}
	if rps <= 0 {
		rps = 1
	}
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	c := &Client{
		base:     base,
		token:    token,
		rl:       rate.NewLimiter(rate.Limit(rps), rps),
		maxBytes: maxBytes,
	}
	c.hc = &http.Client{Timeout: 2 * time.Minute, CheckRedirect: c.checkRedirect}
	return c, nil
}

var (
	ErrUnauthorized = errors.New("sbrfeed: unauthorized")
	ErrTooLarge     = errors.New("sbrfeed: extract exceeds size limit")
)

// Resolve turns ref into an absolute URL on the feed origin.
func (c *Client) Resolve(ref string) (*url.URL, error) {
	if ref == "" {
		u := *c.base
		return &u, nil
	}
	r, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrForeignSource, err)
	}
	u := c.base.ResolveReference(r)
	if !c.sameOrigin(u) {
		return nil, fmt.Errorf("%w: %s", domain.ErrForeignSource, u.Redacted())
	}
	return u, nil
}

func (c *Client) sameOrigin(u *url.URL) bool {
	return u.Scheme == c.base.Scheme && u.User == nil && strings.EqualFold(u.Host, c.base.Host)
}

// checkRedirect refuses to follow the feed anywhere else.
func (c *Client) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 5 {
		return errors.New("sbrfeed: too many redirects")
	}
	if !c.sameOrigin(req.URL) {
		return fmt.Errorf("%w: redirect to %s", domain.ErrForeignSource, req.URL.Redacted())
	}
	return nil
}

// Fetch performs a GET with client-side rate limiting and retries on 429 and
// transient 5xx, honoring Retry-After when provided.
func (c *Client) Fetch(ctx context.Context, ref string) ([]byte, error) {
	u, err := c.Resolve(ref)
	if err != nil {
		return nil, err
	}
	if err := c.rl.Wait(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	for i := 0; i < 4; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		req.Header.Set("Accept", "text/csv, */*")
		req.Header.Set("User-Agent", "pnr-quality/1.0")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, domain.ErrForeignSource) {
				return nil, err
			}
			observability.ObserveExternalError("sbrfeed", err)
			lastErr = err
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, lastErr
		}
		observability.ObserveExternal("sbrfeed", req.URL.Host, resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK:
			body, err := readLimited(resp.Body, c.maxBytes)
			resp.Body.Close()
			return body, err

		case http.StatusNotFound:
			resp.Body.Close()
			return nil, domain.ErrNotFound

		case http.StatusUnauthorized, http.StatusForbidden:
			resp.Body.Close()
			return nil, ErrUnauthorized

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("remote %d", resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, fmt.Errorf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}
	return nil, lastErr
}

func readLimited(r io.Reader, max int64) ([]byte, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if n > max {
		return nil, ErrTooLarge
	}
	return buf.Bytes(), nil
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff doubles from 200ms per attempt with up to +50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}
