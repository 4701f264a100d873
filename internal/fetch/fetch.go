// Package fetch implements the shared HTTPFetcher described in spec.md
// §4.1: one pooled, HTTP/2-capable client per process, with bounded retry,
// a capped redirect policy, and typed errors so callers (the Crawler, the
// extractor registry's generic fallbacks) can distinguish
// network failures from TLS failures, timeouts and bad status codes without
// string-matching error text, the way the teacher's fetch.Client already
// does for the narrower HTML-only case.
package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/corvid-labs/websearchd/internal/robots"
)

// NetworkError wraps a low-level connection failure (DNS, dial, reset).
type NetworkError struct{ Err error }

func (e *NetworkError) Error() string { return fmt.Sprintf("network error: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// TLSError wraps a certificate or handshake failure.
type TLSError struct{ Err error }

func (e *TLSError) Error() string { return fmt.Sprintf("tls error: %v", e.Err) }
func (e *TLSError) Unwrap() error { return e.Err }

// TimeoutError wraps a per-call deadline being exceeded.
type TimeoutError struct{ Err error }

func (e *TimeoutError) Error() string { return fmt.Sprintf("timeout: %v", e.Err) }
func (e *TimeoutError) Unwrap() error { return e.Err }

// HTTPStatusError is returned for any non-2xx response, 304 included.
type HTTPStatusError struct{ Code int }

func (e *HTTPStatusError) Error() string { return fmt.Sprintf("unexpected status: %d", e.Code) }

// desktopUserAgents mirrors spec.md §4.1's "randomized desktop User-Agent
// per process start" — picked once in newUserAgent and held for the life of
// the Client, not re-rolled per request.
var desktopUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
}

func newUserAgent() string {
	return desktopUserAgents[rand.Intn(len(desktopUserAgents))]
}

// Client is the process-wide HTTPFetcher. A single instance should be
// constructed at startup and shared across all crawl goroutines; it is
// safe for concurrent use.
type Client struct {
	HTTPClient *http.Client
	// UserAgent overrides the randomized default when set.
	UserAgent string
	// MaxAttempts includes the initial attempt. Minimum 1.
	MaxAttempts int
	// PerRequestTimeout bounds each attempt (connect+read+write combined).
	PerRequestTimeout time.Duration
	// RedirectMaxHops caps redirect following to avoid loops. Zero means default (5).
	RedirectMaxHops int
	// MaxConcurrent limits concurrent in-flight requests per client instance.
	// Zero means unlimited.
	MaxConcurrent int
	// Robots, when set, is consulted before every fetch; disallowed URLs
	// fail fast with an HTTPStatusError{403} rather than hitting the network.
	Robots *robots.Manager
	// AllowPrivateHosts disables the localhost/RFC1918 guard, for tests.
	AllowPrivateHosts bool
	// Limiter, when set, is waited on before every attempt to cap the
	// process-wide outbound request rate independent of MaxConcurrent.
	Limiter *rate.Limiter

	once       sync.Once
	ua         string
	limiter    chan struct{}
	limitOnce  sync.Once
	transport  *http.Transport
}

func (c *Client) init() {
	c.once.Do(func() {
		c.ua = c.UserAgent
		if c.ua == "" {
			c.ua = newUserAgent()
		}
		c.transport = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          200,
			MaxIdleConnsPerHost:   40,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   500 * time.Millisecond,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		}
	})
}

func (c *Client) httpClient() *http.Client {
	c.init()
	if c.HTTPClient != nil {
		base := *c.HTTPClient
		base.CheckRedirect = c.checkRedirectFunc()
		return &base
	}
	return &http.Client{
		Transport:     c.transport,
		Timeout:       c.PerRequestTimeout,
		CheckRedirect: c.checkRedirectFunc(),
	}
}

// Get issues a GET with bounded retry on transient failures, returning the
// body, the response Content-Type, and a typed error on failure.
func (c *Client) Get(ctx context.Context, target string) ([]byte, string, error) {
	return c.do(ctx, http.MethodGet, target, nil, "")
}

// Post issues a POST with the given body and content type.
func (c *Client) Post(ctx context.Context, target string, body []byte, contentType string) ([]byte, string, error) {
	return c.do(ctx, http.MethodPost, target, body, contentType)
}

// StreamGet issues a GET and hands the raw response body reader to fn
// without buffering the whole response, for large or chunked payloads. fn
// receives the declared Content-Length (-1 if absent/unknown) so callers
// can reject oversized responses before reading a single byte. fn must
// fully drain or close the reader; Close is still called afterward.
func (c *Client) StreamGet(ctx context.Context, target string, fn func(contentType string, contentLength int64, body io.Reader) error) error {
	c.init()
	if err := c.checkRobots(ctx, target); err != nil {
		return err
	}
	c.acquire()
	defer c.release()

	req, err := c.newRequest(ctx, http.MethodGet, target, nil, "")
	if err != nil {
		return err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPStatusError{Code: resp.StatusCode}
	}
	return fn(resp.Header.Get("Content-Type"), resp.ContentLength, resp.Body)
}

func (c *Client) do(ctx context.Context, method, target string, body []byte, contentType string) ([]byte, string, error) {
	c.init()
	if method == http.MethodGet {
		if err := c.checkRobots(ctx, target); err != nil {
			return nil, "", err
		}
	}
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		respBody, ct, status, err := c.tryOnce(ctx, method, target, body, contentType)
		if err == nil {
			return respBody, ct, nil
		}
		if status >= 500 && status <= 599 && i < attempts-1 {
			lastErr = err
			time.Sleep(time.Duration(i+1) * 200 * time.Millisecond)
			continue
		}
		return nil, "", err
	}
	if lastErr == nil {
		lastErr = errors.New("unknown fetch error")
	}
	return nil, "", lastErr
}

func (c *Client) tryOnce(ctx context.Context, method, target string, body []byte, contentType string) ([]byte, string, int, error) {
	c.acquire()
	defer c.release()

	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, "", 0, classifyError(err)
		}
	}

	req, err := c.newRequest(ctx, method, target, body, contentType)
	if err != nil {
		return nil, "", 0, err
	}

	reqCtx := req.Context()
	if c.PerRequestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(reqCtx, c.PerRequestTimeout)
		defer cancel()
		req = req.WithContext(reqCtx)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, "", 0, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", resp.StatusCode, &HTTPStatusError{Code: resp.StatusCode}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", resp.StatusCode, classifyError(err)
	}
	return data, resp.Header.Get("Content-Type"), resp.StatusCode, nil
}

func (c *Client) newRequest(ctx context.Context, method, target string, body []byte, contentType string) (*http.Request, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if !isHTTPScheme(u) {
		return nil, fmt.Errorf("unsupported URL scheme: %q", target)
	}
	if !c.AllowPrivateHosts && isLocalOrPrivateHost(u.Hostname()) {
		return nil, fmt.Errorf("private host not allowed: %s", u.Hostname())
	}
	var rdr io.Reader
	if body != nil {
		rdr = strings.NewReader(string(body))
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", c.ua)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

// checkRobots consults the optional robots.Manager before a GET. Non-HTTP
// targets and errors returned by the manager are not treated as disallow.
// An unreachable or 5xx robots.txt is not such an error: the manager returns
// a disallow-all rule set for it, which blocks the GET with a 403.
func (c *Client) checkRobots(ctx context.Context, target string) error {
	if c.Robots == nil {
		return nil
	}
	u, err := url.Parse(target)
	if err != nil || !isHTTPScheme(u) {
		return nil
	}
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)
	rules, _, err := c.Robots.Get(ctx, robotsURL)
	if err != nil {
		return nil
	}
	ua := c.UserAgent
	if ua == "" {
		ua = c.ua
	}
	if !rules.IsAllowed(ua, u.EscapedPath()) {
		return &HTTPStatusError{Code: http.StatusForbidden}
	}
	return nil
}

func (c *Client) checkRedirectFunc() func(req *http.Request, via []*http.Request) error {
	max := c.RedirectMaxHops
	if max <= 0 {
		max = 5
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return errors.New("too many redirects")
		}
		if req.URL == nil || !isHTTPScheme(req.URL) {
			return errors.New("redirect to unsupported scheme")
		}
		return nil
	}
}

func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Err: err}
	}
	var tlsErr *tls.CertificateVerificationError
	if errors.As(err, &tlsErr) {
		return &TLSError{Err: err}
	}
	if strings.Contains(strings.ToLower(err.Error()), "tls") || strings.Contains(strings.ToLower(err.Error()), "certificate") {
		return &TLSError{Err: err}
	}
	return &NetworkError{Err: err}
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

func isLocalOrPrivateHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "localhost" || h == "localhost.localdomain" || h == "::1" || h == "[::1]" {
		return true
	}
	if ip := net.ParseIP(h); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
			return true
		}
	}
	return false
}

func (c *Client) acquire() {
	if c.MaxConcurrent <= 0 {
		return
	}
	c.limitOnce.Do(func() {
		c.limiter = make(chan struct{}, c.MaxConcurrent)
	})
	c.limiter <- struct{}{}
}

func (c *Client) release() {
	if c.MaxConcurrent <= 0 || c.limiter == nil {
		return
	}
	select {
	case <-c.limiter:
	default:
	}
}
