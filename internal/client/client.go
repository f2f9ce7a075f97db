package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	GenericUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.0.0 Safari/537.36"
)

// Client executes gallery HTTP requests. It owns a tuned transport for
// connection reuse and an optional global byte-rate limiter applied to
// image streaming.
type Client struct {
	httpClient *http.Client

	BaseURL string

	limiter      *rate.Limiter
	limitEnabled atomic.Bool

	mu        sync.RWMutex
	userAgent string
	cookies   string
}

// New creates a Client with the default transport configuration.
func New() *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DisableCompression:    true,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   0, // request contexts handle cancellation
		},
		BaseURL: DefaultBaseURL,
		limiter: rate.NewLimiter(rate.Inf, 0),
	}
}

// SetUserAgent sets a custom User-Agent for all requests (thread-safe)
func (c *Client) SetUserAgent(ua string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userAgent = ua
}

// SetCookies sets a raw Cookie header used on all requests, e.g. the
// member id / pass hash pair for authenticated galleries.
func (c *Client) SetCookies(cookies string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cookies = cookies
}

// SetRateLimit updates the global streaming limit in bytes per second.
// 0 means unlimited.
func (c *Client) SetRateLimit(bytesPerSec int) {
	if bytesPerSec <= 0 {
		c.limitEnabled.Store(false)
		c.limiter.SetLimit(rate.Inf)
	} else {
		c.limitEnabled.Store(true)
		c.limiter.SetLimit(rate.Limit(bytesPerSec))
		c.limiter.SetBurst(bytesPerSec)
	}
}

// WaitBytes blocks until the requested bytes can be consumed.
// Returns fast if no limit is set.
func (c *Client) WaitBytes(ctx context.Context, n int) error {
	if !c.limitEnabled.Load() {
		return nil
	}
	// WaitN rejects requests larger than the burst, so wait in
	// burst-sized steps
	burst := c.limiter.Burst()
	for burst > 0 && n > burst {
		if err := c.limiter.WaitN(ctx, burst); err != nil {
			return err
		}
		n -= burst
	}
	return c.limiter.WaitN(ctx, n)
}

func (c *Client) newRequest(ctx context.Context, urlStr string) (*http.Request, error) {
	if _, err := url.Parse(urlStr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	c.mu.RLock()
	userAgent := c.userAgent
	cookies := c.cookies
	c.mu.RUnlock()

	if userAgent == "" {
		userAgent = GenericUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if cookies != "" {
		req.Header.Set("Cookie", cookies)
	}
	return req, nil
}

// GetHTML fetches a page and returns its body as a string.
func (c *Client) GetHTML(ctx context.Context, urlStr string) (string, error) {
	req, err := c.newRequest(ctx, urlStr)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSocket, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrSocket, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSocket, err)
	}
	return string(body), nil
}

// OpenImage starts an image download and hands the body stream to the
// caller. contentLength is -1 when the server did not declare one.
// The caller owns closing the stream.
func (c *Client) OpenImage(ctx context.Context, urlStr string) (body io.ReadCloser, contentLength int64, err error) {
	req, err := c.newRequest(ctx, urlStr)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrSocket, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("%w: status %d", ErrSocket, resp.StatusCode)
	}
	return resp.Body, resp.ContentLength, nil
}
