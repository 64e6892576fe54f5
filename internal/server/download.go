package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// Download limits for query images given by URL.
const (
	DefaultMaxDownloadBytes = 16 << 20
	DefaultConnectTimeout   = 5 * time.Second
	DefaultDownloadTimeout  = 30 * time.Second
	DefaultDownloadsPerSec  = 2
)

// ErrDownloadTooLarge is returned for images above the size limit.
var ErrDownloadTooLarge = errors.New("image exceeds download size limit")

// DownloadOptions bounds URL downloads.
type DownloadOptions struct {
	MaxBytes       int64
	ConnectTimeout time.Duration
	Timeout        time.Duration

	// PerSecond limits the download rate; bursts of one are allowed.
	PerSecond float64
}

// DefaultDownloadOptions returns the limits used by New.
func DefaultDownloadOptions() DownloadOptions {
	return DownloadOptions{
		MaxBytes:       DefaultMaxDownloadBytes,
		ConnectTimeout: DefaultConnectTimeout,
		Timeout:        DefaultDownloadTimeout,
		PerSecond:      DefaultDownloadsPerSec,
	}
}

// downloader fetches query images over HTTP(S).
type downloader struct {
	client   *http.Client
	limiter  *rate.Limiter
	maxBytes int64
}

func newDownloader(opts DownloadOptions) *downloader {
	dialer := &net.Dialer{Timeout: opts.ConnectTimeout}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.TLSHandshakeTimeout = opts.ConnectTimeout

	limit := rate.Inf
	if opts.PerSecond > 0 {
		limit = rate.Limit(opts.PerSecond)
	}
	return &downloader{
		client:   &http.Client{Transport: transport, Timeout: opts.Timeout},
		limiter:  rate.NewLimiter(limit, 1),
		maxBytes: opts.MaxBytes,
	}
}

// fetch downloads rawURL. Only http and https URLs are accepted.
func (d *downloader) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &inputError{fmt.Errorf("invalid image url %q", rawURL)}
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &inputError{fmt.Errorf("download %s: %s", rawURL, resp.Status)}
	}
	if d.maxBytes > 0 && resp.ContentLength > d.maxBytes {
		return nil, &inputError{ErrDownloadTooLarge}
	}

	r := io.Reader(resp.Body)
	if d.maxBytes > 0 {
		r = io.LimitReader(resp.Body, d.maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", rawURL, err)
	}
	if d.maxBytes > 0 && int64(len(data)) > d.maxBytes {
		return nil, &inputError{ErrDownloadTooLarge}
	}
	return data, nil
}
