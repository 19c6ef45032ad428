package collector

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/lysyi3m/rss-archive/app/feed"
)

const maxBodySize = 5 << 20

// Validators are the conditional GET headers of a previous response.
type Validators struct {
	ETag         string
	LastModified string
}

type FetchResult struct {
	Body        []byte
	NotModified bool
	Validators  Validators
}

type Fetcher struct {
	client    *http.Client
	userAgent string
	cache     sync.Map
}

func NewFetcher(userAgent string) *Fetcher {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Fetcher{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("stopped after 5 redirects")
				}
				return nil
			},
		},
		userAgent: userAgent,
	}
}

// Fetch downloads the document at cfg.URL. Validators remembered for the URL
// are sent as conditional GET headers.
func (f *Fetcher) Fetch(ctx context.Context, cfg *feed.Config) (*FetchResult, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Timeout)*time.Second)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.URL, nil)
	if err != nil {
		return nil, &FetchError{Kind: Transport, URL: cfg.URL, Err: err}
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5")

	if cached, ok := f.cache.Load(cfg.URL); ok {
		v := cached.(Validators)
		if v.ETag != "" {
			req.Header.Set("If-None-Match", v.ETag)
		}
		if v.LastModified != "" {
			req.Header.Set("If-Modified-Since", v.LastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, newFetchError(cfg.URL, err)
	}
	defer resp.Body.Close()

	validators := Validators{
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}

	if resp.StatusCode == http.StatusNotModified {
		return &FetchResult{NotModified: true, Validators: validators}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{Kind: Transport, URL: cfg.URL, Err: fmt.Errorf("HTTP error: %s", resp.Status)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, newFetchError(cfg.URL, fmt.Errorf("failed to read response body: %w", err))
	}
	if len(data) > maxBodySize {
		return nil, &FetchError{Kind: Transport, URL: cfg.URL, Err: fmt.Errorf("response exceeds %d bytes", maxBodySize)}
	}

	return &FetchResult{Body: data, Validators: validators}, nil
}

// Remember stores the validators of a response whose content was archived.
func (f *Fetcher) Remember(url string, v Validators) {
	if v.ETag == "" && v.LastModified == "" {
		f.cache.Delete(url)
		return
	}
	f.cache.Store(url, v)
}

func (f *Fetcher) Forget(url string) {
	f.cache.Delete(url)
}
