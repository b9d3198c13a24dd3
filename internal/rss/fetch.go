package rss

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/sync/semaphore"
)

const (
	userAgent                = "sessioncore-rss/1.0"
	defaultConcurrentFetches = 2
	maxFeedBodyBytes         = 4 * 1024 * 1024
)

// Fetcher performs HTTP GETs against feed URLs, bounding application-wide
// concurrency with a weighted semaphore so slow feeds never starve others.
type Fetcher struct {
	client *http.Client
	sem    *semaphore.Weighted
}

func NewFetcher(client *http.Client, maxConcurrent int) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if maxConcurrent <= 0 {
		maxConcurrent = defaultConcurrentFetches
	}
	return &Fetcher{
		client: client,
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Fetch acquires a fetch slot, issues the GET with a retry-with-backoff
// wrapper around the transient-error classes, and returns the raw body.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire fetch slot: %w", err)
	}
	defer f.sem.Release(1)

	var body []byte
	err := RetryWithBackoff(ctx, DefaultRetryConfig(), func() error {
		b, err := f.doFetch(ctx, url)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) doFetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxFeedBodyBytes))
}
