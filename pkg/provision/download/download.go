// Package download fetches remote files with size limits, retry with
// exponential backoff, and a bounded parallel fan-out for mod lists.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/msfg/msfg/pkg/provision/logbook"
	"github.com/msfg/msfg/pkg/utils/retry"
)

const chunkSize = 8 * 1024

var (
	ErrBadURL   = errors.New("invalid download URL")
	ErrTooLarge = errors.New("file exceeds maximum size")
)

// StatusError is a non-2xx response. 5xx and 429 are transient.
type StatusError struct {
	Code int
	URL  string
}

func (e StatusError) Error() string {
	return fmt.Sprintf("download %s: unexpected status %d", e.URL, e.Code)
}

func (e StatusError) Transient() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// IsTransient reports whether err is worth retrying: network-level
// failures and transient HTTP statuses. Validation failures (bad URL,
// oversize) are permanent.
func IsTransient(err error) bool {
	var se StatusError
	if errors.As(err, &se) {
		return se.Transient()
	}
	if errors.Is(err, ErrBadURL) || errors.Is(err, ErrTooLarge) {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue)
}

// Downloader fetches files over a shared, connection-pooled transport.
type Downloader struct {
	client  *http.Client
	logs    *logbook.Registry
	retries int
	backoff func() retry.Backoff
}

// New builds a Downloader sharing one pooled transport across all
// calls.
//
// # Args
//
// - logs: registry receiving per-request progress lines.
//
// - timeout: per-request transport timeout.
//
// - retries: attempt count for the retrying fetch variant.
func New(logs *logbook.Registry, timeout time.Duration, retries int) *Downloader {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 50,
		IdleConnTimeout:     90 * time.Second,
	}
	if retries <= 0 {
		retries = 3
	}
	return &Downloader{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		logs:    logs,
		retries: retries,
		backoff: func() retry.Backoff {
			return retry.SkipFirst(retry.ExponentialBackoff(1*time.Second, 2))
		},
	}
}

// Fetch downloads rawURL into dest, failing when the URL is not
// http(s), the response status is not 2xx, or the payload exceeds
// maxBytes (declared or actual). The partially written dest is
// removed on every failure path.
func (d *Downloader) Fetch(ctx context.Context, rawURL, dest, requestID string, maxBytes int64) error {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %s", ErrBadURL, rawURL)
	}

	d.logs.Append(requestID, fmt.Sprintf("Downloading: %s", rawURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBadURL, rawURL)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return StatusError{Code: resp.StatusCode, URL: rawURL}
	}

	if cl := resp.ContentLength; cl > 0 && cl > maxBytes {
		return fmt.Errorf("%w: declared %s > limit %s",
			ErrTooLarge, humanize.IBytes(uint64(cl)), humanize.IBytes(uint64(maxBytes)))
	}

	if err := writeBody(resp.Body, dest, maxBytes); err != nil {
		os.Remove(dest)
		return err
	}

	d.logs.Append(requestID, fmt.Sprintf("Downloaded to %s", dest))
	return nil
}

func writeBody(body io.Reader, dest string, maxBytes int64) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	var written int64
	buf := make([]byte, chunkSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			written += int64(n)
			if written > maxBytes {
				return fmt.Errorf("%w: limit %s", ErrTooLarge, humanize.IBytes(uint64(maxBytes)))
			}
			if _, werr := f.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// FetchWithRetry is Fetch with exponential backoff (1s base, doubled)
// on transient transport errors only. Validation failures are not
// retried.
func (d *Downloader) FetchWithRetry(ctx context.Context, rawURL, dest, requestID string, maxBytes int64) error {
	attempt := 0
	_, err := retry.Blocking(ctx, d.backoff(), d.retries, func() (struct{}, error) {
		attempt++
		if attempt > 1 {
			d.logs.Append(requestID, fmt.Sprintf(
				"Retrying download (attempt %d/%d)...", attempt, d.retries,
			))
		}
		err := d.Fetch(ctx, rawURL, dest, requestID, maxBytes)
		if err != nil && IsTransient(err) {
			return struct{}{}, fmt.Errorf("%w: %w", retry.ErrRetry, err)
		}
		return struct{}{}, err
	})
	return err
}

// Job is one unit of a parallel fan-out.
type Job struct {
	URL      string
	Dest     string
	MaxBytes int64
}

// FetchAll downloads jobs concurrently with at most workers in
// flight. A failed job is logged and counted, never fatal to the
// batch; siblings are not canceled.
//
// # Returns
//
// - int: number of failed jobs.
func (d *Downloader) FetchAll(ctx context.Context, jobs []Job, requestID string, workers int) int {
	if workers <= 0 {
		workers = 16
	}

	var failed atomic.Int64
	grp := new(errgroup.Group)
	grp.SetLimit(workers)
	for _, job := range jobs {
		job := job
		grp.Go(func() error {
			if err := d.FetchWithRetry(ctx, job.URL, job.Dest, requestID, job.MaxBytes); err != nil {
				failed.Add(1)
				d.logs.Append(requestID, fmt.Sprintf("Error downloading %s: %s", job.URL, err))
			}
			return nil
		})
	}
	grp.Wait()
	return int(failed.Load())
}
