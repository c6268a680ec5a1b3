package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// ErrTooLarge is returned when an image exceeds the download limit.
var ErrTooLarge = errors.New("image exceeds size limit")

// Fetcher loads the raw bytes behind an image reference.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, ref string) ([]byte, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, ref string) ([]byte, error) {
	return f(ctx, ref)
}

// HTTPFetcher downloads http and https references.
type HTTPFetcher struct {
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
}

// NewHTTPFetcher creates a fetcher. timeout bounds each download; maxBytes
// bounds each body. Zero values disable the limit.
func NewHTTPFetcher(timeout time.Duration, maxBytes int64) *HTTPFetcher {
	return &HTTPFetcher{
		client:   &http.Client{},
		timeout:  timeout,
		maxBytes: maxBytes,
	}
}

// Fetch downloads ref. Non-2xx responses are errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	return readLimited(resp.Body, f.maxBytes)
}

// FileFetcher reads local files. References may be plain paths or file:// URLs.
type FileFetcher struct {
	maxBytes int64
}

// NewFileFetcher creates a file fetcher with the given size limit.
func NewFileFetcher(maxBytes int64) *FileFetcher {
	return &FileFetcher{maxBytes: maxBytes}
}

// Fetch reads the file named by ref.
func (f *FileFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := ref
	if strings.HasPrefix(ref, "file://") {
		u, err := url.Parse(ref)
		if err != nil {
			return nil, fmt.Errorf("invalid file URL: %w", err)
		}
		path = u.Path
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open file: %w", err)
	}
	defer file.Close()

	return readLimited(file, f.maxBytes)
}

// SchemeFetcher routes references by URL scheme: http and https go to HTTP,
// file:// URLs and plain paths go to File. A nil target rejects its references.
type SchemeFetcher struct {
	HTTP Fetcher
	File Fetcher
}

// Fetch dispatches ref to the matching fetcher.
func (f *SchemeFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	var target Fetcher
	switch {
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		target = f.HTTP
	case strings.HasPrefix(ref, "file://"), !strings.Contains(ref, "://"):
		target = f.File
	}
	if target == nil {
		return nil, fmt.Errorf("unsupported image reference %q", ref)
	}
	return target.Fetch(ctx, ref)
}

func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("could not read image: %w", err)
		}
		return data, nil
	}

	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("could not read image: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w of %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}
