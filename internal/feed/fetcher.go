package feed

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Document is a raw feed document together with its cache validators.
type Document struct {
	Body         []byte
	ETag         string
	LastModified string
}

// Validators are the conditional-GET headers remembered from a
// previous fetch of the same URL.
type Validators struct {
	ETag         string
	LastModified string
}

// Fetcher retrieves raw feed documents over HTTP. It does not retry;
// retry policy belongs to the sync scheduler's periodic windows.
type Fetcher struct {
	client *resty.Client
}

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("User-Agent", "feedsync/1.0").
			SetHeader("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml"),
	}
}

// Fetch retrieves the document at url. When validators are provided
// they are sent as conditional-GET headers; a 304 answer yields
// ErrNotModified with no document.
func (f *Fetcher) Fetch(ctx context.Context, url string, v Validators) (*Document, error) {
	req := f.client.R().SetContext(ctx)
	if v.ETag != "" {
		req.SetHeader("If-None-Match", v.ETag)
	}
	if v.LastModified != "" {
		req.SetHeader("If-Modified-Since", v.LastModified)
	}

	resp, err := req.Get(url)
	if err != nil {
		return nil, &FetchError{Kind: classifyTransportError(err), URL: url, Err: err}
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		return &Document{
			Body:         resp.Body(),
			ETag:         resp.Header().Get("ETag"),
			LastModified: resp.Header().Get("Last-Modified"),
		}, nil
	case http.StatusNotModified:
		return nil, ErrNotModified
	default:
		return nil, &FetchError{Kind: FetchHTTPStatus, Code: resp.StatusCode(), URL: url}
	}
}

func classifyTransportError(err error) FetchErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return FetchTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FetchTimeout
	}
	return FetchNetworkUnavailable
}
