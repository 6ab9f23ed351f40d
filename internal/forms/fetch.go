package forms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// DefaultFetchTimeout bounds a remote metadata download.
const DefaultFetchTimeout = 10 * time.Second

// maxFetchBytes caps the size of a fetched metadata document.
const maxFetchBytes = 10 << 20

// ErrUnknownFetch is returned when both the original URL and the
// http:// fallback failed for reasons we cannot name.
var ErrUnknownFetch = errors.New("Unknown error while fetching the url")

// FetchError is a fetch failure that surfaces to the user as-is, with
// no fallback retry.
type FetchError struct {
	msg string
}

func (e *FetchError) Error() string { return e.msg }

// Fetcher downloads remote metadata documents with a fixed timeout.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a Fetcher. A non-positive timeout selects the
// default.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Fetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch retrieves rawURL and returns the response body decoded to text.
// Transport and status errors surface immediately as FetchError. A URL
// we cannot even request, typically a bare hostname with no scheme, is
// retried exactly once with an http:// prefix; if that also fails the
// caller gets ErrUnknownFetch.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	text, err := f.fetchOnce(ctx, rawURL)
	if err == nil {
		return text, nil
	}
	var terminal *FetchError
	if errors.As(err, &terminal) {
		return "", err
	}

	text, retryErr := f.fetchOnce(ctx, "http://"+rawURL)
	if retryErr != nil {
		return "", ErrUnknownFetch
	}
	return text, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("fetch: parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("fetch: unsupported scheme in %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("fetch: build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", &FetchError{msg: "URL error: " + err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &FetchError{msg: fmt.Sprintf("Error in the response: %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", &FetchError{msg: "URL error: " + err.Error()}
	}
	return decodeBody(body, resp.Header.Get("Content-Type")), nil
}

// decodeBody converts body to text using the charset from the
// Content-Type header. Without a usable charset the raw bytes are
// taken as-is.
func decodeBody(body []byte, contentType string) string {
	if contentType == "" {
		return string(body)
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return string(body)
	}
	cs := params["charset"]
	if cs == "" {
		return string(body)
	}
	enc, err := htmlindex.Get(cs)
	if err != nil || enc == nil {
		return string(body)
	}
	decoded, _, err := transform.Bytes(enc.NewDecoder(), body)
	if err != nil {
		return string(body)
	}
	return string(decoded)
}
