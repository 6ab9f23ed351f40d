package forms

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func metadataServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/samlmetadata+xml")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchOK(t *testing.T) {
	srv := metadataServer(t, "<EntityDescriptor/>")
	f := NewFetcher(0)

	text, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if text != "<EntityDescriptor/>" {
		t.Errorf("text = %q", text)
	}
}

func TestFetchNon200IsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher(0)
	_, err := f.Fetch(context.Background(), srv.URL)
	var terminal *FetchError
	if !errors.As(err, &terminal) {
		t.Fatalf("err = %v, want FetchError", err)
	}
	if terminal.Error() != "Error in the response: 500" {
		t.Errorf("message = %q", terminal.Error())
	}
}

func TestFetchConnectionErrorIsTerminal(t *testing.T) {
	// A refused connection is a URL error, reported as-is with no
	// http:// fallback.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	f := NewFetcher(0)
	_, err := f.Fetch(context.Background(), url)
	var terminal *FetchError
	if !errors.As(err, &terminal) {
		t.Fatalf("err = %v, want FetchError", err)
	}
	if !strings.HasPrefix(terminal.Error(), "URL error: ") {
		t.Errorf("message = %q", terminal.Error())
	}
}

func TestFetchBareHostRetriesWithHTTP(t *testing.T) {
	srv := metadataServer(t, "fetched")
	f := NewFetcher(0)

	// Strip the scheme: "127.0.0.1:PORT" cannot be requested directly
	// and must succeed through the single http:// retry.
	bare := strings.TrimPrefix(srv.URL, "http://")
	text, err := f.Fetch(context.Background(), bare)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if text != "fetched" {
		t.Errorf("text = %q", text)
	}
}

func TestFetchUnknownError(t *testing.T) {
	f := NewFetcher(0)
	_, err := f.Fetch(context.Background(), "%%not-a-url%%")
	if !errors.Is(err, ErrUnknownFetch) {
		t.Errorf("err = %v, want ErrUnknownFetch", err)
	}
}

func TestFetchDecodesCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml; charset=iso-8859-1")
		_, _ = w.Write([]byte{0xe9}) // "é" in latin-1
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher(0)
	text, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if text != "é" {
		t.Errorf("text = %q, want decoded latin-1", text)
	}
}
