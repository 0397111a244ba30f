package nftstorage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/nftgen/pkg/errors"
)

func writeCAR(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "images.car")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient("secret",
		WithEndpoint(srv.URL),
		WithHTTPClient(srv.Client()),
		WithRetry(3, time.Millisecond),
		WithLogger(log.NewWithOptions(io.Discard, log.Options{})),
	)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestUploadCAR(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/upload" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/car" {
			t.Errorf("Content-Type = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "car-bytes" {
			t.Errorf("body = %q", body)
		}
		_, _ = io.WriteString(w, `{"ok":true,"value":{"cid":"bafyroot"}}`)
	}))
	defer srv.Close()

	res, err := newTestClient(t, srv).UploadCAR(context.Background(), writeCAR(t, "car-bytes"))
	if err != nil {
		t.Fatalf("UploadCAR: %v", err)
	}
	if res.CID != "bafyroot" {
		t.Errorf("CID = %q, want bafyroot", res.CID)
	}
}

func TestUploadCARRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"ok":true,"value":{"cid":"bafy"}}`)
	}))
	defer srv.Close()

	if _, err := newTestClient(t, srv).UploadCAR(context.Background(), writeCAR(t, "x")); err != nil {
		t.Fatalf("UploadCAR: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestUploadCARClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"ok":false,"error":{"name":"HTTPError","message":"invalid token"}}`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).UploadCAR(context.Background(), writeCAR(t, "x"))
	if !errors.Is(err, errors.ErrCodeUpstreamTransfer) {
		t.Fatalf("got %v, want %s", err, errors.ErrCodeUpstreamTransfer)
	}
	if !strings.Contains(err.Error(), "invalid token") {
		t.Errorf("error should carry service message: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestUploadCARExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).UploadCAR(context.Background(), writeCAR(t, "x"))
	if !errors.Is(err, errors.ErrCodeUpstreamTransfer) {
		t.Errorf("got %v, want %s", err, errors.ErrCodeUpstreamTransfer)
	}
}

func TestUploadCARTooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.car")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(MaxCARSize + 1); err != nil {
		t.Fatal(err)
	}
	f.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("oversized file should not be sent")
	}))
	defer srv.Close()

	_, err = newTestClient(t, srv).UploadCAR(context.Background(), path)
	if !errors.Is(err, errors.ErrCodeUpstreamTransfer) {
		t.Errorf("got %v, want %s", err, errors.ErrCodeUpstreamTransfer)
	}
}

func TestUploadCARMissingFile(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := newTestClient(t, srv).UploadCAR(context.Background(), filepath.Join(t.TempDir(), "nope.car"))
	if !errors.Is(err, errors.ErrCodeIO) {
		t.Errorf("got %v, want %s", err, errors.ErrCodeIO)
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(""); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("empty key: got %v", err)
	}
	if _, err := NewClient("k", WithEndpoint("ftp://x")); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("bad endpoint: got %v", err)
	}
}
