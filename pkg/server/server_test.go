package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/nftgen/pkg/metadata"
	"github.com/matzehuels/nftgen/pkg/pipeline"
	"github.com/matzehuels/nftgen/pkg/raster"
)

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	dir := t.TempDir()

	w, err := metadata.NewWriter(filepath.Join(dir, pipeline.MetadataDir))
	if err != nil {
		t.Fatal(err)
	}
	for i := range 2 {
		rec := metadata.Record{
			Description: "desc",
			Name:        metadata.ItemName("Test", i),
			Image:       metadata.PlaceholderURI(i),
			Attributes:  []metadata.Attribute{{TraitType: "background", Value: "blue"}},
		}
		if err := w.Write(i, rec); err != nil {
			t.Fatal(err)
		}
	}

	img := raster.New(2, 2, raster.BytesPerPixel)
	if err := raster.Write(filepath.Join(dir, pipeline.ImagesDir), "0.png", img); err != nil {
		t.Fatal(err)
	}

	report := &pipeline.Report{RunID: "run-1", Collection: "Test", Count: 2}
	report.Finalize()
	if err := pipeline.WriteReport(dir, report); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(New(dir, log.New(io.Discard)).Handler())
	t.Cleanup(srv.Close)
	return srv, dir
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, body
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, body := get(t, srv.URL+"/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got map[string]string
	if err := json.Unmarshal(body, &got); err != nil || got["status"] != "ok" {
		t.Errorf("body = %s", body)
	}
}

func TestMetadata(t *testing.T) {
	srv, dir := newTestServer(t)
	resp, body := get(t, srv.URL+"/metadata/1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	want, _ := os.ReadFile(filepath.Join(dir, pipeline.MetadataDir, "1"))
	if string(body) != string(want) {
		t.Errorf("body = %s, want %s", body, want)
	}
}

func TestMetadataList(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, body := get(t, srv.URL+"/metadata")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var recs []metadata.Record
	if err := json.Unmarshal(body, &recs); err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[1].Name != "Test #1" {
		t.Errorf("records = %+v", recs)
	}
}

func TestImage(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, body := get(t, srv.URL+"/images/0.png")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	if len(body) < 8 || string(body[1:4]) != "PNG" {
		t.Errorf("body is not a PNG")
	}
}

func TestReport(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, body := get(t, srv.URL+"/report")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var r pipeline.Report
	if err := json.Unmarshal(body, &r); err != nil {
		t.Fatal(err)
	}
	if r.RunID != "run-1" {
		t.Errorf("RunID = %q", r.RunID)
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, path := range []string{
		"/metadata/9",
		"/metadata/abc",
		"/metadata/01",
		"/metadata/-1",
		"/images/1.png",
		"/images/0",
		"/images/0.jpg",
		"/nope",
	} {
		t.Run(path, func(t *testing.T) {
			resp, _ := get(t, srv.URL+path)
			if resp.StatusCode != http.StatusNotFound {
				t.Errorf("status = %d, want 404", resp.StatusCode)
			}
		})
	}
}

func TestMissingReport(t *testing.T) {
	srv := httptest.NewServer(New(t.TempDir(), log.New(io.Discard)).Handler())
	defer srv.Close()

	if resp, _ := get(t, srv.URL+"/report"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	resp, body := get(t, srv.URL+"/metadata")
	if resp.StatusCode != http.StatusOK || string(body) != "[]\n" {
		t.Errorf("empty collection: status %d body %q", resp.StatusCode, body)
	}
}
