package download

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestDownloadWritesCopyAndSidecar(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("expected Accept header, got %q", got)
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Last-Modified", "Wed, 01 Oct 2025 12:00:00 GMT")
		_, _ = w.Write([]byte(`{"properties":{}}`))
	}))
	t.Cleanup(server.Close)

	dest := filepath.Join(t.TempDir(), "data", "data.json")
	res, err := Download(testContext(t), Request{
		URL:         server.URL,
		Destination: dest,
		Timeout:     5 * time.Second,
		Accept:      "application/json",
	})
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if res.Status != StatusUpdated || res.Bytes != int64(len(`{"properties":{}}`)) {
		t.Fatalf("unexpected result %+v", res)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != `{"properties":{}}` {
		t.Fatalf("unexpected local copy %q (%v)", data, err)
	}
	side, err := ReadSidecar(SidecarPath(dest))
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}
	if side.ETag != `"v1"` || side.LastModified == "" || side.SHA256 == "" || side.FetchedAt.IsZero() {
		t.Fatalf("sidecar missing fields: %+v", side)
	}
}

func TestDownloadConditionalRefresh(t *testing.T) {
	var conditional atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			conditional.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte("same"))
	}))
	t.Cleanup(server.Close)

	dest := filepath.Join(t.TempDir(), "data.json")
	if _, err := Download(testContext(t), Request{URL: server.URL, Destination: dest}); err != nil {
		t.Fatalf("initial download: %v", err)
	}
	before, err := ReadSidecar(SidecarPath(dest))
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}

	second, err := Download(testContext(t), Request{URL: server.URL, Destination: dest})
	if err != nil {
		t.Fatalf("second download: %v", err)
	}
	if second.Status != StatusNotModified || conditional.Load() != 1 {
		t.Fatalf("expected a conditional 304, got %s (%d)", second.Status, conditional.Load())
	}
	if !second.Sidecar.FetchedAt.Equal(before.FetchedAt) {
		t.Fatalf("expected FetchedAt to survive a 304")
	}

	forced, err := Download(testContext(t), Request{URL: server.URL, Destination: dest, Force: true})
	if err != nil {
		t.Fatalf("forced download: %v", err)
	}
	if forced.Status != StatusUpdated || conditional.Load() != 1 {
		t.Fatalf("expected forced refresh to skip validators, got %s", forced.Status)
	}
}

func TestDownloadSameContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("repeat"))
	}))
	t.Cleanup(server.Close)

	dest := filepath.Join(t.TempDir(), "data.json")
	if _, err := Download(testContext(t), Request{URL: server.URL, Destination: dest}); err != nil {
		t.Fatalf("initial download: %v", err)
	}
	validated := false
	second, err := Download(testContext(t), Request{
		URL:         server.URL,
		Destination: dest,
		Validate:    func([]byte) error { validated = true; return nil },
	})
	if err != nil {
		t.Fatalf("second download: %v", err)
	}
	if second.Status != StatusSameContent || validated {
		t.Fatalf("expected unchanged content to skip validation, got %s", second.Status)
	}
}

func TestDownloadRejectedContentKeepsCopy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	t.Cleanup(server.Close)

	dest := filepath.Join(t.TempDir(), "data.json")
	if err := os.WriteFile(dest, []byte("previous"), 0o644); err != nil {
		t.Fatalf("seed dest: %v", err)
	}
	reject := errors.New("bad document")
	_, err := Download(testContext(t), Request{
		URL:         server.URL,
		Destination: dest,
		Validate:    func([]byte) error { return reject },
	})
	if !errors.Is(err, reject) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if data, _ := os.ReadFile(dest); string(data) != "previous" {
		t.Fatalf("expected previous content to survive, got %q", data)
	}
}

func TestDownloadErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/big":
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		case "/missing":
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	dir := t.TempDir()

	cases := map[string]struct {
		req  Request
		want string
	}{
		"no url":    {Request{Destination: filepath.Join(dir, "a.json")}, "URL is empty"},
		"no dest":   {Request{URL: server.URL}, "destination is empty"},
		"too large": {Request{URL: server.URL + "/big", Destination: filepath.Join(dir, "b.json"), MaxBytes: 16}, "exceeds"},
		"status":    {Request{URL: server.URL + "/missing", Destination: filepath.Join(dir, "c.json")}, "404"},
		"empty":     {Request{URL: server.URL + "/empty", Destination: filepath.Join(dir, "d.json")}, "empty response"},
	}
	for name, tc := range cases {
		_, err := Download(testContext(t), tc.req)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error containing %q, got %v", name, tc.want, err)
		}
		if tc.req.Destination != "" {
			if _, statErr := os.Stat(tc.req.Destination); !os.IsNotExist(statErr) {
				t.Fatalf("%s: expected no local copy, stat err=%v", name, statErr)
			}
		}
	}
}

func TestMarkLoaded(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "data.json")
	if err := MarkLoaded(dest, true); err != nil {
		t.Fatalf("missing sidecar should be ignored: %v", err)
	}
	if err := WriteSidecar(SidecarPath(dest), Sidecar{URL: "http://example.invalid", SHA256: "abc"}); err != nil {
		t.Fatalf("write sidecar: %v", err)
	}
	if err := MarkLoaded(dest, true); err != nil {
		t.Fatalf("mark: %v", err)
	}
	side, err := ReadSidecar(SidecarPath(dest))
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}
	if !side.LoadedOK || side.SHA256 != "abc" || side.LoadedAt.IsZero() {
		t.Fatalf("unexpected sidecar: %+v", side)
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
