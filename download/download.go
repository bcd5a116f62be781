// Package download keeps a local copy of a remote document current. Each
// copy has a JSON sidecar holding the HTTP validators and a content hash, so
// a refresh of an unchanged document costs a 304 or a hash comparison
// instead of a reload.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

const SidecarSuffix = ".status.json"

// DefaultMaxBytes caps the body size when Request.MaxBytes is unset.
const DefaultMaxBytes = 32 << 20

var sidecarJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Status says what a refresh did to the local copy.
type Status string

const (
	StatusUpdated     Status = "updated"
	StatusNotModified Status = "not_modified"
	StatusSameContent Status = "same_content"
)

// Sidecar is the state stored next to the local copy.
type Sidecar struct {
	URL          string    `json:"url,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	SHA256       string    `json:"sha256,omitempty"`
	SizeBytes    int64     `json:"size_bytes,omitempty"`
	FetchedAt    time.Time `json:"fetched_at,omitempty"`
	CheckedAt    time.Time `json:"checked_at,omitempty"`
	LoadedAt     time.Time `json:"loaded_at,omitempty"`
	LoadedOK     bool      `json:"loaded_ok,omitempty"`
}

// Request configures one refresh.
type Request struct {
	URL         string
	Destination string
	Timeout     time.Duration
	// Force skips the validators and the hash comparison.
	Force     bool
	UserAgent string
	Accept    string
	MaxBytes  int64
	Client    *http.Client
	// Validate, when set, must accept the new body before it replaces the
	// destination file.
	Validate func([]byte) error
}

// Result summarizes the refresh.
type Result struct {
	Status  Status
	Sidecar Sidecar
	Bytes   int64
}

// SidecarPath returns where the sidecar for dest lives.
func SidecarPath(dest string) string {
	if strings.TrimSpace(dest) == "" {
		return ""
	}
	return dest + SidecarSuffix
}

// Download refreshes req.Destination from req.URL. The new body is written
// to a temp file and renamed into place, so readers never see a partial
// document.
func Download(ctx context.Context, req Request) (Result, error) {
	url, dest := strings.TrimSpace(req.URL), strings.TrimSpace(req.Destination)
	switch {
	case url == "":
		return Result{}, errors.New("download: URL is empty")
	case dest == "":
		return Result{}, errors.New("download: destination is empty")
	}
	force := req.Force
	if _, err := os.Stat(dest); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Result{}, fmt.Errorf("download: stat destination: %w", err)
		}
		force = true
	}
	sidecarPath := SidecarPath(dest)
	prev, _ := ReadSidecar(sidecarPath)
	if force {
		prev = nil
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	resp, err := send(ctx, req, url, prev)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	now := time.Now().UTC()
	next := refreshSidecar(prev, url, resp, now)
	if resp.StatusCode == http.StatusNotModified && prev != nil {
		saveSidecar(sidecarPath, next)
		return Result{Status: StatusNotModified, Sidecar: next}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("download: fetch failed: status %s", resp.Status)
	}

	body, err := readLimited(resp.Body, req.MaxBytes)
	if err != nil {
		return Result{}, err
	}
	sum := sha256.Sum256(body)
	next.SHA256 = hex.EncodeToString(sum[:])
	res := Result{Bytes: int64(len(body))}
	if prev != nil && prev.SHA256 == next.SHA256 {
		saveSidecar(sidecarPath, next)
		res.Status, res.Sidecar = StatusSameContent, next
		return res, nil
	}

	if req.Validate != nil {
		if err := req.Validate(body); err != nil {
			return Result{}, fmt.Errorf("download: rejected content: %w", err)
		}
	}
	if err := replaceFile(dest, body); err != nil {
		return Result{}, err
	}
	next.SizeBytes = res.Bytes
	next.FetchedAt = now
	next.LoadedAt, next.LoadedOK = time.Time{}, false
	saveSidecar(sidecarPath, next)
	res.Status, res.Sidecar = StatusUpdated, next
	return res, nil
}

func send(ctx context.Context, req Request, url string, prev *Sidecar) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("download: build request: %w", err)
	}
	if prev != nil {
		if prev.ETag != "" {
			httpReq.Header.Set("If-None-Match", prev.ETag)
		}
		if prev.LastModified != "" {
			httpReq.Header.Set("If-Modified-Since", prev.LastModified)
		}
	}
	if req.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.UserAgent)
	}
	if req.Accept != "" {
		httpReq.Header.Set("Accept", req.Accept)
	}
	client := req.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("download: fetch failed: %w", err)
	}
	return resp, nil
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("download: read body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("download: body exceeds %d bytes", limit)
	}
	if len(body) == 0 {
		return nil, errors.New("download: empty response body")
	}
	return body, nil
}

// refreshSidecar carries prev forward with the response's validators.
func refreshSidecar(prev *Sidecar, url string, resp *http.Response, now time.Time) Sidecar {
	var s Sidecar
	if prev != nil {
		s = *prev
	}
	s.URL = url
	s.CheckedAt = now
	if etag := strings.TrimSpace(resp.Header.Get("ETag")); etag != "" {
		s.ETag = etag
	}
	if last := strings.TrimSpace(resp.Header.Get("Last-Modified")); last != "" {
		s.LastModified = last
	}
	return s
}

// ReadSidecar loads the sidecar at path.
func ReadSidecar(path string) (*Sidecar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Sidecar
	if err := sidecarJSON.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("download: decode sidecar %s: %w", path, err)
	}
	return &s, nil
}

// WriteSidecar persists s as indented JSON.
func WriteSidecar(path string, s Sidecar) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("download: sidecar path is empty")
	}
	data, err := sidecarJSON.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// MarkLoaded records whether the caller could use the current local copy.
// Missing sidecars are left alone.
func MarkLoaded(dest string, ok bool) error {
	path := SidecarPath(dest)
	s, err := ReadSidecar(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	s.LoadedAt = time.Now().UTC()
	s.LoadedOK = ok
	return WriteSidecar(path, *s)
}

func saveSidecar(path string, s Sidecar) {
	if err := WriteSidecar(path, s); err != nil {
		log.Printf("Warning: unable to write %s: %v", path, err)
	}
}

func replaceFile(dest string, body []byte) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("download: create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(dest)+".*.tmp")
	if err != nil {
		return fmt.Errorf("download: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return fmt.Errorf("download: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("download: finalize temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("download: replace file: %w", err)
	}
	return nil
}
