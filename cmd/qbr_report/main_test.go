package main

import (
	"io"
	"path/filepath"
	"testing"
	"time"
)

func TestParseFlagsDefaults(t *testing.T) {
	opts, timeout, err := parseFlags(nil, io.Discard)
	if err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if timeout != 60*time.Second {
		t.Fatalf("expected 60s timeout, got %s", timeout)
	}
	if opts.ConfigPath != filepath.Join("data", "config") {
		t.Fatalf("expected default config dir, got %q", opts.ConfigPath)
	}
	if opts.NoLLM || opts.PropertyID != "" || opts.Quarter != "" {
		t.Fatalf("expected empty selection, got %+v", opts)
	}
}

func TestParseFlagsSelection(t *testing.T) {
	opts, timeout, err := parseFlags([]string{
		"--data", "data.json",
		"--property", "harbor",
		"--quarter", "2025-Q3",
		"--json-out", "out.json",
		"--report-out", "out.md",
		"--no-llm",
		"--timeout", "5s",
	}, io.Discard)
	if err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if opts.DataPath != "data.json" || opts.PropertyID != "harbor" || opts.Quarter != "2025-Q3" {
		t.Fatalf("unexpected selection: %+v", opts)
	}
	if opts.JSONOut != "out.json" || opts.ReportOut != "out.md" || !opts.NoLLM {
		t.Fatalf("unexpected outputs: %+v", opts)
	}
	if timeout != 5*time.Second {
		t.Fatalf("expected 5s timeout, got %s", timeout)
	}
}

func TestParseFlagsRejectsExtras(t *testing.T) {
	if _, _, err := parseFlags([]string{"stray"}, io.Discard); err == nil {
		t.Fatalf("expected error for positional arguments")
	}
	if _, _, err := parseFlags([]string{"--timeout", "0s"}, io.Discard); err == nil {
		t.Fatalf("expected error for zero timeout")
	}
}
