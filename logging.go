package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"qbrreport/config"
)

const (
	logTimestampLayout = "2006/01/02 15:04:05"
	logFileDateLayout  = "02-Jan-2006"
	maxPartialLine     = 16 * 1024
)

type lineSink interface {
	WriteLine(line string, now time.Time)
	Close() error
}

// consoleSink writes lines to stdout or any writer, optionally stamped.
type consoleSink struct {
	w         io.Writer
	timestamp bool
}

func (s *consoleSink) WriteLine(line string, now time.Time) {
	if s == nil || s.w == nil {
		return
	}
	if s.timestamp {
		line = now.UTC().Format(logTimestampLayout) + " " + line
	}
	_, _ = io.WriteString(s.w, line+"\n")
}

func (s *consoleSink) Close() error { return nil }

// rotateFunc runs after the daily log switches files, outside the sink lock.
type rotateFunc func(prevDay time.Time, prevPath, newPath string)

// dailyLog appends to DD-Mon-YYYY.log in dir, switching files at UTC
// midnight and deleting files older than the retention window.
type dailyLog struct {
	mu        sync.Mutex
	dir       string
	retention int
	day       string
	path      string
	file      *os.File
	lastErr   time.Time
	onRotate  rotateFunc
}

func newDailyLog(dir string, retentionDays int) (*dailyLog, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("log directory is empty")
	}
	if retentionDays <= 0 {
		retentionDays = 7
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory %q: %w", dir, err)
	}
	if err := pruneLogs(dir, time.Now().UTC(), retentionDays); err != nil {
		fmt.Fprintf(os.Stderr, "Logging: prune failed for %s: %v\n", dir, err)
	}
	return &dailyLog{dir: dir, retention: retentionDays}, nil
}

func (d *dailyLog) WriteLine(line string, now time.Time) {
	if d == nil {
		return
	}
	now = now.UTC()
	day := now.Format(logFileDateLayout)

	d.mu.Lock()
	var (
		hook              rotateFunc
		prevDay           time.Time
		prevPath, newPath string
	)
	if d.file == nil || d.day != day {
		hook, prevDay, prevPath, newPath = d.switchLocked(day, now)
	}
	if d.file != nil {
		if _, err := d.file.WriteString(now.Format(logTimestampLayout) + " " + line + "\n"); err != nil {
			d.complainLocked(now, fmt.Errorf("write failed: %w", err))
		}
	}
	d.mu.Unlock()

	// The hook may log through the same sink; it must run unlocked.
	if hook != nil && !prevDay.IsZero() {
		hook(prevDay, prevPath, newPath)
	}
}

func (d *dailyLog) switchLocked(day string, now time.Time) (rotateFunc, time.Time, string, string) {
	var (
		hook     rotateFunc
		prevDay  time.Time
		prevPath string
	)
	if d.day != "" && d.day != day {
		if parsed, err := time.ParseInLocation(logFileDateLayout, d.day, time.UTC); err == nil {
			prevDay = parsed
		}
		prevPath = d.path
		hook = d.onRotate
	}
	if d.file != nil {
		_ = d.file.Close()
		d.file = nil
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		d.complainLocked(now, fmt.Errorf("create log directory %q: %w", d.dir, err))
		return nil, time.Time{}, "", ""
	}
	path := filepath.Join(d.dir, logFileName(now))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		d.complainLocked(now, fmt.Errorf("open %s: %w", path, err))
		return nil, time.Time{}, "", ""
	}
	d.file, d.day, d.path = f, day, path
	if err := pruneLogs(d.dir, now, d.retention); err != nil {
		d.complainLocked(now, fmt.Errorf("prune failed: %w", err))
	}
	return hook, prevDay, prevPath, path
}

// complainLocked reports sink errors on stderr at most once a minute.
func (d *dailyLog) complainLocked(now time.Time, err error) {
	if !d.lastErr.IsZero() && now.Sub(d.lastErr) < time.Minute {
		return
	}
	d.lastErr = now
	fmt.Fprintf(os.Stderr, "Logging: %v\n", err)
}

func (d *dailyLog) OnRotate(fn rotateFunc) {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.onRotate = fn
	d.mu.Unlock()
}

func (d *dailyLog) Close() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file, d.day, d.path = nil, "", ""
	return err
}

// logFanout is the log.Logger output: it splits writes into lines and hands
// each line to the console and file sinks.
type logFanout struct {
	mu      sync.Mutex
	pending []byte
	console lineSink
	file    lineSink
}

func setupLogging(cfg config.LoggingConfig, console io.Writer) (*logFanout, error) {
	f := &logFanout{console: &consoleSink{w: console, timestamp: true}}
	if !cfg.Enabled {
		return f, nil
	}
	file, err := newDailyLog(cfg.Dir, cfg.RetentionDays)
	if err != nil {
		return f, err
	}
	f.setFile(file)
	return f, nil
}

func (f *logFanout) setFile(sink lineSink) {
	f.mu.Lock()
	f.file = sink
	f.mu.Unlock()
}

// setConsole replaces the console sink, e.g. with the dashboard.
func (f *logFanout) setConsole(sink lineSink) {
	f.mu.Lock()
	f.console = sink
	f.mu.Unlock()
}

// OnRotate installs fn on the file sink. No-op without file logging.
func (f *logFanout) OnRotate(fn rotateFunc) {
	if f == nil {
		return
	}
	f.mu.Lock()
	sink := f.file
	f.mu.Unlock()
	if d, ok := sink.(*dailyLog); ok {
		d.OnRotate(fn)
	}
}

func (f *logFanout) Write(p []byte) (int, error) {
	if f == nil {
		return len(p), nil
	}
	f.mu.Lock()
	f.pending = append(f.pending, p...)
	data := f.pending
	var lines []string
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, string(bytes.TrimRight(data[:i], "\r")))
		data = data[i+1:]
	}
	if len(data) > maxPartialLine {
		if s := string(bytes.TrimRight(data, "\r")); s != "" {
			lines = append(lines, s)
		}
		data = data[:0]
	}
	f.pending = data
	console, file := f.console, f.file
	f.mu.Unlock()

	now := time.Now().UTC()
	for _, line := range lines {
		if console != nil {
			console.WriteLine(line, now)
		}
		if file != nil {
			file.WriteLine(line, now)
		}
	}
	return len(p), nil
}

// WriteFileOnly records a line in the daily log without echoing it.
func (f *logFanout) WriteFileOnly(line string, now time.Time) {
	if f == nil {
		return
	}
	f.mu.Lock()
	file := f.file
	f.mu.Unlock()
	if file != nil {
		file.WriteLine(line, now)
	}
}

func (f *logFanout) Close() error {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	console, file := f.console, f.file
	f.mu.Unlock()
	if console != nil {
		_ = console.Close()
	}
	if file != nil {
		return file.Close()
	}
	return nil
}

// sourceCounter is satisfied by *recorder.Recorder.
type sourceCounter interface {
	SourceCounts(ctx context.Context) (map[string]int, error)
}

// hydrationSummary writes the recorder's per-source totals into the new
// daily log each time the log rotates.
func hydrationSummary(f *logFanout, counts sourceCounter) rotateFunc {
	return func(prevDay time.Time, _, _ string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		totals, err := counts.SourceCounts(ctx)
		if err != nil {
			f.WriteFileOnly(fmt.Sprintf("Hydration summary unavailable: %v", err), time.Now())
			return
		}
		f.WriteFileOnly(formatSummary(prevDay, totals), time.Now())
	}
}

func formatSummary(day time.Time, totals map[string]int) string {
	keys := make([]string, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, totals[k]))
	}
	if len(parts) == 0 {
		parts = append(parts, "none")
	}
	return fmt.Sprintf("Hydrations through %s: %s", day.Format("2006-01-02"), strings.Join(parts, " "))
}

func logFileName(now time.Time) string {
	return now.UTC().Format(logFileDateLayout) + ".log"
}

func logFileDate(name string) (time.Time, bool) {
	if filepath.Ext(name) != ".log" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(logFileDateLayout, strings.TrimSuffix(name, ".log"), time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// pruneLogs keeps the newest retentionDays days of log files, today included.
func pruneLogs(dir string, now time.Time, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	y, m, d := now.UTC().Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(retentionDays - 1))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if day, ok := logFileDate(e.Name()); ok && day.Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, e.Name()))
		}
	}
	return nil
}
