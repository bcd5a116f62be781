package recorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

const preflightTimeout = 2 * time.Second

var sidecarSuffixes = []string{"-wal", "-shm", "-journal"}

// preflight checks an existing audit database before it is opened for
// writing. A database that fails quick_check (or cannot be checkpointed) is
// moved aside, together with its sidecars, so the recorder starts on a fresh
// file rather than refusing to start. It returns the new name of the main
// file when it quarantined one.
func preflight(path string, timeout time.Duration) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("recorder: preflight stat: %w", err)
	}
	if timeout <= 0 {
		timeout = preflightTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	checkErr := checkDatabase(ctx, path, timeout)
	if checkErr == nil {
		return "", nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("recorder: preflight timed out after %s", timeout)
	}
	moved, err := quarantine(path, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("recorder: quarantine after %v: %w", checkErr, err)
	}
	log.Printf("Warning: hydration database failed preflight (%v); moved to %s", checkErr, moved)
	return moved, nil
}

func checkDatabase(ctx context.Context, path string, timeout time.Duration) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, fmt.Sprintf("pragma busy_timeout=%d", timeout.Milliseconds())); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "pragma wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	rows, err := db.QueryContext(ctx, "pragma quick_check")
	if err != nil {
		return fmt.Errorf("quick_check: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return fmt.Errorf("quick_check: %w", err)
		}
		if strings.TrimSpace(status) != "ok" {
			return fmt.Errorf("quick_check reported %q", status)
		}
	}
	return rows.Err()
}

// quarantine renames path and any sidecars to <name>.bad-<UTC stamp>.
func quarantine(path string, now time.Time) (string, error) {
	suffix := ".bad-" + now.Format("20060102T150405Z")
	if err := os.Rename(path, path+suffix); err != nil {
		return "", err
	}
	for _, s := range sidecarSuffixes {
		side := path + s
		if err := os.Rename(side, side+suffix); err != nil && !os.IsNotExist(err) {
			return "", err
		}
	}
	return path + suffix, nil
}
