package dataset

import (
	"context"
	"fmt"
	"log"
	"time"

	"qbrreport/download"
)

// FetchOptions describes where a remote dataset lives and where the local
// copy is kept.
type FetchOptions struct {
	URL         string
	Destination string
	Timeout     time.Duration
	Force       bool
}

// Fetch refreshes the local copy of a remote dataset and parses it. A
// document that fails to parse never replaces the local copy. When the
// remote is unchanged the existing file is loaded again.
func Fetch(ctx context.Context, opts FetchOptions) (*Dataset, download.Status, error) {
	var parsed *Dataset
	res, err := download.Download(ctx, download.Request{
		URL:         opts.URL,
		Destination: opts.Destination,
		Timeout:     opts.Timeout,
		Force:       opts.Force,
		Accept:      "application/json",
		UserAgent:   "qbrreport",
		Validate: func(body []byte) error {
			ds, err := Parse(body)
			if err != nil {
				return err
			}
			parsed = ds
			return nil
		},
	})
	if err != nil {
		return nil, "", fmt.Errorf("fetch dataset: %w", err)
	}
	if parsed == nil {
		if parsed, err = Load(opts.Destination); err != nil {
			markProcessed(opts.Destination, false)
			return nil, res.Status, err
		}
	}
	markProcessed(opts.Destination, true)
	return parsed, res.Status, nil
}

func markProcessed(dest string, ok bool) {
	if err := download.MarkLoaded(dest, ok); err != nil {
		log.Printf("Warning: unable to update dataset metadata: %v", err)
	}
}
