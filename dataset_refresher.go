package main

import (
	"context"
	"log"
	"sync"
	"time"

	"qbrreport/dataset"
	"qbrreport/download"
)

type fetchFunc func(ctx context.Context, opts dataset.FetchOptions) (*dataset.Dataset, download.Status, error)

// datasetRefresher polls the remote dataset and hands every newly fetched
// copy to onUpdate. Unchanged or failed fetches keep the current dataset.
type datasetRefresher struct {
	opts     dataset.FetchOptions
	interval time.Duration
	fetch    fetchFunc
	onUpdate func(*dataset.Dataset)

	quit chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func newDatasetRefresher(opts dataset.FetchOptions, interval time.Duration, onUpdate func(*dataset.Dataset)) *datasetRefresher {
	if opts.URL == "" || interval <= 0 || onUpdate == nil {
		return nil
	}
	return &datasetRefresher{
		opts:     opts,
		interval: interval,
		fetch:    dataset.Fetch,
		onUpdate: onUpdate,
		quit:     make(chan struct{}),
	}
}

func (r *datasetRefresher) Start() {
	if r == nil {
		return
	}
	ticker := time.NewTicker(r.interval)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.refresh()
			case <-r.quit:
				return
			}
		}
	}()
}

func (r *datasetRefresher) Stop() {
	if r == nil {
		return
	}
	r.once.Do(func() { close(r.quit) })
	r.wg.Wait()
}

// refresh runs one fetch and reports whether a new dataset was applied.
func (r *datasetRefresher) refresh() bool {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-r.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	ds, status, err := r.fetch(ctx, r.opts)
	if err != nil {
		log.Printf("Warning: dataset refresh failed: %v", err)
		return false
	}
	if status != download.StatusUpdated {
		return false
	}
	log.Printf("Dataset refreshed from %s (%d properties)", r.opts.URL, len(ds.Properties))
	r.onUpdate(ds)
	return true
}
