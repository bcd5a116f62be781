package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"qbrreport/internal/qbrreport"
)

const (
	reportQueueDepth = 1
	reportTimeout    = 2 * time.Minute
)

// reportJob regenerates the offline report for one quarter.
type reportJob struct {
	Quarter string
	Reason  string
}

type reportRunner interface {
	Run(ctx context.Context, job reportJob) error
}

// reportScheduler runs report jobs one at a time in the background. A job
// already queued or running for the same quarter is not queued again, and
// jobs are dropped when the queue is full.
type reportScheduler struct {
	queue   chan reportJob
	runner  reportRunner
	logger  qbrreport.Logger
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
	running string
	wg      sync.WaitGroup
}

func newReportScheduler(runner reportRunner, logger qbrreport.Logger, timeout time.Duration) *reportScheduler {
	if timeout <= 0 {
		timeout = reportTimeout
	}
	return &reportScheduler{
		queue:   make(chan reportJob, reportQueueDepth),
		runner:  runner,
		logger:  logger,
		timeout: timeout,
		pending: make(map[string]struct{}),
	}
}

func (s *reportScheduler) Start(ctx context.Context) {
	if s == nil {
		return
	}
	s.wg.Add(1)
	go s.run(ctx)
}

func (s *reportScheduler) Wait() {
	if s == nil {
		return
	}
	s.wg.Wait()
}

func (s *reportScheduler) Enqueue(job reportJob) bool {
	if s == nil {
		return false
	}
	key := strings.ToUpper(strings.TrimSpace(job.Quarter))
	if key == "" {
		return false
	}

	s.mu.Lock()
	if s.running == key {
		s.mu.Unlock()
		s.logf("Report skip: already running for %s", key)
		return false
	}
	if _, ok := s.pending[key]; ok {
		s.mu.Unlock()
		s.logf("Report skip: already queued for %s", key)
		return false
	}
	select {
	case s.queue <- job:
		s.pending[key] = struct{}{}
		s.mu.Unlock()
		s.logf("Report queued for %s (%s)", key, job.Reason)
		return true
	default:
		s.mu.Unlock()
		s.logf("Report drop: queue full; skipping %s (%s)", key, job.Reason)
		return false
	}
}

func (s *reportScheduler) run(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.queue:
			key := strings.ToUpper(strings.TrimSpace(job.Quarter))
			s.mu.Lock()
			delete(s.pending, key)
			s.running = key
			s.mu.Unlock()

			start := time.Now()
			runCtx, cancel := context.WithTimeout(ctx, s.timeout)
			err := s.runner.Run(runCtx, job)
			cancel()
			if err != nil {
				s.logf("Warning: report failed for %s: %v", key, err)
			} else {
				s.logf("Report complete for %s in %s", key, time.Since(start).Round(time.Millisecond))
			}

			s.mu.Lock()
			if s.running == key {
				s.running = ""
			}
			s.mu.Unlock()
		}
	}
}

func (s *reportScheduler) logf(format string, args ...any) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}

// reportGenerator writes reports with the service's own config and dataset.
type reportGenerator struct {
	dataPath   string
	configPath string
	outDir     string
	baseURL    string
	token      string
	logger     qbrreport.Logger
}

func (g *reportGenerator) Run(ctx context.Context, job reportJob) error {
	if strings.TrimSpace(job.Quarter) == "" {
		return fmt.Errorf("missing job quarter")
	}
	slug := strings.ToLower(strings.TrimSpace(job.Quarter))
	_, err := qbrreport.Generate(ctx, qbrreport.Options{
		DataPath:      g.dataPath,
		Quarter:       job.Quarter,
		JSONOut:       filepath.Join(g.outDir, fmt.Sprintf("qbr-%s.json", slug)),
		ReportOut:     filepath.Join(g.outDir, fmt.Sprintf("qbr-%s.md", slug)),
		ConfigPath:    g.configPath,
		BaseURL:       g.baseURL,
		InternalToken: g.token,
		Logger:        g.logger,
	})
	return err
}
