package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"qbrreport/api"
	"qbrreport/config"
	"qbrreport/dataset"
	"qbrreport/internal/qbrreport"
	"qbrreport/internal/ratelimit"
	"qbrreport/narrative"
	"qbrreport/recorder"
)

const (
	envConfigPath     = "QBR_CONFIG"
	defaultConfigPath = "data/config"
)

// Version will be set at build time
var Version = "dev"

func main() {
	cfg, configSource, err := loadServiceConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	fanout, logErr := setupLogging(cfg.Logging, os.Stdout)
	log.SetFlags(0)
	log.SetOutput(fanout)
	defer fanout.Close()
	if logErr != nil {
		log.Printf("Warning: file logging disabled: %v", logErr)
	}

	log.Printf("QBR narrative service v%s starting...", Version)
	log.Printf("Loaded configuration from %s", configSource)
	cfg.Print()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	llmDefaults := qbrreport.LLMDefaults(cfg)
	ds, err := loadDataset(ctx, cfg)
	if err != nil {
		if cfg.Dataset.URL == "" {
			log.Fatalf("Failed to load dataset: %v", err)
		}
		log.Printf("Warning: dataset unavailable at startup (%v); serving 503 until a refresh succeeds", err)
	} else {
		ds.ApplyLLMDefaults(llmDefaults)
		log.Printf("Dataset loaded: %d properties, current quarter %s", len(ds.Properties), ds.CurrentQuarter)
	}

	// Started after the last fatal exit so the terminal is never left in
	// raw mode.
	dash := newDashboard(cfg.UI.Mode == "tview" && isStdoutTTY(), Version, cfg.Server.ListenAddr)
	if dash != nil {
		fanout.setConsole(dash)
		defer dash.Stop()
		dash.SetDataset(ds)
	} else if cfg.UI.Mode == "tview" {
		log.Printf("Warning: ui.mode tview needs an interactive terminal; using headless output")
	}

	metrics := api.NewMetrics()
	observers := []narrative.Observer{metrics}
	if dash != nil {
		observers = append(observers, dash)
	}
	var history api.History
	var rec *recorder.Recorder
	if cfg.Recorder.Enabled {
		rec, err = recorder.NewRecorder(cfg.Recorder.Path)
		if err != nil {
			log.Printf("Warning: hydration recorder disabled: %v", err)
			rec = nil
		} else {
			observers = append(observers, rec)
			history = rec
			fanout.OnRotate(hydrationSummary(fanout, rec))
			log.Printf("Recording hydrations to %s (SQLite, non-blocking)", cfg.Recorder.Path)
		}
	}

	baseURL := selfBaseURL(cfg.Server.ListenAddr)
	// Proxy calls carrying this token come from this process and skip the
	// rate limit.
	internalToken := uuid.NewString()
	hydrator := qbrreport.NewHydrator(cfg, baseURL, internalToken, log.Default(), narrative.Observers(observers...))

	var proxyLimiter, reportLimiter *ratelimit.Limiter
	if cfg.RateLimit.Requests > 0 {
		window := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
		proxyLimiter = ratelimit.NewLimiter(cfg.RateLimit.Requests, window)
		reportLimiter = ratelimit.NewLimiter(cfg.RateLimit.Requests, window)
	}

	server := api.NewServer(api.Options{
		Dataset:           ds,
		Hydrator:          hydrator,
		Provider:          qbrreport.ProviderConfig(cfg),
		ProxyLimiter:      proxyLimiter,
		ReportLimiter:     reportLimiter,
		Metrics:           metrics,
		History:           history,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
		InternalToken:     internalToken,
		AccessLog:         fanout,
		Logger:            log.Default(),
	})
	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	var scheduler *reportScheduler
	if cfg.Reports.Enabled {
		scheduler = newReportScheduler(&reportGenerator{
			dataPath:   cfg.Dataset.Path,
			configPath: configSource,
			outDir:     cfg.Reports.Dir,
			baseURL:    baseURL,
			token:      internalToken,
			logger:     log.Default(),
		}, log.Default(), time.Duration(cfg.Reports.TimeoutSeconds)*time.Second)
		scheduler.Start(ctx)
	}

	refresher := newDatasetRefresher(fetchOptions(cfg), cfg.DatasetRefresh(), func(next *dataset.Dataset) {
		next.ApplyLLMDefaults(llmDefaults)
		server.SetDataset(next)
		dash.SetDataset(next)
		scheduler.Enqueue(reportJob{Quarter: next.CurrentQuarter, Reason: "dataset updated"})
	})
	refresher.Start()

	serveErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	if ds != nil {
		// Reports call back into the proxy endpoint, so queue after the
		// listener has started.
		scheduler.Enqueue(reportJob{Quarter: ds.CurrentQuarter, Reason: "startup"})
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Printf("Listening on %s (proxy %s/api/qbr-narrative)", cfg.Server.ListenAddr, baseURL)
	if refresher != nil {
		log.Printf("Refreshing dataset from %s every %s", cfg.Dataset.URL, cfg.DatasetRefresh())
	}
	log.Println("---")

	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
	case err := <-serveErr:
		log.Printf("Warning: HTTP server stopped: %v", err)
	}
	if dash != nil {
		dash.Stop()
		fanout.setConsole(&consoleSink{w: os.Stdout, timestamp: true})
	}
	log.Println("Shutting down gracefully...")

	refresher.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Warning: HTTP shutdown: %v", err)
	}
	shutdownCancel()
	cancel()
	scheduler.Wait()
	if err := rec.Close(); err != nil {
		log.Printf("Warning: closing recorder: %v", err)
	}
	log.Println("Shutdown complete")
}

// loadServiceConfig tries $QBR_CONFIG, then data/config.
func loadServiceConfig() (*config.Config, string, error) {
	candidates := make([]string, 0, 2)
	if envPath := strings.TrimSpace(os.Getenv(envConfigPath)); envPath != "" {
		candidates = append(candidates, envPath)
	}
	candidates = append(candidates, defaultConfigPath)

	var lastErr error
	for _, path := range candidates {
		cfg, err := config.Load(path)
		if err != nil {
			if os.IsNotExist(err) {
				lastErr = err
				continue
			}
			return nil, path, err
		}
		return cfg, cfg.LoadedFrom, nil
	}
	return nil, "", fmt.Errorf("unable to load config; tried %s (last error: %v)", strings.Join(candidates, ", "), lastErr)
}

func fetchOptions(cfg *config.Config) dataset.FetchOptions {
	return dataset.FetchOptions{
		URL:         cfg.Dataset.URL,
		Destination: cfg.Dataset.Path,
		Timeout:     time.Duration(cfg.Dataset.TimeoutSeconds) * time.Second,
	}
}

// loadDataset fetches the remote dataset when one is configured, falling
// back to the local copy if the fetch fails.
func loadDataset(ctx context.Context, cfg *config.Config) (*dataset.Dataset, error) {
	if cfg.Dataset.URL == "" {
		return dataset.Load(cfg.Dataset.Path)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Dataset.Path), 0o755); err != nil {
		return nil, err
	}
	ds, status, err := dataset.Fetch(ctx, fetchOptions(cfg))
	if err == nil {
		log.Printf("Dataset fetched from %s (%s)", cfg.Dataset.URL, status)
		return ds, nil
	}
	log.Printf("Warning: dataset fetch failed: %v; trying local copy", err)
	return dataset.Load(cfg.Dataset.Path)
}

// selfBaseURL turns a listen address into a URL the process can reach
// itself on. Wildcard hosts map to loopback.
func selfBaseURL(listenAddr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(listenAddr))
	if err != nil {
		return ""
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}
