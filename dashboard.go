package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"golang.org/x/term"

	"qbrreport/dataset"
	"qbrreport/narrative"
)

// dashboard is the optional tview console: a stats block, recent
// hydrations, recent generation failures, and the system log.
type dashboard struct {
	app          *tview.Application
	statsView    *tview.TextView
	hydrateView  *tview.TextView
	failureView  *tview.TextView
	systemView   *tview.TextView
	hydrateLines []string
	failureLines []string
	systemLines  []string
	paneMu       sync.Mutex
	stats        dashboardStats
	statsMu      sync.Mutex
	events       chan paneEvent
	done         chan struct{}
	closed       atomic.Bool
}

const paneMaxLines = 8

type paneType int

const (
	paneHydration paneType = iota
	paneFailure
	paneSystem
)

type paneEvent struct {
	pane paneType
	line string
}

// dashboardStats is everything the stats block shows.
type dashboardStats struct {
	Version    string
	Listen     string
	Started    time.Time
	Properties int
	Quarter    string
	Sources    map[narrative.Source]int
	Failures   map[narrative.FailureKind]int
}

func isStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func newDashboard(enable bool, version, listen string) *dashboard {
	if !enable {
		return nil
	}

	makePane := func(title string) *tview.TextView {
		tv := tview.NewTextView().
			SetDynamicColors(true).
			SetWrap(false)
		tv.SetBorder(true)
		tv.SetTitle(title).SetTitleAlign(tview.AlignLeft)
		return tv
	}

	stats := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	stats.SetTextColor(tcell.ColorYellow)
	hydratePane := makePane("Hydrations")
	failurePane := makePane("Generation failures")
	failurePane.SetTextColor(tcell.ColorRed)
	systemPane := makePane("System")

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(stats, 6, 0, false).
		AddItem(hydratePane, paneMaxLines+2, 0, false).
		AddItem(failurePane, paneMaxLines+2, 0, false).
		AddItem(systemPane, 0, 1, false)

	d := &dashboard{
		app:         tview.NewApplication().SetRoot(layout, true).EnableMouse(false),
		statsView:   stats,
		hydrateView: hydratePane,
		failureView: failurePane,
		systemView:  systemPane,
		stats: dashboardStats{
			Version:  version,
			Listen:   listen,
			Started:  time.Now().UTC(),
			Sources:  make(map[narrative.Source]int),
			Failures: make(map[narrative.FailureKind]int),
		},
		events: make(chan paneEvent, 256),
		done:   make(chan struct{}),
	}

	go d.runEventLoop()
	go func() {
		if err := d.app.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "dashboard error: %v\n", err)
		}
	}()
	d.redrawStats()
	return d
}

func (d *dashboard) Stop() {
	if d == nil || d.app == nil {
		return
	}
	if d.closed.Swap(true) {
		return
	}
	close(d.done)
	d.app.Stop()
}

// Observe records a hydration outcome. Safe on a nil dashboard.
func (d *dashboard) Observe(o narrative.Outcome) {
	if d == nil {
		return
	}
	d.statsMu.Lock()
	d.stats.Sources[o.Source]++
	if o.Failure != narrative.FailureNone {
		d.stats.Failures[o.Failure]++
	}
	d.statsMu.Unlock()

	d.enqueue(paneHydration, formatOutcome(o))
	if o.Failure != narrative.FailureNone {
		d.enqueue(paneFailure, formatFailure(o))
	}
	d.redrawStats()
}

// SetDataset updates the dataset summary line.
func (d *dashboard) SetDataset(ds *dataset.Dataset) {
	if d == nil || ds == nil {
		return
	}
	d.statsMu.Lock()
	d.stats.Properties = len(ds.Properties)
	d.stats.Quarter = ds.CurrentQuarter
	d.statsMu.Unlock()
	d.redrawStats()
}

// WriteLine makes the dashboard usable as the console log sink.
func (d *dashboard) WriteLine(line string, now time.Time) {
	d.enqueue(paneSystem, now.UTC().Format("15:04:05 ")+line)
}

func (d *dashboard) Close() error { return nil }

func (d *dashboard) enqueue(p paneType, line string) {
	if d == nil || d.closed.Load() {
		return
	}
	select {
	case d.events <- paneEvent{pane: p, line: line}:
	case <-d.done:
	default:
		// Drop when the UI lags.
	}
}

func (d *dashboard) redrawStats() {
	if d == nil || d.app == nil || d.closed.Load() {
		return
	}
	d.statsMu.Lock()
	text := strings.Join(statsLines(d.stats, time.Now().UTC()), "\n")
	d.statsMu.Unlock()
	d.app.QueueUpdateDraw(func() {
		d.statsView.SetText(text)
	})
}

func (d *dashboard) runEventLoop() {
	for {
		select {
		case ev := <-d.events:
			d.appendLine(ev.pane, ev.line)
		case <-d.done:
			return
		}
	}
}

func (d *dashboard) appendLine(p paneType, line string) {
	d.paneMu.Lock()
	buf, view := d.pane(p)
	*buf = appendBounded(*buf, line, paneMaxLines)
	text := strings.Join(*buf, "\n")
	d.paneMu.Unlock()

	if view == nil || d.app == nil {
		return
	}
	d.app.QueueUpdateDraw(func() {
		view.SetText(text)
		view.ScrollToEnd()
	})
}

func (d *dashboard) pane(p paneType) (*[]string, *tview.TextView) {
	switch p {
	case paneHydration:
		return &d.hydrateLines, d.hydrateView
	case paneFailure:
		return &d.failureLines, d.failureView
	default:
		return &d.systemLines, d.systemView
	}
}

func appendBounded(buf []string, line string, limit int) []string {
	buf = append(buf, line)
	if len(buf) > limit {
		buf = buf[len(buf)-limit:]
	}
	return buf
}

func formatOutcome(o narrative.Outcome) string {
	prev := o.PreviousKey
	if prev == "" {
		prev = "-"
	}
	return fmt.Sprintf("%s %s %s vs %s %s %s",
		o.EntityKind, o.EntityID, o.CurrentKey, prev, o.Source, o.Duration.Round(time.Millisecond))
}

func formatFailure(o narrative.Outcome) string {
	line := fmt.Sprintf("%s %s %s %s", o.EntityKind, o.EntityID, o.CurrentKey, o.Failure)
	if o.Err != nil {
		line += ": " + o.Err.Error()
	}
	return line
}

func statsLines(s dashboardStats, now time.Time) []string {
	uptime := "-"
	if !s.Started.IsZero() {
		uptime = now.Sub(s.Started).Truncate(time.Second).String()
	}
	quarter := s.Quarter
	if quarter == "" {
		quarter = "none loaded"
	}
	failures := make([]string, 0, len(s.Failures))
	for kind, n := range s.Failures {
		failures = append(failures, fmt.Sprintf("%s=%d", kind, n))
	}
	sort.Strings(failures)
	if len(failures) == 0 {
		failures = append(failures, "none")
	}
	return []string{
		fmt.Sprintf("QBR narrative service %s  listening %s  up %s", s.Version, s.Listen, uptime),
		fmt.Sprintf("Dataset: %d properties, current quarter %s", s.Properties, quarter),
		fmt.Sprintf("Hydrations: llm=%d fallback=%d", s.Sources[narrative.SourceLLM], s.Sources[narrative.SourceFallback]),
		"Failures: " + strings.Join(failures, " "),
	}
}
