// Package transparency implements the Transparency Reporter: denial,
// spike, and periodic-summary notices bound to one channel (spec §4.10).
package transparency

import (
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	spikeHistoryCap       = 1000
	spikeHistoryTrimmedTo = 500
)

// Poster posts a notice to the bound channel. A nil Poster (or one
// bound to no channel) causes every operation to silently no-op, per
// spec §4.10.
type Poster interface {
	Post(channelID, text string) error
}

// Spike is one recorded delta event, grouped by category for periodic
// summaries.
type Spike struct {
	Category string
	Delta    float64
	At       time.Time
}

// Reporter is bound to exactly one transparency channel.
type Reporter struct {
	poster         Poster
	channel        string
	spikeThreshold float64
	reportInterval time.Duration

	mu      sync.Mutex
	history []Spike
	stopCh  chan struct{}
	stopped bool

	// lastSummary is when periodicSummary last ran; zero before its first run.
	lastSummary time.Time
}

// New constructs a Reporter. channel == "" means no Discord binding: every
// operation becomes a no-op.
func New(poster Poster, channel string, spikeThreshold float64, reportInterval time.Duration) *Reporter {
	return &Reporter{
		poster:         poster,
		channel:        channel,
		spikeThreshold: spikeThreshold,
		reportInterval: reportInterval,
	}
}

func (r *Reporter) bound() bool {
	return r.poster != nil && r.channel != ""
}

func (r *Reporter) post(text string) {
	if !r.bound() {
		return
	}
	if err := r.poster.Post(r.channel, text); err != nil {
		log.Printf("transparency: post failed: %v", err)
	}
}

// RecordDenial implements record_denial: posts a structured denial notice
// immediately.
func (r *Reporter) RecordDenial(actor, action, reason string) {
	r.post(fmt.Sprintf("🚫 denied: %s attempted %q — %s", actor, action, reason))
}

// RecordSpike implements record_spike: appends to the history buffer
// (trimmed to the last 500 once it reaches 1000) and posts only when
// |delta| >= spike_threshold.
func (r *Reporter) RecordSpike(spike Spike) {
	r.mu.Lock()
	r.history = append(r.history, spike)
	if len(r.history) >= spikeHistoryCap {
		r.history = append([]Spike(nil), r.history[len(r.history)-spikeHistoryTrimmedTo:]...)
	}
	r.mu.Unlock()

	if math.Abs(spike.Delta) >= r.spikeThreshold {
		r.post(fmt.Sprintf("📈 spike in %s: delta %.2f", spike.Category, spike.Delta))
	}
}

// StartPeriodicSummary launches the periodic_summary loop when
// report_interval_ms > 0; it returns immediately if reportInterval <= 0.
func (r *Reporter) StartPeriodicSummary() {
	if r.reportInterval <= 0 {
		return
	}
	r.mu.Lock()
	if r.stopCh != nil {
		r.mu.Unlock()
		return
	}
	r.stopCh = make(chan struct{})
	stop := r.stopCh
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(r.reportInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				r.periodicSummary()
			}
		}
	}()
}

// periodicSummary aggregates the spikes recorded since its previous run
// (every recorded spike on the first run), grouped by category, sorted by
// absolute net delta, posting only if any were recorded.
func (r *Reporter) periodicSummary() {
	r.mu.Lock()
	cutoff := r.lastSummary
	r.lastSummary = time.Now()
	var recent []Spike
	for _, s := range r.history {
		if s.At.After(cutoff) {
			recent = append(recent, s)
		}
	}
	r.mu.Unlock()

	if len(recent) == 0 {
		return
	}

	totals := make(map[string]float64)
	for _, s := range recent {
		totals[s.Category] += s.Delta
	}

	type row struct {
		category string
		net      float64
	}
	rows := make([]row, 0, len(totals))
	for cat, net := range totals {
		rows = append(rows, row{cat, net})
	}
	sort.Slice(rows, func(i, j int) bool {
		return math.Abs(rows[i].net) > math.Abs(rows[j].net)
	})

	var lines []string
	for _, row := range rows {
		lines = append(lines, fmt.Sprintf("%s: net %.2f", row.category, row.net))
	}
	r.post("📊 periodic summary\n" + strings.Join(lines, "\n"))
}

// Stop cancels the periodic timer. Safe to call even if it was never
// started.
func (r *Reporter) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopCh == nil || r.stopped {
		return
	}
	close(r.stopCh)
	r.stopped = true
}
