// Package steering implements the Steering Loop / Ask-and-Predict
// component: tiered, sovereignty-scaled, timer-driven auto-execution with
// redirect/abort/admin-bless override semantics (spec §4.7).
package steering

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/igoryan-dao/sovereign-engine/internal/handle"
)

// PredictionStatus is the lifecycle state of one prediction.
type PredictionStatus string

const (
	StatusPending    PredictionStatus = "pending"
	StatusExecuting  PredictionStatus = "executing"
	StatusCompleted  PredictionStatus = "completed"
	StatusAborted    PredictionStatus = "aborted"
	StatusRedirected PredictionStatus = "redirected"
)

// Prediction is one steered action, pending, executing or resolved.
type Prediction struct {
	ID         string
	Room       string
	Channel    string
	Prompt     string
	Author     string
	Categories []string
	Tier       handle.Tier
	Status     PredictionStatus
	Reason     string
	MessageID  string
	CreatedAt  time.Time
}

// Poster posts and edits the visible countdown/result message for a
// prediction.
type Poster interface {
	Post(channelID, text string) (messageID string, err error)
	Edit(channelID, messageID, text string) error
}

// Executor runs the actual steered action. A nil error means the action
// completed; any error means it's treated as aborted.
type Executor func(p *Prediction) error

// SovereigntyFunc supplies the current sovereignty score s ∈ [0,1] used by
// compute_timeout when sovereignty-scaled timeouts are enabled.
type SovereigntyFunc func() float64

// Config holds the Steering Loop's timing and capacity knobs (spec §4.7).
type Config struct {
	AskPredictTimeout       time.Duration
	RedirectGracePeriod     time.Duration
	MaxConcurrentPredictions int
	UseSovereigntyTimeouts  bool
}

// Loop is the Steering Loop: it owns the pending-prediction index and the
// timers driving trusted-tier countdowns.
type Loop struct {
	cfg        Config
	poster     Poster
	execute    Executor
	sovereignty SovereigntyFunc

	mu      sync.Mutex
	pending map[string]*entry
}

type entry struct {
	prediction *Prediction
	timer      *time.Timer
}

// New constructs a Loop. sovereignty may be nil when UseSovereigntyTimeouts
// is false.
func New(cfg Config, poster Poster, execute Executor, sovereignty SovereigntyFunc) *Loop {
	return &Loop{
		cfg:         cfg,
		poster:      poster,
		execute:     execute,
		sovereignty: sovereignty,
		pending:     make(map[string]*entry),
	}
}

// computeTimeout implements the sovereignty-scaled countdown rule in spec
// §4.7.
func (l *Loop) computeTimeout() time.Duration {
	if !l.cfg.UseSovereigntyTimeouts || l.sovereignty == nil {
		return l.cfg.AskPredictTimeout
	}
	s := l.sovereignty()
	switch {
	case s >= 0.8:
		return 5 * time.Second
	case s >= 0.6:
		return 30 * time.Second
	default:
		return 60 * time.Second
	}
}

// HandleMessage implements handle_message (spec §4.7): dispatch behavior
// differs entirely by tier.
func (l *Loop) HandleMessage(tier handle.Tier, room, channel, prompt, author string, categories []string) *Prediction {
	p := &Prediction{
		ID:         uuid.NewString(),
		Room:       room,
		Channel:    channel,
		Prompt:     prompt,
		Author:     author,
		Categories: categories,
		Tier:       tier,
		Status:     StatusPending,
		CreatedAt:  time.Now(),
	}

	switch tier {
	case handle.TierAdmin:
		l.executeImmediately(p)
	case handle.TierTrusted:
		l.startCountdown(p)
	default:
		l.postSuggestionOnly(p)
	}
	return p
}

func (l *Loop) executeImmediately(p *Prediction) {
	p.Status = StatusExecuting
	if err := l.execute(p); err != nil {
		p.Status = StatusAborted
		p.Reason = err.Error()
	} else {
		p.Status = StatusCompleted
	}
}

func (l *Loop) startCountdown(p *Prediction) {
	l.mu.Lock()
	if len(l.pending) >= l.cfg.MaxConcurrentPredictions {
		log.Printf("steering: max_concurrent_predictions (%d) reached, accepting prediction %s anyway", l.cfg.MaxConcurrentPredictions, p.ID)
	}
	l.mu.Unlock()

	timeout := l.computeTimeout()
	text := fmt.Sprintf("%s\naligned categories: %s\nproceeding in %ds", p.Prompt, strings.Join(p.Categories, ", "), int(timeout.Seconds()))
	messageID, err := l.poster.Post(p.Channel, text)
	if err != nil {
		log.Printf("steering: failed to post countdown for prediction %s: %v", p.ID, err)
	}
	p.MessageID = messageID

	e := &entry{prediction: p}
	e.timer = time.AfterFunc(timeout, func() { l.onExpire(p.ID) })

	l.mu.Lock()
	l.pending[p.ID] = e
	l.mu.Unlock()
}

func (l *Loop) postSuggestionOnly(p *Prediction) {
	text := fmt.Sprintf("%s\n(suggestion from %s — admin reaction required)", p.Prompt, p.Author)
	messageID, err := l.poster.Post(p.Channel, text)
	if err != nil {
		log.Printf("steering: failed to post suggestion for prediction %s: %v", p.ID, err)
	}
	p.MessageID = messageID

	l.mu.Lock()
	l.pending[p.ID] = &entry{prediction: p}
	l.mu.Unlock()
}

func (l *Loop) onExpire(id string) {
	l.mu.Lock()
	e, ok := l.pending[id]
	if !ok || e.prediction.Status != StatusPending {
		l.mu.Unlock()
		return
	}
	p := e.prediction
	delete(l.pending, id)
	l.mu.Unlock()

	if err := l.poster.Edit(p.Channel, p.MessageID, "executing — no intervention received"); err != nil {
		log.Printf("steering: failed to edit expiry notice for prediction %s: %v", p.ID, err)
	}
	p.Status = StatusExecuting
	if err := l.execute(p); err != nil {
		p.Status = StatusAborted
		p.Reason = err.Error()
	} else {
		p.Status = StatusCompleted
	}
}

// Redirect implements redirect (spec §4.7): supersedes a room's pending
// prediction with a new one started from new_prompt.
func (l *Loop) Redirect(room, newPrompt, source string) *Prediction {
	l.mu.Lock()
	var old *entry
	for _, e := range l.pending {
		if e.prediction.Room == room && e.prediction.Status == StatusPending {
			old = e
			break
		}
	}
	if old == nil {
		l.mu.Unlock()
		return nil
	}
	delete(l.pending, old.prediction.ID)
	l.mu.Unlock()

	if old.timer != nil {
		old.timer.Stop()
	}
	old.prediction.Status = StatusRedirected
	prefix := newPrompt
	if len(prefix) > 40 {
		prefix = prefix[:40]
	}
	old.prediction.Reason = fmt.Sprintf("Redirected by %s: %s", source, prefix)
	if err := l.poster.Edit(old.prediction.Channel, old.prediction.MessageID, "redirected: "+old.prediction.Reason); err != nil {
		log.Printf("steering: failed to edit redirect notice for prediction %s: %v", old.prediction.ID, err)
	}

	return l.HandleMessage(old.prediction.Tier, old.prediction.Room, old.prediction.Channel, newPrompt, old.prediction.Author, old.prediction.Categories)
}

// AdminBless implements admin_bless (spec §4.7): finds the general-tier
// pending prediction matching messageID and executes it immediately.
func (l *Loop) AdminBless(messageID, adminUsername string) bool {
	l.mu.Lock()
	var target *entry
	for _, e := range l.pending {
		if e.prediction.Tier == handle.TierGeneral && e.prediction.MessageID == messageID && e.prediction.Status == StatusPending {
			target = e
			break
		}
	}
	if target == nil {
		l.mu.Unlock()
		return false
	}
	delete(l.pending, target.prediction.ID)
	l.mu.Unlock()

	if target.timer != nil {
		target.timer.Stop()
	}
	if err := l.poster.Edit(target.prediction.Channel, target.prediction.MessageID, fmt.Sprintf("admin blessed by %s", adminUsername)); err != nil {
		log.Printf("steering: failed to edit bless notice for prediction %s: %v", target.prediction.ID, err)
	}

	target.prediction.Status = StatusExecuting
	if err := l.execute(target.prediction); err != nil {
		target.prediction.Status = StatusAborted
		target.prediction.Reason = err.Error()
	} else {
		target.prediction.Status = StatusCompleted
	}
	return true
}

// AbortAll implements abort_all (spec §4.7): cancels every pending timer,
// marks every pending prediction aborted, and clears the index.
func (l *Loop) AbortAll() int {
	l.mu.Lock()
	n := 0
	for id, e := range l.pending {
		if e.prediction.Status != StatusPending {
			continue
		}
		if e.timer != nil {
			e.timer.Stop()
		}
		e.prediction.Status = StatusAborted
		e.prediction.Reason = "Emergency stop"
		delete(l.pending, id)
		n++
	}
	l.mu.Unlock()
	return n
}

// GetActivePredictions implements get_active_predictions: all pending
// predictions.
func (l *Loop) GetActivePredictions() []*Prediction {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Prediction, 0, len(l.pending))
	for _, e := range l.pending {
		if e.prediction.Status == StatusPending {
			out = append(out, e.prediction)
		}
	}
	return out
}

// HasPendingPrediction implements has_pending_prediction: whether room is
// currently gated by a pending prediction.
func (l *Loop) HasPendingPrediction(room string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.pending {
		if e.prediction.Room == room && e.prediction.Status == StatusPending {
			return true
		}
	}
	return false
}
