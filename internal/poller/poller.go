// Package poller implements the Output Poller: a single periodic
// drop-overlap loop that advances every dispatched/running task by capturing
// fresh terminal output and detecting completion (spec §4.6).
package poller

import (
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/igoryan-dao/sovereign-engine/internal/capture"
	"github.com/igoryan-dao/sovereign-engine/internal/task"
)

const inlineOutputLimit = 1900

// shellPromptPattern matches any of the closed-set shell prompt endings at
// end-of-line (spec §4.6): "$", "❯", "➜", ">", "(base) $|#|>", "%".
var shellPromptPattern = regexp.MustCompile(`(\$|❯|➜|>|%|\(base\)\s*[$#>])\s*$`)

// Poster posts a task's output to its channel. The Poller chooses
// inline-vs-attachment per the output posting rules (spec §4.6) and calls
// the matching method.
type Poster interface {
	PostInline(channelID, header, body string) error
	PostAttachment(channelID, header, filename, body string) error
}

// RoomContext receives the finished output of a completed task so the
// Registry's rolling room context stays current.
type RoomContext interface {
	UpdateRoomContext(room, output string)
}

// Poller runs the periodic output-advancement loop over one Journal.
type Poller struct {
	journal       *task.Journal
	capture       *capture.Service
	poster        Poster
	roomContext   RoomContext
	pollInterval  time.Duration
	taskTimeout   time.Duration
	stabilization time.Duration
	polling       atomic.Bool

	onComplete func(t *task.Task)
}

// SetOnComplete installs a hook invoked whenever a task reaches a terminal
// status (complete or timeout) during a poll tick. Used to feed the
// Pressure Grid: each completion emits one grid event (spec §2's control
// flow: "each completion emits an event into the Pressure Grid").
func (p *Poller) SetOnComplete(fn func(t *task.Task)) { p.onComplete = fn }

// New constructs a Poller. pollInterval, taskTimeout and stabilization come
// from configuration (spec §4.6, §5).
func New(j *task.Journal, c *capture.Service, p Poster, rc RoomContext, pollInterval, taskTimeout, stabilization time.Duration) *Poller {
	return &Poller{
		journal:       j,
		capture:       c,
		poster:        p,
		roomContext:   rc,
		pollInterval:  pollInterval,
		taskTimeout:   taskTimeout,
		stabilization: stabilization,
	}
}

// Run blocks, ticking every pollInterval until stop is closed.
func (p *Poller) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.Tick()
		}
	}
}

// Tick runs one polling pass, dropping itself if a prior tick is still in
// flight (drop-overlap, spec §4.6).
func (p *Poller) Tick() {
	if !p.polling.CompareAndSwap(false, true) {
		return
	}
	defer p.polling.Store(false)

	now := time.Now()
	for _, t := range p.journal.ByStatus(task.StatusDispatched, task.StatusRunning) {
		p.advance(t, now)
	}
}

func (p *Poller) advance(t *task.Task, now time.Time) {
	if now.Sub(t.CreatedAt) > p.taskTimeout {
		p.journal.UpdateStatus(t.ID, task.StatusTimeout, nil)
		p.post(t.ChannelID, "⏱️", t.ID, "timed out", t.Output)
		if p.onComplete != nil {
			p.onComplete(t)
		}
		return
	}

	res := p.capture.CaptureWithDelta(t.Room, t.Baseline)
	if res.Delta != "" {
		p.journal.AppendOutput(t.ID, res.Delta)
		p.journal.SetBaseline(t.ID, res.Content)
		if t.Status == task.StatusDispatched {
			p.journal.UpdateStatus(t.ID, task.StatusRunning, nil)
		}
		return
	}

	if t.Status != task.StatusRunning || t.LastOutputAt == nil {
		return
	}

	stableFor := now.Sub(*t.LastOutputAt)
	if stableFor < p.stabilization {
		return
	}

	promptEnded := shellPromptPattern.MatchString(strings.TrimRight(t.Output, "\n"))
	graceExpired := stableFor >= 2*p.stabilization
	if !promptEnded && !graceExpired {
		return
	}

	p.journal.UpdateStatus(t.ID, task.StatusComplete, nil)
	if p.roomContext != nil {
		p.roomContext.UpdateRoomContext(t.Room, t.Output)
	}
	reason := "finished"
	if promptEnded {
		reason = "shell prompt detected"
	} else {
		reason = "stabilized without a detected prompt"
	}
	p.post(t.ChannelID, "✅", t.ID, reason, t.Output)
	if p.onComplete != nil {
		p.onComplete(t)
	}
}

func (p *Poller) post(channelID, emoji, taskID, reason, output string) {
	header := fmt.Sprintf("%s Task %s — %s", emoji, taskID, reason)
	var err error
	switch {
	case output == "":
		err = p.poster.PostInline(channelID, header, "(no output captured)")
	case len(output) <= inlineOutputLimit:
		err = p.poster.PostInline(channelID, header, "```\n"+output+"\n```")
	default:
		filename := fmt.Sprintf("task-%s-output.txt", taskID)
		err = p.poster.PostAttachment(channelID, header, filename, output)
	}
	if err != nil {
		log.Printf("poller: post for task %s failed: %v", taskID, err)
	}
}
