// Package draft implements the Draft Queue: LLM-drafted outbound text
// staged for admin approval via reactions (spec §4.9).
package draft

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const maxDraftLength = 200

// Generator produces draft text for a topic. Bound to the LLM drafting
// client at wiring time.
type Generator interface {
	Generate(ctx context.Context, prompt string) string
}

// Poster stages and edits the approval-gated draft message.
type Poster interface {
	Post(channelID, text string) (messageID string, err error)
	Edit(channelID, messageID, text string) error
}

// Draft is one outbound message awaiting admin approval.
type Draft struct {
	ID             string
	Topic          string
	Origin         string
	Text           string
	MessageID      string
	RewriteHistory []string
	CreatedAt      time.Time
}

// Queue owns the staged drafts and the daily post-rate limit.
type Queue struct {
	generator      Generator
	poster         Poster
	stagingChannel string
	maxDailyPosts  int

	mu          sync.Mutex
	drafts      map[string]*Draft
	postedToday int
	resetDay    string
	nextID      int
}

// New constructs a Queue bound to one staging channel.
func New(generator Generator, poster Poster, stagingChannel string, maxDailyPosts int) *Queue {
	return &Queue{
		generator:      generator,
		poster:         poster,
		stagingChannel: stagingChannel,
		maxDailyPosts:  maxDailyPosts,
		drafts:         make(map[string]*Draft),
		resetDay:       time.Now().Format("2006-01-02"),
	}
}

// canPost implements the calendar-day rate limit gate. Must be called
// with mu held.
func (q *Queue) canPost() bool {
	today := time.Now().Format("2006-01-02")
	if today != q.resetDay {
		q.resetDay = today
		q.postedToday = 0
	}
	return q.postedToday < q.maxDailyPosts
}

// CreateDraft implements create_draft (spec §4.9): rate-limited LLM
// drafting, 200-char truncation, staging-message posting. Returns nil if
// rate-limited.
func (q *Queue) CreateDraft(ctx context.Context, topic, origin string) *Draft {
	q.mu.Lock()
	if !q.canPost() {
		q.mu.Unlock()
		return nil
	}
	q.mu.Unlock()

	text := q.generator.Generate(ctx, topic)
	text = truncate(strings.TrimSpace(text))

	q.mu.Lock()
	q.nextID++
	id := fmt.Sprintf("draft-%d", q.nextID)
	q.mu.Unlock()

	d := &Draft{ID: id, Topic: topic, Origin: origin, Text: text, CreatedAt: time.Now()}

	messageID, err := q.poster.Post(q.stagingChannel, stagingBody(d))
	if err == nil {
		d.MessageID = messageID
	}

	q.mu.Lock()
	q.drafts[id] = d
	q.mu.Unlock()

	return d
}

func truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= maxDraftLength {
		return text
	}
	return string(runes[:maxDraftLength-1]) + "…"
}

func stagingBody(d *Draft) string {
	return fmt.Sprintf("%s\n[%d/%d chars] topic: %s — draft %s\nreact 👍 to publish, 🗑 to discard, reply with feedback to rewrite",
		d.Text, utf8.RuneCountInString(d.Text), maxDraftLength, d.Topic, d.ID)
}

// UpdateDraft implements update_draft (spec §4.9): pushes the previous
// text onto rewrite history, replaces it, and edits the staging message.
func (q *Queue) UpdateDraft(messageID, newText, feedback string) *Draft {
	q.mu.Lock()
	d := q.findByMessageIDLocked(messageID)
	if d == nil {
		q.mu.Unlock()
		return nil
	}
	d.RewriteHistory = append(d.RewriteHistory, d.Text)
	d.Text = truncate(strings.TrimSpace(newText))
	q.mu.Unlock()

	if err := q.poster.Edit(q.stagingChannel, d.MessageID, stagingBody(d)); err != nil {
		log.Printf("draft: failed to edit staging message for %s: %v", d.ID, err)
	}
	return d
}

func (q *Queue) findByMessageIDLocked(messageID string) *Draft {
	for _, d := range q.drafts {
		if d.MessageID == messageID {
			return d
		}
	}
	return nil
}

// FindDraftByMessageID implements find_draft_by_message_id.
func (q *Queue) FindDraftByMessageID(messageID string) *Draft {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.findByMessageIDLocked(messageID)
}

// GetPendingDrafts implements get_pending_drafts: every staged draft.
func (q *Queue) GetPendingDrafts() []*Draft {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Draft, 0, len(q.drafts))
	for _, d := range q.drafts {
		out = append(out, d)
	}
	return out
}

// RemoveDraft implements remove_draft.
func (q *Queue) RemoveDraft(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.drafts, id)
}

// MarkPosted implements mark_posted: removes the draft and increments the
// daily counter.
func (q *Queue) MarkPosted(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.drafts[id]; !ok {
		return
	}
	delete(q.drafts, id)
	q.canPost() // rolls resetDay forward if the calendar day changed
	q.postedToday++
}
