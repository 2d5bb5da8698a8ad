// Package publish implements the External Publish (tweet) path: a
// Draft-Queue-sourced text published externally once an admin reacts 👍
// (spec §4.11).
package publish

import (
	"context"
	"fmt"
	"log"

	"github.com/igoryan-dao/sovereign-engine/internal/draft"
)

// Publisher is the external collaborator that actually posts text to the
// outside world. The concrete implementation drives a browser; this
// package's coordination logic never imports chromedp directly.
type Publisher interface {
	Publish(ctx context.Context, text string) error
}

// Drafts is the subset of the Draft Queue this component needs: find a
// staged draft by its staging-message id, and mark it posted once
// published.
type Drafts interface {
	FindDraftByMessageID(messageID string) *draft.Draft
	MarkPosted(id string)
}

// Notifier posts a result notice back to the staging channel.
type Notifier interface {
	Post(channelID, text string) error
}

// Service gates external publication on an admin 👍 reaction against a
// staged draft's message id.
type Service struct {
	publisher      Publisher
	drafts         Drafts
	notifier       Notifier
	stagingChannel string
}

// New constructs a Service.
func New(publisher Publisher, drafts Drafts, notifier Notifier, stagingChannel string) *Service {
	return &Service{publisher: publisher, drafts: drafts, notifier: notifier, stagingChannel: stagingChannel}
}

// HandleApprovalReaction is called when an admin reacts 👍 on a message in
// the staging channel. It finds the matching draft, publishes it, and
// marks it posted. Reactions on messages that aren't staged drafts, or
// from non-admins, are the caller's responsibility to filter before
// invoking this.
func (s *Service) HandleApprovalReaction(ctx context.Context, messageID string) error {
	d := s.drafts.FindDraftByMessageID(messageID)
	if d == nil {
		return nil
	}

	if err := s.publisher.Publish(ctx, d.Text); err != nil {
		log.Printf("publish: failed to publish draft %s: %v", d.ID, err)
		s.notify(fmt.Sprintf("❌ failed to publish draft %s: %v", d.ID, err))
		return err
	}

	s.drafts.MarkPosted(d.ID)
	s.notify(fmt.Sprintf("✅ published draft %s", d.ID))
	return nil
}

func (s *Service) notify(text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Post(s.stagingChannel, text); err != nil {
		log.Printf("publish: notify failed: %v", err)
	}
}
