package steering

import (
	"sync"
	"testing"
	"time"

	"github.com/igoryan-dao/sovereign-engine/internal/handle"
)

type fakePoster struct {
	mu    sync.Mutex
	posts []string
	edits []string
	next  int
}

func (f *fakePoster) Post(channelID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.posts = append(f.posts, text)
	return "msg-" + string(rune('0'+f.next)), nil
}

func (f *fakePoster) Edit(channelID, messageID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return nil
}

func TestAdminExecutesImmediately(t *testing.T) {
	poster := &fakePoster{}
	var executed bool
	loop := New(Config{AskPredictTimeout: time.Minute, MaxConcurrentPredictions: 10}, poster, func(p *Prediction) error {
		executed = true
		return nil
	}, nil)

	p := loop.HandleMessage(handle.TierAdmin, "room-a", "chan-1", "do it", "rio", nil)
	if !executed {
		t.Fatal("expected immediate execution for admin tier")
	}
	if p.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", p.Status)
	}
	if len(poster.posts) != 0 {
		t.Fatal("expected no countdown message for admin tier")
	}
}

func TestTrustedTierCountsDownThenExecutes(t *testing.T) {
	poster := &fakePoster{}
	executed := make(chan struct{}, 1)
	loop := New(Config{AskPredictTimeout: 20 * time.Millisecond, MaxConcurrentPredictions: 10}, poster, func(p *Prediction) error {
		executed <- struct{}{}
		return nil
	}, nil)

	p := loop.HandleMessage(handle.TierTrusted, "room-a", "chan-1", "do it", "rio", []string{"ops"})
	if p.Status != StatusPending {
		t.Fatalf("expected pending immediately after handling, got %s", p.Status)
	}
	if !loop.HasPendingPrediction("room-a") {
		t.Fatal("expected room gated by pending prediction")
	}

	select {
	case <-executed:
	case <-time.After(time.Second):
		t.Fatal("expected execution after countdown expiry")
	}

	if loop.HasPendingPrediction("room-a") {
		t.Fatal("expected prediction removed from index after expiry")
	}
}

func TestGeneralTierPostsSuggestionOnlyNoTimer(t *testing.T) {
	poster := &fakePoster{}
	executed := false
	loop := New(Config{AskPredictTimeout: 10 * time.Millisecond, MaxConcurrentPredictions: 10}, poster, func(p *Prediction) error {
		executed = true
		return nil
	}, nil)

	loop.HandleMessage(handle.TierGeneral, "room-a", "chan-1", "maybe do it", "guest", nil)
	time.Sleep(50 * time.Millisecond)

	if executed {
		t.Fatal("expected no auto-execution for general tier")
	}
	if !loop.HasPendingPrediction("room-a") {
		t.Fatal("expected general-tier suggestion to remain indexed")
	}
}

func TestRedirectSupersedesPendingPrediction(t *testing.T) {
	poster := &fakePoster{}
	executedPrompts := make(chan string, 2)
	loop := New(Config{AskPredictTimeout: time.Minute, MaxConcurrentPredictions: 10}, poster, func(p *Prediction) error {
		executedPrompts <- p.Prompt
		return nil
	}, nil)

	loop.HandleMessage(handle.TierTrusted, "room-a", "chan-1", "original plan", "rio", nil)
	redirected := loop.Redirect("room-a", "new plan", "text")
	if redirected == nil {
		t.Fatal("expected redirect to return a new prediction")
	}
	if redirected.Prompt != "new plan" {
		t.Fatalf("expected new prediction prompt %q, got %q", "new plan", redirected.Prompt)
	}

	active := loop.GetActivePredictions()
	if len(active) != 1 || active[0].Prompt != "new plan" {
		t.Fatalf("expected exactly the redirected prediction active, got %+v", active)
	}
}

func TestRedirectWithNoPendingReturnsNil(t *testing.T) {
	poster := &fakePoster{}
	loop := New(Config{AskPredictTimeout: time.Minute, MaxConcurrentPredictions: 10}, poster, func(p *Prediction) error { return nil }, nil)
	if got := loop.Redirect("room-a", "new plan", "text"); got != nil {
		t.Fatalf("expected nil redirect result, got %+v", got)
	}
}

func TestAdminBlessExecutesGeneralTierPrediction(t *testing.T) {
	poster := &fakePoster{}
	executed := false
	loop := New(Config{AskPredictTimeout: time.Minute, MaxConcurrentPredictions: 10}, poster, func(p *Prediction) error {
		executed = true
		return nil
	}, nil)

	p := loop.HandleMessage(handle.TierGeneral, "room-a", "chan-1", "do it", "guest", nil)
	if ok := loop.AdminBless(p.MessageID, "rio"); !ok {
		t.Fatal("expected admin_bless to find the pending general-tier prediction")
	}
	if !executed {
		t.Fatal("expected blessed prediction to execute")
	}
	if loop.HasPendingPrediction("room-a") {
		t.Fatal("expected blessed prediction removed from index")
	}
}

func TestAdminBlessUnknownMessageReturnsFalse(t *testing.T) {
	poster := &fakePoster{}
	loop := New(Config{AskPredictTimeout: time.Minute, MaxConcurrentPredictions: 10}, poster, func(p *Prediction) error { return nil }, nil)
	if ok := loop.AdminBless("ghost-message", "rio"); ok {
		t.Fatal("expected false for unknown message id")
	}
}

func TestAbortAllClearsPendingAndCancelsTimers(t *testing.T) {
	poster := &fakePoster{}
	loop := New(Config{AskPredictTimeout: time.Minute, MaxConcurrentPredictions: 10}, poster, func(p *Prediction) error { return nil }, nil)

	loop.HandleMessage(handle.TierTrusted, "room-a", "chan-1", "do it", "rio", nil)
	loop.HandleMessage(handle.TierTrusted, "room-b", "chan-2", "do it too", "rio", nil)

	n := loop.AbortAll()
	if n != 2 {
		t.Fatalf("expected 2 aborted, got %d", n)
	}
	if len(loop.GetActivePredictions()) != 0 {
		t.Fatal("expected no active predictions after abort_all")
	}
}

func TestComputeTimeoutSovereigntyScaled(t *testing.T) {
	poster := &fakePoster{}
	loop := New(Config{AskPredictTimeout: time.Minute, MaxConcurrentPredictions: 10, UseSovereigntyTimeouts: true}, poster, func(p *Prediction) error { return nil }, func() float64 { return 0.9 })
	if got := loop.computeTimeout(); got != 5*time.Second {
		t.Fatalf("expected 5s for high sovereignty, got %s", got)
	}

	loop.sovereignty = func() float64 { return 0.7 }
	if got := loop.computeTimeout(); got != 30*time.Second {
		t.Fatalf("expected 30s for mid sovereignty, got %s", got)
	}

	loop.sovereignty = func() float64 { return 0.3 }
	if got := loop.computeTimeout(); got != 60*time.Second {
		t.Fatalf("expected 60s for low sovereignty, got %s", got)
	}
}
