package transparency

import (
	"sync"
	"testing"
	"time"
)

type fakePoster struct {
	mu    sync.Mutex
	posts []string
}

func (f *fakePoster) Post(channelID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, text)
	return nil
}

func (f *fakePoster) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts)
}

func TestRecordDenialPostsImmediately(t *testing.T) {
	p := &fakePoster{}
	r := New(p, "chan-1", 10, 0)
	r.RecordDenial("guest", "kill room", "not authorized")
	if p.count() != 1 {
		t.Fatalf("expected 1 post, got %d", p.count())
	}
}

func TestRecordSpikePostsOnlyAboveThreshold(t *testing.T) {
	p := &fakePoster{}
	r := New(p, "chan-1", 5.0, 0)

	r.RecordSpike(Spike{Category: "ops", Delta: 1.0, At: time.Now()})
	if p.count() != 0 {
		t.Fatalf("expected no post for below-threshold spike, got %d", p.count())
	}

	r.RecordSpike(Spike{Category: "ops", Delta: 6.0, At: time.Now()})
	if p.count() != 1 {
		t.Fatalf("expected one post for above-threshold spike, got %d", p.count())
	}
}

func TestRecordSpikeTrimsHistory(t *testing.T) {
	p := &fakePoster{}
	r := New(p, "chan-1", 1000, 0) // high threshold: no posts from spikes themselves
	for i := 0; i < spikeHistoryCap+10; i++ {
		r.RecordSpike(Spike{Category: "ops", Delta: 0.1, At: time.Now()})
	}
	r.mu.Lock()
	n := len(r.history)
	r.mu.Unlock()
	if n > spikeHistoryTrimmedTo+10 {
		t.Fatalf("expected history trimmed near %d, got %d", spikeHistoryTrimmedTo, n)
	}
}

func TestUnboundReporterNoOps(t *testing.T) {
	r := New(nil, "", 1.0, 0)
	r.RecordDenial("guest", "kill room", "not authorized")
	r.RecordSpike(Spike{Category: "ops", Delta: 100, At: time.Now()})
	// No panics, no posts possible since poster is nil — nothing to assert
	// beyond "this didn't crash".
}

func TestPeriodicSummaryPostsAggregatedDeltas(t *testing.T) {
	p := &fakePoster{}
	r := New(p, "chan-1", 1000, 30*time.Millisecond)
	r.RecordSpike(Spike{Category: "ops", Delta: 3.0, At: time.Now()})
	r.RecordSpike(Spike{Category: "ops", Delta: 2.0, At: time.Now()})
	r.RecordSpike(Spike{Category: "strategy", Delta: -1.0, At: time.Now()})

	r.StartPeriodicSummary()
	defer r.Stop()

	time.Sleep(80 * time.Millisecond)
	if p.count() == 0 {
		t.Fatal("expected at least one periodic summary post")
	}
}

func TestPeriodicSummarySkipsWhenNothingRecorded(t *testing.T) {
	p := &fakePoster{}
	r := New(p, "chan-1", 1000, 20*time.Millisecond)
	r.StartPeriodicSummary()
	defer r.Stop()
	time.Sleep(50 * time.Millisecond)
	if p.count() != 0 {
		t.Fatalf("expected no summary post with no spikes recorded, got %d", p.count())
	}
}

func TestStopIsSafeWithoutStart(t *testing.T) {
	r := New(&fakePoster{}, "chan-1", 1.0, time.Hour)
	r.Stop() // must not panic
}
