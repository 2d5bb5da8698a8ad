package capture

import "testing"

func TestDeltaExtends(t *testing.T) {
	if got := Delta("hello", "hello world"); got != " world" {
		t.Fatalf("expected delta %q, got %q", " world", got)
	}
}

func TestDeltaDiverges(t *testing.T) {
	if got := Delta("hello", "goodbye"); got != "goodbye" {
		t.Fatalf("expected full content on divergence, got %q", got)
	}
}

func TestDeltaEqual(t *testing.T) {
	if got := Delta("same", "same"); got != "" {
		t.Fatalf("expected empty delta for identical content, got %q", got)
	}
}

type fakeBackend struct {
	content string
	err     error
}

func (f *fakeBackend) Capture(string) (string, error) { return f.content, f.err }

func TestServiceCaptureUnknownRoom(t *testing.T) {
	s := NewService(map[string]Backend{})
	res := s.Capture("nowhere")
	if res.Content != "" {
		t.Fatalf("expected empty content for unknown room, got %q", res.Content)
	}
}

func TestServiceCaptureWithDelta(t *testing.T) {
	s := NewService(map[string]Backend{"room-a": &fakeBackend{content: "hello world"}})
	res := s.CaptureWithDelta("room-a", "hello")
	if res.Delta != " world" {
		t.Fatalf("expected delta %q, got %q", " world", res.Delta)
	}
}

func TestServiceCaptureBackendFailureYieldsEmpty(t *testing.T) {
	s := NewService(map[string]Backend{"room-a": &fakeBackend{err: errBoom}})
	res := s.CaptureWithDelta("room-a", "baseline")
	if res.Content != "" || res.Delta != "" {
		t.Fatalf("expected empty content/delta on backend failure, got %+v", res)
	}
}

var errBoom = &boomErr{}

type boomErr struct{}

func (*boomErr) Error() string { return "boom" }
