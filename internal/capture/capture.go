// Package capture implements the Output Capture component: reading the
// most recent visible text of a room's terminal through one of five IPC
// backends (spec §4.2).
package capture

import (
	"log"
	"strings"
	"time"
)

// Result is the outcome of one capture attempt.
type Result struct {
	Room      string
	Content   string
	Timestamp time.Time
	Delta     string
}

// Backend reads a room's current terminal buffer. Each room is bound at
// startup to exactly one concrete backend from the closed set described in
// spec §4.2.
type Backend interface {
	// Capture returns the room's current visible text, or an error if the
	// read failed. Backends never change focus except system-events, which
	// is documented separately.
	Capture(room string) (string, error)
}

// Service dispatches capture calls to the backend bound to each room.
type Service struct {
	backends map[string]Backend
}

// NewService builds a capture service from a room-name -> backend binding.
func NewService(bindings map[string]Backend) *Service {
	return &Service{backends: bindings}
}

// Capture reads a room's current content. Unknown rooms or backend
// failures yield empty content with the failure logged — never an error
// returned to the caller, per spec §4.2 and §7 (capture failures must not
// mutate task state).
func (s *Service) Capture(room string) Result {
	now := time.Now()
	backend, ok := s.backends[room]
	if !ok {
		log.Printf("capture: unknown room %q", room)
		return Result{Room: room, Timestamp: now}
	}
	content, err := backend.Capture(room)
	if err != nil {
		log.Printf("capture: room %q backend failed: %v", room, err)
		return Result{Room: room, Timestamp: now}
	}
	return Result{Room: room, Content: content, Timestamp: now}
}

// CaptureWithDelta reads a room's content and computes the delta against
// baseline, implementing the delta law (testable property 9):
//
//	delta == content[len(baseline):] when content extends baseline
//	delta == content                  when they differ otherwise
//	delta == ""                       when they are equal
func (s *Service) CaptureWithDelta(room, baseline string) Result {
	res := s.Capture(room)
	res.Delta = Delta(baseline, res.Content)
	return res
}

// Delta implements the delta law in isolation so pollers and tests can
// reuse it without a Service.
func Delta(baseline, content string) string {
	if content == baseline {
		return ""
	}
	if strings.HasPrefix(content, baseline) {
		return content[len(baseline):]
	}
	return content
}
