package capture

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/atotto/clipboard"

	sovereignclipboard "github.com/igoryan-dao/sovereign-engine/internal/clipboard"
)

// SystemEventsBackend is the only capture backend that contends for the
// Clipboard Arbiter: it activates the target application, selects all and
// copies via System Events, then reads the real OS clipboard. It always
// releases the arbiter, including on error paths.
type SystemEventsBackend struct {
	Arbiter *sovereignclipboard.Arbiter
	// AppHint maps a room to the application name System Events should
	// activate for that room.
	AppHint map[string]string
	holderID string
}

// NewSystemEventsBackend constructs a backend bound to one arbiter, using
// holderID to identify this backend's acquisitions in the FIFO queue.
func NewSystemEventsBackend(arbiter *sovereignclipboard.Arbiter, appHint map[string]string, holderID string) *SystemEventsBackend {
	return &SystemEventsBackend{Arbiter: arbiter, AppHint: appHint, holderID: holderID}
}

func (b *SystemEventsBackend) Capture(room string) (content string, err error) {
	app, ok := b.AppHint[room]
	if !ok {
		return "", fmt.Errorf("system-events: no application configured for room %q", room)
	}

	b.Arbiter.Acquire(b.holderID)
	defer b.Arbiter.Release(b.holderID)

	ctx, cancel := context.WithTimeout(context.Background(), execTimeout)
	defer cancel()

	script := fmt.Sprintf(`
tell application %q
	activate
end tell
tell application "System Events"
	keystroke "a" using command down
	keystroke "c" using command down
end tell`, app)

	cmd := exec.CommandContext(ctx, "osascript", "-e", script)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("system-events activate/copy for room %q: %w (%s)", room, err, stderr.String())
	}

	text, err := clipboard.ReadAll()
	if err != nil {
		return "", fmt.Errorf("system-events clipboard read for room %q: %w", room, err)
	}
	if text == "" {
		// Open Question 2 (spec §9): an auto-released arbiter grant never
		// physically transfers clipboard ownership. An empty read here is
		// indistinguishable from a crashed holder never having copied
		// anything, so it must be treated as a capture failure rather than
		// a successful empty capture.
		return "", fmt.Errorf("system-events: empty clipboard for room %q (treated as capture failure)", room)
	}
	return text, nil
}
