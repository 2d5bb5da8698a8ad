package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
)

// KittyBackend issues a control-socket command against a running kitty
// terminal, preferring a window whose title matches the room hint and
// falling back to the whole pane. No focus change, no clipboard use.
type KittyBackend struct {
	Socket    string
	TitleHint map[string]string
}

type kittyWindow struct {
	Title string   `json:"title"`
	Lines []string `json:"lines"`
}

func (b *KittyBackend) Capture(room string) (string, error) {
	hint := b.TitleHint[room]

	ctx, cancel := context.WithTimeout(context.Background(), execTimeout)
	defer cancel()

	args := []string{"@", "--to", b.Socket, "get-text", "--extent=all"}
	if hint != "" {
		args = append(args, "--match", fmt.Sprintf("title:%s", hint))
	}

	cmd := exec.CommandContext(ctx, "kitty", args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		// Fall back to the whole pane if the title match failed to resolve.
		return b.captureWholePane(ctx)
	}
	return out.String(), nil
}

func (b *KittyBackend) captureWholePane(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, "kitty", "@", "--to", b.Socket, "get-text", "--extent=all")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("kitty capture: %w", err)
	}
	return out.String(), nil
}

// decodeWindowList decodes a `kitty @ ls` JSON window list. Capture does not
// call it: it issues `get-text` directly.
func decodeWindowList(raw []byte) ([]kittyWindow, error) {
	var windows []kittyWindow
	if err := json.Unmarshal(raw, &windows); err != nil {
		return nil, err
	}
	return windows, nil
}
