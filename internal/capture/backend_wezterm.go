package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// WeztermBackend lists wezterm panes, picks the one whose title contains
// the room hint, then reads its text. No focus change, no clipboard use.
type WeztermBackend struct {
	TitleHint map[string]string
}

type weztermPane struct {
	PaneID int    `json:"pane_id"`
	Title  string `json:"title"`
}

func (b *WeztermBackend) Capture(room string) (string, error) {
	hint := b.TitleHint[room]

	ctx, cancel := context.WithTimeout(context.Background(), execTimeout)
	defer cancel()

	listCmd := exec.CommandContext(ctx, "wezterm", "cli", "list", "--format", "json")
	var listOut bytes.Buffer
	listCmd.Stdout = &listOut
	if err := listCmd.Run(); err != nil {
		return "", fmt.Errorf("wezterm cli list: %w", err)
	}

	var panes []weztermPane
	if err := json.Unmarshal(listOut.Bytes(), &panes); err != nil {
		return "", fmt.Errorf("wezterm cli list: decode: %w", err)
	}

	paneID, found := selectPane(panes, hint)
	if !found {
		return "", fmt.Errorf("wezterm: no pane matching room %q (hint %q)", room, hint)
	}

	textCmd := exec.CommandContext(ctx, "wezterm", "cli", "get-text", "--pane-id", fmt.Sprint(paneID))
	var textOut bytes.Buffer
	textCmd.Stdout = &textOut
	if err := textCmd.Run(); err != nil {
		return "", fmt.Errorf("wezterm cli get-text: %w", err)
	}
	return textOut.String(), nil
}

func selectPane(panes []weztermPane, hint string) (int, bool) {
	if hint == "" {
		if len(panes) == 0 {
			return 0, false
		}
		return panes[0].PaneID, true
	}
	for _, p := range panes {
		if strings.Contains(p.Title, hint) {
			return p.PaneID, true
		}
	}
	return 0, false
}
