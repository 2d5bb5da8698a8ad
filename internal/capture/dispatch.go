package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	sovereignclipboard "github.com/igoryan-dao/sovereign-engine/internal/clipboard"
)

// Dispatcher sends a task's prompt text into the target terminal, the
// write-side counterpart to the read-only Backend. It is not part of the
// closed Backend set in spec §4.2 — the spec only requires that "a Task is
// created in the Journal and dispatched into the target terminal" (§2), not
// how the keystrokes get there — so this reuses the same per-backend
// shell-out idiom the read-side backends use, one small function per
// backend kind.
type Dispatcher interface {
	// Dispatch types text into room's terminal followed by Enter.
	Dispatch(room, text string) error
}

// AppleScriptDispatcher types into an iTerm/Terminal.app window matched by
// title, mirroring AppleScriptBackend's window lookup.
type AppleScriptDispatcher struct {
	AppName   string
	TitleHint map[string]string
}

func (d *AppleScriptDispatcher) Dispatch(room, text string) error {
	hint := d.TitleHint[room]
	var script string
	if d.AppName == "Terminal" {
		script = fmt.Sprintf(`
tell application "Terminal"
	repeat with w in windows
		if name of w contains %q then
			do script %q in selected tab of w
			exit repeat
		end if
	end repeat
end tell`, hint, text)
	} else {
		script = fmt.Sprintf(`
tell application "iTerm"
	repeat with w in windows
		if name of w contains %q then
			tell current session of w to write text %q
			exit repeat
		end if
	end repeat
end tell`, hint, text)
	}

	ctx, cancel := context.WithTimeout(context.Background(), execTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "osascript", "-e", script)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s dispatch for room %q: %w (%s)", d.AppName, room, err, stderr.String())
	}
	return nil
}

// KittyDispatcher sends text via kitty's control-socket `send-text`.
type KittyDispatcher struct {
	Socket    string
	TitleHint map[string]string
}

func (d *KittyDispatcher) Dispatch(room, text string) error {
	hint := d.TitleHint[room]
	ctx, cancel := context.WithTimeout(context.Background(), execTimeout)
	defer cancel()

	args := []string{"@", "--to", d.Socket, "send-text"}
	if hint != "" {
		args = append(args, "--match", fmt.Sprintf("title:%s", hint))
	}
	args = append(args, text+"\n")

	cmd := exec.CommandContext(ctx, "kitty", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("kitty dispatch for room %q: %w (%s)", room, err, stderr.String())
	}
	return nil
}

// WeztermDispatcher sends text via `wezterm cli send-text` against the
// pane whose title matches the room hint.
type WeztermDispatcher struct {
	TitleHint map[string]string
}

func (d *WeztermDispatcher) Dispatch(room, text string) error {
	hint := d.TitleHint[room]
	ctx, cancel := context.WithTimeout(context.Background(), execTimeout)
	defer cancel()

	listCmd := exec.CommandContext(ctx, "wezterm", "cli", "list", "--format", "json")
	var listOut bytes.Buffer
	listCmd.Stdout = &listOut
	if err := listCmd.Run(); err != nil {
		return fmt.Errorf("wezterm dispatch for room %q: list panes: %w", room, err)
	}
	var panes []weztermPane
	if err := json.Unmarshal(listOut.Bytes(), &panes); err != nil {
		return fmt.Errorf("wezterm dispatch for room %q: decode pane list: %w", room, err)
	}
	paneID, ok := selectPane(panes, hint)
	if !ok {
		return fmt.Errorf("wezterm dispatch for room %q: no pane matched hint %q", room, hint)
	}

	sendCmd := exec.CommandContext(ctx, "wezterm", "cli", "send-text", "--pane-id",
		fmt.Sprintf("%d", paneID), "--no-paste")
	sendCmd.Stdin = bytes.NewBufferString(text + "\n")
	var stderr bytes.Buffer
	sendCmd.Stderr = &stderr
	if err := sendCmd.Run(); err != nil {
		return fmt.Errorf("wezterm dispatch for room %q: send-text: %w (%s)", room, err, stderr.String())
	}
	return nil
}

// SystemEventsDispatcher activates the target application and types via
// System Events keystrokes, guarded by the same Clipboard Arbiter as
// SystemEventsBackend's reads (system-events is the only IPC kind that
// ever needs focus, and dispatch shares that focus requirement).
type SystemEventsDispatcher struct {
	Arbiter  *sovereignclipboard.Arbiter
	AppHint  map[string]string
	holderID string
}

// NewSystemEventsDispatcher constructs a dispatcher sharing arbiter with
// the corresponding SystemEventsBackend.
func NewSystemEventsDispatcher(arbiter *sovereignclipboard.Arbiter, appHint map[string]string, holderID string) *SystemEventsDispatcher {
	return &SystemEventsDispatcher{Arbiter: arbiter, AppHint: appHint, holderID: holderID}
}

func (d *SystemEventsDispatcher) Dispatch(room, text string) error {
	app, ok := d.AppHint[room]
	if !ok {
		return fmt.Errorf("system-events dispatch: no application configured for room %q", room)
	}

	d.Arbiter.Acquire(d.holderID)
	defer d.Arbiter.Release(d.holderID)

	ctx, cancel := context.WithTimeout(context.Background(), execTimeout)
	defer cancel()

	script := fmt.Sprintf(`
tell application %q
	activate
end tell
tell application "System Events"
	keystroke %q
	keystroke return
end tell`, app, text)

	cmd := exec.CommandContext(ctx, "osascript", "-e", script)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("system-events dispatch for room %q: %w (%s)", room, err, stderr.String())
	}
	return nil
}
