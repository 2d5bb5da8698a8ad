package task

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCreateAndGet(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(filepath.Join(dir, "tasks.jsonl"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer j.Close()

	created := j.Create("room-x", "chan-1", "do the thing")
	got := j.Get(created.ID)
	if got == nil || got.Room != "room-x" || got.Prompt != "do the thing" {
		t.Fatalf("unexpected task: %+v", got)
	}
	if got.Status != StatusPending {
		t.Fatalf("expected pending, got %s", got.Status)
	}
}

func TestUpdateStatusIdempotent(t *testing.T) {
	dir := t.TempDir()
	j, _ := Open(filepath.Join(dir, "tasks.jsonl"))
	defer j.Close()

	tsk := j.Create("room-x", "chan-1", "prompt")
	j.UpdateStatus(tsk.ID, StatusComplete, nil)
	first := j.Get(tsk.ID)
	j.UpdateStatus(tsk.ID, StatusComplete, nil)
	second := j.Get(tsk.ID)

	if first.Status != second.Status || !first.CompletedAt.Equal(*second.CompletedAt) {
		t.Fatalf("update_status is not idempotent: %+v vs %+v", first, second)
	}
}

func TestTerminalSetsCompletedAt(t *testing.T) {
	dir := t.TempDir()
	j, _ := Open(filepath.Join(dir, "tasks.jsonl"))
	defer j.Close()

	tsk := j.Create("room-x", "chan-1", "prompt")
	j.UpdateStatus(tsk.ID, StatusTimeout, nil)
	got := j.Get(tsk.ID)
	if got.CompletedAt == nil {
		t.Fatal("expected completed_at to be set on terminal transition")
	}
}

func TestRunningForRoomAtMostOne(t *testing.T) {
	dir := t.TempDir()
	j, _ := Open(filepath.Join(dir, "tasks.jsonl"))
	defer j.Close()

	a := j.Create("room-x", "chan-1", "a")
	j.UpdateStatus(a.ID, StatusDispatched, nil)

	if running := j.RunningForRoom("room-x"); running == nil || running.ID != a.ID {
		t.Fatalf("expected %s running, got %+v", a.ID, running)
	}
}

func TestKillRoom(t *testing.T) {
	dir := t.TempDir()
	j, _ := Open(filepath.Join(dir, "tasks.jsonl"))
	defer j.Close()

	a := j.Create("room-x", "chan-1", "a")
	j.UpdateStatus(a.ID, StatusRunning, nil)

	if !j.KillRoom("room-x") {
		t.Fatal("expected kill_room to succeed for a running task")
	}
	if got := j.Get(a.ID); got.Status != StatusKilled {
		t.Fatalf("expected killed, got %s", got.Status)
	}
	if j.KillRoom("room-x") {
		t.Fatal("expected second kill_room to return false")
	}
}

func TestReplayRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.jsonl")

	j, _ := Open(path)
	created := j.Create("room-x", "chan-1", "prompt text")
	j.UpdateStatus(created.ID, StatusDispatched, nil)
	j.AppendOutput(created.ID, "hello\n")
	j.Close()

	replayed, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer replayed.Close()

	got := replayed.Get(created.ID)
	if got == nil {
		t.Fatal("task missing after replay")
	}
	if got.ID != created.ID || got.Room != "room-x" || got.ChannelID != "chan-1" || got.Prompt != "prompt text" {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
	if got.Status != StatusDispatched {
		t.Fatalf("expected last journalled status dispatched, got %s", got.Status)
	}
	if got.Output != "hello\n" {
		t.Fatalf("expected output to survive replay, got %q", got.Output)
	}
}

func TestReplayToleratesMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.jsonl")

	j, _ := Open(path)
	j.Create("room-x", "chan-1", "a")
	j.Close()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := f.WriteString("not json at all\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()

	replayed, err := Open(path)
	if err != nil {
		t.Fatalf("expected malformed line to be skipped, got error: %v", err)
	}
	defer replayed.Close()

	if len(replayed.Recent(0)) != 1 {
		t.Fatalf("expected exactly 1 surviving task, got %d", len(replayed.Recent(0)))
	}
}
