package task

import (
	"bufio"
	"encoding/json"
	"log"
	"os"
	"sort"
	"sync"
	"time"
)

// entryKind distinguishes the two journal record shapes (spec §4.4).
type entryKind string

const (
	entryCreate entryKind = "create"
	entryUpdate entryKind = "update"
)

// journalEntry is the on-disk shape of one journal line. For a create
// entry, Task carries the full record. For an update entry, ID/Status/Patch
// describe the overlay to apply on replay.
type journalEntry struct {
	Type   entryKind      `json:"type"`
	Ts     time.Time      `json:"ts"`
	Task   *Task          `json:"task,omitempty"`
	ID     string         `json:"id,omitempty"`
	Status Status         `json:"status,omitempty"`
	Patch  map[string]any `json:"patch,omitempty"`
}

// Journal is the durable Task store: an in-memory index backed by an
// append-only file. Journal write failures are swallowed — the in-memory
// state remains authoritative for the running process, and the next
// successful write heals the on-disk journal (spec §7).
type Journal struct {
	mu    sync.RWMutex
	path  string
	file  *os.File
	tasks map[string]*Task
}

// Open loads and replays an existing journal at path, creating it if
// absent.
func Open(path string) (*Journal, error) {
	j := &Journal{
		path:  path,
		tasks: make(map[string]*Task),
	}
	if err := j.replay(); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	j.file = f
	return j, nil
}

// Close flushes and closes the underlying journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	return j.file.Close()
}

func (j *Journal) replay() error {
	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry journalEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			log.Printf("task journal: skipping malformed line: %v", err)
			continue
		}
		j.applyEntry(entry)
	}
	return nil
}

func (j *Journal) applyEntry(entry journalEntry) {
	switch entry.Type {
	case entryCreate:
		if entry.Task != nil {
			j.tasks[entry.Task.ID] = entry.Task
		}
	case entryUpdate:
		t, ok := j.tasks[entry.ID]
		if !ok {
			log.Printf("task journal: update for unknown task %q skipped", entry.ID)
			return
		}
		t.Status = entry.Status
		applyPatch(t, entry.Patch)
	default:
		log.Printf("task journal: unknown entry kind %q skipped", entry.Type)
	}
}

// applyPatch overlays known fields from a generic patch map onto a task.
// Unrecognized keys are folded into Metadata, matching the "dynamic any
// shape" design note in spec §9.
func applyPatch(t *Task, patch map[string]any) {
	for k, v := range patch {
		switch k {
		case "output":
			if s, ok := v.(string); ok {
				t.Output = s
			}
		case "baseline":
			if s, ok := v.(string); ok {
				t.Baseline = s
			}
		case "last_output_length":
			if n, ok := asInt(v); ok {
				t.LastOutputLength = n
			}
		case "last_output_at":
			if ts, ok := asTime(v); ok {
				t.LastOutputAt = &ts
			}
		case "dispatched_at":
			if ts, ok := asTime(v); ok {
				t.DispatchedAt = &ts
			}
		case "completed_at":
			if ts, ok := asTime(v); ok {
				t.CompletedAt = &ts
			}
		case "discord_message_id":
			if s, ok := v.(string); ok {
				t.DiscordMessageID = s
			}
		default:
			if t.Metadata == nil {
				t.Metadata = make(map[string]any)
			}
			t.Metadata[k] = v
		}
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func asTime(v any) (time.Time, bool) {
	switch ts := v.(type) {
	case time.Time:
		return ts, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}

func (j *Journal) append(entry journalEntry) {
	entry.Ts = time.Now()
	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("task journal: marshal failed, entry dropped: %v", err)
		return
	}
	data = append(data, '\n')
	if j.file == nil {
		return
	}
	if _, err := j.file.Write(data); err != nil {
		log.Printf("task journal: write failed (in-memory state remains authoritative): %v", err)
	}
}

// Create makes a new pending task for (room, channelID, prompt) and journals
// its creation.
func (j *Journal) Create(room, channelID, prompt string) *Task {
	t := New(room, channelID, prompt)
	j.mu.Lock()
	j.tasks[t.ID] = t
	j.append(journalEntry{Type: entryCreate, Task: t.Clone()})
	j.mu.Unlock()
	return t.Clone()
}

// Get returns a copy of the task with the given id, or nil.
func (j *Journal) Get(id string) *Task {
	j.mu.RLock()
	defer j.mu.RUnlock()
	t, ok := j.tasks[id]
	if !ok {
		return nil
	}
	return t.Clone()
}

// ByStatus returns copies of all tasks whose status matches any of statuses.
func (j *Journal) ByStatus(statuses ...Status) []*Task {
	want := make(map[Status]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []*Task
	for _, t := range j.tasks {
		if want[t.Status] {
			out = append(out, t.Clone())
		}
	}
	return out
}

// RunningForRoom returns the at-most-one task in room with status in
// {dispatched, running} (I1).
func (j *Journal) RunningForRoom(room string) *Task {
	j.mu.RLock()
	defer j.mu.RUnlock()
	for _, t := range j.tasks {
		if t.Room == room && t.Status.IsActive() {
			return t.Clone()
		}
	}
	return nil
}

// Recent returns up to n tasks ordered by CreatedAt descending.
func (j *Journal) Recent(n int) []*Task {
	j.mu.RLock()
	all := make([]*Task, 0, len(j.tasks))
	for _, t := range j.tasks {
		all = append(all, t.Clone())
	}
	j.mu.RUnlock()

	sort.Slice(all, func(i, k int) bool {
		return all[i].CreatedAt.After(all[k].CreatedAt)
	})
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all
}

// KillRoom transitions room's active task (if any) to killed, returning
// whether it did so.
func (j *Journal) KillRoom(room string) bool {
	j.mu.Lock()
	var target *Task
	for _, t := range j.tasks {
		if t.Room == room && t.Status.IsActive() {
			target = t
			break
		}
	}
	if target == nil {
		j.mu.Unlock()
		return false
	}
	j.mu.Unlock()
	j.UpdateStatus(target.ID, StatusKilled, nil)
	return true
}

// UpdateStatus sets a task's status, stamping CompletedAt when the new
// status is terminal, and journals the change. Calling this twice with the
// same status yields the same record as calling it once (idempotence,
// testable property 8).
func (j *Journal) UpdateStatus(id string, status Status, patch map[string]any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	t, ok := j.tasks[id]
	if !ok {
		log.Printf("task journal: update_status for unknown task %q ignored", id)
		return
	}
	t.Status = status
	if patch == nil {
		patch = make(map[string]any)
	}
	if status == StatusDispatched && t.DispatchedAt == nil {
		now := time.Now()
		t.DispatchedAt = &now
		patch["dispatched_at"] = now.Format(time.RFC3339Nano)
	}
	if status.IsTerminal() && t.CompletedAt == nil {
		now := time.Now()
		t.CompletedAt = &now
		patch["completed_at"] = now.Format(time.RFC3339Nano)
	}
	applyPatch(t, patch)
	j.append(journalEntry{Type: entryUpdate, ID: id, Status: status, Patch: patch})
}

// AppendOutput concatenates delta onto a task's accumulated output and
// refreshes LastOutputAt/LastOutputLength.
func (j *Journal) AppendOutput(id, delta string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	t, ok := j.tasks[id]
	if !ok {
		log.Printf("task journal: append_output for unknown task %q ignored", id)
		return
	}
	t.Output += delta
	now := time.Now()
	t.LastOutputAt = &now
	t.LastOutputLength = len(t.Output)
	patch := map[string]any{
		"output":              t.Output,
		"last_output_at":      now.Format(time.RFC3339Nano),
		"last_output_length":  t.LastOutputLength,
	}
	j.append(journalEntry{Type: entryUpdate, ID: id, Status: t.Status, Patch: patch})
}

// SetBaseline records the last snapshot used to compute a future delta.
func (j *Journal) SetBaseline(id, baseline string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	t, ok := j.tasks[id]
	if !ok {
		return
	}
	t.Baseline = baseline
	j.append(journalEntry{Type: entryUpdate, ID: id, Status: t.Status, Patch: map[string]any{"baseline": baseline}})
}

// SetDiscordMessageID records the reply handle the poster edits on
// completion.
func (j *Journal) SetDiscordMessageID(id, messageID string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	t, ok := j.tasks[id]
	if !ok {
		return
	}
	t.DiscordMessageID = messageID
	j.append(journalEntry{Type: entryUpdate, ID: id, Status: t.Status, Patch: map[string]any{"discord_message_id": messageID}})
}
