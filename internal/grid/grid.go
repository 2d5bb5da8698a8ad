// Package grid implements the Pressure Grid and its Drift Detector
// sidecar: a 12-cell map of where organizational attention is concentrated,
// derived from time-weighted event activity (spec §4.8, §4.12).
package grid

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"
)

// Row names the three rows of the 3x4 grid.
type Row string

const (
	RowStrategy   Row = "Strategy"
	RowTactics    Row = "Tactics"
	RowOperations Row = "Operations"
)

// Cell is one fixed position in the Pressure Grid.
type Cell struct {
	ID    string
	Label string
	Row   Row
	Room  string
}

// Cells is the fixed 3x4 layout (spec §4.8). Order matches the rendering
// layout: row-major, columns 1-4.
var Cells = []Cell{
	{ID: "A1", Label: "Vision", Row: RowStrategy, Room: "strategy-vision"},
	{ID: "A2", Label: "Roadmap", Row: RowStrategy, Room: "strategy-roadmap"},
	{ID: "A3", Label: "Narrative", Row: RowStrategy, Room: "strategy-narrative"},
	{ID: "A4", Label: "Allies", Row: RowStrategy, Room: "strategy-allies"},
	{ID: "B1", Label: "Campaigns", Row: RowTactics, Room: "tactics-campaigns"},
	{ID: "B2", Label: "Drafts", Row: RowTactics, Room: "tactics-drafts"},
	{ID: "B3", Label: "Outreach", Row: RowTactics, Room: "tactics-outreach"},
	{ID: "B4", Label: "Metrics", Row: RowTactics, Room: "tactics-metrics"},
	{ID: "C1", Label: "Infra", Row: RowOperations, Room: "ops-infra"},
	{ID: "C2", Label: "Automation", Row: RowOperations, Room: "ops-automation"},
	{ID: "C3", Label: "Support", Row: RowOperations, Room: "ops-support"},
	{ID: "C4", Label: "Logs", Row: RowOperations, Room: "ops-logs"},
}

// phaseCell maps the 9 external phase numbers onto 9 of the 12 cells
// (spec §4.8); an invalid phase yields no emission.
var phaseCell = map[int]string{
	1: "A1", 2: "A2", 3: "A3",
	4: "B1", 5: "B2", 6: "B3",
	7: "C1", 8: "C2", 9: "C3",
}

func cellByID(id string) (Cell, bool) {
	for _, c := range Cells {
		if c.ID == id {
			return c, true
		}
	}
	return Cell{}, false
}

// event is one journaled grid activity record.
type event struct {
	CellID string    `json:"cell_id"`
	Ts     time.Time `json:"ts"`
}

// Grid owns the event journal and computes time-weighted pressure per
// cell.
type Grid struct {
	path string

	mu     sync.Mutex
	file   *os.File
	events []event
}

// Open loads and replays grid-events.jsonl at path, creating it if absent.
func Open(path string) (*Grid, error) {
	g := &Grid{path: path}
	if err := g.replay(); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	g.file = f
	return g, nil
}

func (g *Grid) replay() error {
	f, err := os.Open(g.path)
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
		var e event
		if err := json.Unmarshal(line, &e); err != nil {
			log.Printf("grid: skipping malformed event line: %v", err)
			continue
		}
		g.events = append(g.events, e)
	}
	return nil
}

// Close closes the underlying journal file.
func (g *Grid) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.file == nil {
		return nil
	}
	return g.file.Close()
}

func (g *Grid) append(e event) {
	g.events = append(g.events, e)
	data, err := json.Marshal(e)
	if err != nil {
		log.Printf("grid: marshal event failed, dropped: %v", err)
		return
	}
	data = append(data, '\n')
	if g.file == nil {
		return
	}
	if _, err := g.file.Write(data); err != nil {
		log.Printf("grid: write event failed: %v", err)
	}
}

// EmitByPhase journals an event for the cell bound to the external phase
// number. An unknown phase logs a warning and emits nothing.
func (g *Grid) EmitByPhase(phase int) {
	cellID, ok := phaseCell[phase]
	if !ok {
		log.Printf("grid: emit: unknown phase %d, no event emitted", phase)
		return
	}
	g.EmitByCell(cellID)
}

// EmitByCell journals an event directly against cellID.
func (g *Grid) EmitByCell(cellID string) {
	if _, ok := cellByID(cellID); !ok {
		log.Printf("grid: emit: unknown cell id %q, no event emitted", cellID)
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.append(event{CellID: cellID, Ts: time.Now()})
}

// timeWeight implements the bucketed recency weighting in spec §4.8.
func timeWeight(age time.Duration) float64 {
	switch {
	case age <= time.Hour:
		return 1.0
	case age <= 6*time.Hour:
		return 0.5
	case age <= 24*time.Hour:
		return 0.2
	default:
		return 0
	}
}

// Pressure computes the normalized per-cell pressure score: raw scores are
// the sum of time-weighted events in the last 24h, divided by the max
// score across all cells (so the hottest cell is exactly 1.0; all-zero
// when every score is 0).
func (g *Grid) Pressure() map[string]float64 {
	g.mu.Lock()
	events := make([]event, len(g.events))
	copy(events, g.events)
	g.mu.Unlock()

	now := time.Now()
	raw := make(map[string]float64, len(Cells))
	for _, c := range Cells {
		raw[c.ID] = 0
	}
	for _, e := range events {
		age := now.Sub(e.Ts)
		if age > 24*time.Hour {
			continue
		}
		raw[e.CellID] += timeWeight(age)
	}

	max := 0.0
	for _, v := range raw {
		if v > max {
			max = v
		}
	}

	out := make(map[string]float64, len(raw))
	if max == 0 {
		for id := range raw {
			out[id] = 0
		}
		return out
	}
	for id, v := range raw {
		out[id] = v / max
	}
	return out
}

// HotCell is one cell's id paired with its normalized pressure.
type HotCell struct {
	CellID   string
	Pressure float64
}

// HotCells returns cell ids whose pressure meets threshold, sorted by
// pressure descending.
func (g *Grid) HotCells(threshold float64) []HotCell {
	pressure := g.Pressure()
	var out []HotCell
	for id, p := range pressure {
		if p >= threshold {
			out = append(out, HotCell{CellID: id, Pressure: p})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pressure != out[j].Pressure {
			return out[i].Pressure > out[j].Pressure
		}
		return out[i].CellID < out[j].CellID
	})
	return out
}

// RoomRecommendation is the output of RecommendRoom.
type RoomRecommendation struct {
	Room        string
	Total       float64
	Explanation string
}

// RecommendRoom computes per-room total pressure from a set of hot cells'
// cell->room membership, returning the room with the highest total. Empty
// input yields "#general" with a zero total (spec §4.8).
func RecommendRoom(hot []HotCell) RoomRecommendation {
	if len(hot) == 0 {
		return RoomRecommendation{Room: "#general", Total: 0, Explanation: "no hot cells; defaulting to #general"}
	}

	totals := make(map[string]float64)
	contributors := make(map[string][]string)
	for _, h := range hot {
		cell, ok := cellByID(h.CellID)
		if !ok {
			continue
		}
		totals[cell.Room] += h.Pressure
		contributors[cell.Room] = append(contributors[cell.Room], cell.ID)
	}

	var bestRoom string
	var bestTotal float64
	first := true
	for room, total := range totals {
		if first || total > bestTotal || (total == bestTotal && room < bestRoom) {
			bestRoom, bestTotal, first = room, total, false
		}
	}

	return RoomRecommendation{
		Room:        bestRoom,
		Total:       bestTotal,
		Explanation: fmt.Sprintf("cells %v concentrate pressure in %s", contributors[bestRoom], bestRoom),
	}
}
