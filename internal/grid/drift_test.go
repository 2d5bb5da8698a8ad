package grid

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writeFile: %v", err)
	}
}

func TestIntentStrengthCountsAndCalibrates(t *testing.T) {
	text := strings.Repeat("vision ", 15)
	got := intentStrength(text, []string{"vision"})
	if got != 0.5 {
		t.Fatalf("expected 15/30 = 0.5, got %f", got)
	}
}

func TestIntentStrengthClipsToOne(t *testing.T) {
	text := strings.Repeat("vision ", 60)
	if got := intentStrength(text, []string{"vision"}); got != 1.0 {
		t.Fatalf("expected clipped to 1.0, got %f", got)
	}
}

func TestClassifyDirectionBothCold(t *testing.T) {
	if got := classifyDirection(0.05, 0.05, 0); got != DirectionBothCold {
		t.Fatalf("expected both_cold, got %s", got)
	}
}

func TestClassifyDirectionAlignedWithinDeadband(t *testing.T) {
	if got := classifyDirection(0.5, 0.45, 0.05); got != DirectionAligned {
		t.Fatalf("expected aligned, got %s", got)
	}
}

func TestClassifyDirectionSpecAhead(t *testing.T) {
	if got := classifyDirection(0.8, 0.2, 0.6); got != DirectionSpecAhead {
		t.Fatalf("expected spec_ahead, got %s", got)
	}
}

func TestClassifyDirectionRepoAhead(t *testing.T) {
	if got := classifyDirection(0.2, 0.8, 0.6); got != DirectionRepoAhead {
		t.Fatalf("expected repo_ahead, got %s", got)
	}
}

func TestScanProducesFocusRecommendationForSpecAheadCell(t *testing.T) {
	dir := t.TempDir()
	specPath := filepath.Join(dir, "spec.md")
	pipelinePath := filepath.Join(dir, "pipeline.md")
	writeFile(t, specPath, strings.Repeat("vision ", 30))
	writeFile(t, pipelinePath, "")

	emptyRepoDir := filepath.Join(dir, "empty-repo")
	if err := os.MkdirAll(emptyRepoDir, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	cfg := DetectorConfig{
		SpecDocPath:     specPath,
		PipelineDocPath: pipelinePath,
		Keywords:        map[string][]string{"A1": {"vision"}},
		RepoPaths:       map[string][]string{"A1": {emptyRepoDir}},
	}
	d := NewDetector(cfg)

	sig, err := d.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	var a1 CellDrift
	for _, c := range sig.Cells {
		if c.CellID == "A1" {
			a1 = c
		}
	}
	if a1.Direction != DirectionSpecAhead {
		t.Fatalf("expected A1 spec_ahead (high intent, zero reality), got %+v", a1)
	}
	if !a1.FocusNeeded {
		t.Fatal("expected A1 to be focus-needed")
	}
	if len(sig.HotCells) == 0 || sig.HotCells[0].CellID != "A1" {
		t.Fatalf("expected A1 among hot cells, got %+v", sig.HotCells)
	}
}

func TestScanMissingDocsToleratesAbsence(t *testing.T) {
	cfg := DetectorConfig{
		SpecDocPath:     "/nonexistent/spec.md",
		PipelineDocPath: "/nonexistent/pipeline.md",
		Keywords:        map[string][]string{},
		RepoPaths:       map[string][]string{},
	}
	d := NewDetector(cfg)
	sig, err := d.Scan(context.Background())
	if err != nil {
		t.Fatalf("expected tolerant scan with missing docs, got error: %v", err)
	}
	for _, c := range sig.Cells {
		if c.Direction != DirectionBothCold {
			t.Fatalf("expected both_cold with no signal anywhere, cell %s got %s", c.CellID, c.Direction)
		}
	}
}
