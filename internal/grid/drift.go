package grid

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	driftDeadband      = 0.15
	driftColdThreshold = 0.10
	execTimeout        = 5 * time.Second
)

// IntentStatus classifies a cell's intent signal.
type IntentStatus string

const (
	IntentActive IntentStatus = "active"
	IntentCold   IntentStatus = "cold"
)

// Direction classifies the relationship between a cell's intent and
// reality strength (spec §4.12).
type Direction string

const (
	DirectionSpecAhead Direction = "spec_ahead"
	DirectionRepoAhead Direction = "repo_ahead"
	DirectionAligned   Direction = "aligned"
	DirectionBothCold  Direction = "both_cold"
)

// CellDrift is one cell's drift measurement.
type CellDrift struct {
	CellID       string
	Intent       float64
	Reality      float64
	Drift        float64
	Direction    Direction
	IntentStatus IntentStatus
	FocusNeeded  bool
}

// Signal is the Drift Detector's periodic output.
type Signal struct {
	Cells               []CellDrift
	GlobalAverage       float64
	HotCells            []CellDrift // focus-needed, sorted by drift descending
	ColdCells           []CellDrift // both_cold
	FocusRecommendation string
}

// DetectorConfig binds each cell to the keywords and repository paths it
// scans.
type DetectorConfig struct {
	// SpecDocPath and PipelineDocPath are scanned for keyword mentions.
	SpecDocPath     string
	PipelineDocPath string
	// Keywords maps a cell id to the keywords counted as "mentions" of
	// that cell's concern.
	Keywords map[string][]string
	// RepoPaths maps a cell id to the repository paths whose recent
	// commit/file/line activity measures that cell's reality strength.
	RepoPaths map[string][]string
}

// Detector runs periodic drift scans per DetectorConfig.
type Detector struct {
	cfg DetectorConfig
}

// NewDetector constructs a Detector.
func NewDetector(cfg DetectorConfig) *Detector {
	return &Detector{cfg: cfg}
}

// Scan runs one full drift pass across every cell.
func (d *Detector) Scan(ctx context.Context) (Signal, error) {
	specText, err := readFileTolerant(d.cfg.SpecDocPath)
	if err != nil {
		return Signal{}, fmt.Errorf("drift: read spec doc: %w", err)
	}
	pipelineText, err := readFileTolerant(d.cfg.PipelineDocPath)
	if err != nil {
		return Signal{}, fmt.Errorf("drift: read pipeline doc: %w", err)
	}
	combined := specText + "\n" + pipelineText

	var cells []CellDrift
	var sum float64
	for _, c := range Cells {
		intent := intentStrength(combined, d.cfg.Keywords[c.ID])
		reality, err := d.realityStrength(ctx, d.cfg.RepoPaths[c.ID])
		if err != nil {
			return Signal{}, fmt.Errorf("drift: reality strength for cell %s: %w", c.ID, err)
		}

		drift := intent - reality
		if drift < 0 {
			drift = -drift
		}

		status := IntentCold
		if intent >= driftColdThreshold {
			status = IntentActive
		}

		direction := classifyDirection(intent, reality, drift)
		focusNeeded := direction == DirectionSpecAhead && status == IntentActive

		cd := CellDrift{
			CellID:       c.ID,
			Intent:       intent,
			Reality:      reality,
			Drift:        drift,
			Direction:    direction,
			IntentStatus: status,
			FocusNeeded:  focusNeeded,
		}
		cells = append(cells, cd)
		sum += drift
	}

	var hot, cold []CellDrift
	for _, cd := range cells {
		if cd.FocusNeeded {
			hot = append(hot, cd)
		}
		if cd.Direction == DirectionBothCold {
			cold = append(cold, cd)
		}
	}
	sort.Slice(hot, func(i, j int) bool { return hot[i].Drift > hot[j].Drift })

	global := 0.0
	if len(cells) > 0 {
		global = sum / float64(len(cells))
	}

	recommendation := "no cell currently needs focus"
	if len(hot) > 0 {
		top, _ := cellByID(hot[0].CellID)
		recommendation = fmt.Sprintf("%s (%s) is spec-ahead with drift %.2f — needs implementation focus", top.ID, top.Label, hot[0].Drift)
	}

	return Signal{
		Cells:               cells,
		GlobalAverage:       global,
		HotCells:            hot,
		ColdCells:           cold,
		FocusRecommendation: recommendation,
	}, nil
}

func classifyDirection(intent, reality, drift float64) Direction {
	if intent < driftColdThreshold && reality < driftColdThreshold {
		return DirectionBothCold
	}
	if drift < driftDeadband {
		return DirectionAligned
	}
	if intent > reality {
		return DirectionSpecAhead
	}
	return DirectionRepoAhead
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// intentStrength counts keyword mentions in text, calibrated as
// mentions/30 (spec §4.12).
func intentStrength(text string, keywords []string) float64 {
	lower := strings.ToLower(text)
	mentions := 0
	for _, kw := range keywords {
		mentions += strings.Count(lower, strings.ToLower(kw))
	}
	return clip01(float64(mentions) / 30.0)
}

// realityStrength measures recent commit/line activity across paths,
// calibrated as 0.6*min(commits/20,1) + 0.4*min(lines/2000,1).
func (d *Detector) realityStrength(ctx context.Context, paths []string) (float64, error) {
	if len(paths) == 0 {
		return 0, nil
	}
	commits, err := recentCommitCount(ctx, paths)
	if err != nil {
		return 0, err
	}
	lines, err := totalLineCount(paths)
	if err != nil {
		return 0, err
	}

	commitComponent := 0.6 * clip01(float64(commits)/20.0)
	lineComponent := 0.4 * clip01(float64(lines)/2000.0)
	return commitComponent + lineComponent, nil
}

func recentCommitCount(ctx context.Context, paths []string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, execTimeout)
	defer cancel()

	args := append([]string{"log", "--since=30.days", "--oneline", "--"}, paths...)
	cmd := exec.CommandContext(ctx, "git", args...)
	out, err := cmd.Output()
	if err != nil {
		// Not every deployment runs inside a git checkout; treat as zero
		// activity rather than failing the whole scan.
		return 0, nil
	}
	if len(strings.TrimSpace(string(out))) == 0 {
		return 0, nil
	}
	return len(strings.Split(strings.TrimSpace(string(out)), "\n")), nil
}

func totalLineCount(paths []string) (int, error) {
	total := 0
	for _, root := range paths {
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil // missing/unreadable path: skip rather than fail the scan
			}
			if info.IsDir() {
				return nil
			}
			n, err := countLines(path)
			if err != nil {
				return nil
			}
			total += n
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	n := 0
	for scanner.Scan() {
		n++
	}
	return n, nil
}

func readFileTolerant(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}
