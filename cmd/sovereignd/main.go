// Command sovereignd runs the Sovereign Engine: the concurrent coordination
// core bridging a Discord guild to a set of local cognitive-room terminals
// (spec §2).
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/igoryan-dao/sovereign-engine/internal/capture"
	"github.com/igoryan-dao/sovereign-engine/internal/clipboard"
	"github.com/igoryan-dao/sovereign-engine/internal/config"
	"github.com/igoryan-dao/sovereign-engine/internal/discordchat"
	"github.com/igoryan-dao/sovereign-engine/internal/draft"
	"github.com/igoryan-dao/sovereign-engine/internal/grid"
	"github.com/igoryan-dao/sovereign-engine/internal/handle"
	"github.com/igoryan-dao/sovereign-engine/internal/llm"
	"github.com/igoryan-dao/sovereign-engine/internal/paths"
	"github.com/igoryan-dao/sovereign-engine/internal/poller"
	"github.com/igoryan-dao/sovereign-engine/internal/publish"
	"github.com/igoryan-dao/sovereign-engine/internal/registry"
	"github.com/igoryan-dao/sovereign-engine/internal/shellexec"
	"github.com/igoryan-dao/sovereign-engine/internal/steering"
	"github.com/igoryan-dao/sovereign-engine/internal/task"
	"github.com/igoryan-dao/sovereign-engine/internal/transparency"
)

// backendKinds is the closed set of IPC backends (spec §4.2), cycled across
// cognitive rooms so a single process can exercise all five.
var backendKinds = []string{"iterm", "terminal", "kitty", "wezterm", "system-events"}

func main() {
	log.SetPrefix("[sovereignd] ")
	log.SetOutput(os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	root, err := paths.NewRoot(cfg.DataDir)
	if err != nil {
		log.Fatalf("paths: %v", err)
	}

	lock := flock.New(root.LockFile())
	locked, err := lock.TryLock()
	if err != nil {
		log.Fatalf("lock: %v", err)
	}
	if !locked {
		log.Fatalf("lock: another sovereignd already owns %s", cfg.DataDir)
	}
	defer lock.Unlock()

	if err := paths.EnsureDir(root.RoomContextDir()); err != nil {
		log.Fatalf("paths: room-context dir: %v", err)
	}

	journal, err := task.Open(root.TasksJournal())
	if err != nil {
		log.Fatalf("task: open journal: %v", err)
	}
	defer journal.Close()

	gridStore, err := grid.Open(root.GridEventsJournal())
	if err != nil {
		log.Fatalf("grid: open: %v", err)
	}
	defer gridStore.Close()

	reg, err := registry.New(root.ChannelMap())
	if err != nil {
		log.Fatalf("registry: open: %v", err)
	}

	authority := bootstrapAuthority(cfg)

	gateway, err := discordchat.New(cfg.DiscordToken, cfg.DiscordGuildID)
	if err != nil {
		log.Fatalf("discordchat: %v", err)
	}
	if err := gateway.Open(); err != nil {
		log.Fatalf("discordchat: open: %v", err)
	}
	defer gateway.Close()

	roomNames := make([]string, len(grid.Cells))
	cellForRoom := make(map[string]string, len(grid.Cells))
	for i, c := range grid.Cells {
		roomNames[i] = c.Room
		cellForRoom[c.Room] = c.ID
	}

	if err := reg.Bootstrap(gateway, cfg.CategoryName, roomNames); err != nil {
		log.Fatalf("registry: bootstrap: %v", err)
	}

	arbiter := clipboard.New(time.Duration(cfg.ClipboardAutoReleaseMs) * time.Millisecond)
	backends, dispatchers := buildCaptureBindings(cfg, arbiter, roomNames)
	captureSvc := capture.NewService(backends)

	router := reg.Router()
	router.SetPoster(func(channelID, text string) error {
		_, err := gateway.Post(channelID, text)
		return err
	})
	startAdapters(cfg, router)

	p := poller.New(journal, captureSvc, gateway, reg, cfg.PollInterval(), cfg.TaskTimeout(), cfg.Stabilization())
	p.SetOnComplete(func(t *task.Task) {
		if cellID, ok := cellForRoom[t.Room]; ok {
			gridStore.EmitByCell(cellID)
		}
	})

	llmClient := llm.New(cfg.LLMEndpoint, cfg.LLMModel, llm.Options{Temperature: 0.7, NumPredict: 256})
	xPostsChannel, _ := reg.XPostsChannel()
	draftQueue := draft.New(llmClient, gateway, xPostsChannel, cfg.MaxDailyPosts)

	trustDebtChannel, _ := reg.TrustDebtPublicChannel()
	reporter := transparency.New(discordchat.NoticePoster{Gateway: gateway}, trustDebtChannel,
		cfg.SpikeThreshold, time.Duration(cfg.ReportIntervalMs)*time.Millisecond)
	reporter.StartPeriodicSummary()
	defer reporter.Stop()

	publisher := &publish.ChromeDPPublisher{
		ComposeURL:       cfg.TweetComposeURL,
		ComposerSelector: cfg.TweetComposerSelector,
		SubmitSelector:   cfg.TweetSubmitSelector,
	}
	publishSvc := publish.New(publisher, draftQueue, discordchat.NoticePoster{Gateway: gateway}, xPostsChannel)

	steeringCfg := steering.Config{
		AskPredictTimeout:        time.Duration(cfg.AskPredictTimeoutMs) * time.Millisecond,
		RedirectGracePeriod:      time.Duration(cfg.RedirectGraceMs) * time.Millisecond,
		MaxConcurrentPredictions: cfg.MaxConcurrentPreds,
		UseSovereigntyTimeouts:   cfg.UseSovereigntyTimeouts,
	}
	sovereignty := func() float64 { return cfg.SovereigntyScore }
	steeringLoop := steering.New(steeringCfg, gateway, newExecutor(journal, dispatchers), sovereignty)

	driftDetector := grid.NewDetector(buildDetectorConfig(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wireGatewayHandlers(gateway, reg, authority, steeringLoop, draftQueue, publishSvc, journal, reporter)

	stop := make(chan struct{})
	go p.Run(stop)
	go runDriftLoop(ctx, driftDetector, gridStore, cellForRoom, time.Duration(cfg.DriftScanIntervalMs)*time.Millisecond)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("shutting down...")
	close(stop)
	cancel()
}

// bootstrapAuthority seeds the Handle Authority from the up-to-two admin
// external ids supplied at startup (spec §6); absence is not fatal.
func bootstrapAuthority(cfg *config.Config) *handle.Authority {
	authority := handle.New()
	for i, id := range cfg.AdminExternalIDs {
		authority.AddHandle(handle.Handle{
			Username:   fmt.Sprintf("admin-%d", i+1),
			ExternalID: id,
			Policy:     handle.PolicyInstantExecute,
			Rooms:      handle.AllRooms(),
		})
	}
	return authority
}

// buildCaptureBindings assigns each cognitive room one of the five IPC
// backend kinds round-robin, constructing one shared backend/dispatcher
// pair per kind so windows are matched consistently across rooms that share
// an application.
func buildCaptureBindings(cfg *config.Config, arbiter *clipboard.Arbiter, rooms []string) (map[string]capture.Backend, map[string]capture.Dispatcher) {
	itermHints := map[string]string{}
	terminalHints := map[string]string{}
	kittyHints := map[string]string{}
	weztermHints := map[string]string{}
	systemEventsApps := map[string]string{}

	kindByRoom := make(map[string]string, len(rooms))
	for i, room := range rooms {
		kind := backendKinds[i%len(backendKinds)]
		kindByRoom[room] = kind
		switch kind {
		case "iterm":
			itermHints[room] = room
		case "terminal":
			terminalHints[room] = room
		case "kitty":
			kittyHints[room] = room
		case "wezterm":
			weztermHints[room] = room
		case "system-events":
			systemEventsApps[room] = "Terminal"
		}
	}

	itermBackend := &capture.AppleScriptBackend{AppName: "iTerm", TitleHint: itermHints}
	terminalBackend := &capture.AppleScriptBackend{AppName: "Terminal", TitleHint: terminalHints}
	kittyBackend := &capture.KittyBackend{Socket: cfg.KittySocket, TitleHint: kittyHints}
	weztermBackend := &capture.WeztermBackend{TitleHint: weztermHints}
	systemEventsBackend := capture.NewSystemEventsBackend(arbiter, systemEventsApps, "poller-capture")

	itermDispatcher := &capture.AppleScriptDispatcher{AppName: "iTerm", TitleHint: itermHints}
	terminalDispatcher := &capture.AppleScriptDispatcher{AppName: "Terminal", TitleHint: terminalHints}
	kittyDispatcher := &capture.KittyDispatcher{Socket: cfg.KittySocket, TitleHint: kittyHints}
	weztermDispatcher := &capture.WeztermDispatcher{TitleHint: weztermHints}
	systemEventsDispatcher := capture.NewSystemEventsDispatcher(arbiter, systemEventsApps, "steering-dispatch")

	backends := make(map[string]capture.Backend, len(rooms))
	dispatchers := make(map[string]capture.Dispatcher, len(rooms))
	for _, room := range rooms {
		switch kindByRoom[room] {
		case "iterm":
			backends[room] = itermBackend
			dispatchers[room] = itermDispatcher
		case "terminal":
			backends[room] = terminalBackend
			dispatchers[room] = terminalDispatcher
		case "kitty":
			backends[room] = kittyBackend
			dispatchers[room] = kittyDispatcher
		case "wezterm":
			backends[room] = weztermBackend
			dispatchers[room] = weztermDispatcher
		case "system-events":
			backends[room] = systemEventsBackend
			dispatchers[room] = systemEventsDispatcher
		}
	}
	return backends, dispatchers
}

// startAdapters registers the configured Cross-Channel Router adapters and
// starts their inbound loops.
func startAdapters(cfg *config.Config, router *registry.Router) {
	if cfg.TelegramToken != "" {
		adapter, err := registry.NewTelegramAdapter("telegram", cfg.TelegramToken)
		if err != nil {
			log.Printf("registry: telegram adapter: %v", err)
		} else {
			router.RegisterAdapter(adapter)
			go adapter.Start(context.Background())
		}
	}
	if cfg.WebsocketBridgeURL != "" {
		adapter := registry.NewWebsocketAdapter("websocket", cfg.WebsocketBridgeURL)
		router.RegisterAdapter(adapter)
		go func() {
			if err := adapter.Run(context.Background()); err != nil {
				log.Printf("registry: websocket adapter: %v", err)
			}
		}()
	}
}

// newExecutor builds the Steering Loop's Executor: it enforces invariant I1
// (at most one running task per room) before creating and dispatching a new
// task (spec §2, §4.4).
func newExecutor(journal *task.Journal, dispatchers map[string]capture.Dispatcher) steering.Executor {
	return func(p *steering.Prediction) error {
		if running := journal.RunningForRoom(p.Room); running != nil {
			return fmt.Errorf("room %q already has running task %s", p.Room, running.ID)
		}
		dispatcher, ok := dispatchers[p.Room]
		if !ok {
			return fmt.Errorf("no dispatcher configured for room %q", p.Room)
		}
		t := journal.Create(p.Room, p.Channel, p.Prompt)
		if err := dispatcher.Dispatch(p.Room, p.Prompt); err != nil {
			journal.UpdateStatus(t.ID, task.StatusFailed, map[string]any{"error": err.Error()})
			return fmt.Errorf("dispatch to room %q: %w", p.Room, err)
		}
		journal.UpdateStatus(t.ID, task.StatusDispatched, nil)
		return nil
	}
}

// buildDetectorConfig wires the Drift Detector sidecar against the same
// spec/pipeline docs and repo paths every cell concerns itself with. The
// per-cell keyword and path assignment mirrors each cell's label.
func buildDetectorConfig(cfg *config.Config) grid.DetectorConfig {
	keywords := map[string][]string{
		"A1": {"vision", "north star", "mission"},
		"A2": {"roadmap", "milestone", "quarter"},
		"A3": {"narrative", "story", "messaging"},
		"A4": {"allies", "partnership", "coalition"},
		"B1": {"campaign", "launch"},
		"B2": {"draft", "copy", "post"},
		"B3": {"outreach", "dm", "cold email"},
		"B4": {"metrics", "funnel", "conversion"},
		"C1": {"infra", "deploy", "server"},
		"C2": {"automation", "script", "pipeline"},
		"C3": {"support", "ticket", "incident"},
		"C4": {"logs", "observability", "trace"},
	}
	repoPaths := map[string][]string{}
	for _, c := range grid.Cells {
		repoPaths[c.ID] = []string{cfg.RepoPath}
	}
	return grid.DetectorConfig{
		SpecDocPath:     cfg.SpecDocPath,
		PipelineDocPath: cfg.PipelineDocPath,
		Keywords:        keywords,
		RepoPaths:       repoPaths,
	}
}

// runDriftLoop runs the Drift Detector sidecar on interval, emitting one
// grid event per focus-needed cell so the recommendation has fresh
// pressure behind it.
func runDriftLoop(ctx context.Context, d *grid.Detector, g *grid.Grid, cellForRoom map[string]string, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := d.Scan(ctx)
			if err != nil {
				log.Printf("grid: drift scan failed: %v", err)
				continue
			}
			log.Printf("grid: drift scan: global average %.2f, recommendation: %s", result.GlobalAverage, result.FocusRecommendation)
			for _, hot := range result.HotCells {
				g.EmitByCell(hot.CellID)
			}
		}
	}
}

// wireGatewayHandlers binds inbound Discord events to the Handle Authority,
// Registry, Steering Loop, Draft Queue, and External Publish path (spec §2's
// control flow).
func wireGatewayHandlers(
	gateway *discordchat.Gateway,
	reg *registry.Registry,
	authority *handle.Authority,
	steeringLoop *steering.Loop,
	draftQueue *draft.Queue,
	publishSvc *publish.Service,
	journal *task.Journal,
	reporter *transparency.Reporter,
) {
	gateway.OnMessage(func(channelID, username, userID string, isAdmin bool, content string) {
		if room, ok := reg.RoomForChannel(channelID); ok {
			tier := authority.ResolveTier(username, room, userID)
			if tier == handle.TierGeneral && !isAdmin {
				reporter.RecordDenial(username, "instant-execute in "+room, "general tier requires admin bless")
			}
			steeringLoop.HandleMessage(tier, room, channelID, content, username, []string{room})
			return
		}
		if reg.IsOpsBoardChannel(channelID) && isAdmin {
			handleOpsCommand(gateway, journal, channelID, content)
		}
	})

	gateway.OnReaction(func(channelID, messageID, emoji, username, userID string, isAdmin bool) {
		if _, ok := reg.RoomForChannel(channelID); ok {
			if isAdmin && emoji == "✅" {
				steeringLoop.AdminBless(messageID, username)
			}
			return
		}
		if !reg.IsXPostsChannel(channelID) {
			return
		}
		if !isAdmin {
			return
		}
		switch emoji {
		case "👍":
			if err := publishSvc.HandleApprovalReaction(context.Background(), messageID); err != nil {
				log.Printf("publish: approval failed: %v", err)
			}
		case "🗑️", "🗑":
			if d := draftQueue.FindDraftByMessageID(messageID); d != nil {
				draftQueue.RemoveDraft(d.ID)
			}
		}
	})
}

// handleOpsCommand implements the two admin utility commands exposed in the
// ops-board channel: "!exec <command line>" runs a bounded shell command via
// the shellexec external collaborator and posts its output back; "!kill
// <room>" ends a room's active task (spec §4.4's kill_room).
func handleOpsCommand(gateway *discordchat.Gateway, journal *task.Journal, channelID, content string) {
	switch {
	case strings.HasPrefix(content, "!exec "):
		commandLine := strings.TrimPrefix(content, "!exec ")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		res, err := shellexec.Exec(ctx, commandLine)
		if err != nil {
			gateway.Post(channelID, fmt.Sprintf("❌ exec failed: %v", err))
			return
		}
		gateway.Post(channelID, fmt.Sprintf("exit %d\n```\n%s\n```", res.ExitCode, res.Stdout+res.Stderr))
	case strings.HasPrefix(content, "!kill "):
		room := strings.TrimSpace(strings.TrimPrefix(content, "!kill "))
		if journal.KillRoom(room) {
			gateway.Post(channelID, fmt.Sprintf("killed active task in room %q", room))
		} else {
			gateway.Post(channelID, fmt.Sprintf("no active task in room %q", room))
		}
	}
}
