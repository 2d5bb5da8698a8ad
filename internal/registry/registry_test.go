package registry

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

type fakeGuild struct {
	nextID int
}

func (g *fakeGuild) EnsureCategory(name string) (string, error) {
	g.nextID++
	return fmt.Sprintf("cat-%d", g.nextID), nil
}

func (g *fakeGuild) EnsureTextChannel(categoryID, name string) (string, error) {
	g.nextID++
	return fmt.Sprintf("chan-%d-%s", g.nextID, name), nil
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New(filepath.Join(t.TempDir(), "channel-map.json"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestBootstrapCreatesRoomsAndExtras(t *testing.T) {
	r := newTestRegistry(t)
	g := &fakeGuild{}
	if err := r.Bootstrap(g, "sovereign", []string{"room-a", "room-b"}); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	for _, room := range []string{"room-a", "room-b"} {
		ch, ok := r.ChannelForRoom(room)
		if !ok || !strings.Contains(ch, room) {
			t.Fatalf("expected channel mapped for room %q, got %q (%v)", room, ch, ok)
		}
		if gotRoom, ok := r.RoomForChannel(ch); !ok || gotRoom != room {
			t.Fatalf("expected reverse mapping for channel %q to resolve to room %q, got %q", ch, room, gotRoom)
		}
	}

	if _, ok := r.XPostsChannel(); !ok {
		t.Fatal("expected x-posts extra channel to be created")
	}
	if _, ok := r.OpsBoardChannel(); !ok {
		t.Fatal("expected ops-board extra channel to be created")
	}
}

func TestBootstrapIsIdempotent(t *testing.T) {
	r := newTestRegistry(t)
	g := &fakeGuild{}
	if err := r.Bootstrap(g, "sovereign", []string{"room-a"}); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	first, _ := r.ChannelForRoom("room-a")

	if err := r.Bootstrap(g, "sovereign", []string{"room-a"}); err != nil {
		t.Fatalf("second Bootstrap: %v", err)
	}
	second, _ := r.ChannelForRoom("room-a")

	if first != second {
		t.Fatalf("expected idempotent bootstrap, got %q then %q", first, second)
	}
}

func TestRoomContextTruncatesToFiftyLines(t *testing.T) {
	r := newTestRegistry(t)
	for i := 0; i < 60; i++ {
		r.UpdateRoomContext("room-a", fmt.Sprintf("line-%d", i))
	}
	ctx := r.GetRoomContext("room-a")
	lines := strings.Split(ctx, "\n")
	if len(lines) != maxContextLines {
		t.Fatalf("expected %d lines, got %d", maxContextLines, len(lines))
	}
	if lines[0] != "line-10" {
		t.Fatalf("expected oldest surviving line to be line-10, got %q", lines[0])
	}
}

func TestClearRoomContext(t *testing.T) {
	r := newTestRegistry(t)
	r.UpdateRoomContext("room-a", "hello")
	r.ClearRoomContext("room-a")
	if ctx := r.GetRoomContext("room-a"); ctx != "" {
		t.Fatalf("expected empty context after clear, got %q", ctx)
	}
}

func TestPersistAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "channel-map.json")

	r, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	g := &fakeGuild{}
	if err := r.Bootstrap(g, "sovereign", []string{"room-a"}); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	wantChannel, _ := r.ChannelForRoom("room-a")

	reloaded, err := New(path)
	if err != nil {
		t.Fatalf("reload New: %v", err)
	}
	gotChannel, ok := reloaded.ChannelForRoom("room-a")
	if !ok || gotChannel != wantChannel {
		t.Fatalf("expected reloaded mapping %q, got %q (%v)", wantChannel, gotChannel, ok)
	}
}

type fakeAdapter struct {
	name     string
	status   AdapterStatus
	sent     []string
	callback func(sourceID, content, author string)
}

func (a *fakeAdapter) Name() string        { return a.name }
func (a *fakeAdapter) Status() AdapterStatus { return a.status }
func (a *fakeAdapter) SendMessage(chatID, text string) error {
	a.sent = append(a.sent, chatID+":"+text)
	return nil
}
func (a *fakeAdapter) OnMessage(cb func(sourceID, content, author string)) { a.callback = cb }

func TestRouteMessagePostsToMappedRoom(t *testing.T) {
	r := newTestRegistry(t)
	g := &fakeGuild{}
	r.Bootstrap(g, "sovereign", []string{"room-a"})
	channelID, _ := r.ChannelForRoom("room-a")

	var posted []string
	r.Router().SetPoster(func(ch, text string) error {
		posted = append(posted, ch+":"+text)
		return nil
	})

	r.Router().RouteMessage("telegram", "chat-1", "hello", "rio", "room-a")

	if len(posted) != 1 || posted[0] != channelID+":[telegram] rio: hello" {
		t.Fatalf("unexpected posted messages: %v", posted)
	}
}

func TestRouteMessageUnmappedRoomLogsAndDrops(t *testing.T) {
	r := newTestRegistry(t)
	posted := 0
	r.Router().SetPoster(func(ch, text string) error { posted++; return nil })
	r.Router().RouteMessage("telegram", "chat-1", "hello", "rio", "nowhere")
	if posted != 0 {
		t.Fatalf("expected no post for unmapped room, got %d", posted)
	}
}

func TestRegisterMessageHandlerOverridesDefault(t *testing.T) {
	r := newTestRegistry(t)
	var called bool
	r.Router().RegisterMessageHandler("telegram", func(sourceID, content, author, targetRoom string) {
		called = true
	})
	r.Router().RouteMessage("telegram", "chat-1", "hello", "rio", "room-a")
	if !called {
		t.Fatal("expected custom handler to be invoked")
	}
}

func TestSendToExternalChannelFailsFastWhenMissing(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Router().SendToExternalChannel("ghost", "chat-1", "hi"); err == nil {
		t.Fatal("expected error for unknown adapter")
	}
}

func TestSendToExternalChannelFailsFastWhenDisconnected(t *testing.T) {
	r := newTestRegistry(t)
	a := &fakeAdapter{name: "telegram", status: StatusDisconnected}
	r.Router().RegisterAdapter(a)
	if err := r.Router().SendToExternalChannel("telegram", "chat-1", "hi"); err == nil {
		t.Fatal("expected error for disconnected adapter")
	}
	if len(a.sent) != 0 {
		t.Fatal("expected no send attempted")
	}
}

func TestSendToExternalChannelSendsWhenConnected(t *testing.T) {
	r := newTestRegistry(t)
	a := &fakeAdapter{name: "telegram", status: StatusConnected}
	r.Router().RegisterAdapter(a)
	if err := r.Router().SendToExternalChannel("telegram", "chat-1", "hi"); err != nil {
		t.Fatalf("SendToExternalChannel: %v", err)
	}
	if len(a.sent) != 1 || a.sent[0] != "chat-1:hi" {
		t.Fatalf("unexpected sent messages: %v", a.sent)
	}
}

func TestRegisterAdapterBindsInboundCallback(t *testing.T) {
	r := newTestRegistry(t)
	g := &fakeGuild{}
	r.Bootstrap(g, "sovereign", []string{"room-a"})
	channelID, _ := r.ChannelForRoom("room-a")

	var posted []string
	r.Router().SetPoster(func(ch, text string) error {
		posted = append(posted, ch+":"+text)
		return nil
	})

	a := &fakeAdapter{name: "telegram", status: StatusConnected}
	r.Router().RegisterAdapter(a)
	a.callback("chat-1", "hello", "rio")

	// Adapter-driven inbound callback has no target room bound, so it
	// should log-and-drop rather than post anywhere, matching
	// RouteMessage's unmapped-room behavior for targetRoom="".
	if len(posted) != 0 {
		t.Fatalf("expected no post without a bound target room, got %v", posted)
	}
	_ = channelID
}
