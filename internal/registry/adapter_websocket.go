package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// wsEnvelope is the wire format exchanged with a generic websocket bridge:
// a bidirectional JSON message naming the chat/channel id, its author, and
// its text.
type wsEnvelope struct {
	ChatID string `json:"chat_id"`
	Author string `json:"author"`
	Text   string `json:"text"`
}

// WebsocketAdapter is a Router Adapter over a plain JSON-over-websocket
// connection, for bridging a custom or third-party chat surface that
// speaks neither Discord nor Telegram.
type WebsocketAdapter struct {
	name string
	url  string

	mu        sync.Mutex
	conn      *websocket.Conn
	onMsg     func(sourceID, content, author string)
	connected atomic.Bool
}

// NewWebsocketAdapter constructs an adapter that will dial url when Run is
// called.
func NewWebsocketAdapter(name, url string) *WebsocketAdapter {
	return &WebsocketAdapter{name: name, url: url}
}

// Run dials url and reads inbound envelopes until ctx is canceled or the
// connection drops. Call it from its own goroutine; it blocks and
// reconnects are the caller's responsibility.
func (a *WebsocketAdapter) Run(ctx context.Context) error {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, a.url, nil)
	if err != nil {
		return fmt.Errorf("registry: websocket adapter %q dial: %w", a.name, err)
	}

	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()
	a.connected.Store(true)
	defer func() {
		a.connected.Store(false)
		conn.Close()
	}()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Printf("registry: websocket adapter %q read failed: %v", a.name, err)
			return err
		}
		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("registry: websocket adapter %q dropped malformed message: %v", a.name, err)
			continue
		}
		a.mu.Lock()
		cb := a.onMsg
		a.mu.Unlock()
		if cb != nil {
			cb(env.ChatID, env.Text, env.Author)
		}
	}
}

func (a *WebsocketAdapter) Name() string { return a.name }

func (a *WebsocketAdapter) Status() AdapterStatus {
	if a.connected.Load() {
		return StatusConnected
	}
	return StatusDisconnected
}

// SendMessage writes text to chatID as a JSON envelope, bounded by a 5s
// write deadline.
func (a *WebsocketAdapter) SendMessage(chatID, text string) error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil || !a.connected.Load() {
		return fmt.Errorf("registry: websocket adapter %q not connected", a.name)
	}

	payload, err := json.Marshal(wsEnvelope{ChatID: chatID, Text: text})
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (a *WebsocketAdapter) OnMessage(callback func(sourceID, content, author string)) {
	a.mu.Lock()
	a.onMsg = callback
	a.mu.Unlock()
}
