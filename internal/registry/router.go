package registry

import (
	"fmt"
	"log"
	"sync"
)

// AdapterStatus reports the connection state of a registered Adapter.
type AdapterStatus string

const (
	StatusConnected    AdapterStatus = "connected"
	StatusDisconnected AdapterStatus = "disconnected"
)

// Adapter is one external chat transport (Telegram, a generic websocket
// bridge, ...). The Router treats every adapter identically regardless of
// the underlying transport.
type Adapter interface {
	Name() string
	Status() AdapterStatus
	SendMessage(chatID, text string) error
	OnMessage(callback func(sourceID, content, author string))
}

// MessageHandler is a custom per-source inbound handler registered via
// RegisterMessageHandler, overriding the router's default room-posting
// behavior.
type MessageHandler func(sourceID, content, author, targetRoom string)

// Router is the Cross-Channel Router: it binds external adapters'
// inbound messages to room channels and dispatches outbound sends back
// out through a named adapter.
type Router struct {
	registry *Registry
	poster   PostFunc

	mu       sync.RWMutex
	adapters map[string]Adapter
	handlers map[string]MessageHandler
}

func newRouter(r *Registry) *Router {
	return &Router{
		registry: r,
		adapters: make(map[string]Adapter),
		handlers: make(map[string]MessageHandler),
	}
}

// SetPoster wires the function the router uses to post routed messages
// into a room's channel.
func (rt *Router) SetPoster(p PostFunc) { rt.poster = p }

// RegisterAdapter adds adapter to the router and binds its inbound
// callback to RouteMessage.
func (rt *Router) RegisterAdapter(a Adapter) {
	rt.mu.Lock()
	rt.adapters[a.Name()] = a
	rt.mu.Unlock()

	name := a.Name()
	a.OnMessage(func(sourceID, content, author string) {
		rt.RouteMessage(name, sourceID, content, author, "")
	})
}

// RegisterMessageHandler installs a custom inbound handler for source,
// overriding the router's default "post into the mapped room" behavior.
func (rt *Router) RegisterMessageHandler(source string, fn MessageHandler) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.handlers[source] = fn
}

// RouteMessage implements the inbound routing rule in spec §4.5: a custom
// handler for source takes priority; otherwise the message is posted into
// targetRoom's mapped channel as "[source] author: content".
func (rt *Router) RouteMessage(source, sourceID, content, author, targetRoom string) {
	rt.mu.RLock()
	handler, hasHandler := rt.handlers[source]
	rt.mu.RUnlock()

	if hasHandler {
		handler(sourceID, content, author, targetRoom)
		return
	}

	channelID, ok := rt.registry.ChannelForRoom(targetRoom)
	if !ok {
		log.Printf("registry: route_message: no channel mapped for room %q (source %s)", targetRoom, source)
		return
	}
	if rt.poster == nil {
		log.Printf("registry: route_message: no poster configured, dropping message for room %q", targetRoom)
		return
	}
	text := fmt.Sprintf("[%s] %s: %s", source, author, content)
	if err := rt.poster(channelID, text); err != nil {
		log.Printf("registry: route_message: post to room %q failed: %v", targetRoom, err)
	}
}

// SendToExternalChannel implements the outbound rule in spec §4.5: fail
// fast and warn when the named adapter is missing or not connected.
func (rt *Router) SendToExternalChannel(adapterName, chatID, text string) error {
	rt.mu.RLock()
	a, ok := rt.adapters[adapterName]
	rt.mu.RUnlock()

	if !ok {
		log.Printf("registry: send_to_external_channel: unknown adapter %q", adapterName)
		return fmt.Errorf("registry: unknown adapter %q", adapterName)
	}
	if a.Status() != StatusConnected {
		log.Printf("registry: send_to_external_channel: adapter %q not connected (status %s)", adapterName, a.Status())
		return fmt.Errorf("registry: adapter %q not connected", adapterName)
	}
	return a.SendMessage(chatID, text)
}
