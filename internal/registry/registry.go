// Package registry implements the Room/Channel Registry and the
// Cross-Channel Router layered on top of it (spec §4.5).
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

const (
	ExtraTrustDebtPublic = "trust-debt-public"
	ExtraTesseractNu     = "tesseract-nu"
	ExtraXPosts          = "x-posts"
	ExtraOpsBoard        = "ops-board"

	maxContextLines = 50
)

// Guild is the subset of a chat-platform guild/category API the registry
// needs to ensure channels exist. A concrete discordchat adapter implements
// this against discordgo.
type Guild interface {
	EnsureCategory(name string) (categoryID string, err error)
	EnsureTextChannel(categoryID, name string) (channelID string, err error)
}

// channelMap is the persisted id<->room mapping, plus the four extras.
type channelMap struct {
	RoomToChannel map[string]string `json:"room_to_channel"`
	ChannelToRoom map[string]string `json:"channel_to_room"`
	Extras        map[string]string `json:"extras"`
}

// Registry owns the room<->channel mapping and the rolling per-room
// context buffer.
type Registry struct {
	path string

	mu      sync.RWMutex
	data    channelMap
	context map[string][]string

	router *Router
}

// New creates a Registry backed by the channel-map file at path. The file
// is loaded if it exists; otherwise an empty mapping is started.
func New(path string) (*Registry, error) {
	r := &Registry{
		path: path,
		data: channelMap{
			RoomToChannel: make(map[string]string),
			ChannelToRoom: make(map[string]string),
			Extras:        make(map[string]string),
		},
		context: make(map[string][]string),
	}
	r.router = newRouter(r)

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("registry: read channel map: %w", err)
	}
	if err := json.Unmarshal(raw, &r.data); err != nil {
		return nil, fmt.Errorf("registry: decode channel map: %w", err)
	}
	if r.data.RoomToChannel == nil {
		r.data.RoomToChannel = make(map[string]string)
	}
	if r.data.ChannelToRoom == nil {
		r.data.ChannelToRoom = make(map[string]string)
	}
	if r.data.Extras == nil {
		r.data.Extras = make(map[string]string)
	}
	return r, nil
}

func (r *Registry) save() error {
	raw, err := json.MarshalIndent(r.data, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: encode channel map: %w", err)
	}
	if err := os.WriteFile(r.path, raw, 0644); err != nil {
		return fmt.Errorf("registry: write channel map: %w", err)
	}
	return nil
}

// Bootstrap ensures a category exists under guild, one text channel per
// room in rooms, and the four extra channels, persisting the resulting
// mapping.
func (r *Registry) Bootstrap(g Guild, categoryName string, rooms []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	categoryID, err := g.EnsureCategory(categoryName)
	if err != nil {
		return fmt.Errorf("registry: ensure category %q: %w", categoryName, err)
	}

	for _, room := range rooms {
		if _, ok := r.data.RoomToChannel[room]; ok {
			continue
		}
		channelID, err := g.EnsureTextChannel(categoryID, room)
		if err != nil {
			return fmt.Errorf("registry: ensure channel for room %q: %w", room, err)
		}
		r.data.RoomToChannel[room] = channelID
		r.data.ChannelToRoom[channelID] = room
	}

	for _, extra := range []string{ExtraTrustDebtPublic, ExtraTesseractNu, ExtraXPosts, ExtraOpsBoard} {
		if _, ok := r.data.Extras[extra]; ok {
			continue
		}
		channelID, err := g.EnsureTextChannel(categoryID, extra)
		if err != nil {
			return fmt.Errorf("registry: ensure extra channel %q: %w", extra, err)
		}
		r.data.Extras[extra] = channelID
	}

	return r.save()
}

// RoomForChannel returns the room name a channel id is mapped to, if any.
func (r *Registry) RoomForChannel(channelID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.data.ChannelToRoom[channelID]
	return room, ok
}

// ChannelForRoom returns the channel id a room name is mapped to, if any.
func (r *Registry) ChannelForRoom(room string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.data.RoomToChannel[room]
	return ch, ok
}

// IsRoomChannel reports whether channelID is a room channel.
func (r *Registry) IsRoomChannel(channelID string) bool {
	_, ok := r.RoomForChannel(channelID)
	return ok
}

func (r *Registry) isExtra(name, channelID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data.Extras[name] == channelID
}

// IsXPostsChannel reports whether channelID is the x-posts channel.
func (r *Registry) IsXPostsChannel(channelID string) bool { return r.isExtra(ExtraXPosts, channelID) }

// IsOpsBoardChannel reports whether channelID is the ops-board channel.
func (r *Registry) IsOpsBoardChannel(channelID string) bool {
	return r.isExtra(ExtraOpsBoard, channelID)
}

func (r *Registry) extra(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.data.Extras[name]
	return ch, ok
}

// TrustDebtPublicChannel returns the trust-debt-public channel id.
func (r *Registry) TrustDebtPublicChannel() (string, bool) { return r.extra(ExtraTrustDebtPublic) }

// TesseractNuChannel returns the tesseract-nu channel id.
func (r *Registry) TesseractNuChannel() (string, bool) { return r.extra(ExtraTesseractNu) }

// XPostsChannel returns the x-posts channel id.
func (r *Registry) XPostsChannel() (string, bool) { return r.extra(ExtraXPosts) }

// OpsBoardChannel returns the ops-board channel id.
func (r *Registry) OpsBoardChannel() (string, bool) { return r.extra(ExtraOpsBoard) }

// GetRoomContext returns the rolling context for room, or "" if absent.
func (r *Registry) GetRoomContext(room string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lines := r.context[room]
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n")
}

// UpdateRoomContext appends output's lines to room's rolling context,
// keeping only the most recent maxContextLines lines.
func (r *Registry) UpdateRoomContext(room, output string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lines := append(r.context[room], strings.Split(output, "\n")...)
	if len(lines) > maxContextLines {
		lines = lines[len(lines)-maxContextLines:]
	}
	r.context[room] = lines
}

// ClearRoomContext discards room's rolling context.
func (r *Registry) ClearRoomContext(room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.context, room)
}

// Router returns the Cross-Channel Router bound to this registry.
func (r *Registry) Router() *Router { return r.router }

// PostFunc posts text to a channel. Bound by the caller (typically a
// discordchat gateway) at wiring time via Router.SetPoster.
type PostFunc func(channelID, text string) error
