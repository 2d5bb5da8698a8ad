// Package discordchat is the concrete discordgo-based chat gateway
// adapter: it implements the external chat-gateway interface (spec §6)
// that the Registry, Poller, Steering Loop, Draft Queue, and Transparency
// Reporter are each wired against through small Poster-shaped interfaces.
package discordchat

import (
	"bytes"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// MessageHandler receives one inbound chat message.
type MessageHandler func(channelID, authorUsername, authorID string, isAdmin bool, content string)

// ReactionHandler receives one inbound reaction-added event.
type ReactionHandler func(channelID, messageID, emoji, reactorUsername, reactorID string, isAdmin bool)

// Gateway wraps a discordgo.Session with the operations the rest of the
// engine needs, matching the external chat gateway interface in spec §6.
type Gateway struct {
	session *discordgo.Session
	guildID string

	mu              sync.RWMutex
	messageHandler  MessageHandler
	reactionHandler ReactionHandler
}

// New creates a Gateway bound to one guild, restricting message/reaction
// handling to that guild when guildID is non-empty.
func New(token, guildID string) (*Gateway, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discordchat: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent | discordgo.IntentsGuildMessageReactions

	g := &Gateway{session: session, guildID: guildID}
	session.AddHandler(g.onMessageCreate)
	session.AddHandler(g.onReactionAdd)
	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		log.Printf("discordchat: connected as %s#%s", r.User.Username, r.User.Discriminator)
	})
	return g, nil
}

// Open starts the Discord websocket connection.
func (g *Gateway) Open() error { return g.session.Open() }

// Close terminates the Discord websocket connection.
func (g *Gateway) Close() error { return g.session.Close() }

// OnMessage installs the inbound message handler.
func (g *Gateway) OnMessage(fn MessageHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.messageHandler = fn
}

// OnReaction installs the inbound reaction handler.
func (g *Gateway) OnReaction(fn ReactionHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reactionHandler = fn
}

func (g *Gateway) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}
	if g.guildID != "" && m.GuildID != g.guildID {
		return
	}
	g.mu.RLock()
	handler := g.messageHandler
	g.mu.RUnlock()
	if handler == nil {
		return
	}
	handler(m.ChannelID, m.Author.Username, m.Author.ID, g.isAdmin(m.GuildID, m.Author.ID), m.Content)
}

func (g *Gateway) onReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if s.State.User != nil && r.UserID == s.State.User.ID {
		return
	}
	if g.guildID != "" && r.GuildID != g.guildID {
		return
	}
	g.mu.RLock()
	handler := g.reactionHandler
	g.mu.RUnlock()
	if handler == nil {
		return
	}
	username := r.UserID
	if r.Member != nil && r.Member.User != nil {
		username = r.Member.User.Username
	}
	handler(r.ChannelID, r.MessageID, r.Emoji.Name, username, r.UserID, g.isAdmin(r.GuildID, r.UserID))
}

// isAdmin resolves whether userID holds a role with the Administrator
// permission in guildID. Failures resolve to false rather than erroring,
// since this only gates a convenience flag — the Handle Authority is the
// actual authorization source of truth.
func (g *Gateway) isAdmin(guildID, userID string) bool {
	if guildID == "" {
		return false
	}
	member, err := g.session.State.Member(guildID, userID)
	if err != nil {
		member, err = g.session.GuildMember(guildID, userID)
		if err != nil {
			return false
		}
	}
	guild, err := g.session.State.Guild(guildID)
	if err != nil {
		guild, err = g.session.Guild(guildID)
		if err != nil {
			return false
		}
	}
	roleByID := make(map[string]*discordgo.Role, len(guild.Roles))
	for _, role := range guild.Roles {
		roleByID[role.ID] = role
	}
	for _, roleID := range member.Roles {
		if role, ok := roleByID[roleID]; ok && role.Permissions&discordgo.PermissionAdministrator != 0 {
			return true
		}
	}
	return false
}

// SendToChannel implements send_to_channel (spec §6).
func (g *Gateway) SendToChannel(channelID, text string) (string, error) {
	msg, err := g.session.ChannelMessageSend(channelID, text)
	if err != nil {
		return "", fmt.Errorf("discordchat: send to channel %s: %w", channelID, err)
	}
	return msg.ID, nil
}

// EditMessage implements edit_message (spec §6).
func (g *Gateway) EditMessage(channelID, messageID, text string) error {
	_, err := g.session.ChannelMessageEdit(channelID, messageID, text)
	if err != nil {
		return fmt.Errorf("discordchat: edit message %s: %w", messageID, err)
	}
	return nil
}

// AddReaction implements add_reaction (spec §6).
func (g *Gateway) AddReaction(channelID, messageID, emoji string) error {
	if err := g.session.MessageReactionAdd(channelID, messageID, emoji); err != nil {
		return fmt.Errorf("discordchat: add reaction to %s: %w", messageID, err)
	}
	return nil
}

// SendFile implements send_file (spec §6).
func (g *Gateway) SendFile(channelID string, data []byte, filename string) (string, error) {
	msg, err := g.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Files: []*discordgo.File{{Name: filename, Reader: bytes.NewReader(data)}},
	})
	if err != nil {
		return "", fmt.Errorf("discordchat: send file to channel %s: %w", channelID, err)
	}
	return msg.ID, nil
}

// EnsureCategory implements the Guild interface registry.Bootstrap needs:
// finds or creates a category channel named name.
func (g *Gateway) EnsureCategory(name string) (string, error) {
	channels, err := g.session.GuildChannels(g.guildID)
	if err != nil {
		return "", fmt.Errorf("discordchat: list channels: %w", err)
	}
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildCategory && strings.EqualFold(ch.Name, name) {
			return ch.ID, nil
		}
	}
	created, err := g.session.GuildChannelCreate(g.guildID, name, discordgo.ChannelTypeGuildCategory)
	if err != nil {
		return "", fmt.Errorf("discordchat: create category %q: %w", name, err)
	}
	return created.ID, nil
}

// EnsureTextChannel implements the Guild interface: finds or creates a
// text channel named name under categoryID.
func (g *Gateway) EnsureTextChannel(categoryID, name string) (string, error) {
	channels, err := g.session.GuildChannels(g.guildID)
	if err != nil {
		return "", fmt.Errorf("discordchat: list channels: %w", err)
	}
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildText && ch.ParentID == categoryID && strings.EqualFold(ch.Name, name) {
			return ch.ID, nil
		}
	}
	created, err := g.session.GuildChannelCreateComplex(g.guildID, discordgo.GuildChannelCreateData{
		Name:     name,
		Type:     discordgo.ChannelTypeGuildText,
		ParentID: categoryID,
	})
	if err != nil {
		return "", fmt.Errorf("discordchat: create text channel %q: %w", name, err)
	}
	return created.ID, nil
}

// PostInline implements poller.Poster: header + preformatted body as one
// message.
func (g *Gateway) PostInline(channelID, header, body string) error {
	_, err := g.SendToChannel(channelID, header+"\n"+body)
	return err
}

// PostAttachment implements poller.Poster: header inline, full body as a
// text-file attachment.
func (g *Gateway) PostAttachment(channelID, header, filename, body string) error {
	if _, err := g.SendToChannel(channelID, header+"\n(output attached)"); err != nil {
		return err
	}
	_, err := g.SendFile(channelID, []byte(body), filename)
	return err
}

// Post implements steering.Poster, draft.Poster, and
// registry.PostFunc-compatible posting: send text, return the message id.
func (g *Gateway) Post(channelID, text string) (string, error) {
	return g.SendToChannel(channelID, text)
}

// Edit implements steering.Poster and draft.Poster.
func (g *Gateway) Edit(channelID, messageID, text string) error {
	return g.EditMessage(channelID, messageID, text)
}

// NoticePoster adapts Gateway to transparency.Poster, whose Post method
// has no message-id return value (transparency notices are never edited).
type NoticePoster struct {
	Gateway *Gateway
}

// Post implements transparency.Poster.
func (n NoticePoster) Post(channelID, text string) error {
	_, err := n.Gateway.SendToChannel(channelID, text)
	return err
}
