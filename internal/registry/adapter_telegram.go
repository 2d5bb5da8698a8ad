package registry

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"sync/atomic"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// TelegramAdapter is a Router Adapter backed by a long-polling Telegram
// bot. chatID in SendMessage/OnMessage is the Telegram chat id rendered
// as a decimal string.
type TelegramAdapter struct {
	bot   *tgbot.Bot
	name  string
	ready atomic.Bool

	mu     sync.Mutex
	onMsg  func(sourceID, content, author string)
	cancel context.CancelFunc
}

// NewTelegramAdapter constructs an adapter around a long-polling Telegram
// bot using token. If token is empty the adapter is created in a
// disconnected no-op state, mirroring the bridge-only mode the teacher's
// Telegram bot falls back to when unconfigured.
func NewTelegramAdapter(name, token string) (*TelegramAdapter, error) {
	a := &TelegramAdapter{name: name}
	if token == "" {
		log.Printf("registry: telegram adapter %q created without a token, staying disconnected", name)
		return a, nil
	}

	opts := []tgbot.Option{
		tgbot.WithDefaultHandler(a.handleUpdate),
	}
	b, err := tgbot.New(token, opts...)
	if err != nil {
		return nil, err
	}
	a.bot = b
	return a, nil
}

// Start begins long polling until ctx is canceled. Call it from its own
// goroutine; it blocks.
func (a *TelegramAdapter) Start(ctx context.Context) {
	if a.bot == nil {
		<-ctx.Done()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	a.ready.Store(true)
	defer a.ready.Store(false)
	a.bot.Start(runCtx)
}

// Stop cancels an in-progress Start, if any.
func (a *TelegramAdapter) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (a *TelegramAdapter) Name() string { return a.name }

func (a *TelegramAdapter) Status() AdapterStatus {
	if a.bot != nil && a.ready.Load() {
		return StatusConnected
	}
	return StatusDisconnected
}

// SendMessage sends text to the Telegram chat identified by the decimal
// chatID.
func (a *TelegramAdapter) SendMessage(chatID, text string) error {
	if a.bot == nil {
		return fmt.Errorf("registry: telegram adapter %q has no configured token", a.name)
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return err
	}
	_, err = a.bot.SendMessage(context.Background(), &tgbot.SendMessageParams{
		ChatID: id,
		Text:   text,
	})
	return err
}

// OnMessage registers callback for inbound Telegram messages. sourceID is
// the chat id as a decimal string.
func (a *TelegramAdapter) OnMessage(callback func(sourceID, content, author string)) {
	a.mu.Lock()
	a.onMsg = callback
	a.mu.Unlock()
}

func (a *TelegramAdapter) handleUpdate(_ context.Context, _ *tgbot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	a.mu.Lock()
	cb := a.onMsg
	a.mu.Unlock()
	if cb == nil {
		return
	}
	author := ""
	if update.Message.From != nil {
		author = update.Message.From.Username
		if author == "" {
			author = update.Message.From.FirstName
		}
	}
	chatID := strconv.FormatInt(update.Message.Chat.ID, 10)
	cb(chatID, update.Message.Text, author)
}
