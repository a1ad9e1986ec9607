// Package channels renders orchestrator results as chat messages. All chat
// markup lives here; the custody core never formats user-facing text.
package channels

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"golang.org/x/time/rate"

	"github.com/mantlegpt/mantlebot/pkg/custody"
	"github.com/mantlegpt/mantlebot/pkg/intent"
	"github.com/mantlegpt/mantlebot/pkg/logger"
)

const (
	btnCheckBalance  = "💰 Check Balance"
	btnTransfer      = "📤 Transfer MNT"
	btnMyAddress     = "🔑 My Address"
	btnAboutMantle   = "ℹ️ About Mantle"
	btnCreateWallet  = "💼 Create Wallet"
	btnConnectWallet = "🔗 Connect Wallet"
)

// Per-user message budget; enough for normal conversation, stops floods.
const (
	userRateLimit = rate.Limit(1)
	userRateBurst = 5
)

// TelegramChannel drives the bot conversation. Each incoming message is
// handled on its own goroutine; per-user serialization is the orchestrator's
// job, not the transport's.
type TelegramChannel struct {
	bot         *telego.Bot
	svc         *custody.Service
	extractor   intent.Extractor
	explorerURL string

	mu          sync.Mutex
	awaitingKey map[int64]bool
	limiters    map[int64]*rate.Limiter
}

func NewTelegramChannel(token string, svc *custody.Service, extractor intent.Extractor, explorerURL string) (*TelegramChannel, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, err
	}
	return &TelegramChannel{
		bot:         bot,
		svc:         svc,
		extractor:   extractor,
		explorerURL: explorerURL,
		awaitingKey: make(map[int64]bool),
		limiters:    make(map[int64]*rate.Limiter),
	}, nil
}

// Run long-polls updates until ctx is cancelled.
func (c *TelegramChannel) Run(ctx context.Context) error {
	updates, err := c.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return err
	}

	logger.InfoCF("telegram", "Bot is running", nil)

	for update := range updates {
		go c.handleUpdate(ctx, update)
	}
	return nil
}

func (c *TelegramChannel) handleUpdate(ctx context.Context, update telego.Update) {
	msg := update.Message
	if msg == nil || msg.Text == "" || msg.From == nil {
		return
	}
	userID := msg.From.ID

	msgID := uuid.NewString()
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("telegram", "Panic while handling message", map[string]any{
				"msg_id": msgID,
				"panic":  r,
			})
			c.reply(ctx, msg, "Sorry, I could not process your request.")
		}
	}()

	if !c.limiter(userID).Allow() {
		logger.WarnCF("telegram", "Rate limited", map[string]any{
			"msg_id":  msgID,
			"user_id": userID,
		})
		return
	}

	logger.DebugCF("telegram", "Handling message", map[string]any{
		"msg_id":  msgID,
		"user_id": userID,
	})

	switch {
	case strings.HasPrefix(msg.Text, "/"):
		c.handleCommand(ctx, msg)
	default:
		c.handleText(ctx, msg)
	}
}

func (c *TelegramChannel) limiter(userID int64) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[userID]
	if !ok {
		l = rate.NewLimiter(userRateLimit, userRateBurst)
		c.limiters[userID] = l
	}
	return l
}

func (c *TelegramChannel) awaitKey(userID int64, waiting bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if waiting {
		c.awaitingKey[userID] = true
	} else {
		delete(c.awaitingKey, userID)
	}
}

func (c *TelegramChannel) isAwaitingKey(userID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.awaitingKey[userID]
}

func (c *TelegramChannel) handleCommand(ctx context.Context, msg *telego.Message) {
	command, _, _ := strings.Cut(msg.Text, " ")
	switch command {
	case "/start":
		c.sendStart(ctx, msg)
	case "/create":
		c.doCreate(ctx, msg)
	case "/connect":
		c.doConnectPrompt(ctx, msg)
	case "/balance":
		c.doBalance(ctx, msg)
	case "/transfer":
		c.sendTransferHelp(ctx, msg)
	case "/help":
		c.sendHelp(ctx, msg)
	default:
		c.reply(ctx, msg, "Unknown command. Check /help for what I can do.")
	}
}

func (c *TelegramChannel) handleText(ctx context.Context, msg *telego.Message) {
	userID := msg.From.ID

	// confirm/cancel take priority over everything, including NLP.
	switch strings.ToLower(strings.TrimSpace(msg.Text)) {
	case "confirm":
		c.doConfirm(ctx, msg)
		return
	case "cancel":
		c.doCancel(ctx, msg)
		return
	}

	if c.isAwaitingKey(userID) {
		c.doKeyImport(ctx, msg)
		return
	}

	// Keyboard buttons route straight to their handlers.
	switch msg.Text {
	case btnCheckBalance:
		c.doBalance(ctx, msg)
		return
	case btnTransfer:
		c.sendTransferHelp(ctx, msg)
		return
	case btnMyAddress:
		c.doAddress(ctx, msg)
		return
	case btnCreateWallet:
		c.doCreate(ctx, msg)
		return
	case btnConnectWallet:
		c.doConnectPrompt(ctx, msg)
		return
	case btnAboutMantle:
		c.handleIntent(ctx, msg, "Tell me about Mantle Network")
		return
	}

	c.handleIntent(ctx, msg, msg.Text)
}

func (c *TelegramChannel) handleIntent(ctx context.Context, msg *telego.Message, text string) {
	resolved, err := c.extractor.Parse(ctx, text)
	if err != nil {
		logger.ErrorCF("telegram", "Intent extraction failed", map[string]any{
			"error": err.Error(),
		})
		c.reply(ctx, msg, "Sorry, I could not process your request.")
		return
	}

	switch resolved.Kind {
	case intent.KindTransfer:
		c.doTransferIntent(ctx, msg, resolved)
	case intent.KindCheckBalance:
		c.doBalance(ctx, msg)
	case intent.KindGetAddress:
		c.doAddress(ctx, msg)
	case intent.KindConnect:
		c.doConnectPrompt(ctx, msg)
	case intent.KindCreate:
		c.doCreate(ctx, msg)
	case intent.KindInfo:
		c.replyMarkdown(ctx, msg, resolved.Info)
	default:
		c.reply(ctx, msg,
			"I'm not sure what you want to do.\n"+
				"Try using specific commands or check /help for examples.")
	}
}

func (c *TelegramChannel) reply(ctx context.Context, msg *telego.Message, text string) {
	_, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(msg.Chat.ID), text))
	if err != nil {
		logger.ErrorCF("telegram", "Failed to send reply", map[string]any{
			"error": err.Error(),
		})
	}
}

func (c *TelegramChannel) replyMarkdown(ctx context.Context, msg *telego.Message, text string) {
	_, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(msg.Chat.ID), text).WithParseMode("Markdown"))
	if err != nil {
		logger.ErrorCF("telegram", "Failed to send reply", map[string]any{
			"error": err.Error(),
		})
	}
}

func (c *TelegramChannel) replyWithKeyboard(ctx context.Context, msg *telego.Message, text string) {
	keyboard := tu.Keyboard(
		tu.KeyboardRow(tu.KeyboardButton(btnCheckBalance), tu.KeyboardButton(btnTransfer)),
		tu.KeyboardRow(tu.KeyboardButton(btnMyAddress), tu.KeyboardButton(btnAboutMantle)),
		tu.KeyboardRow(tu.KeyboardButton(btnCreateWallet), tu.KeyboardButton(btnConnectWallet)),
	).WithResizeKeyboard()

	_, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(msg.Chat.ID), text).WithReplyMarkup(keyboard))
	if err != nil {
		logger.ErrorCF("telegram", "Failed to send reply", map[string]any{
			"error": err.Error(),
		})
	}
}
