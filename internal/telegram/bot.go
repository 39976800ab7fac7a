package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mtzanidakis/skopos/internal/config"
	"github.com/mtzanidakis/skopos/internal/report"
	"github.com/mtzanidakis/skopos/internal/store"
	"github.com/mtzanidakis/skopos/internal/swarm"
	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
)

const analyzeTimeout = 3 * time.Minute

const helpText = `Commands:
  analyze <url> [competitor ...]  run an analysis
  help                            show this message

Scheduled scan results are posted to the configured notify chat.`

// Bot runs analyses on demand from chat and posts scheduled scan results.
type Bot struct {
	bot     *telego.Bot
	handler *th.BotHandler
	svc     *swarm.Service
	cancel  context.CancelFunc

	mu  sync.Mutex
	cfg config.TelegramConfig
}

// New returns a nil Bot without error when no token is configured;
// callers should treat that as notifications disabled.
func New(cfg config.TelegramConfig, svc *swarm.Service) (*Bot, error) {
	if cfg.Token == "" {
		return nil, nil
	}

	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Bot{
		bot: bot,
		svc: svc,
		cfg: cfg,
	}, nil
}

func (b *Bot) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	updates, err := b.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	handler, err := th.NewBotHandler(b.bot, updates)
	if err != nil {
		cancel()
		return fmt.Errorf("create handler: %w", err)
	}
	b.handler = handler

	handler.HandleMessage(func(hctx *th.Context, message telego.Message) error {
		b.handleMessage(ctx, message)
		return nil
	})

	go handler.Start()

	<-ctx.Done()
	_ = handler.Stop()
	return nil
}

func (b *Bot) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	if b.handler != nil {
		_ = b.handler.Stop()
	}
}

// UpdateConfig applies the reloadable telegram settings. The token cannot
// change without restarting the bot, so it is kept as is.
func (b *Bot) UpdateConfig(allowFrom []int64, notifyChat int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg.AllowFrom = allowFrom
	b.cfg.NotifyChat = notifyChat
}

// ScanResult posts the outcome of a scheduled scan to the notify chat.
// It satisfies the scheduler's notifier contract.
func (b *Bot) ScanResult(scan store.Scan, sum *report.Summary, runErr error) {
	b.mu.Lock()
	chatID := b.cfg.NotifyChat
	b.mu.Unlock()
	if chatID == 0 {
		return
	}

	var text string
	if runErr != nil {
		text = fmt.Sprintf("Scheduled scan of %s failed: %v", scan.URL, runErr)
	} else {
		text = formatSummary(scan.URL, sum)
	}

	if err := b.SendMessage(context.Background(), chatID, text); err != nil {
		slog.Error("failed to send scan notification", "chat", chatID, "error", err)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg telego.Message) {
	chatID := msg.Chat.ID
	if msg.From == nil {
		return
	}
	userID := msg.From.ID

	if !b.allowed(userID) {
		slog.Warn("unauthorized telegram user", "user_id", userID, "chat_id", chatID)
		return
	}

	fields := strings.Fields(msg.Text)
	if len(fields) == 0 {
		return
	}

	switch strings.ToLower(strings.TrimPrefix(fields[0], "/")) {
	case "analyze":
		if len(fields) < 2 {
			_ = b.SendMessage(ctx, chatID, "Usage: analyze <url> [competitor ...]")
			return
		}
		_ = b.sendChatAction(ctx, chatID, "typing")
		go b.runAnalysis(ctx, chatID, fields[1], fields[2:])
	default:
		_ = b.SendMessage(ctx, chatID, helpText)
	}
}

func (b *Bot) runAnalysis(ctx context.Context, chatID int64, url string, competitors []string) {
	ctx, cancel := context.WithTimeout(ctx, analyzeTimeout)
	defer cancel()

	out, err := b.svc.Analyze(ctx, swarm.Request{
		URL:            url,
		CompetitorURLs: competitors,
		UserID:         fmt.Sprintf("telegram:%d", chatID),
	}, swarm.Callbacks{})
	if err != nil {
		_ = b.SendMessage(ctx, chatID, fmt.Sprintf("Analysis failed: %v", err))
		return
	}

	_ = b.SendMessage(ctx, chatID, formatSummary(url, out.Summary))
}

func (b *Bot) allowed(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.cfg.AllowFrom) == 0 {
		return true
	}
	for _, id := range b.cfg.AllowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

// SendMessage sends text to a chat, splitting it to fit Telegram's
// message size limit.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string) error {
	chunks := chunkMessage(text, 4096)
	for _, chunk := range chunks {
		msg := tu.Message(tu.ID(chatID), chunk)
		_, err := b.bot.SendMessage(ctx, msg)
		if err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}

func (b *Bot) sendChatAction(ctx context.Context, chatID int64, action string) error {
	return b.bot.SendChatAction(ctx, tu.ChatAction(tu.ID(chatID), action))
}
