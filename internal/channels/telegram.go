package channels

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/openintentos/openintent/internal/bus"
	"github.com/openintentos/openintent/internal/devworker"
	"github.com/openintentos/openintent/internal/router"
)

// maxMessageChars caps outbound Telegram messages; longer replies are split.
const maxMessageChars = 4000

// TelegramChannel bridges a Telegram bot to the router and the dev worker.
// Plain messages run through the multi-task router; /dev enqueues a
// self-development task, /merge and /cancel steer one, /tell injects a
// mid-task instruction.
type TelegramChannel struct {
	token      string
	allowedIDs map[int64]struct{}
	router     *router.Router
	worker     *devworker.Worker
	eventBus   *bus.Bus
	logger     *slog.Logger
	bot        *tgbotapi.BotAPI
}

func NewTelegramChannel(token string, allowedIDs []int64, rt *router.Router, worker *devworker.Worker, eventBus *bus.Bus, logger *slog.Logger) *TelegramChannel {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[int64]struct{}, len(allowedIDs))
	for _, id := range allowedIDs {
		allowed[id] = struct{}{}
	}
	return &TelegramChannel{
		token:      token,
		allowedIDs: allowed,
		router:     rt,
		worker:     worker,
		eventBus:   eventBus,
		logger:     logger,
	}
}

func (t *TelegramChannel) Name() string { return "telegram" }

// Start connects the bot and polls until ctx is cancelled. Transport failures
// reconnect with exponential backoff.
func (t *TelegramChannel) Start(ctx context.Context) error {
	var err error
	t.bot, err = tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram init failed: %w", err)
	}
	t.logger.Info("telegram bot started", "user", t.bot.Self.UserName)

	if t.eventBus != nil {
		go t.watchDevTaskEvents(ctx)
	}

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return nil
		}

		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := t.bot.GetUpdatesChan(u)

		pollErr := t.pollUpdates(ctx, updates)
		t.bot.StopReceivingUpdates()

		if pollErr == nil {
			return nil
		}
		t.logger.Warn("telegram poll disconnected, reconnecting", "error", pollErr, "backoff", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// pollUpdates reads updates until ctx is done, the channel closes, or nothing
// arrives within 2.5x the long-poll window. The library blocks on a dead
// connection instead of closing the channel, so the stall timer forces a
// reconnect.
func (t *TelegramChannel) pollUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	const stallTimeout = 150 * time.Second

	timer := time.NewTimer(stallTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("update channel closed")
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(stallTimeout)

			if update.Message == nil {
				continue
			}
			if _, ok := t.allowedIDs[update.Message.From.ID]; !ok {
				t.logger.Warn("telegram access denied", "user_id", update.Message.From.ID, "user_name", update.Message.From.UserName)
				continue
			}
			t.handleMessage(ctx, update.Message)

		case <-timer.C:
			return fmt.Errorf("no updates received for %v (possible disconnect)", stallTimeout)
		}
	}
}

func (t *TelegramChannel) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	content := strings.TrimSpace(msg.Text)
	if content == "" {
		return
	}
	chatID := msg.Chat.ID

	switch {
	case strings.HasPrefix(content, "/dev "):
		t.handleDevSubmit(ctx, chatID, strings.TrimSpace(content[len("/dev"):]))
	case strings.HasPrefix(content, "/merge ") || strings.HasPrefix(content, "/cancel "):
		t.handleDevCommand(ctx, chatID, content)
	case strings.HasPrefix(content, "/tell "):
		t.handleDevTell(ctx, chatID, strings.TrimSpace(content[len("/tell"):]))
	default:
		go t.runChat(ctx, chatID, msg.From.ID, content)
	}
}

func (t *TelegramChannel) handleDevSubmit(ctx context.Context, chatID int64, intent string) {
	if t.worker == nil {
		t.reply(chatID, "Dev worker is not configured.")
		return
	}
	if intent == "" {
		t.reply(chatID, "Usage: /dev <what to build or change>")
		return
	}
	task, err := t.worker.Submit(ctx, intent, chatID)
	if err != nil {
		t.reply(chatID, fmt.Sprintf("Error: could not queue dev task: %v", err))
		return
	}
	t.reply(chatID, fmt.Sprintf("Queued dev task %s. I will report progress here.", task.ID))
}

func (t *TelegramChannel) handleDevCommand(ctx context.Context, chatID int64, content string) {
	if t.worker == nil {
		t.reply(chatID, "Dev worker is not configured.")
		return
	}
	result, err := t.worker.HandleCommand(ctx, content)
	if err != nil {
		t.reply(chatID, "Error: "+router.Summarize(err.Error(), 300))
		return
	}
	t.reply(chatID, result)
}

func (t *TelegramChannel) handleDevTell(ctx context.Context, chatID int64, rest string) {
	if t.worker == nil {
		t.reply(chatID, "Dev worker is not configured.")
		return
	}
	taskID, note, found := strings.Cut(rest, " ")
	if !found || strings.TrimSpace(note) == "" {
		t.reply(chatID, "Usage: /tell <task-id> <instruction>")
		return
	}
	if err := t.worker.AddUserMessage(ctx, taskID, strings.TrimSpace(note)); err != nil {
		t.reply(chatID, "Error: "+router.Summarize(err.Error(), 300))
		return
	}
	t.reply(chatID, fmt.Sprintf("Noted for task %s; the next coding round will see it.", taskID))
}

// runChat routes a plain message through the multi-task router. Each user
// gets a stable session so history carries across messages.
func (t *TelegramChannel) runChat(ctx context.Context, chatID, userID int64, content string) {
	sessionID := fmt.Sprintf("telegram-%d", userID)
	outcomes, err := t.router.RunMulti(ctx, content, router.Options{
		SessionID: sessionID,
		Emit: func(chunk string) {
			t.reply(chatID, chunk)
		},
	})
	if err != nil {
		t.reply(chatID, "Error: "+router.Summarize(err.Error(), 300))
		return
	}
	for _, o := range outcomes {
		if o.Err != nil {
			t.reply(chatID, fmt.Sprintf("Task %d failed: %s", o.Index, router.Summarize(o.Err.Error(), 300)))
		}
	}
}

// watchDevTaskEvents forwards dev task stage changes to the chat that
// submitted the task.
func (t *TelegramChannel) watchDevTaskEvents(ctx context.Context) {
	sub := t.eventBus.Subscribe("devtask.")
	defer t.eventBus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub.Ch():
			switch payload := ev.Payload.(type) {
			case bus.DevTaskStageEvent:
				if payload.ChatID == 0 {
					continue
				}
				t.reply(payload.ChatID, formatStageUpdate(payload))
			case bus.DevTaskProgressEvent:
				if payload.ChatID == 0 || payload.Message == "" {
					continue
				}
				t.reply(payload.ChatID, fmt.Sprintf("Dev task %s: %s", payload.TaskID, router.Summarize(payload.Message, 300)))
			}
		}
	}
}

func formatStageUpdate(ev bus.DevTaskStageEvent) string {
	line := fmt.Sprintf("Dev task %s: %s -> %s", ev.TaskID, ev.OldStatus, ev.NewStatus)
	if ev.Detail != "" {
		line += "\n" + router.Summarize(ev.Detail, 300)
	}
	return line
}

// reply sends text to a chat, splitting anything over the Telegram size cap
// on rune boundaries.
func (t *TelegramChannel) reply(chatID int64, text string) {
	for _, part := range splitMessage(text, maxMessageChars) {
		msg := tgbotapi.NewMessage(chatID, part)
		if _, err := t.bot.Send(msg); err != nil {
			t.logger.Error("failed to send telegram reply", "error", err)
			return
		}
	}
}

func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	var parts []string
	for len(runes) > 0 {
		n := limit
		if n > len(runes) {
			n = len(runes)
		}
		parts = append(parts, string(runes[:n]))
		runes = runes[n:]
	}
	return parts
}
