// internal/notify/telegram.go
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/boxwatch/internal/state"
	"github.com/user/boxwatch/internal/types"
)

const (
	telegramPrefix     = "telegram:"
	maxTelegramMessage = 4096
)

// StateReader is the read side of the state container used to answer bot
// commands.
type StateReader interface {
	Snapshot() state.Snapshot
}

// Telegram sends notifications through a Telegram bot and answers a few
// read-only commands.
type Telegram struct {
	bot *tgbotapi.BotAPI
}

// NewTelegram creates a Telegram sink for the bot identified by token.
func NewTelegram(token string) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Telegram{bot: bot}, nil
}

// NewTelegramWithClient creates a Telegram sink talking to apiEndpoint (a
// format string such as tgbotapi.APIEndpoint) through client.
func NewTelegramWithClient(token, apiEndpoint string, client *http.Client) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Telegram{bot: bot}, nil
}

// Deliver implements Handler for "telegram:<chat id>" targets.
func (t *Telegram) Deliver(_ context.Context, target string, ev Event) error {
	chatID, err := parseChatID(target)
	if err != nil {
		return err
	}
	return t.send(chatID, ev.Text())
}

// Listen long-polls for bot commands until ctx is done.
func (t *Telegram) Listen(ctx context.Context, st StateReader) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := t.bot.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			t.handleCommand(update.Message, st)
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			return
		}
	}
}

func (t *Telegram) handleCommand(msg *tgbotapi.Message, st StateReader) {
	chatID := msg.Chat.ID

	var reply string
	switch msg.Command() {
	case "start":
		reply = fmt.Sprintf("boxwatch is running. Notify target for this chat: %s%d", telegramPrefix, chatID)
	case "status":
		reply = formatStatus(st.Snapshot())
	default:
		reply = "Unknown command. Available: /start, /status"
	}
	if err := t.send(chatID, reply); err != nil {
		slog.Warn("telegram reply failed", "chat_id", chatID, "error", err)
	}
}

func (t *Telegram) send(chatID int64, text string) error {
	for _, part := range splitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = "Markdown"
		if _, err := t.bot.Send(msg); err != nil {
			// Retry without markdown if it fails
			msg.ParseMode = ""
			if _, err := t.bot.Send(msg); err != nil {
				return fmt.Errorf("send telegram message: %w", err)
			}
		}
	}
	return nil
}

func formatStatus(snap state.Snapshot) string {
	if len(snap.Devices) == 0 {
		return "No boxes paired."
	}
	ids := make([]types.PeerID, 0, len(snap.Devices))
	for id := range snap.Devices {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var b strings.Builder
	for _, id := range ids {
		d := snap.Devices[id]
		status, ok := snap.ConnectionStatus[id]
		if !ok {
			status = "UNKNOWN"
		}
		marker := ""
		if id == snap.CurrentPeerID {
			marker = " *"
		}
		name := d.Name
		if name == "" {
			name = string(id)
		}
		fmt.Fprintf(&b, "%s%s: %s", name, marker, status)
		if d.FreeSpace != nil {
			fmt.Fprintf(&b, " (%.1f%% used)", d.FreeSpace.UsedPercentage)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func parseChatID(target string) (int64, error) {
	raw, ok := strings.CutPrefix(target, telegramPrefix)
	if !ok {
		return 0, fmt.Errorf("not a telegram target: %s", target)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat id %q: %w", raw, err)
	}
	return id, nil
}

func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := min(maxTelegramMessage, len(text))
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}
