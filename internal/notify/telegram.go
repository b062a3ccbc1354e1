package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultAPIBase is the production Telegram Bot API endpoint.
const DefaultAPIBase = "https://api.telegram.org"

// Update is the Telegram webhook envelope. Only callback queries matter to
// StepGate; every other update kind is acknowledged and dropped.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// CallbackQuery is the operator's button press. Data carries the action
// token exactly as it was embedded at notify time.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    *User    `json:"from,omitempty"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data"`
}

// User is the Telegram account that pressed the button.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
}

// Message is the notification message the button belongs to.
type Message struct {
	MessageID int  `json:"message_id"`
	Chat      Chat `json:"chat"`
}

// Chat is the conversation the notification was delivered to.
type Chat struct {
	ID int64 `json:"id"`
}

type inlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type inlineKeyboardMarkup struct {
	InlineKeyboard [][]inlineKeyboardButton `json:"inline_keyboard"`
}

// TelegramNotifier sends approval requests to a Telegram chat via the Bot
// API, with approve/reject inline buttons.
type TelegramNotifier struct {
	client  *http.Client
	apiBase string
	token   string
	chatID  int64
	logger  *slog.Logger
}

// NewTelegramNotifier creates a notifier for the given bot token and chat.
// apiBase overrides the production endpoint, for tests.
func NewTelegramNotifier(token string, chatID int64, apiBase string, logger *slog.Logger) *TelegramNotifier {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	return &TelegramNotifier{
		client:  &http.Client{Timeout: 10 * time.Second},
		apiBase: apiBase,
		token:   token,
		chatID:  chatID,
		logger:  logger,
	}
}

// Notify sends one message carrying the payload summary and the two action
// buttons, and returns a reference to the delivered message.
func (n *TelegramNotifier) Notify(ctx context.Context, flowID, summary string, actions Actions) (*MessageRef, error) {
	body := map[string]any{
		"chat_id": n.chatID,
		"text":    summary,
		"reply_markup": inlineKeyboardMarkup{
			InlineKeyboard: [][]inlineKeyboardButton{{
				{Text: "✅ Approve", CallbackData: actions.ApproveToken},
				{Text: "❌ Reject", CallbackData: actions.RejectToken},
			}},
		},
	}

	var result struct {
		MessageID int  `json:"message_id"`
		Chat      Chat `json:"chat"`
	}
	if err := n.call(ctx, "sendMessage", body, &result); err != nil {
		return nil, fmt.Errorf("sending approval request for flow %s: %w", flowID, err)
	}

	n.logger.Debug("operator notified",
		slog.String("flow_id", flowID),
		slog.Int("message_id", result.MessageID),
	)
	return &MessageRef{ChatID: result.Chat.ID, MessageID: result.MessageID}, nil
}

// AnswerCallback acknowledges a callback query. Telegram shows text as a
// toast to the operator.
func (n *TelegramNotifier) AnswerCallback(ctx context.Context, callbackID, text string) error {
	body := map[string]any{
		"callback_query_id": callbackID,
	}
	if text != "" {
		body["text"] = text
	}
	return n.call(ctx, "answerCallbackQuery", body, nil)
}

// DisableActions removes the inline keyboard from a delivered message so a
// decided flow cannot collect further clicks.
func (n *TelegramNotifier) DisableActions(ctx context.Context, ref MessageRef) error {
	body := map[string]any{
		"chat_id":      ref.ChatID,
		"message_id":   ref.MessageID,
		"reply_markup": inlineKeyboardMarkup{InlineKeyboard: [][]inlineKeyboardButton{}},
	}
	return n.call(ctx, "editMessageReplyMarkup", body, nil)
}

func (n *TelegramNotifier) call(ctx context.Context, method string, body any, result any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling %s request: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", n.apiBase, n.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading %s response: %w", method, err)
	}

	var envelope struct {
		OK          bool            `json:"ok"`
		Description string          `json:"description,omitempty"`
		Result      json.RawMessage `json:"result,omitempty"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	if !envelope.OK {
		return fmt.Errorf("%s failed: %s (HTTP %d)", method, envelope.Description, resp.StatusCode)
	}

	if result != nil && envelope.Result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}
	return nil
}
