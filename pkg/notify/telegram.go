package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/opensnatch/snatchd/pkg/log"
	"github.com/opensnatch/snatchd/pkg/types"
)

// Telegram delivers task notifications. Delivery is best-effort:
// implementations log failures and never surface them to callers.
type Telegram interface {
	Send(ctx context.Context, text string)
}

// TelegramSettingsSource supplies the current bot settings; the store
// is re-read per send so edits take effect without a restart.
type TelegramSettingsSource interface {
	TelegramSettings() (*types.TelegramSettings, error)
}

// TelegramNotifier posts messages through the Telegram Bot API.
type TelegramNotifier struct {
	settings TelegramSettingsSource
	client   *http.Client
	baseURL  string
}

// NewTelegramNotifier creates a notifier reading settings from source.
func NewTelegramNotifier(source TelegramSettingsSource) *TelegramNotifier {
	return &TelegramNotifier{
		settings: source,
		client:   &http.Client{Timeout: 10 * time.Second},
		baseURL:  "https://api.telegram.org",
	}
}

// Send posts text as a Markdown message. Missing settings or HTTP
// failures are logged and swallowed; a notification never fails a task.
func (t *TelegramNotifier) Send(ctx context.Context, text string) {
	logger := log.WithComponent("telegram")

	cfg, err := t.settings.TelegramSettings()
	if err != nil || cfg == nil || cfg.BotToken == "" || cfg.ChatID == "" {
		logger.Debug().Msg("telegram not configured, skipping notification")
		return
	}

	payload, err := json.Marshal(map[string]string{
		"chat_id":    cfg.ChatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode telegram payload")
		return
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		logger.Error().Err(err).Msg("failed to build telegram request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram notification failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		logger.Warn().Int("status", resp.StatusCode).Msg("telegram API rejected notification")
	}
}
