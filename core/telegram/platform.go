package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/weatherbot/core/logger"
	"github.com/m3rciful/weatherbot/core/telegram/keyboard"
	"github.com/m3rciful/weatherbot/core/telegram/router"
	"github.com/m3rciful/weatherbot/core/telegram/sender"
)

// WebhookInfo mirrors the fields of getWebhookInfo the supervisor watches.
type WebhookInfo struct {
	URL                string `json:"url"`
	PendingUpdateCount int    `json:"pending_update_count"`
	LastErrorDate      int64  `json:"last_error_date"`
	LastErrorMessage   string `json:"last_error_message"`
}

// PlatformOptions configures NewPlatform.
type PlatformOptions struct {
	Token  string
	APIURL string
	// Client defaults to BuildHTTPClient with PollTimeout.
	Client      *http.Client
	PollTimeout time.Duration
	Retry       sender.RetryOptions
}

// Platform is the chat platform adapter used by the router and the supervisor.
type Platform struct {
	bot   *tele.Bot
	api   *apiClient
	retry sender.RetryOptions
}

// NewPlatform builds the adapter without contacting the platform.
func NewPlatform(opts PlatformOptions) (*Platform, error) {
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.Client == nil {
		opts.Client = BuildHTTPClient(HTTPOptions{PollTimeout: opts.PollTimeout})
	}
	bot, err := tele.NewBot(tele.Settings{
		URL:     opts.APIURL,
		Token:   opts.Token,
		Client:  opts.Client,
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	return &Platform{
		bot:   bot,
		api:   &apiClient{http: opts.Client, base: opts.APIURL, token: opts.Token},
		retry: opts.Retry,
	}, nil
}

// Identify calls getMe and returns the bot's username.
func (p *Platform) Identify(ctx context.Context) (string, error) {
	var me tele.User
	if err := p.api.call(ctx, "getMe", nil, &me); err != nil {
		return "", err
	}
	return me.Username, nil
}

type botCommand struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

// AnnounceCommands replaces the command list and shows it as the chat menu button.
func (p *Platform) AnnounceCommands(ctx context.Context, entries []router.MenuEntry) error {
	if err := p.api.call(ctx, "deleteMyCommands", map[string]any{}, nil); err != nil {
		return err
	}
	cmds := make([]botCommand, 0, len(entries))
	for _, e := range entries {
		cmds = append(cmds, botCommand{Command: e.Command, Description: e.Description})
	}
	if err := p.api.call(ctx, "setMyCommands", map[string]any{"commands": cmds}, nil); err != nil {
		return err
	}
	if err := p.api.call(ctx, "setChatMenuButton", map[string]any{
		"menu_button": map[string]string{"type": "commands"},
	}, nil); err != nil {
		return err
	}
	logger.TWire.Info("menu announced",
		slog.String("event", "menu.announce"),
		slog.Int("count", len(cmds)),
	)
	return nil
}

// DeleteWebhook removes any registered webhook.
func (p *Platform) DeleteWebhook(ctx context.Context, dropPending bool) error {
	return p.api.call(ctx, "deleteWebhook", map[string]any{"drop_pending_updates": dropPending}, nil)
}

// SetWebhook registers url for push delivery; the platform echoes secret in a header.
func (p *Platform) SetWebhook(ctx context.Context, url, secret string, dropPending bool) error {
	payload := map[string]any{
		"url":                  url,
		"secret_token":         secret,
		"drop_pending_updates": dropPending,
		"allowed_updates":      []string{"message", "callback_query"},
	}
	return p.api.call(ctx, "setWebhook", payload, nil)
}

// WebhookInfo reports the currently registered webhook.
func (p *Platform) WebhookInfo(ctx context.Context) (WebhookInfo, error) {
	var info WebhookInfo
	err := p.api.call(ctx, "getWebhookInfo", nil, &info)
	return info, err
}

// Updates long-polls for updates with id >= offset.
func (p *Platform) Updates(ctx context.Context, offset int, timeout time.Duration) ([]tele.Update, error) {
	payload := map[string]any{
		"offset":          offset,
		"timeout":         int(timeout / time.Second),
		"allowed_updates": []string{"message", "callback_query"},
	}
	var updates []tele.Update
	if err := p.api.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// Deliver sends one router reply, retrying transient network failures.
func (p *Platform) Deliver(ctx context.Context, chatID int64, reply router.Reply) error {
	var opts []interface{}
	if markup := keyboard.FromReply(reply); markup != nil {
		opts = append(opts, markup)
	}
	return sender.Retry(ctx, p.retry, "sendMessage", func(context.Context) error {
		_, err := p.bot.Send(tele.ChatID(chatID), reply.Text, opts...)
		return err
	})
}

// AckButton answers a button press so the client stops its spinner.
func (p *Platform) AckButton(ctx context.Context, callbackID string) error {
	if callbackID == "" {
		return nil
	}
	return sender.Retry(ctx, p.retry, "answerCallbackQuery", func(context.Context) error {
		return p.bot.Respond(&tele.Callback{ID: callbackID})
	})
}
