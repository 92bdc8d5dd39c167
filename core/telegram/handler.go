package telegram

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/weatherbot/core/logger"
	"github.com/m3rciful/weatherbot/core/telegram/router"
	"github.com/m3rciful/weatherbot/core/telegram/sender"
)

// Acker answers button presses.
type Acker interface {
	AckButton(ctx context.Context, callbackID string) error
}

// UpdateHandler feeds platform updates into the router.
type UpdateHandler struct {
	router  *router.Router
	outbox  router.Outbox
	acker   Acker
	botName string
	limiter *rateLimiter
}

// NewUpdateHandler wires decode, acknowledgement and routing.
func NewUpdateHandler(r *router.Router, outbox router.Outbox, acker Acker) *UpdateHandler {
	return &UpdateHandler{router: r, outbox: outbox, acker: acker}
}

// SetBotName restricts commands of the form /cmd@name to this bot.
func (h *UpdateHandler) SetBotName(name string) { h.botName = name }

// WithRateLimit drops updates a user sends faster than opts.Interval.
func (h *UpdateHandler) WithRateLimit(opts RateLimitOptions) *UpdateHandler {
	h.limiter = newRateLimiter(opts)
	return h
}

// Key returns the user id updates are serialized by; 0 when unknown.
func (h *UpdateHandler) Key(u tele.Update) int64 {
	switch {
	case u.Callback != nil && u.Callback.Sender != nil:
		return u.Callback.Sender.ID
	case u.Message != nil && u.Message.Sender != nil:
		return u.Message.Sender.ID
	}
	return 0
}

// HandleUpdate decodes and routes one update.
func (h *UpdateHandler) HandleUpdate(ctx context.Context, u tele.Update) error {
	upd, ok := Decode(u, h.botName)
	if !ok {
		logger.Debug(ctx, "tg", "update.skip", slog.Int("update_id", u.ID))
		return nil
	}

	ctx = logger.WithRID(ctx, logger.BuildRID(upd.ID, upd.ChatID, upd.UserID))
	ctx = logger.WithUpdateMeta(ctx, upd.ID, upd.UserID, upd.ChatID)
	ctx = logger.WithLogger(ctx, logger.TG)

	if logger.ShouldSampleDebug() {
		logger.Debug(ctx, "tg", "update.received",
			slog.String("kind", upd.Kind.String()),
			slog.String("payload", logger.SanitizeLimit(upd.Payload, 64)),
		)
	}

	if upd.Kind == router.KindButton && h.acker != nil {
		if err := h.acker.AckButton(ctx, upd.CallbackID); err != nil {
			logger.Warn(ctx, "tg", "callback.ack.fail",
				slog.String("error", sender.SanitizeError(err)),
				slog.String("error_kind", sender.ClassifyError(err)),
			)
		}
	}
	if !h.limiter.allow(upd) {
		logger.Warn(ctx, "tg", "tg.rate_limit",
			slog.String("kind", upd.Kind.String()),
			slog.String("outcome", "rate_limited"),
		)
		return nil
	}
	return h.router.Handle(ctx, upd, h.outbox)
}

// WebhookPath derives a stable, unguessable endpoint path from the bot token.
func WebhookPath(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "/webhook/" + hex.EncodeToString(sum[:])[:16]
}
