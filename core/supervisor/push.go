package supervisor

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/weatherbot/core/logger"
	"github.com/m3rciful/weatherbot/core/telegram/sender"
)

// SecretHeader carries the secret token the platform echoes on every push.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

func newSecret() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// runPush registers and verifies the webhook, attaches the endpoint and
// watches the registration until ctx is done or it drifts.
func (s *Supervisor) runPush(ctx context.Context, healthy func()) error {
	secret := s.opts.NewSecret()
	if err := s.register(ctx, secret); err != nil {
		return err
	}

	s.opts.Mount.Attach(s.endpoint(secret))
	defer s.teardown(ctx)
	healthy()
	logger.LogEvent(ctx, logger.SUP, slog.LevelInfo, "webhook.attached",
		slog.Duration("check_interval", s.opts.CheckInterval),
	)

	ticker := time.NewTicker(s.opts.CheckInterval)
	defer ticker.Stop()
	var lastErrorDate int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		info, err := s.opts.Platform.WebhookInfo(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("webhook info: %w", err)
		}
		if info.URL != s.opts.WebhookURL {
			return fmt.Errorf("%w: registered %q", ErrWebhookDrift, info.URL)
		}
		if info.LastErrorDate > lastErrorDate {
			lastErrorDate = info.LastErrorDate
			logger.LogEvent(ctx, logger.SUP, slog.LevelWarn, "webhook.last_error",
				slog.String("err", logger.SanitizeLimit(info.LastErrorMessage, 256)),
				slog.Int("pending", info.PendingUpdateCount),
			)
		}
	}
}

// register sets the webhook and waits for the platform to echo its URL.
func (s *Supervisor) register(ctx context.Context, secret string) error {
	var lastErr error
	for attempt := 1; attempt <= s.opts.VerifyAttempts; attempt++ {
		lastErr = s.registerOnce(ctx, secret)
		if lastErr == nil {
			logger.LogEvent(ctx, logger.SUP, slog.LevelInfo, "webhook.verified",
				slog.Int("attempt", attempt),
			)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.LogEvent(ctx, logger.SUP, slog.LevelWarn, "webhook.verify.fail",
			slog.Int("attempt", attempt),
			slog.Int("max", s.opts.VerifyAttempts),
			slog.String("err", sender.SanitizeError(lastErr)),
		)
		if attempt < s.opts.VerifyAttempts {
			if err := s.opts.Sleep(ctx, s.opts.VerifyStep*time.Duration(attempt)); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrWebhookVerify, s.opts.VerifyAttempts, lastErr)
}

func (s *Supervisor) registerOnce(ctx context.Context, secret string) error {
	if err := s.opts.Platform.SetWebhook(ctx, s.opts.WebhookURL, secret, s.opts.DropPending); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	info, err := s.opts.Platform.WebhookInfo(ctx)
	if err != nil {
		return fmt.Errorf("webhook info: %w", err)
	}
	if info.URL != s.opts.WebhookURL {
		return fmt.Errorf("webhook url mismatch: registered %q", info.URL)
	}
	return nil
}

func (s *Supervisor) teardown(ctx context.Context) {
	s.opts.Mount.Detach()
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.opts.Platform.DeleteWebhook(dctx, false); err != nil {
		logger.LogEvent(ctx, logger.SUP, slog.LevelWarn, "webhook.delete.fail",
			slog.String("err", sender.SanitizeError(err)),
		)
		return
	}
	logger.LogEvent(ctx, logger.SUP, slog.LevelInfo, "webhook.detached")
}

// endpoint decodes one pushed update and answers once it has been handled.
func (s *Supervisor) endpoint(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if subtle.ConstantTimeCompare([]byte(c.Get(SecretHeader)), []byte(secret)) != 1 {
			return c.SendStatus(fiber.StatusUnauthorized)
		}
		ctx := c.UserContext()

		var u tele.Update
		if err := json.Unmarshal(c.Body(), &u); err != nil {
			logger.LogEvent(ctx, logger.SUP, slog.LevelWarn, "webhook.decode.fail",
				slog.String("err", err.Error()),
			)
			return c.SendStatus(fiber.StatusInternalServerError)
		}

		done, err := s.dispatch(ctx, u, "webhook")
		if err != nil {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		if err := <-done; err != nil {
			var pe *sender.PanicError
			level := slog.LevelWarn
			if errors.As(err, &pe) {
				level = slog.LevelError
			}
			logger.LogEvent(ctx, logger.SUP, level, "webhook.handle.fail",
				slog.Int("update_id", u.ID),
				slog.String("err", sender.SanitizeError(err)),
			)
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.SendStatus(fiber.StatusOK)
	}
}
