package router

import (
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/m3rciful/weatherbot/core/logger"
	"github.com/m3rciful/weatherbot/core/telegram/state"
)

func logHandlerSummary(c *Context, start time.Time, st state.State, err error) {
	ctx := logger.WithHandler(c.ctx, c.handler)

	status := "ok"
	outcome := c.outcome
	if err != nil {
		status = "fail"
		if outcome == "" {
			outcome = "fail"
		}
	}
	if outcome == "" {
		outcome = "ok"
	}

	level := slog.LevelInfo
	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("handler", c.handler),
		slog.String("kind", c.upd.Kind.String()),
		slog.String("outcome", outcome),
		slog.Int("messages", c.out.messages),
		slog.Bool("kb", c.out.kb),
		slog.String("state", string(st)),
		slog.Int64("duration_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
	}
	if err != nil {
		level = slog.LevelWarn
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", deriveErrorCode(err)),
			slog.String("cause", c.handler),
		)
	}
	logger.LogEvent(ctx, logger.TG, level, "handler.handled", attrs...)
}

func normalizeHandlerName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "unknown"
	}
	name = strings.TrimPrefix(name, "/")
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ToLower(name)
}

func deriveErrorCode(err error) string {
	if err == nil {
		return ""
	}
	type coder interface{ Code() string }
	if c, ok := err.(coder); ok {
		code := strings.TrimSpace(c.Code())
		if code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil && t.Name() != "" {
		return strings.ToUpper(strings.ReplaceAll(t.Name(), " ", "_"))
	}
	return "UNKNOWN_ERROR"
}
