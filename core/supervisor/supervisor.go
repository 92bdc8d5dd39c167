// Package supervisor keeps exactly one update transport alive and decides
// when repeated transport failures are fatal for the process.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/weatherbot/core/logger"
	"github.com/m3rciful/weatherbot/core/telegram"
	"github.com/m3rciful/weatherbot/core/telegram/router"
	"github.com/m3rciful/weatherbot/core/telegram/sender"
)

const (
	// ModePull polls the platform for updates.
	ModePull = "longpoll"
	// ModePush receives updates on a registered webhook.
	ModePush = "webhook"
)

const (
	// ClassDelivery marks failures reaching or being served by the platform.
	ClassDelivery = "delivery"
	// ClassUnexpected marks every other failure, recovered panics included.
	ClassUnexpected = "unexpected"
)

var (
	// ErrCeilingExceeded is wrapped by the FatalError returned once a failure
	// class exceeds its restart budget.
	ErrCeilingExceeded = errors.New("supervisor: restart ceiling exceeded")
	// ErrWebhookVerify means the platform never echoed the registered webhook URL.
	ErrWebhookVerify = errors.New("supervisor: webhook registration not confirmed")
	// ErrWebhookDrift means the registered webhook URL changed under a running transport.
	ErrWebhookDrift = errors.New("supervisor: webhook url drifted")

	errTransportStopped = errors.New("supervisor: transport stopped")
)

// FatalError ends Run; the process is expected to exit non-zero.
type FatalError struct {
	Class    string
	Failures int
	Err      error
}

func (e *FatalError) Error() string {
	if e.Failures > 0 {
		return fmt.Sprintf("supervisor: fatal %s failure after %d attempts: %v", e.Class, e.Failures, e.Err)
	}
	return fmt.Sprintf("supervisor: fatal %s failure: %v", e.Class, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Platform is the subset of the chat platform API the transports need.
type Platform interface {
	Identify(ctx context.Context) (string, error)
	AnnounceCommands(ctx context.Context, entries []router.MenuEntry) error
	DeleteWebhook(ctx context.Context, dropPending bool) error
	SetWebhook(ctx context.Context, url, secret string, dropPending bool) error
	WebhookInfo(ctx context.Context) (telegram.WebhookInfo, error)
	Updates(ctx context.Context, offset int, timeout time.Duration) ([]tele.Update, error)
}

// Handler routes one decoded platform update.
type Handler interface {
	HandleUpdate(ctx context.Context, u tele.Update) error
	Key(u tele.Update) int64
	SetBotName(name string)
}

// Dispatcher serializes jobs per key.
type Dispatcher interface {
	Submit(ctx context.Context, key int64, action string, run func(context.Context) error) (<-chan error, error)
}

// Mount is where the push endpoint is attached while the push transport runs.
type Mount interface {
	Attach(h fiber.Handler)
	Detach()
}

// Policy holds the per-class restart budgets and linear backoff schedules.
type Policy struct {
	MaxDeliveryFailures int
	DeliveryStep        time.Duration
	DeliveryMax         time.Duration
	// A non-positive MaxUnexpectedFailures means no ceiling; backoff stays capped.
	MaxUnexpectedFailures int
	UnexpectedStep        time.Duration
	UnexpectedMax         time.Duration
}

// DefaultPolicy allows 5 consecutive failures of each class, with
// min(60n, 300)s backoff for delivery and min(30n, 180)s for unexpected ones.
func DefaultPolicy() Policy {
	return Policy{
		MaxDeliveryFailures:   5,
		DeliveryStep:          60 * time.Second,
		DeliveryMax:           300 * time.Second,
		MaxUnexpectedFailures: 5,
		UnexpectedStep:        30 * time.Second,
		UnexpectedMax:         180 * time.Second,
	}
}

// Backoff returns the wait before restart number n of the given class.
func (p Policy) Backoff(class string, n int) time.Duration {
	step, ceil := p.UnexpectedStep, p.UnexpectedMax
	if class == ClassDelivery {
		step, ceil = p.DeliveryStep, p.DeliveryMax
	}
	if n < 1 {
		n = 1
	}
	d := step * time.Duration(n)
	if ceil > 0 && d > ceil {
		d = ceil
	}
	return d
}

// Ceiling returns the failure budget of class; a non-positive value means unlimited.
func (p Policy) Ceiling(class string) int {
	if class == ClassDelivery {
		return p.MaxDeliveryFailures
	}
	return p.MaxUnexpectedFailures
}

// Classify assigns err to a failure class.
func Classify(err error) string {
	if errors.Is(err, ErrWebhookDrift) || sender.IsDelivery(err) {
		return ClassDelivery
	}
	return ClassUnexpected
}

// Options configures New.
type Options struct {
	Platform   Platform
	Handler    Handler
	Dispatcher Dispatcher
	Menu       []router.MenuEntry

	Mode        string
	PollTimeout time.Duration
	DropPending bool

	// WebhookURL is the full public address of the push endpoint.
	WebhookURL     string
	Mount          Mount
	VerifyAttempts int
	VerifyStep     time.Duration
	CheckInterval  time.Duration

	Policy Policy

	// Sleep waits d or until ctx is done; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
	// NewSecret generates the push secret token.
	NewSecret func() string
}

// Supervisor runs the selected transport and restarts it on failure.
type Supervisor struct {
	opts Options
	// offset is the next update id to poll. It survives restarts so an
	// acknowledged batch is not fetched twice. Only the Run goroutine uses it.
	offset int
}

// New validates options and fills defaults.
func New(opts Options) (*Supervisor, error) {
	if opts.Platform == nil || opts.Handler == nil || opts.Dispatcher == nil {
		return nil, errors.New("supervisor: platform, handler and dispatcher are required")
	}
	switch opts.Mode {
	case "":
		opts.Mode = ModePull
	case ModePull:
	case ModePush:
		if opts.WebhookURL == "" || opts.Mount == nil {
			return nil, errors.New("supervisor: push mode requires a webhook url and a mount")
		}
	default:
		return nil, fmt.Errorf("supervisor: unknown mode %q", opts.Mode)
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 10 * time.Second
	}
	if opts.VerifyAttempts <= 0 {
		opts.VerifyAttempts = 3
	}
	if opts.VerifyStep <= 0 {
		opts.VerifyStep = 2 * time.Second
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = 60 * time.Second
	}
	if opts.Policy == (Policy{}) {
		opts.Policy = DefaultPolicy()
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	if opts.NewSecret == nil {
		opts.NewSecret = newSecret
	}
	return &Supervisor{opts: opts}, nil
}

// Run keeps the transport alive until ctx is done (nil) or a failure is
// fatal (*FatalError).
func (s *Supervisor) Run(ctx context.Context) error {
	var delivery, unexpected int
	healthy := func() {
		if delivery > 0 || unexpected > 0 {
			logger.LogEvent(ctx, logger.SUP, slog.LevelInfo, "transport.recovered",
				slog.Int("delivery_failures", delivery),
				slog.Int("unexpected_failures", unexpected),
			)
		}
		delivery, unexpected = 0, 0
	}

	for {
		err := s.runOnce(ctx, healthy)
		if ctx.Err() != nil {
			logger.LogEvent(ctx, logger.SUP, slog.LevelInfo, "transport.stopped",
				slog.String("mode", s.opts.Mode),
			)
			return nil
		}
		if err == nil {
			err = errTransportStopped
		}
		if errors.Is(err, ErrWebhookVerify) {
			logger.LogEvent(ctx, logger.SUP, slog.LevelError, "supervisor.fatal",
				slog.String("class", "verify"),
				slog.String("err", sender.SanitizeError(err)),
			)
			return &FatalError{Class: "verify", Err: err}
		}

		class := Classify(err)
		var n int
		if class == ClassDelivery {
			delivery++
			n = delivery
		} else {
			unexpected++
			n = unexpected
		}
		ceiling := s.opts.Policy.Ceiling(class)
		if ceiling > 0 && n > ceiling {
			logger.LogEvent(ctx, logger.SUP, slog.LevelError, "supervisor.fatal",
				slog.String("class", class),
				slog.Int("attempt", n),
				slog.Int("max", ceiling),
				slog.String("err", sender.SanitizeError(err)),
			)
			return &FatalError{Class: class, Failures: n, Err: fmt.Errorf("%w: %w", ErrCeilingExceeded, err)}
		}

		wait := s.opts.Policy.Backoff(class, n)
		logger.LogEvent(ctx, logger.SUP, slog.LevelWarn, "transport.restart",
			slog.String("status", "retry"),
			slog.String("mode", s.opts.Mode),
			slog.String("class", class),
			slog.Int("attempt", n),
			slog.Int("max", ceiling),
			slog.Duration("backoff", wait),
			slog.String("error_kind", sender.ClassifyError(err)),
			slog.String("err", sender.SanitizeError(err)),
		)
		if err := s.opts.Sleep(ctx, wait); err != nil {
			logger.LogEvent(ctx, logger.SUP, slog.LevelInfo, "transport.stopped",
				slog.String("mode", s.opts.Mode),
				slog.String("phase", "backoff"),
			)
			return nil
		}
	}
}

func (s *Supervisor) runOnce(ctx context.Context, healthy func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &sender.PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	name, err := s.opts.Platform.Identify(ctx)
	if err != nil {
		return fmt.Errorf("identify: %w", err)
	}
	s.opts.Handler.SetBotName(name)
	logger.LogEvent(ctx, logger.SUP, slog.LevelInfo, "transport.start",
		slog.String("mode", s.opts.Mode),
		slog.String("bot", name),
	)
	s.announce(ctx)

	if s.opts.Mode == ModePush {
		return s.runPush(ctx, healthy)
	}
	return s.runPull(ctx, healthy)
}

// announce is best effort; a failure never blocks serving.
func (s *Supervisor) announce(ctx context.Context) {
	if len(s.opts.Menu) == 0 {
		return
	}
	actx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.opts.Platform.AnnounceCommands(actx, s.opts.Menu); err != nil {
		logger.LogEvent(ctx, logger.SUP, slog.LevelWarn, "menu.announce.fail",
			slog.String("error_kind", sender.ClassifyError(err)),
			slog.String("err", sender.SanitizeError(err)),
		)
	}
}

// dispatch queues u behind earlier updates of the same user. Handling runs
// detached from ctx so in-flight replies finish during shutdown.
func (s *Supervisor) dispatch(ctx context.Context, u tele.Update, action string) (<-chan error, error) {
	h := s.opts.Handler
	done, err := s.opts.Dispatcher.Submit(context.WithoutCancel(ctx), h.Key(u), action, func(jctx context.Context) error {
		return h.HandleUpdate(jctx, u)
	})
	if err != nil {
		logger.LogEvent(ctx, logger.SUP, slog.LevelWarn, "update.drop",
			slog.Int("update_id", u.ID),
			slog.String("err", err.Error()),
		)
	}
	return done, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
