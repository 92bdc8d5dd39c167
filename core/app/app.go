// Package app wires every collaborator of the bot into one explicit service object.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/weatherbot/core/config"
	"github.com/m3rciful/weatherbot/core/logger"
	"github.com/m3rciful/weatherbot/core/preferences"
	"github.com/m3rciful/weatherbot/core/scheduler"
	"github.com/m3rciful/weatherbot/core/server"
	"github.com/m3rciful/weatherbot/core/supervisor"
	"github.com/m3rciful/weatherbot/core/telegram"
	"github.com/m3rciful/weatherbot/core/telegram/router"
	"github.com/m3rciful/weatherbot/core/telegram/sender"
	"github.com/m3rciful/weatherbot/core/telegram/state"
	"github.com/m3rciful/weatherbot/core/weather"
)

// App owns the bot's runtime components.
type App struct {
	store      preferences.Store
	states     state.Manager
	router     *router.Router
	platform   *telegram.Platform
	dispatcher *sender.Dispatcher
	server     *server.Server
	scheduler  *scheduler.Scheduler
	supervisor *supervisor.Supervisor
}

// New builds the components from cfg around an already opened store.
// The store is closed by Run.
func New(cfg *config.Config, store preferences.Store) (*App, error) {
	if cfg == nil || store == nil {
		return nil, fmt.Errorf("app: config and store are required")
	}
	sec := func(n int) time.Duration { return time.Duration(n) * time.Second }

	wx := weather.NewClient(weather.Options{
		APIKey:  cfg.Weather.APIKey,
		BaseURL: cfg.Weather.BaseURL,
		Units:   cfg.Weather.Units,
		Lang:    cfg.Weather.Lang,
		Timeout: sec(cfg.Weather.TimeoutSeconds),
		Breaker: weather.BreakerOptions{
			MaxRequests:      cfg.Weather.Breaker.MaxRequests,
			Interval:         sec(cfg.Weather.Breaker.IntervalSeconds),
			OpenTimeout:      sec(cfg.Weather.Breaker.OpenSeconds),
			FailureThreshold: cfg.Weather.Breaker.FailureThreshold,
		},
	})

	platform, err := telegram.NewPlatform(telegram.PlatformOptions{
		Token:       cfg.Telegram.Token,
		PollTimeout: sec(cfg.LongPollTimeout()),
	})
	if err != nil {
		return nil, err
	}

	states := state.NewMemoryManager()
	awaitingTTL := sec(cfg.Conversation.AwaitingTTLSeconds)
	rt := router.New(router.Options{
		Weather:         wx,
		Store:           store,
		States:          states,
		Menu:            platform,
		AdminID:         cfg.Telegram.AdminID,
		CityMaxLen:      cfg.Conversation.CityMaxLen,
		AwaitingTTL:     awaitingTTL,
		MaxCityAttempts: cfg.Conversation.MaxCityAttempts,
		FetchTimeout:    sec(cfg.Weather.TimeoutSeconds),
	})
	handler := telegram.NewUpdateHandler(rt, platform, platform)
	if ms := cfg.Telegram.RateLimitMS; ms > 0 {
		handler.WithRateLimit(telegram.RateLimitOptions{Interval: time.Duration(ms) * time.Millisecond})
	}
	dispatcher := sender.NewDispatcher(sender.Options{})

	path := cfg.Webhook.Path
	if path == "" {
		path = telegram.WebhookPath(cfg.Telegram.Token)
	}
	srvPath := ""
	if cfg.WebhookMode() {
		srvPath = path
	}
	srv := server.New(server.Options{
		Listen:      cfg.HTTP.Listen,
		Port:        cfg.HTTP.Port,
		WebhookPath: srvPath,
	})

	sv := cfg.Supervisor
	sup, err := supervisor.New(supervisor.Options{
		Platform:       platform,
		Handler:        handler,
		Dispatcher:     dispatcher,
		Menu:           rt.MenuEntries(),
		Mode:           cfg.Telegram.RunMode,
		PollTimeout:    sec(cfg.LongPollTimeout()),
		DropPending:    cfg.DropPending(),
		WebhookURL:     cfg.Webhook.URL + path,
		Mount:          srv,
		VerifyAttempts: cfg.Webhook.VerifyAttempts,
		CheckInterval:  sec(cfg.Webhook.CheckIntervalSeconds),
		Policy: supervisor.Policy{
			MaxDeliveryFailures:   sv.MaxDeliveryFailures,
			DeliveryStep:          sec(sv.DeliveryBackoffStepSeconds),
			DeliveryMax:           sec(sv.DeliveryBackoffMaxSeconds),
			MaxUnexpectedFailures: sv.MaxUnexpectedFailures,
			UnexpectedStep:        sec(sv.UnexpectedBackoffStepSeconds),
			UnexpectedMax:         sec(sv.UnexpectedBackoffMaxSeconds),
		},
	})
	if err != nil {
		return nil, err
	}

	a := &App{
		store:      store,
		states:     states,
		router:     rt,
		platform:   platform,
		dispatcher: dispatcher,
		server:     srv,
		supervisor: sup,
	}

	if !cfg.Scheduler.Disabled {
		// Sessions outlive the prompt TTL so late answers still get the expiry notice.
		a.scheduler, err = scheduler.New(scheduler.Options{
			States:        states,
			SweepTTL:      2 * awaitingTTL,
			Store:         store,
			SweepInterval: sec(cfg.Scheduler.SweepIntervalSeconds),
			StatsInterval: sec(cfg.Scheduler.StatsIntervalSeconds),
		})
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Router exposes the conversation router.
func (a *App) Router() *router.Router { return a.router }

// Run serves until ctx is done or the supervisor gives up. In-flight updates
// finish and the store is closed on every exit path.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.server.Run(gctx) })
	if a.scheduler != nil {
		g.Go(func() error { return a.scheduler.Run(gctx) })
	}
	g.Go(func() error { return a.supervisor.Run(gctx) })
	return g.Wait()
}

func (a *App) close() {
	start := time.Now()
	a.dispatcher.Close()
	if err := a.store.Close(); err != nil {
		logger.L.With("component", "app").Warn("store close failed",
			slog.String("event", "shutdown"),
			slog.String("err", err.Error()),
		)
	}
	logger.L.With("component", "app").Info("app stopped",
		slog.String("event", "shutdown"),
		slog.Int("sessions", a.states.Len()),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
}
