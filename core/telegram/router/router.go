// Package router turns decoded updates into replies and state transitions.
// It knows nothing about the chat platform's wire format.
package router

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/m3rciful/weatherbot/core/logger"
	"github.com/m3rciful/weatherbot/core/preferences"
	"github.com/m3rciful/weatherbot/core/syncutil"
	"github.com/m3rciful/weatherbot/core/telegram/state"
	"github.com/m3rciful/weatherbot/core/weather"
)

// DefaultCityMaxLen is the longest accepted city name, in runes.
const DefaultCityMaxLen = 50

// WeatherFetcher is the lookup the router depends on.
type WeatherFetcher interface {
	Fetch(ctx context.Context, city string, timeout time.Duration) weather.Outcome
}

// MenuAnnouncer publishes the command menu to the platform.
type MenuAnnouncer interface {
	AnnounceCommands(ctx context.Context, entries []MenuEntry) error
}

// Options wires the router's collaborators.
type Options struct {
	Weather WeatherFetcher
	Store   preferences.Store
	States  state.Manager
	// Menu is optional; without it /updatemenu reports a failure.
	Menu    MenuAnnouncer
	AdminID int64

	CityMaxLen int
	// AwaitingTTL expires an unanswered city prompt; zero or negative never expires.
	AwaitingTTL time.Duration
	// MaxCityAttempts ends the prompt after that many rejected answers; zero never does.
	MaxCityAttempts int
	FetchTimeout    time.Duration

	Now func() time.Time
}

// Router is the per-user conversation state machine.
type Router struct {
	weather      WeatherFetcher
	store        preferences.Store
	states       state.Manager
	menu         MenuAnnouncer
	adminID      int64
	cityMaxLen   int
	awaitingTTL  time.Duration
	maxAttempts  int
	fetchTimeout time.Duration
	now          func() time.Time

	reg   *Registry
	locks syncutil.KeyedMutex
}

// New builds a router and registers its commands and buttons.
func New(opts Options) *Router {
	if opts.States == nil {
		opts.States = state.NewMemoryManager()
	}
	if opts.CityMaxLen <= 0 {
		opts.CityMaxLen = DefaultCityMaxLen
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	r := &Router{
		weather:      opts.Weather,
		store:        opts.Store,
		states:       opts.States,
		menu:         opts.Menu,
		adminID:      opts.AdminID,
		cityMaxLen:   opts.CityMaxLen,
		awaitingTTL:  opts.AwaitingTTL,
		maxAttempts:  opts.MaxCityAttempts,
		fetchTimeout: opts.FetchTimeout,
		now:          opts.Now,
		reg:          NewRegistry(),
	}
	r.register()
	return r
}

// Registry exposes the command and button registry.
func (r *Router) Registry() *Registry { return r.reg }

// States exposes the conversation state manager.
func (r *Router) States() state.Manager { return r.states }

// MenuEntries returns the commands announced in the platform menu.
func (r *Router) MenuEntries() []MenuEntry { return r.reg.ListCommands(true) }

// Handle routes one update. Updates of the same user are handled one at a time
// in call order; different users proceed concurrently. The returned error
// reports delivery failures only; domain failures are answered in chat.
func (r *Router) Handle(ctx context.Context, upd Update, out Outbox) error {
	unlock := r.locks.Lock(upd.UserID)
	defer unlock()

	start := time.Now()
	c := &Context{
		ctx: ctx,
		upd: upd,
		out: &countingOutbox{next: out},
	}

	if handled, err := r.expireStale(c); handled {
		logHandlerSummary(c, start, state.StateIdle, err)
		return err
	}

	h := r.route(c)
	err := h(c)
	logHandlerSummary(c, start, r.states.GetState(upd.UserID), err)
	return err
}

// expireStale drops a city prompt older than the TTL and tells the user once.
// Only a late text answer is consumed; commands and buttons run as usual.
func (r *Router) expireStale(c *Context) (bool, error) {
	sess := r.states.Get(c.UserID())
	if !sess.Expired(r.now(), r.awaitingTTL) {
		return false, nil
	}
	r.states.ClearState(c.UserID())
	logger.LogEvent(c.ctx, logger.TG, slog.LevelDebug, "state.expired",
		slog.String("state", string(sess.State)),
		slog.String("outcome", "expired"),
	)
	if c.upd.Kind != KindText {
		return false, nil
	}
	if _, _, ok := r.reg.LookupAlias(c.upd.Payload); ok {
		return false, nil
	}
	c.handler = "fsm.expired"
	c.outcome = "expired"
	return true, c.Send(textPromptExpired)
}

func (r *Router) route(c *Context) HandlerFunc {
	upd := c.upd
	switch upd.Kind {
	case KindCommand:
		key, cmd, ok := r.reg.LookupCommand(upd.Payload)
		if !ok {
			c.handler = "unknown_command"
			return r.onUnknownCommand
		}
		c.handler = normalizeHandlerName(key)
		if cmd.AdminOnly && !r.isAdmin(upd.UserID) {
			c.handler += ".rejected"
			return r.onAdminReject
		}
		return cmd.Handler
	case KindButton:
		h, ok := r.reg.GetButton(upd.Payload)
		c.handler = "callback." + normalizeHandlerName(upd.Payload)
		if !ok {
			if fb := r.reg.ButtonNotFound(); fb != nil {
				return fb
			}
			return noop
		}
		return h
	case KindText:
		if key, cmd, ok := r.reg.LookupAlias(upd.Payload); ok && !cmd.AdminOnly {
			c.handler = normalizeHandlerName(key)
			return cmd.Handler
		}
		return r.routeText(c)
	}
	c.handler = "unsupported"
	return noop
}

// routeText sends free text to the city prompt or a one-off lookup.
func (r *Router) routeText(c *Context) HandlerFunc {
	if r.states.GetState(c.UserID()) == state.StateAwaitingCity {
		c.handler = "fsm.awaiting_city"
		return r.onCityAnswer
	}
	c.handler = "lookup"
	return r.onLookup
}

func (r *Router) isAdmin(userID int64) bool {
	return r.adminID != 0 && userID == r.adminID
}

// guardCity trims a candidate and enforces the length limit.
func (r *Router) guardCity(raw string) (string, bool) {
	city := strings.TrimSpace(raw)
	if city == "" || utf8.RuneCountInString(city) > r.cityMaxLen {
		return "", false
	}
	return city, true
}

func noop(*Context) error { return nil }
