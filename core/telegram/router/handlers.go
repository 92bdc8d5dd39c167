package router

import (
	"errors"
	"log/slog"

	"github.com/m3rciful/weatherbot/core/logger"
	"github.com/m3rciful/weatherbot/core/preferences"
	"github.com/m3rciful/weatherbot/core/telegram/state"
	"github.com/m3rciful/weatherbot/core/weather"
)

func (r *Router) register() {
	r.reg.RegisterCommand("/start", Command{Handler: r.onStart, Description: "Start the bot"})
	r.reg.RegisterCommand("/help", Command{Handler: r.onHelp, Description: "How to use the bot", Aliases: []string{LabelHelp}})
	r.reg.RegisterCommand("/about", Command{Handler: r.onAbout, Description: "About the bot"})
	r.reg.RegisterCommand("/stats", Command{Handler: r.onStats, Description: "Bot statistics", Aliases: []string{LabelStats}})
	r.reg.RegisterCommand("/weather", Command{Handler: r.onWeather, Description: "Weather in your city", Aliases: []string{LabelWeather}})
	r.reg.RegisterCommand("/setcity", Command{Handler: r.onSetCity, Description: "Choose your city", Aliases: []string{LabelSetCity}})
	r.reg.RegisterCommand("/cancel", Command{Handler: r.onCancel, Description: "Stop choosing a city"})
	r.reg.RegisterCommand("/updatemenu", Command{Handler: r.onUpdateMenu, Description: "Re-publish the command menu", AdminOnly: true, Hidden: true})

	_ = r.reg.RegisterButton(TokenWeather, r.onWeather)
	_ = r.reg.RegisterButton(TokenSetCity, r.onSetCity)
	_ = r.reg.RegisterButton(TokenStats, r.onStats)
	_ = r.reg.RegisterButton(TokenAbout, r.onAbout)
	_ = r.reg.RegisterButton(TokenHelp, r.onHelp)
	_ = r.reg.RegisterButton(TokenCancel, r.onCancel)
	_ = r.reg.RegisterButton(TokenCity, r.onCityButton)
	r.reg.SetButtonNotFound(func(c *Context) error {
		c.SetOutcome("invalid")
		return c.Send(textUnknownButton)
	})
}

func (r *Router) onStart(c *Context) error {
	if err := c.Reply(Reply{Text: textWelcome, Menu: mainMenu()}); err != nil {
		return err
	}
	return c.Reply(Reply{Text: textPromptCity, Inline: shortcutButtons()})
}

func (r *Router) onHelp(c *Context) error {
	return c.Reply(Reply{Text: textHelp, Inline: shortcutButtons()})
}

func (r *Router) onAbout(c *Context) error {
	return c.Send(textAbout())
}

func (r *Router) onStats(c *Context) error {
	ctx := c.Context()
	users, err := r.store.CountUsers(ctx)
	if err == nil {
		var cities int
		cities, err = r.store.CountDistinctCities(ctx)
		if err == nil {
			city, _, cerr := r.store.GetCity(ctx, c.UserID())
			if cerr != nil {
				r.logStoreRead(c, cerr)
			}
			return c.Send(textStats(users, cities, city))
		}
	}
	r.logStoreRead(c, err)
	c.SetOutcome("unavailable")
	return c.Send(textStatsFailed)
}

func (r *Router) onWeather(c *Context) error {
	city, ok, err := r.store.GetCity(c.Context(), c.UserID())
	if err != nil {
		r.logStoreRead(c, err)
		c.SetOutcome("unavailable")
		return c.Send(textStoreRead)
	}
	if !ok {
		c.SetOutcome("prompt")
		return c.Reply(Reply{Text: textNoDefaultCity, Inline: [][]Button{{{Label: "🏙️ Set city", Token: TokenSetCity}}}})
	}
	return r.lookup(c, city)
}

// onSetCity opens the city prompt. An inline argument answers it right away.
func (r *Router) onSetCity(c *Context) error {
	r.states.SetState(c.UserID(), state.StateAwaitingCity)
	if c.upd.Kind == KindCommand && c.Args() != "" {
		return r.answerCity(c, c.Args())
	}
	c.SetOutcome("prompt")
	return c.Reply(Reply{Text: textPromptCity, Inline: cityPromptButtons()})
}

func (r *Router) onCancel(c *Context) error {
	c.SetOutcome("cancelled")
	if !r.states.HasState(c.UserID()) {
		return c.Send(textNothingToStop)
	}
	r.states.ClearState(c.UserID())
	return c.Send(textCancelled)
}

func (r *Router) onUpdateMenu(c *Context) error {
	if r.menu == nil {
		c.SetOutcome("fail")
		return c.Send(textMenuFailed)
	}
	if err := r.menu.AnnounceCommands(c.Context(), r.MenuEntries()); err != nil {
		logger.LogEvent(c.Context(), logger.TWire, slog.LevelWarn, "menu.announce.fail",
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		c.SetOutcome("fail")
		return c.Send(textMenuFailed)
	}
	return c.Send(textMenuUpdated)
}

// onCityButton behaves exactly as if the user had typed the button's city.
func (r *Router) onCityButton(c *Context) error {
	c.upd.Kind = KindText
	c.upd.Payload = c.upd.Args
	return r.routeText(c)(c)
}

func (r *Router) onUnknownCommand(c *Context) error {
	c.SetOutcome("invalid")
	return c.Send(textUnknownCommand(c.upd.Payload))
}

func (r *Router) onAdminReject(c *Context) error {
	c.SetOutcome("invalid")
	return c.Send(textAdminOnly)
}

func (r *Router) onCityAnswer(c *Context) error {
	return r.answerCity(c, c.Text())
}

// onLookup answers free text in Idle with a one-off lookup; nothing is saved.
func (r *Router) onLookup(c *Context) error {
	city, ok := r.guardCity(c.Text())
	if !ok {
		c.SetOutcome("invalid")
		return c.Send(textInvalidCity(r.cityMaxLen))
	}
	return r.lookup(c, city)
}

func (r *Router) lookup(c *Context, city string) error {
	out := r.weather.Fetch(c.Context(), city, r.fetchTimeout)
	if !out.OK() {
		return r.replyFailure(c, city, out)
	}
	return c.Reply(Reply{Text: weather.Format(out.Snapshot), Inline: refreshButtons(city)})
}

// answerCity handles a candidate while the user is AwaitingCity.
func (r *Router) answerCity(c *Context, raw string) error {
	uid := c.UserID()
	r.states.Touch(uid)
	city, ok := r.guardCity(raw)
	if !ok {
		c.SetOutcome("invalid")
		if r.rejectAttempt(c) {
			return c.Send(textTooManyTries)
		}
		return c.Send(textInvalidCity(r.cityMaxLen))
	}

	out := r.weather.Fetch(c.Context(), city, r.fetchTimeout)
	switch {
	case out.OK():
	case out.Kind == weather.NotFound:
		if r.rejectAttempt(c) {
			c.SetOutcome("not_found")
			return c.Send(textNotFound(city) + "\n\n" + textTooManyTries)
		}
		return r.replyFailure(c, city, out)
	default:
		return r.replyFailure(c, city, out)
	}

	body := weather.Format(out.Snapshot)
	if err := r.store.SetCity(c.Context(), uid, city, c.Meta()); err != nil {
		r.logStoreWrite(c, city, err)
		c.SetOutcome("not_saved")
		body += "\n\n" + textNotSaved
	} else {
		c.SetOutcome("saved")
		body += "\n\n" + textSaved(city)
	}
	r.states.ClearState(uid)
	return c.Reply(Reply{Text: body, Inline: refreshButtons(city)})
}

// rejectAttempt counts a rejected answer and reports whether the prompt was closed.
func (r *Router) rejectAttempt(c *Context) bool {
	n := r.states.IncAttempts(c.UserID())
	if r.maxAttempts <= 0 || n < r.maxAttempts {
		return false
	}
	r.states.ClearState(c.UserID())
	return true
}

func (r *Router) replyFailure(c *Context, city string, out weather.Outcome) error {
	c.SetOutcome(out.LogOutcome())
	switch out.Kind {
	case weather.NotFound:
		return c.Send(textNotFound(city))
	case weather.AuthError:
		logger.LogEvent(c.Context(), logger.WX, slog.LevelError, "weather.auth.fail",
			slog.Int("http_status", out.Status),
		)
		return c.Send(textProviderBroken)
	case weather.UnknownError:
		return c.Send(textUnreadable)
	}
	return c.Send(textUnavailable)
}

func (r *Router) logStoreRead(c *Context, err error) {
	logger.LogEvent(c.Context(), logger.STORE, slog.LevelError, "store.read.fail",
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
	)
}

func (r *Router) logStoreWrite(c *Context, city string, err error) {
	attrs := []slog.Attr{
		slog.String("city", logger.SanitizeLimit(city, 64)),
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		slog.String("err_code", deriveErrorCode(err)),
	}
	var se *preferences.StoreError
	if errors.As(err, &se) {
		attrs = append(attrs, slog.String("tier", "minimal"))
	}
	logger.LogEvent(c.Context(), logger.STORE, slog.LevelError, "store.write.fail", attrs...)
}
