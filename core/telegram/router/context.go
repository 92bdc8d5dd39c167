package router

import (
	"context"

	"github.com/m3rciful/weatherbot/core/preferences"
)

// Context carries one update through its handler.
type Context struct {
	ctx     context.Context
	upd     Update
	out     *countingOutbox
	handler string
	outcome string
}

// Context returns the request context.
func (c *Context) Context() context.Context { return c.ctx }

// Update returns the update being handled.
func (c *Context) Update() Update { return c.upd }

// UserID returns the sender's id.
func (c *Context) UserID() int64 { return c.upd.UserID }

// Args returns the command arguments or button data.
func (c *Context) Args() string { return c.upd.Args }

// Text returns the message text for text updates.
func (c *Context) Text() string { return c.upd.Payload }

// Meta returns the profile fields stored alongside a city.
func (c *Context) Meta() preferences.Meta {
	return preferences.Meta{Username: c.upd.Username, DisplayName: c.upd.DisplayName}
}

// Send delivers a plain text reply.
func (c *Context) Send(text string) error {
	return c.Reply(Reply{Text: text})
}

// Reply delivers a reply to the update's chat.
func (c *Context) Reply(r Reply) error {
	return c.out.Deliver(c.ctx, c.upd.ChatID, r)
}

// SetOutcome overrides the outcome reported in the summary log line.
func (c *Context) SetOutcome(outcome string) { c.outcome = outcome }
