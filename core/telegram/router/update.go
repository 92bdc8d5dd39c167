package router

import (
	"context"
	"fmt"
)

// Kind tells how an update reached the bot.
type Kind int

const (
	KindCommand Kind = iota + 1
	KindText
	KindButton
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindText:
		return "text"
	case KindButton:
		return "button"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Update is one inbound event, already decoded from the platform format.
type Update struct {
	ID          int
	UserID      int64
	ChatID      int64
	Username    string
	DisplayName string
	Kind        Kind
	// Payload is the command name without slash, the message text, or the button token.
	Payload string
	// Args is the text after a command or the data attached to a button.
	Args string
	// CallbackID identifies a button press for acknowledgement.
	CallbackID string
}

// Button is one inline keyboard button. Token selects the handler; Data is passed as Args.
type Button struct {
	Label string
	Token string
	Data  string
}

// Reply is one outbound message.
type Reply struct {
	Text   string
	Inline [][]Button
	// Menu is a persistent reply keyboard made of command aliases.
	Menu       [][]string
	RemoveMenu bool
}

// HasKeyboard reports whether the reply carries any markup.
func (r Reply) HasKeyboard() bool {
	return len(r.Inline) > 0 || len(r.Menu) > 0 || r.RemoveMenu
}

// Outbox delivers replies to a chat.
type Outbox interface {
	Deliver(ctx context.Context, chatID int64, reply Reply) error
}

// countingOutbox records what a handler sent for the summary log line.
type countingOutbox struct {
	next     Outbox
	messages int
	kb       bool
}

func (o *countingOutbox) Deliver(ctx context.Context, chatID int64, reply Reply) error {
	if err := o.next.Deliver(ctx, chatID, reply); err != nil {
		return err
	}
	o.messages++
	if reply.HasKeyboard() {
		o.kb = true
	}
	return nil
}
