// Package keyboard builds platform markup from router replies.
package keyboard

import (
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/weatherbot/core/telegram/router"
)

// InlineBtn describes a convenience wrapper for inline button properties.
type InlineBtn struct {
	Text   string
	Unique string
	Data   string
}

// RemoveKeyboard returns a markup that hides the keyboard.
func RemoveKeyboard() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}

// ReplyButtons builds a persistent reply keyboard from rows of text.
func ReplyButtons(rows ...[]string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{ResizeKeyboard: true}
	var keyboard []tele.Row
	for _, row := range rows {
		var buttons []tele.Btn
		for _, label := range row {
			buttons = append(buttons, markup.Text(label))
		}
		keyboard = append(keyboard, markup.Row(buttons...))
	}
	markup.Reply(keyboard...)
	return markup
}

// InlineButtonsRows builds an inline keyboard from rows of InlineBtn.
func InlineButtonsRows(rows ...[]InlineBtn) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	inline := make([][]tele.InlineButton, len(rows))
	for i, row := range rows {
		r := make([]tele.InlineButton, len(row))
		for j, btn := range row {
			r[j] = *markup.Data(btn.Text, btn.Unique, btn.Data).Inline()
		}
		inline[i] = r
	}
	markup.InlineKeyboard = inline
	return markup
}

// FromReply picks the markup for a reply: inline buttons win over the reply
// keyboard, which wins over removal. Nil means plain text.
func FromReply(r router.Reply) *tele.ReplyMarkup {
	switch {
	case len(r.Inline) > 0:
		rows := make([][]InlineBtn, 0, len(r.Inline))
		for _, row := range r.Inline {
			btns := make([]InlineBtn, 0, len(row))
			for _, b := range row {
				btns = append(btns, InlineBtn{Text: b.Label, Unique: b.Token, Data: b.Data})
			}
			rows = append(rows, btns)
		}
		return InlineButtonsRows(rows...)
	case len(r.Menu) > 0:
		return ReplyButtons(r.Menu...)
	case r.RemoveMenu:
		return RemoveKeyboard()
	}
	return nil
}
