package keyboard

import (
	"testing"

	"github.com/m3rciful/weatherbot/core/telegram/router"
)

func TestFromReply(t *testing.T) {
	if m := FromReply(router.Reply{Text: "plain"}); m != nil {
		t.Fatalf("plain reply should have no markup, got %+v", m)
	}

	m := FromReply(router.Reply{
		Inline: [][]router.Button{{{Label: "Paris", Token: "city", Data: "Paris"}, {Label: "Cancel", Token: "cancel"}}},
		Menu:   [][]string{{"ignored"}},
	})
	if len(m.InlineKeyboard) != 1 || len(m.InlineKeyboard[0]) != 2 {
		t.Fatalf("unexpected inline keyboard: %+v", m.InlineKeyboard)
	}
	btn := m.InlineKeyboard[0][0]
	if btn.Text != "Paris" || btn.Unique != "city" || btn.Data != "Paris" {
		t.Fatalf("unexpected button: %+v", btn)
	}
	if len(m.ReplyKeyboard) != 0 {
		t.Fatal("inline markup must not carry a reply keyboard")
	}

	m = FromReply(router.Reply{Menu: [][]string{{"a", "b"}, {"c"}}})
	if len(m.ReplyKeyboard) != 2 || len(m.ReplyKeyboard[0]) != 2 || m.ReplyKeyboard[1][0].Text != "c" {
		t.Fatalf("unexpected reply keyboard: %+v", m.ReplyKeyboard)
	}
	if !m.ResizeKeyboard {
		t.Fatal("menu keyboard should resize")
	}

	if m = FromReply(router.Reply{RemoveMenu: true}); m == nil || !m.RemoveKeyboard {
		t.Fatalf("expected remove markup, got %+v", m)
	}
}
