package telegram

import (
	"strings"
	"unicode"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/weatherbot/core/telegram/callbacks"
	"github.com/m3rciful/weatherbot/core/telegram/router"
)

// Decode turns a platform update into a router update. botName, when set,
// rejects commands addressed to another bot (/cmd@other). Updates the bot
// does not handle report false.
func Decode(u tele.Update, botName string) (router.Update, bool) {
	switch {
	case u.Callback != nil:
		return decodeCallback(u.ID, u.Callback)
	case u.Message != nil:
		return decodeMessage(u.ID, u.Message, botName)
	}
	return router.Update{}, false
}

func decodeMessage(id int, m *tele.Message, botName string) (router.Update, bool) {
	if m.Sender == nil || m.Chat == nil {
		return router.Update{}, false
	}
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return router.Update{}, false
	}
	upd := router.Update{
		ID:          id,
		UserID:      m.Sender.ID,
		ChatID:      m.Chat.ID,
		Username:    m.Sender.Username,
		DisplayName: displayName(m.Sender),
		Kind:        router.KindText,
		Payload:     text,
	}
	if !strings.HasPrefix(text, "/") {
		return upd, true
	}

	head, args := text, ""
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		head, args = text[:i], text[i:]
	}
	name := strings.TrimPrefix(head, "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		if botName != "" && !strings.EqualFold(name[at+1:], botName) {
			return router.Update{}, false
		}
		name = name[:at]
	}
	if name == "" {
		return upd, true
	}
	upd.Kind = router.KindCommand
	upd.Payload = strings.ToLower(name)
	upd.Args = strings.TrimSpace(args)
	return upd, true
}

func decodeCallback(id int, cb *tele.Callback) (router.Update, bool) {
	if cb.Sender == nil {
		return router.Update{}, false
	}
	token, data := cb.Unique, cb.Data
	if token == "" {
		token, data = callbacks.ParseCallbackData(cb.Data)
	}
	if token == "" {
		return router.Update{}, false
	}
	chatID := cb.Sender.ID
	if cb.Message != nil && cb.Message.Chat != nil {
		chatID = cb.Message.Chat.ID
	}
	return router.Update{
		ID:          id,
		UserID:      cb.Sender.ID,
		ChatID:      chatID,
		Username:    cb.Sender.Username,
		DisplayName: displayName(cb.Sender),
		Kind:        router.KindButton,
		Payload:     token,
		Args:        data,
		CallbackID:  cb.ID,
	}, true
}

func displayName(u *tele.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
