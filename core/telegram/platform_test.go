package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/weatherbot/core/preferences"
	"github.com/m3rciful/weatherbot/core/telegram/router"
	"github.com/m3rciful/weatherbot/core/telegram/sender"
	"github.com/m3rciful/weatherbot/core/weather"
)

const testToken = "123456:TEST-token"

type apiCall struct {
	method string
	body   string
}

type fakeAPI struct {
	mu        sync.Mutex
	calls     []apiCall
	responses map[string]string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.calls = append(f.calls, apiCall{method: method, body: string(body)})
	resp, ok := f.responses[method]
	f.mu.Unlock()
	if !ok {
		resp = `{"ok":true,"result":true}`
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, resp)
}

func (f *fakeAPI) Calls(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func newTestPlatform(t *testing.T, responses map[string]string) (*Platform, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{responses: responses}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	p, err := NewPlatform(PlatformOptions{
		Token:  testToken,
		APIURL: srv.URL,
		Client: srv.Client(),
		Retry:  sender.RetryOptions{MaxRetries: 0, MaxDuration: 2 * time.Second},
	})
	if err != nil {
		t.Fatalf("NewPlatform: %v", err)
	}
	return p, api
}

const sentMessage = `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":1,"type":"private"},"text":"x"}}`

func TestDecodeMessages(t *testing.T) {
	user := &tele.User{ID: 7, FirstName: "Ada", LastName: "L", Username: "ada"}
	chat := &tele.Chat{ID: 70}

	upd, ok := Decode(tele.Update{ID: 1, Message: &tele.Message{Sender: user, Chat: chat, Text: "/SetCity@WeatherBot  New York "}}, "weatherbot")
	if !ok || upd.Kind != router.KindCommand || upd.Payload != "setcity" || upd.Args != "New York" {
		t.Fatalf("unexpected command decode: %+v", upd)
	}
	if upd.UserID != 7 || upd.ChatID != 70 || upd.DisplayName != "Ada L" || upd.Username != "ada" {
		t.Fatalf("unexpected identity: %+v", upd)
	}

	if _, ok := Decode(tele.Update{ID: 2, Message: &tele.Message{Sender: user, Chat: chat, Text: "/weather@otherbot"}}, "weatherbot"); ok {
		t.Fatal("commands for other bots must be skipped")
	}

	upd, ok = Decode(tele.Update{ID: 3, Message: &tele.Message{Sender: user, Chat: chat, Text: "  Paris "}}, "")
	if !ok || upd.Kind != router.KindText || upd.Payload != "Paris" {
		t.Fatalf("unexpected text decode: %+v", upd)
	}

	upd, ok = Decode(tele.Update{ID: 6, Message: &tele.Message{Sender: user, Chat: chat, Text: "/setcity\nParis"}}, "")
	if !ok || upd.Kind != router.KindCommand || upd.Payload != "setcity" || upd.Args != "Paris" {
		t.Fatalf("newline-separated args: %+v", upd)
	}
	upd, ok = Decode(tele.Update{ID: 7, Message: &tele.Message{Sender: user, Chat: chat, Text: "/weather\tnow"}}, "")
	if !ok || upd.Payload != "weather" || upd.Args != "now" {
		t.Fatalf("tab-separated args: %+v", upd)
	}
	if _, ok := Decode(tele.Update{ID: 4, Message: &tele.Message{Sender: user, Chat: chat}}, ""); ok {
		t.Fatal("messages without text must be skipped")
	}
	if _, ok := Decode(tele.Update{ID: 5}, ""); ok {
		t.Fatal("empty updates must be skipped")
	}
}

func TestDecodeCallback(t *testing.T) {
	user := &tele.User{ID: 9}
	upd, ok := Decode(tele.Update{ID: 10, Callback: &tele.Callback{
		ID: "cb-1", Sender: user, Data: "\fcity|Paris",
		Message: &tele.Message{Chat: &tele.Chat{ID: 90}},
	}}, "")
	if !ok || upd.Kind != router.KindButton || upd.Payload != "city" || upd.Args != "Paris" {
		t.Fatalf("unexpected callback decode: %+v", upd)
	}
	if upd.CallbackID != "cb-1" || upd.ChatID != 90 {
		t.Fatalf("unexpected callback meta: %+v", upd)
	}
}

func TestWebhookPath(t *testing.T) {
	p := WebhookPath(testToken)
	if !strings.HasPrefix(p, "/webhook/") || len(p) != len("/webhook/")+16 {
		t.Fatalf("unexpected path %q", p)
	}
	if p != WebhookPath(testToken) || p == WebhookPath("other") {
		t.Fatal("path must be stable per token")
	}
	if strings.Contains(p, "TEST-token") {
		t.Fatal("path must not leak the token")
	}
}

func TestPlatformUpdatesAndErrors(t *testing.T) {
	p, api := newTestPlatform(t, map[string]string{
		"getUpdates":     `{"ok":true,"result":[{"update_id":41,"message":{"message_id":1,"date":0,"from":{"id":5,"is_bot":false,"first_name":"A"},"chat":{"id":5,"type":"private"},"text":"hi"}}]}`,
		"getWebhookInfo": `{"ok":false,"error_code":502,"description":"Bad Gateway"}`,
	})

	updates, err := p.Updates(context.Background(), 40, 10*time.Second)
	if err != nil || len(updates) != 1 || updates[0].ID != 41 || updates[0].Message.Text != "hi" {
		t.Fatalf("Updates = %+v, %v", updates, err)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(api.Calls("getUpdates")[0].body), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["offset"].(float64) != 40 || payload["timeout"].(float64) != 10 {
		t.Fatalf("unexpected getUpdates payload: %v", payload)
	}

	_, err = p.WebhookInfo(context.Background())
	var se *sender.StatusError
	if !errors.As(err, &se) || se.Status != 502 || !sender.IsDelivery(err) {
		t.Fatalf("expected 502 status error, got %v", err)
	}
}

func TestAnnounceCommands(t *testing.T) {
	p, api := newTestPlatform(t, nil)
	err := p.AnnounceCommands(context.Background(), []router.MenuEntry{{Command: "help", Description: "How to use the bot"}})
	if err != nil {
		t.Fatalf("AnnounceCommands: %v", err)
	}
	for _, m := range []string{"deleteMyCommands", "setMyCommands", "setChatMenuButton"} {
		if len(api.Calls(m)) != 1 {
			t.Fatalf("expected one %s call", m)
		}
	}
	if body := api.Calls("setMyCommands")[0].body; !strings.Contains(body, `"command":"help"`) {
		t.Fatalf("unexpected setMyCommands body: %s", body)
	}
}

type stubWeather struct{}

func (stubWeather) Fetch(_ context.Context, city string, _ time.Duration) weather.Outcome {
	return weather.Outcome{Kind: weather.NotFound, Status: 404}
}

func TestUpdateHandlerRoutesAndAcks(t *testing.T) {
	p, api := newTestPlatform(t, map[string]string{"sendMessage": sentMessage})
	r := router.New(router.Options{Weather: stubWeather{}, Store: preferences.NewMemoryStore()})
	h := NewUpdateHandler(r, p, p)

	u := tele.Update{ID: 3, Callback: &tele.Callback{ID: "cb-9", Sender: &tele.User{ID: 1}, Data: "\fsetcity"}}
	if h.Key(u) != 1 {
		t.Fatalf("unexpected key %d", h.Key(u))
	}
	if err := h.HandleUpdate(context.Background(), u); err != nil {
		t.Fatalf("HandleUpdate: %v", err)
	}
	if len(api.Calls("answerCallbackQuery")) != 1 {
		t.Fatal("button press was not acknowledged")
	}
	sends := api.Calls("sendMessage")
	if len(sends) != 1 || !strings.Contains(sends[0].body, "inline_keyboard") || !strings.Contains(sends[0].body, "Moscow") {
		t.Fatalf("unexpected sendMessage calls: %+v", sends)
	}
}
