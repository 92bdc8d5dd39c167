package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const parisBody = `{
  "name": "Paris",
  "weather": [{"main": "Clouds", "description": "overcast clouds"}],
  "main": {"temp": 12.3, "feels_like": 10.1, "humidity": 81, "pressure": 1012},
  "wind": {"speed": 3.4},
  "sys": {"country": "FR", "sunrise": 1704094200, "sunset": 1704124800},
  "timezone": 3600
}`

var fixedNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, h http.HandlerFunc, breaker BreakerOptions) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	c := NewClient(Options{
		APIKey:     "secret-key",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		Breaker:    breaker,
		Now:        func() time.Time { return fixedNow },
	})
	return c, &calls
}

func respond(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func TestFetchSuccess(t *testing.T) {
	var query atomic.Value
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query.Store(r.URL.Query())
		respond(http.StatusOK, parisBody)(w, r)
	}, BreakerOptions{})

	out := c.Fetch(context.Background(), " Paris ", 0)
	if !out.OK() {
		t.Fatalf("expected success, got %s", out)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one request, got %d", calls.Load())
	}
	q := query.Load().(url.Values)
	if q["q"][0] != "Paris" || q["appid"][0] != "secret-key" || q["units"][0] != "metric" || q["lang"][0] != "en" {
		t.Fatalf("unexpected query: %v", q)
	}

	s := out.Snapshot
	if s.City != "Paris" || s.Country != "FR" || s.Condition != ConditionClouds {
		t.Fatalf("unexpected snapshot: %+v", s)
	}
	if s.Temperature != 12.3 || s.FeelsLike != 10.1 || s.Humidity != 81 || s.Pressure != 1012 || s.WindSpeed != 3.4 {
		t.Fatalf("values not copied verbatim: %+v", s)
	}
	if s.LocalTime.Hour() != 13 {
		t.Fatalf("expected local hour 13, got %v", s.LocalTime)
	}
	if s.Sunrise == nil || s.Sunset == nil {
		t.Fatal("expected sunrise and sunset")
	}
}

func TestFetchOptionalFieldsDefault(t *testing.T) {
	body := `{"name":"Nowhere","weather":[{"main":"Fog","description":"fog"}],
"main":{"temp":1,"feels_like":0,"humidity":99,"pressure":1000},"wind":{"speed":0}}`
	c, _ := newTestClient(t, respond(http.StatusOK, body), BreakerOptions{})

	out := c.Fetch(context.Background(), "Nowhere", 0)
	if !out.OK() {
		t.Fatalf("expected success, got %s", out)
	}
	s := out.Snapshot
	if s.UTCOffset != 0 || s.Sunrise != nil || s.Sunset != nil {
		t.Fatalf("unexpected optional fields: %+v", s)
	}
	if s.Condition != ConditionMist {
		t.Fatalf("fog should map to mist, got %s", s.Condition)
	}
	text := Format(s)
	for _, want := range []string{"🌫️ Weather in Nowhere", "Sunrise: unknown", "Time zone: UTC+0", "Local time: 12:00:00", "Date: 01.01.2024"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in:\n%s", want, text)
		}
	}
}

func TestFetchStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   Kind
	}{
		{http.StatusNotFound, NotFound},
		{http.StatusUnauthorized, AuthError},
		{http.StatusInternalServerError, ProviderUnavailable},
		{http.StatusTooManyRequests, ProviderUnavailable},
		{http.StatusBadRequest, ProviderUnavailable},
	}
	for _, tc := range cases {
		c, calls := newTestClient(t, respond(tc.status, `{"cod":"x"}`), BreakerOptions{})
		out := c.Fetch(context.Background(), "Atlantis", 0)
		if out.Kind != tc.want || out.Status != tc.status {
			t.Fatalf("status %d: got %s", tc.status, out)
		}
		if out.Snapshot != nil {
			t.Fatalf("status %d: snapshot must be nil", tc.status)
		}
		if calls.Load() != 1 {
			t.Fatalf("status %d: expected exactly one call, got %d", tc.status, calls.Load())
		}
	}
}

func TestFetchMissingFieldIsUnknown(t *testing.T) {
	body := `{"name":"Paris","weather":[{"main":"Clear","description":"clear"}],
"main":{"feels_like":0,"humidity":1,"pressure":1000},"wind":{"speed":0}}`
	c, _ := newTestClient(t, respond(http.StatusOK, body), BreakerOptions{})

	out := c.Fetch(context.Background(), "Paris", 0)
	if out.Kind != UnknownError || !strings.Contains(out.Detail, "main.temp") {
		t.Fatalf("expected unknown error naming main.temp, got %s", out)
	}
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, BreakerOptions{})
	defer close(release)

	out := c.Fetch(context.Background(), "Paris", 50*time.Millisecond)
	if out.Kind != Timeout {
		t.Fatalf("expected timeout, got %s", out)
	}
}

func TestFetchCanceledByCaller(t *testing.T) {
	c, calls := newTestClient(t, respond(http.StatusOK, parisBody), BreakerOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := c.Fetch(ctx, "Paris", 0)
	if out.Kind != UnknownError || out.Detail != "canceled" {
		t.Fatalf("expected canceled, got %s", out)
	}
	if calls.Load() != 0 {
		t.Fatalf("canceled request should not reach the server, got %d calls", calls.Load())
	}
}

func TestFetchNetworkErrorRedactsKey(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c := NewClient(Options{APIKey: "secret-key", BaseURL: addr})
	out := c.Fetch(context.Background(), "Paris", time.Second)
	if out.Kind != NetworkError {
		t.Fatalf("expected network error, got %s", out)
	}
	if strings.Contains(out.Detail, "secret-key") {
		t.Fatalf("api key leaked: %s", out.Detail)
	}
}

func TestFetchBreakerOpensAndSkipsCalls(t *testing.T) {
	c, calls := newTestClient(t, respond(http.StatusBadGateway, ""), BreakerOptions{
		FailureThreshold: 2,
		OpenTimeout:      time.Minute,
	})

	for i := 0; i < 2; i++ {
		if out := c.Fetch(context.Background(), "Paris", 0); out.Kind != ProviderUnavailable {
			t.Fatalf("attempt %d: got %s", i, out)
		}
	}
	out := c.Fetch(context.Background(), "Paris", 0)
	if out.Kind != ProviderUnavailable || out.Detail != "circuit open" {
		t.Fatalf("expected open breaker, got %s", out)
	}
	if calls.Load() != 2 {
		t.Fatalf("open breaker must not call the provider, got %d calls", calls.Load())
	}
}

func TestNotFoundDoesNotTripBreaker(t *testing.T) {
	c, calls := newTestClient(t, respond(http.StatusNotFound, ""), BreakerOptions{FailureThreshold: 1, OpenTimeout: time.Minute})
	for i := 0; i < 3; i++ {
		if out := c.Fetch(context.Background(), "Atlantis", 0); out.Kind != NotFound {
			t.Fatalf("attempt %d: got %s", i, out)
		}
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestFormatAndZoneLabel(t *testing.T) {
	zone := time.FixedZone("x", 19800)
	rise := time.Date(2024, 5, 2, 5, 41, 0, 0, zone)
	s := &Snapshot{
		City: "Mumbai", Country: "IN", Condition: ConditionRain, Description: "light rain",
		Temperature: 30, FeelsLike: 35.54, WindSpeed: 4, Humidity: 70, Pressure: 1005,
		Units: "metric", UTCOffset: 19800, LocalTime: time.Date(2024, 5, 2, 14, 5, 9, 0, zone), Sunrise: &rise,
	}
	text := Format(s)
	for _, want := range []string{
		"🌧️ Weather in Mumbai, IN", "Temperature: 30.0°C", "Feels like: 35.5°C",
		"Description: Light rain", "Local time: 14:05:09", "Sunrise: 05:41", "Sunset: unknown", "Time zone: UTC+5:30",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in:\n%s", want, text)
		}
	}
	if got := ZoneLabel(-12600); got != "UTC-3:30" {
		t.Fatalf("ZoneLabel(-12600) = %q", got)
	}
	if got := ParseCondition("Thunderstorm").Emoji(); got != "⛈️" {
		t.Fatalf("thunderstorm emoji = %q", got)
	}
	if got := ParseCondition("Tornado").Emoji(); got != "🌤️" {
		t.Fatalf("fallback emoji = %q", got)
	}
}
