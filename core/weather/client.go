// Package weather fetches current conditions from an OpenWeatherMap-style
// provider and reduces every call to a typed Outcome.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/m3rciful/weatherbot/core/logger"
	"github.com/m3rciful/weatherbot/core/netutil"
)

const (
	// DefaultTimeout bounds a single lookup when the caller passes zero.
	DefaultTimeout = 10 * time.Second
	// DefaultBaseURL is the current-weather endpoint.
	DefaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"

	maxBodyBytes = 1 << 20
)

// errProviderFault marks calls the breaker counts as failures.
var errProviderFault = errors.New("weather: provider fault")

// BreakerOptions tunes the circuit breaker around the provider.
type BreakerOptions struct {
	// MaxRequests is the number of probes allowed while half-open.
	MaxRequests uint32
	// Interval clears failure counts while closed; zero never clears.
	Interval time.Duration
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// FailureThreshold consecutive failures open the breaker; zero disables it.
	FailureThreshold uint32
}

// Options configures a Client.
type Options struct {
	APIKey     string
	BaseURL    string
	Units      string
	Lang       string
	Timeout    time.Duration
	HTTPClient *http.Client
	Breaker    BreakerOptions
	// Now overrides the clock used for local time; tests only.
	Now func() time.Time
}

// Client performs single-shot current-weather lookups. It never retries.
type Client struct {
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
	apiKey  string
	baseURL string
	units   string
	lang    string
	timeout time.Duration
	now     func() time.Time
}

// NewClient builds a client with defaults for zero-valued options.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Units == "" {
		opts.Units = "metric"
	}
	if opts.Lang == "" {
		opts.Lang = "en"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = buildHTTPClient()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Client{
		http:    opts.HTTPClient,
		apiKey:  opts.APIKey,
		baseURL: opts.BaseURL,
		units:   opts.Units,
		lang:    opts.Lang,
		timeout: opts.Timeout,
		now:     opts.Now,
	}
	c.cb = newBreaker(opts.Breaker)
	return c
}

func newBreaker(o BreakerOptions) *gobreaker.CircuitBreaker {
	threshold := o.FailureThreshold
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "weather",
		MaxRequests: o.MaxRequests,
		Interval:    o.Interval,
		Timeout:     o.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return threshold > 0 && c.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WX.Warn("breaker state changed",
				slog.String("event", "weather.breaker"),
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
}

func buildHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	// Per-call deadlines come from the request context.
	return &http.Client{Transport: transport}
}

// Fetch looks up current conditions for city. A non-positive timeout uses the
// client default. Exactly one request is made unless the breaker is open, in
// which case none is.
func (c *Client) Fetch(ctx context.Context, city string, timeout time.Duration) Outcome {
	city = strings.TrimSpace(city)
	if city == "" {
		return failure(UnknownError, 0, "empty city")
	}
	if timeout <= 0 {
		timeout = c.timeout
	}

	start := time.Now()
	res, err := c.cb.Execute(func() (interface{}, error) {
		out := c.fetch(ctx, city, timeout)
		if out.Transient() {
			return out, errProviderFault
		}
		return out, nil
	})

	var out Outcome
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		out = failure(ProviderUnavailable, 0, "circuit open")
	default:
		out, _ = res.(Outcome)
	}

	level := slog.LevelInfo
	if !out.OK() && out.Kind != NotFound {
		level = slog.LevelWarn
	}
	logger.LogEvent(ctx, logger.WX, level, "weather.fetch",
		slog.String("city", logger.SanitizeLimit(city, 64)),
		slog.String("kind", out.Kind.String()),
		slog.String("outcome", out.LogOutcome()),
		slog.Int("http_status", out.Status),
		slog.Duration("duration", logger.Took(start)),
	)
	return out
}

func (c *Client) fetch(parent context.Context, city string, timeout time.Duration) Outcome {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	q := url.Values{}
	q.Set("q", city)
	q.Set("appid", c.apiKey)
	q.Set("units", c.units)
	q.Set("lang", c.lang)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return failure(UnknownError, 0, c.redact(err.Error()))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportFailure(parent, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return failure(NotFound, resp.StatusCode, "")
	case http.StatusUnauthorized:
		return failure(AuthError, resp.StatusCode, "")
	default:
		return failure(ProviderUnavailable, resp.StatusCode, "")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return c.transportFailure(parent, err)
	}
	snap, err := decodeSnapshot(body, c.now().UTC())
	if err != nil {
		return failure(UnknownError, resp.StatusCode, err.Error())
	}
	if snap.City == "" {
		snap.City = city
	}
	snap.Units = c.units
	return Outcome{Kind: Success, Snapshot: snap, Status: resp.StatusCode}
}

func (c *Client) transportFailure(parent context.Context, err error) Outcome {
	if errors.Is(parent.Err(), context.Canceled) {
		return failure(UnknownError, 0, "canceled")
	}
	if errors.Is(err, context.DeadlineExceeded) || netutil.IsTimeout(err) {
		return failure(Timeout, 0, "")
	}
	if netutil.IsNetwork(err) {
		return failure(NetworkError, 0, netutil.Classify(err))
	}
	return failure(NetworkError, 0, logger.SanitizeLimit(c.redact(err.Error()), 200))
}

// redact strips the API key, which url.Error embeds in its message.
func (c *Client) redact(s string) string {
	if c.apiKey == "" {
		return s
	}
	return strings.ReplaceAll(s, c.apiKey, "***")
}

type payload struct {
	Name    string `json:"name"`
	Weather []struct {
		Main        *string `json:"main"`
		Description *string `json:"description"`
	} `json:"weather"`
	Main *struct {
		Temp      *float64 `json:"temp"`
		FeelsLike *float64 `json:"feels_like"`
		Humidity  *float64 `json:"humidity"`
		Pressure  *float64 `json:"pressure"`
	} `json:"main"`
	Wind *struct {
		Speed *float64 `json:"speed"`
	} `json:"wind"`
	Sys *struct {
		Country string `json:"country"`
		Sunrise *int64 `json:"sunrise"`
		Sunset  *int64 `json:"sunset"`
	} `json:"sys"`
	Timezone *int `json:"timezone"`
}

// decodeSnapshot validates the provider payload. Every display field is
// required; sunrise, sunset and timezone are optional.
func decodeSnapshot(body []byte, nowUTC time.Time) (*Snapshot, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	switch {
	case len(p.Weather) == 0:
		return nil, errors.New("missing field weather")
	case p.Weather[0].Main == nil:
		return nil, errors.New("missing field weather.main")
	case p.Weather[0].Description == nil:
		return nil, errors.New("missing field weather.description")
	case p.Main == nil:
		return nil, errors.New("missing field main")
	case p.Main.Temp == nil:
		return nil, errors.New("missing field main.temp")
	case p.Main.FeelsLike == nil:
		return nil, errors.New("missing field main.feels_like")
	case p.Main.Humidity == nil:
		return nil, errors.New("missing field main.humidity")
	case p.Main.Pressure == nil:
		return nil, errors.New("missing field main.pressure")
	case p.Wind == nil || p.Wind.Speed == nil:
		return nil, errors.New("missing field wind.speed")
	}

	offset := 0
	if p.Timezone != nil {
		offset = *p.Timezone
	}
	zone := time.FixedZone(ZoneLabel(offset), offset)

	s := &Snapshot{
		City:        strings.TrimSpace(p.Name),
		Condition:   ParseCondition(*p.Weather[0].Main),
		Description: *p.Weather[0].Description,
		Temperature: *p.Main.Temp,
		FeelsLike:   *p.Main.FeelsLike,
		WindSpeed:   *p.Wind.Speed,
		Humidity:    int(*p.Main.Humidity),
		Pressure:    int(*p.Main.Pressure),
		UTCOffset:   offset,
		LocalTime:   nowUTC.In(zone),
	}
	if p.Sys != nil {
		s.Country = p.Sys.Country
		if p.Sys.Sunrise != nil {
			t := time.Unix(*p.Sys.Sunrise, 0).In(zone)
			s.Sunrise = &t
		}
		if p.Sys.Sunset != nil {
			t := time.Unix(*p.Sys.Sunset, 0).In(zone)
			s.Sunset = &t
		}
	}
	return s, nil
}
