package telegram

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/weatherbot/core/logger"
	"github.com/m3rciful/weatherbot/core/netutil"
)

// HTTPOptions tunes BuildHTTPClient. Zero fields take the defaults below.
type HTTPOptions struct {
	DialTimeout     time.Duration
	HeaderTimeout   time.Duration
	ClientTimeout   time.Duration
	IdleConnTimeout time.Duration
	// PollTimeout is added to the header and client timeouts so a getUpdates
	// long poll is not cut short.
	PollTimeout time.Duration

	RetryAttempts int
	RetryBackoff  time.Duration
}

func (o HTTPOptions) withDefaults() HTTPOptions {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.HeaderTimeout <= 0 {
		o.HeaderTimeout = 5 * time.Second
	}
	if o.ClientTimeout <= 0 {
		o.ClientTimeout = 30 * time.Second
	}
	if o.IdleConnTimeout <= 0 {
		o.IdleConnTimeout = 30 * time.Second
	}
	if o.RetryAttempts < 0 {
		o.RetryAttempts = 0
	} else if o.RetryAttempts == 0 {
		o.RetryAttempts = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	return o
}

// BuildHTTPClient returns the client shared by the Bot API adapter. Requests
// that fail before reaching the server are retried on the same connection pool.
func BuildHTTPClient(opts HTTPOptions) *http.Client {
	opts = opts.withDefaults()
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: opts.DialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       opts.IdleConnTimeout,
		TLSHandshakeTimeout:   opts.DialTimeout,
		ResponseHeaderTimeout: opts.HeaderTimeout + opts.PollTimeout,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout:   opts.ClientTimeout + opts.PollTimeout,
		Transport: newRetryTransport(transport, opts.RetryAttempts, opts.RetryBackoff),
	}
}

// retryTransport replays requests that died in dial, reset or timeout.
// Bodies are replayed through GetBody; a request without one is tried once.
type retryTransport struct {
	base    http.RoundTripper
	retries int
	backoff time.Duration
	wait    func(*http.Request, time.Duration) error
}

func newRetryTransport(base http.RoundTripper, retries int, backoff time.Duration) *retryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &retryTransport{base: base, retries: retries, backoff: backoff, wait: waitRequest}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	replayable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil

	resp, err := t.base.RoundTrip(req)
	for attempt := 1; err != nil && attempt <= t.retries; attempt++ {
		if !replayable || !netutil.ShouldRetry(err) {
			return nil, err
		}
		delay := t.backoff * time.Duration(attempt)
		logger.TG.Debug("bot api request retry",
			slog.String("event", "api.retry"),
			slog.String("cause", netutil.Classify(err)),
			slog.Int("attempts", attempt),
			slog.Duration("backoff", delay),
		)
		if werr := t.wait(req, delay); werr != nil {
			return nil, werr
		}
		next := req.Clone(req.Context())
		if req.GetBody != nil {
			body, berr := req.GetBody()
			if berr != nil {
				return nil, berr
			}
			next.Body = body
		}
		resp, err = t.base.RoundTrip(next)
	}
	return resp, err
}

func waitRequest(req *http.Request, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-req.Context().Done():
		return req.Context().Err()
	case <-timer.C:
		return nil
	}
}
