package sender

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/weatherbot/core/netutil"
)

var tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// PanicError wraps a value recovered from a panicking job.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Code implements the coder interface used by log error codes.
func (e *PanicError) Code() string { return "panic" }

// ClassifyError names the failure class of an outbound call for logs:
// a netutil kind, http_5xx, http_429, http_4xx or unknown.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}
	if kind := netutil.Classify(err); kind != netutil.KindUnknown {
		return kind
	}
	status := HTTPStatus(err)
	switch {
	case status == http.StatusTooManyRequests:
		return "http_429"
	case status >= 500:
		return "http_5xx"
	case status >= 400:
		return "http_4xx"
	}
	return netutil.KindUnknown
}

// IsDelivery reports whether err means the platform could not be reached or
// refused service temporarily: network failures, 5xx and 429.
func IsDelivery(err error) bool {
	switch ClassifyError(err) {
	case "", netutil.KindUnknown, "http_4xx":
		return false
	}
	return true
}

// SanitizeError prevents accidental leakage of bot tokens in logs.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return RedactToken(err.Error())
}

// RedactToken replaces bot tokens embedded in s, e.g. inside API URLs.
func RedactToken(s string) string {
	if s == "" {
		return ""
	}
	return tokenRe.ReplaceAllString(s, "bot<redacted>")
}

// HTTPStatus extracts the platform's status code from an API error, or 0.
func HTTPStatus(err error) int {
	if err == nil {
		return 0
	}

	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}

	var floodErr tele.FloodError
	if errors.As(err, &floodErr) {
		return http.StatusTooManyRequests
	}

	var groupErr tele.GroupError
	if errors.As(err, &groupErr) {
		return http.StatusBadRequest
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status
	}

	msg := err.Error()
	lastOpen := strings.LastIndex(msg, "(")
	lastClose := strings.LastIndex(msg, ")")
	if lastOpen >= 0 && lastClose > lastOpen+1 {
		codeStr := strings.TrimSpace(msg[lastOpen+1 : lastClose])
		if code, convErr := strconv.Atoi(codeStr); convErr == nil {
			return code
		}
	}
	return 0
}

// StatusError is an API failure reported with an explicit status code.
type StatusError struct {
	Method      string
	Status      int
	Description string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s (%d)", e.Method, e.Description, e.Status)
}
