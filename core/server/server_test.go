package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestHealthRoutes(t *testing.T) {
	s := New(Options{Listen: "127.0.0.1", Port: 0})

	for _, path := range []string{"/", "/health", "/healthz", "/ready", "/alive"} {
		resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, path, nil))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.StatusCode)
		}
		var body map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("%s: decode: %v", path, err)
		}
		if body["status"] != "ok" || body["name"] == "" || body["version"] == "" {
			t.Fatalf("%s: unexpected payload %v", path, body)
		}
	}
}

func TestWebhookRouteWithoutEndpoint(t *testing.T) {
	s := New(Options{Port: 0, WebhookPath: "/webhook/abc"})

	resp, err := s.App().Test(httptest.NewRequest(http.MethodPost, "/webhook/abc", strings.NewReader("{}")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestWebhookAttachDetach(t *testing.T) {
	s := New(Options{Port: 0, WebhookPath: "/webhook/abc"})
	var hits int
	s.Attach(func(c *fiber.Ctx) error {
		hits++
		return c.SendStatus(fiber.StatusOK)
	})
	if !s.Attached() {
		t.Fatalf("expected endpoint to be attached")
	}

	resp, err := s.App().Test(httptest.NewRequest(http.MethodPost, "/webhook/abc", strings.NewReader("{}")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK || hits != 1 {
		t.Fatalf("expected attached endpoint to answer, code=%d hits=%d", resp.StatusCode, hits)
	}

	s.Detach()
	resp, err = s.App().Test(httptest.NewRequest(http.MethodPost, "/webhook/abc", strings.NewReader("{}")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable || hits != 1 {
		t.Fatalf("expected 503 after detach, code=%d hits=%d", resp.StatusCode, hits)
	}
}

func TestWebhookPanicIsRecovered(t *testing.T) {
	s := New(Options{Port: 0, WebhookPath: "/hook"})
	s.Attach(func(c *fiber.Ctx) error {
		panic("boom")
	})

	resp, err := s.App().Test(httptest.NewRequest(http.MethodPost, "/hook", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), `"error":true`) {
		t.Fatalf("expected error payload, got %s", raw)
	}

	// the app keeps serving after a panic
	resp, err = s.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("health after panic: code=%v err=%v", resp, err)
	}
}

func TestNoWebhookRouteWhenPathEmpty(t *testing.T) {
	s := New(Options{Port: 0})
	resp, err := s.App().Test(httptest.NewRequest(http.MethodPost, "/webhook/abc", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
