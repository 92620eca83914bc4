package upstream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tyrchen/claude-code-proxy/internal/apperr"
	"github.com/tyrchen/claude-code-proxy/internal/config"
)

func newTestClient(host string) *Client {
	return New(&config.Config{
		UpstreamHost:   host,
		ConnectTimeout: time.Second,
		RequestTimeout: 5 * time.Second,
	})
}

func TestStreamReturnsBodyOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Path; got != "/v1beta/models/gemini-3-flash-preview:streamGenerateContent" {
			t.Errorf("unexpected path: %s", got)
		}
		if got := r.URL.Query().Get("key"); got != "sk-test" {
			t.Errorf("key = %q, want sk-test", got)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`[{"ok":true}]`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	body, err := c.Stream(context.Background(), "gemini-3-flash-preview", []byte(`{}`), Credential{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer body.Close()

	got, _ := io.ReadAll(body)
	if string(got) != `[{"ok":true}]` {
		t.Errorf("body = %q", got)
	}
}

func TestStreamMapsUpstreamErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`rate limited`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Stream(context.Background(), "gemini-3-flash-preview", []byte(`{}`), Credential{APIKey: "sk-test"})
	if err == nil {
		t.Fatal("expected error")
	}
	appErr, ok := err.(*apperr.Error)
	if !ok {
		t.Fatalf("expected *apperr.Error, got %T", err)
	}
	if appErr.Kind != apperr.KindRateLimit {
		t.Errorf("Kind = %v, want %v", appErr.Kind, apperr.KindRateLimit)
	}
}

func TestStreamMapsAuthenticationFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Stream(context.Background(), "gemini-3-flash-preview", []byte(`{}`), Credential{APIKey: "bad"})
	appErr, ok := err.(*apperr.Error)
	if !ok {
		t.Fatalf("expected *apperr.Error, got %T", err)
	}
	if appErr.Kind != apperr.KindAuthentication {
		t.Errorf("Kind = %v, want %v", appErr.Kind, apperr.KindAuthentication)
	}
}
