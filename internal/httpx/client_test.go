package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/squad-agent/internal/errors"
)

func TestGetJSONSendsQueryAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "ETH" {
			t.Errorf("expected symbol query, got %q", r.URL.RawQuery)
		}
		if r.Header.Get("X-Api-Key") != "secret" {
			t.Errorf("expected api key header, got %q", r.Header.Get("X-Api-Key"))
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := New(2 * time.Second)
	var out map[string]any
	_, err := client.GetJSON(context.Background(), srv.URL, url.Values{"symbol": {"ETH"}}, map[string]string{"X-Api-Key": "secret"}, &out)
	if err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if out["ok"] != true {
		t.Fatalf("unexpected response: %#v", out)
	}
}

func TestDoJSONMakesSingleAttemptOnServerError(t *testing.T) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&count, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New(2 * time.Second)
	_, err := client.GetJSON(context.Background(), srv.URL, nil, nil, &map[string]any{})
	if err == nil {
		t.Fatal("expected server error")
	}
	if code := clierr.CodeOf(err); code != clierr.CodeUnavailable {
		t.Fatalf("expected unavailable code, got %v", code)
	}
	if atomic.LoadInt32(&count) != 1 {
		t.Fatalf("expected exactly one attempt, got %d", count)
	}
}

func TestDoJSONMapsAuthAndMalformedBodies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	client := New(2 * time.Second)
	_, err := client.GetJSON(context.Background(), srv.URL+"/auth", nil, nil, &map[string]any{})
	if code := clierr.CodeOf(err); code != clierr.CodeAuth {
		t.Fatalf("expected auth code, got %v (%v)", code, err)
	}
	_, err = client.GetJSON(context.Background(), srv.URL+"/bad", nil, nil, &map[string]any{})
	if code := clierr.CodeOf(err); code != clierr.CodeUnavailable {
		t.Fatalf("expected unavailable code for malformed body, got %v (%v)", code, err)
	}
}
