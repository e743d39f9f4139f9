package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/portfolio-tracker/internal/api"
	"github.com/rickgao/portfolio-tracker/internal/config"
	"github.com/rickgao/portfolio-tracker/internal/dispatch"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLogger_JSON(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "symbol", "AAPL")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("log output %q is not one JSON record: %v", buf.String(), err)
	}
	if rec["msg"] != "shown" || rec["symbol"] != "AAPL" {
		t.Errorf("record = %v", rec)
	}
}

func TestProfiles_SharesDispatcher(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"name":"Apple Inc","ticker":"AAPL","currency":"USD","exchange":"NASDAQ"}`))
	}))
	defer srv.Close()

	d := dispatch.New(dispatch.Config{
		MaxRequestsPerSecond: 1000,
		MaxRetries:           2,
		Backoff:              dispatch.BackoffPolicy{Base: time.Millisecond, Max: time.Millisecond},
	}, nil)
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer d.Stop(ctx)

	p := profiles{client: api.NewClient(srv.URL, "test-token"), dispatcher: d}
	prof, err := p.GetProfile(ctx, "aapl")
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if prof.Name != "Apple Inc" || prof.Symbol != "AAPL" {
		t.Errorf("profile = %+v", prof)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2 (one retry after 429)", calls.Load())
	}
	if st := d.Stats(); st.Retried != 1 || st.Succeeded != 1 {
		t.Errorf("dispatcher stats = %+v", st)
	}
}

func TestProfiles_ContextDone(t *testing.T) {
	d := dispatch.New(dispatch.DefaultConfig(), nil)
	// Never started, so the operation stays queued.
	p := profiles{client: api.NewClient("http://127.0.0.1:1", "t"), dispatcher: d}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := p.GetProfile(ctx, "AAPL"); err != context.DeadlineExceeded {
		t.Errorf("GetProfile() error = %v, want deadline exceeded", err)
	}
}
