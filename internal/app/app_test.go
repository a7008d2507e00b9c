package app

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"spycat/internal/config"
	"spycat/internal/service"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	v.Set("sqlite_path", filepath.Join(t.TempDir(), "app.db"))
	v.Set("pool_size", 2)
	cfg, err := config.Load(v)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func TestOpenMigratesAndServes(t *testing.T) {
	a, err := Open(context.Background(), testConfig(t), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()
	page, err := a.Services.Cats.List(context.Background(), service.ListOptions{})
	if err != nil {
		t.Fatalf("list cats: %v", err)
	}
	if page.Count != 0 || page.Items == nil {
		t.Fatalf("unexpected page %+v", page)
	}
	h, err := a.Handler()
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("health %d: %s", rec.Code, rec.Body.String())
	}

	again, err := Open(context.Background(), a.Config, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	again.Close()
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(config.Log{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
		t.Fatalf("unexpected output %q", out)
	}
	if _, err := NewLogger(config.Log{Level: "loud"}, &buf); err == nil {
		t.Fatalf("expected level error")
	}
	if _, err := NewLogger(config.Log{Level: "info", Format: "xml"}, &buf); err == nil {
		t.Fatalf("expected format error")
	}
	if l, _ := NewLogger(config.Log{Level: "debug"}, &buf); !l.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatalf("debug should be enabled")
	}
}
