package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("feed:\n  symbols: [\"005930\"]\n"))
	if err != nil {
		t.Fatalf("ParseConfig returned error: %v", err)
	}

	if cfg.Mode != ModeReal {
		t.Errorf("Mode = %q, want %q", cfg.Mode, ModeReal)
	}
	if cfg.KIS.BaseURL != realBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.KIS.BaseURL, realBaseURL)
	}
	if cfg.KIS.WSURL != realWSURL {
		t.Errorf("WSURL = %q, want %q", cfg.KIS.WSURL, realWSURL)
	}
	if cfg.KIS.CustType != "P" {
		t.Errorf("CustType = %q, want P", cfg.KIS.CustType)
	}
	if got := cfg.SafetyMargin(); got != 5*time.Minute {
		t.Errorf("SafetyMargin = %v, want 5m", got)
	}
	if got := cfg.ApprovalValidity(); got != 24*time.Hour {
		t.Errorf("ApprovalValidity = %v, want 24h", got)
	}
	if cfg.Token.Store != "none" {
		t.Errorf("Token.Store = %q, want none", cfg.Token.Store)
	}
	if cfg.Feed.MaxReconnectAttempts != 5 {
		t.Errorf("MaxReconnectAttempts = %d, want 5", cfg.Feed.MaxReconnectAttempts)
	}
	if got := cfg.ReconnectDelay(); got != 3*time.Second {
		t.Errorf("ReconnectDelay = %v, want 3s", got)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("Retry.MaxAttempts = %d, want 3", cfg.Retry.MaxAttempts)
	}
	if cfg.NATS.SubjectPrefix != "ticks" {
		t.Errorf("NATS.SubjectPrefix = %q, want ticks", cfg.NATS.SubjectPrefix)
	}
}

func TestParseConfigPaperEndpoints(t *testing.T) {
	cfg, err := ParseConfig([]byte("mode: paper\n"))
	if err != nil {
		t.Fatalf("ParseConfig returned error: %v", err)
	}
	if cfg.Mode != ModePaper {
		t.Errorf("Mode = %q, want %q", cfg.Mode, ModePaper)
	}
	if cfg.KIS.BaseURL != paperBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.KIS.BaseURL, paperBaseURL)
	}
	if cfg.KIS.WSURL != paperWSURL {
		t.Errorf("WSURL = %q, want %q", cfg.KIS.WSURL, paperWSURL)
	}
}

func TestParseConfigEnvOverrides(t *testing.T) {
	t.Setenv("KIS_APP_KEY", "env-key")
	t.Setenv("KIS_APP_SECRET", "env-secret")
	t.Setenv("TOKEN_STORE", "REDIS")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("FEED_SYMBOLS", "005930, 000660,,035420")

	cfg, err := ParseConfig([]byte("kis:\n  app_key: yaml-key\n"))
	if err != nil {
		t.Fatalf("ParseConfig returned error: %v", err)
	}

	if cfg.KIS.AppKey != "env-key" {
		t.Errorf("AppKey = %q, want env-key", cfg.KIS.AppKey)
	}
	if cfg.KIS.AppSecret != "env-secret" {
		t.Errorf("AppSecret = %q, want env-secret", cfg.KIS.AppSecret)
	}
	if cfg.Token.Store != "redis" {
		t.Errorf("Token.Store = %q, want redis", cfg.Token.Store)
	}
	if cfg.Token.RedisAddr != "redis:6380" {
		t.Errorf("RedisAddr = %q, want redis:6380", cfg.Token.RedisAddr)
	}
	want := []string{"005930", "000660", "035420"}
	if len(cfg.Feed.Symbols) != len(want) {
		t.Fatalf("Symbols = %v, want %v", cfg.Feed.Symbols, want)
	}
	for i := range want {
		if cfg.Feed.Symbols[i] != want[i] {
			t.Errorf("Symbols[%d] = %q, want %q", i, cfg.Feed.Symbols[i], want[i])
		}
	}
}

func TestParseConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"bad mode", "mode: DEMO\n", "invalid mode"},
		{"bad store", "token:\n  store: memcached\n", "token.store"},
		{"margin exceeds validity", "token:\n  default_validity_hours: 1\n  safety_margin_minutes: 90\n", "must exceed the safety margin"},
		{"negative reconnect", "feed:\n  max_reconnect_attempts: -1\n", "max_reconnect_attempts"},
		{"negative retry", "retry:\n  max_attempts: -2\n", "retry.max_attempts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("feed:\n  reconnect_delay_ms: 250\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if got := cfg.ReconnectDelay(); got != 250*time.Millisecond {
		t.Errorf("ReconnectDelay = %v, want 250ms", got)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
