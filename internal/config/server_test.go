package config

import (
	"strings"
	"testing"
	"time"
)

func TestParseServerDefaults(t *testing.T) {
	cfg, err := ParseServer()
	if err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Addr != ":8455" {
		t.Fatalf("unexpected addr: %q", cfg.Addr)
	}
	if cfg.DBPath != "faderbank.db" {
		t.Fatalf("unexpected db path: %q", cfg.DBPath)
	}
	if cfg.PresenceWindow != 30*time.Second {
		t.Fatalf("unexpected presence window: %v", cfg.PresenceWindow)
	}
	if cfg.ActivityMaxAge != 10*time.Minute {
		t.Fatalf("unexpected activity max age: %v", cfg.ActivityMaxAge)
	}
	if cfg.Debug {
		t.Fatal("debug should default off")
	}
}

func TestParseServerOverrides(t *testing.T) {
	t.Setenv("FADERBANK_ADDR", "127.0.0.1:9000")
	t.Setenv("FADERBANK_PRESENCE_WINDOW", "45s")
	t.Setenv("FADERBANK_DEBUG", "true")

	cfg, err := ParseServer()
	if err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9000" {
		t.Fatalf("override not applied: %q", cfg.Addr)
	}
	if cfg.PresenceWindow != 45*time.Second {
		t.Fatalf("override not applied: %v", cfg.PresenceWindow)
	}
	if !cfg.Debug {
		t.Fatal("debug override not applied")
	}
}

func TestParseServerError(t *testing.T) {
	t.Setenv("FADERBANK_PRESENCE_WINDOW", "not-a-duration")

	_, err := ParseServer()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}
