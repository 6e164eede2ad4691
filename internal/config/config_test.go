package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return p
}

func TestLoadAppliesDefaults(t *testing.T) {
	p := writeTemp(t, `
target:
  eventUrl: "https://tixcraft.com/activity/detail/demo"
ocr:
  endpoint: "http://127.0.0.1:9898/ocr"
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Target.Tickets != 1 {
		t.Errorf("tickets default = %d, want 1", cfg.Target.Tickets)
	}
	if cfg.Retry.CaptchaMax != 5 {
		t.Errorf("captchaMax default = %d, want 5", cfg.Retry.CaptchaMax)
	}
	if cfg.Retry.SubmitCycles != 3 {
		t.Errorf("submitCycles default = %d, want 3", cfg.Retry.SubmitCycles)
	}
	if got := cfg.Retry.DialogWait(); got != 3*time.Second {
		t.Errorf("dialogWait default = %v, want 3s", got)
	}
	if got := cfg.Sale.LeadTime(); got != 5*time.Minute {
		t.Errorf("leadTime default = %v, want 5m", got)
	}
	if cfg.Storage.SQLitePath == "" || cfg.OCR.ImageDir == "" {
		t.Errorf("storage defaults not applied: %+v", cfg)
	}
	if open, err := cfg.Sale.OpenTime(); err != nil || !open.IsZero() {
		t.Errorf("empty openAt should parse to zero time, got %v / %v", open, err)
	}
}

func TestLoadParsesSaleOpenAt(t *testing.T) {
	p := writeTemp(t, `
target:
  eventUrl: "https://tixcraft.com/activity/detail/demo"
  tickets: 2
sale:
  openAt: "2026-01-10T12:00:00+08:00"
  leadTimeMinutes: 10
ocr:
  endpoint: "http://127.0.0.1:9898/ocr"
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	open, err := cfg.Sale.OpenTime()
	if err != nil {
		t.Fatalf("OpenTime: %v", err)
	}
	if open.IsZero() {
		t.Fatal("openAt parsed to zero time")
	}
	if got := cfg.Sale.LeadTime(); got != 10*time.Minute {
		t.Errorf("leadTime = %v, want 10m", got)
	}
}

func TestLoadRejectsMissingEventURL(t *testing.T) {
	p := writeTemp(t, `
ocr:
  endpoint: "http://127.0.0.1:9898/ocr"
`)
	if _, err := Load(p); err == nil {
		t.Fatal("expected error for missing target.eventUrl")
	}
}

func TestLoadRejectsBadOpenAt(t *testing.T) {
	p := writeTemp(t, `
target:
  eventUrl: "https://tixcraft.com/activity/detail/demo"
sale:
  openAt: "2026/01/10 12:00"
ocr:
  endpoint: "http://127.0.0.1:9898/ocr"
`)
	if _, err := Load(p); err == nil {
		t.Fatal("expected error for non-RFC3339 sale.openAt")
	}
}
