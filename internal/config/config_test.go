package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithReviewRequest(t *testing.T) {
	t.Setenv("REVIEWSYNC_REVIEW_REQUEST", "42")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected config to load with review request, got error: %v", err)
	}

	if cfg.Server.ReviewRequest != "42" {
		t.Errorf("expected review request '42', got '%s'", cfg.Server.ReviewRequest)
	}

	if cfg.Server.BaseURL != "http://localhost:8080" {
		t.Errorf("expected default base URL, got '%s'", cfg.Server.BaseURL)
	}

	if cfg.Watch.DefaultPeriod != 5*time.Second {
		t.Errorf("expected 5s default period, got %s", cfg.Watch.DefaultPeriod)
	}

	if cfg.UpdatesPath() != "/r/42/_updates/" {
		t.Errorf("unexpected updates path %s", cfg.UpdatesPath())
	}
}

func TestLoadWithoutReviewRequest(t *testing.T) {
	_ = os.Unsetenv("REVIEWSYNC_REVIEW_REQUEST")

	_, err := Load("")
	if err == nil {
		t.Fatal("expected error when review request is missing")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reviewsync.yaml")
	content := `
server:
  base_url: http://reviews.example.com
  review_request: "7"
watch:
  default_period: 2s
fragments:
  queue_name: comments
  lines_of_context: [3, 5]
  template_serial: abc123
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Watch.DefaultPeriod != 2*time.Second {
		t.Errorf("expected 2s period, got %s", cfg.Watch.DefaultPeriod)
	}
	if len(cfg.Fragments.LinesOfContext) != 2 || cfg.Fragments.LinesOfContext[1] != 5 {
		t.Errorf("unexpected lines of context %v", cfg.Fragments.LinesOfContext)
	}
	if cfg.FragmentsPath() != "/r/7/_fragments/diff-comments/" {
		t.Errorf("unexpected fragments path %s", cfg.FragmentsPath())
	}
}

func TestLoadServerConfig_Defaults(t *testing.T) {
	fixture := filepath.Join(t.TempDir(), "fixture.yaml")
	if err := os.WriteFile(fixture, []byte("review_requests: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FIXTURE_PATH", fixture)

	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8080" || cfg.Compression != "zstd" || !cfg.WSEnabled {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestLoadServerConfig_InvalidCompression(t *testing.T) {
	fixture := filepath.Join(t.TempDir(), "fixture.yaml")
	if err := os.WriteFile(fixture, []byte("review_requests: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FIXTURE_PATH", fixture)
	t.Setenv("COMPRESSION", "brotli")

	if _, err := LoadServerConfig(); err == nil {
		t.Fatal("expected error for invalid compression")
	}
}
