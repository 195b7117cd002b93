package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.AnonymousQuota != 20 {
		t.Fatalf("quota = %d, want 20", cfg.AnonymousQuota)
	}
	if cfg.StartingCredits != 30 {
		t.Fatalf("starting credits = %d, want 30", cfg.StartingCredits)
	}
	if cfg.Gemini.CreditCost != 1 || cfg.Seedream.CreditCost != 2 || cfg.Qwen.CreditCost != 1 {
		t.Fatalf("provider costs = %d/%d/%d, want 1/2/1",
			cfg.Gemini.CreditCost, cfg.Seedream.CreditCost, cfg.Qwen.CreditCost)
	}
	if cfg.Seedream.PollAttempts != 300 || cfg.Qwen.PollAttempts != 60 {
		t.Fatalf("poll attempts = %d/%d, want 300/60", cfg.Seedream.PollAttempts, cfg.Qwen.PollAttempts)
	}
	// The write timeout must outlast the longest poll budget or slow
	// generations get cut off mid-response.
	if cfg.HTTPWriteTimeout < time.Duration(cfg.Seedream.PollAttempts)*cfg.Seedream.PollInterval {
		t.Fatalf("write timeout %v shorter than the seedream poll budget", cfg.HTTPWriteTimeout)
	}
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "secret")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected an error without DATABASE_URL")
	}
}

func TestLoadConfigRequiresJWTSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("JWT_SECRET", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected an error without JWT_SECRET")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("ANONYMOUS_QUOTA", "5")
	t.Setenv("GEMINI_CREDIT_COST", "3")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.test, https://b.test")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.AnonymousQuota != 5 {
		t.Fatalf("quota = %d, want 5", cfg.AnonymousQuota)
	}
	if cfg.Gemini.CreditCost != 3 {
		t.Fatalf("gemini cost = %d, want 3", cfg.Gemini.CreditCost)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.test" {
		t.Fatalf("origins = %v", cfg.AllowedOrigins)
	}
}
