package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("SEED_OPERATOR_PIN", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.SeedOperatorPIN != "" {
		t.Fatalf("expected empty SEED_OPERATOR_PIN when unset, got %q", cfg.SeedOperatorPIN)
	}
}

func TestLoadFallsBackOnInvalidNumbers(t *testing.T) {
	t.Setenv("UNDO_WINDOW_SECONDS", "not-a-number")
	t.Setenv("LOW_STOCK_THRESHOLD", "-3")
	t.Setenv("SUMMARY_CACHE_TTL_SECONDS", "0")

	cfg := Load()
	if cfg.UndoWindowSeconds != 300 {
		t.Fatalf("expected undo window fallback 300, got %d", cfg.UndoWindowSeconds)
	}
	if cfg.LowStockThreshold != 5 {
		t.Fatalf("expected low stock fallback 5, got %d", cfg.LowStockThreshold)
	}
	if cfg.SummaryCacheTTLSeconds != 20 {
		t.Fatalf("expected summary TTL fallback 20, got %d", cfg.SummaryCacheTTLSeconds)
	}
}
