package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_sub")
	t.Setenv("STRIPE_PAYMENTS_WEBHOOK_SECRET", "")
	t.Setenv("SITE_URL", "https://extrabeam.test/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Fatalf("Server.Port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Site.URL != "https://extrabeam.test" {
		t.Fatalf("Site.URL = %q, want trailing slash trimmed", cfg.Site.URL)
	}
	if cfg.Stripe.PaymentsWebhookSecret != "whsec_sub" {
		t.Fatalf("PaymentsWebhookSecret = %q, want fallback to subscription secret", cfg.Stripe.PaymentsWebhookSecret)
	}
}

func TestStripePrices(t *testing.T) {
	c := StripeConfig{PriceMonthly: "price_m"}
	prices := c.Prices()
	if prices["monthly"] != "price_m" {
		t.Fatalf("monthly price = %q", prices["monthly"])
	}
	if _, ok := prices["yearly"]; ok {
		t.Fatalf("yearly should be absent when not configured")
	}
}

func TestDSN(t *testing.T) {
	t.Run("url wins", func(t *testing.T) {
		c := DatabaseConfig{URL: "postgres://x/y", Host: "h"}
		if got := c.DSN(); got != "postgres://x/y" {
			t.Fatalf("DSN = %q", got)
		}
	})
	t.Run("components", func(t *testing.T) {
		c := DatabaseConfig{User: "u", Password: "p", Host: "h", Port: "5432", DBName: "d", SSLMode: "disable"}
		want := "postgres://u:p@h:5432/d?sslmode=disable"
		if got := c.DSN(); got != want {
			t.Fatalf("DSN = %q, want %q", got, want)
		}
	})
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("EMAIL_WORKER_IN_PROCESS", "nope")
	if !getEnvBool("EMAIL_WORKER_IN_PROCESS", true) {
		t.Fatalf("invalid bool should fall back to default")
	}
	t.Setenv("EMAIL_WORKER_IN_PROCESS", "false")
	if getEnvBool("EMAIL_WORKER_IN_PROCESS", true) {
		t.Fatalf("false should parse")
	}
}
