package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
}

const baseYAML = `
app:
  name: minishop
  http_addr: ":8080"
bus:
  driver: memory
store:
  driver: memory
cache:
  driver: memory
  ttl: 10m
stock:
  max_cas_retries: 5
payment:
  checkout_base_url: "https://checkout.example.com/pay"
  session_ttl: 30m
`

func TestLoad_LayersEnvFileAndVariables(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", baseYAML)
	writeFile(t, dir, "staging.yaml", "stock:\n  max_cas_retries: 9\ncache:\n  ttl: 1m\n")
	t.Setenv("MINISHOP_APP__HTTP_ADDR", ":9090")
	t.Setenv("MINISHOP_PAYMENT__SESSION_TTL", "5m")

	cfg, err := Load(dir, "staging")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.App.Env != "staging" {
		t.Errorf("Expected env staging, got %s", cfg.App.Env)
	}
	if cfg.Stock.MaxCASRetries != 9 {
		t.Errorf("Expected env file to override retries, got %d", cfg.Stock.MaxCASRetries)
	}
	if cfg.Cache.TTL != time.Minute {
		t.Errorf("Expected cache ttl 1m, got %s", cfg.Cache.TTL)
	}
	if cfg.App.HTTPAddr != ":9090" {
		t.Errorf("Expected variable to override http addr, got %s", cfg.App.HTTPAddr)
	}
	if cfg.Payment.SessionTTL != 5*time.Minute {
		t.Errorf("Expected session ttl 5m, got %s", cfg.Payment.SessionTTL)
	}
}

func TestLoad_MissingEnvFileIsOptional(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", baseYAML)

	cfg, err := Load(dir, "nowhere")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Stock.MaxCASRetries != 5 {
		t.Errorf("Expected base retries, got %d", cfg.Stock.MaxCASRetries)
	}
}

func TestLoad_MissingBaseFails(t *testing.T) {
	if _, err := Load(t.TempDir(), "dev"); err == nil {
		t.Error("Expected an error without base.yaml")
	}
}

func TestValidate_DriverRequirements(t *testing.T) {
	var cfg Config
	cfg.App.HTTPAddr = ":8080"
	cfg.Bus.Driver = DriverKafka
	cfg.Store.Driver = DriverPostgres
	cfg.Cache.Driver = "memcached"
	cfg.Payment.CheckoutBaseURL = "https://pay.test"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Expected validation to fail")
	}
	for _, want := range []string{"kafka.brokers", "kafka.group_id", "postgres.dsn", `cache.driver "memcached"`} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected error to mention %s, got %v", want, err)
		}
	}
}

func TestValidate_SampleRatio(t *testing.T) {
	var cfg Config
	cfg.App.HTTPAddr = ":8080"
	cfg.Bus.Driver, cfg.Store.Driver, cfg.Cache.Driver = DriverMemory, DriverMemory, DriverMemory
	cfg.Payment.CheckoutBaseURL = "https://pay.test"
	cfg.OTel.SampleRatio = 1.5

	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "sample_ratio") {
		t.Errorf("Expected sample ratio error, got %v", err)
	}
}
