package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Plan is a subscription plan offered on the plan selection page.
type Plan struct {
	ID         string `yaml:"id" json:"id" validate:"required"`
	Name       string `yaml:"name" json:"name" validate:"required"`
	PriceCents int64  `yaml:"price_cents" json:"price_cents" validate:"min=0"`
	Interval   string `yaml:"interval" json:"interval" validate:"oneof=month year once"`
}

// Free reports whether the plan costs nothing.
func (p Plan) Free() bool { return p.PriceCents == 0 }

type Tables struct {
	Idempotency   string `yaml:"idempotency" validate:"required"`
	Checkouts     string `yaml:"checkouts" validate:"required"`
	WebhookEvents string `yaml:"webhook_events" validate:"required"`
	ClientStorage string `yaml:"client_storage" validate:"required"`
}

type Auth struct {
	JWTSecret string `yaml:"jwt_secret" validate:"required,min=16"`
	Issuer    string `yaml:"issuer"`
}

type Payment struct {
	// GatewayURL is where POST /checkout sends the browser.
	GatewayURL string `yaml:"gateway_url" validate:"required,url"`
	// StatusURL switches checkout verification to a remote status endpoint.
	StatusURL string `yaml:"status_url" validate:"omitempty,url"`
	// ReturnURL is the public base URL the gateway redirects back to.
	ReturnURL string `yaml:"return_url" validate:"required,url"`
	// WebhookSecret keys the HMAC-SHA256 signature of gateway webhooks.
	WebhookSecret string `yaml:"webhook_secret" validate:"required,min=16"`
}

// Navigation holds the post-success targets of the callback pages.
type Navigation struct {
	AuthTarget           string        `yaml:"auth_target" validate:"required,startswith=/"`
	CheckoutTarget       string        `yaml:"checkout_target" validate:"required,startswith=/"`
	PaymentSuccessTarget string        `yaml:"payment_success_target" validate:"required,startswith=/"`
	RedirectDelay        time.Duration `yaml:"redirect_delay" validate:"min=0"`
}

// Config is the service configuration.
type Config struct {
	Env              string        `yaml:"env" validate:"oneof=dev prod"`
	Addr             string        `yaml:"addr" validate:"required"`
	RunLocal         bool          `yaml:"run_local"`
	DevTools         bool          `yaml:"dev_tools"`
	QueueURL         string        `yaml:"queue_url"`
	MetricsNamespace string        `yaml:"metrics_namespace" validate:"required"`
	LedgerTTL        time.Duration `yaml:"ledger_ttl" validate:"gt=0"`
	VerifyTimeout    time.Duration `yaml:"verify_timeout" validate:"min=0"`
	Tables           Tables        `yaml:"tables"`
	Auth             Auth          `yaml:"auth"`
	Payment          Payment       `yaml:"payment"`
	Navigation       Navigation    `yaml:"navigation"`
	Plans            []Plan        `yaml:"plans" validate:"required,min=1,dive"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Env:              "dev",
		Addr:             ":8080",
		MetricsNamespace: "RouletteReconciler",
		LedgerTTL:        48 * time.Hour,
		VerifyTimeout:    10 * time.Second,
		Tables: Tables{
			Idempotency:   "callback-idempotency",
			Checkouts:     "checkouts",
			WebhookEvents: "webhook-events",
			ClientStorage: "client-storage",
		},
		Payment: Payment{
			GatewayURL: "https://pay.example.com/checkout",
			ReturnURL:  "http://localhost:8080",
		},
		Navigation: Navigation{
			AuthTarget:           "/dashboard",
			CheckoutTarget:       "/payment/success",
			PaymentSuccessTarget: "/dashboard",
			RedirectDelay:        3 * time.Second,
		},
		Plans: []Plan{
			{ID: "free", Name: "Gratuito", PriceCents: 0, Interval: "month"},
			{ID: "pro-monthly", Name: "Pro Mensal", PriceCents: 4990, Interval: "month"},
			{ID: "pro-annual", Name: "Pro Anual", PriceCents: 47900, Interval: "year"},
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path and environment overrides, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cfg with struct tags.
func Validate(cfg Config) error {
	if err := validatorv10.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Env, "APP_ENV")
	setString(&cfg.Addr, "ADDR")
	setString(&cfg.QueueURL, "OUTCOME_QUEUE_URL")
	setString(&cfg.MetricsNamespace, "METRICS_NAMESPACE")
	setString(&cfg.Tables.Idempotency, "IDEMPOTENCY_TABLE")
	setString(&cfg.Tables.Checkouts, "CHECKOUTS_TABLE")
	setString(&cfg.Tables.WebhookEvents, "WEBHOOK_EVENTS_TABLE")
	setString(&cfg.Tables.ClientStorage, "CLIENT_STORAGE_TABLE")
	setString(&cfg.Auth.JWTSecret, "AUTH_JWT_SECRET")
	setString(&cfg.Auth.Issuer, "AUTH_JWT_ISSUER")
	setString(&cfg.Payment.GatewayURL, "PAYMENT_GATEWAY_URL")
	setString(&cfg.Payment.StatusURL, "PAYMENT_STATUS_URL")
	setString(&cfg.Payment.ReturnURL, "PUBLIC_BASE_URL")
	setString(&cfg.Payment.WebhookSecret, "PAYMENT_WEBHOOK_SECRET")

	if v := os.Getenv("RUN_LOCAL"); v != "" {
		cfg.RunLocal = v == "true"
	}
	if v := os.Getenv("DEV_TOOLS"); v != "" {
		cfg.DevTools = v == "true"
	}
	if err := setDuration(&cfg.VerifyTimeout, "VERIFY_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&cfg.LedgerTTL, "LEDGER_TTL"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Navigation.RedirectDelay, "REDIRECT_DELAY"); err != nil {
		return err
	}
	if v := os.Getenv("REDIRECT_DELAY_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIRECT_DELAY_MS: %w", err)
		}
		cfg.Navigation.RedirectDelay = time.Duration(ms) * time.Millisecond
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
