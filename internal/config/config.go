// Package config reads the tips service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ovaphlow/pitchfork/service-tips-go/internal/dispatch"
	"github.com/ovaphlow/pitchfork/service-tips-go/internal/onboarding"
	"github.com/ovaphlow/pitchfork/service-tips-go/internal/payment"
	"github.com/ovaphlow/pitchfork/service-tips-go/internal/ratelimit"
)

type Config struct {
	HTTPAddr              string
	PublicBaseURL         string
	AppBaseURL            string
	CallbackSigningSecret string
	ReservationTTL        time.Duration

	Stripe     payment.StripeConfig
	TipBounds  payment.TipBounds
	Fees       payment.FeeModel
	RateLimits dispatch.Policies
}

// Load reads the environment. Unparseable values and missing required
// settings are reported together.
func Load() (Config, error) { return load(true) }

// LoadMemory is Load for `serve --memory`: no provider key is needed and the
// public base URL defaults to localhost.
func LoadMemory() (Config, error) { return load(false) }

func load(live bool) (Config, error) {
	var errs []error
	e := &envReader{errs: &errs}

	cfg := Config{
		HTTPAddr:              e.str("HTTP_ADDR", "0.0.0.0:8431"),
		PublicBaseURL:         strings.TrimRight(e.str("PUBLIC_BASE_URL", ""), "/"),
		CallbackSigningSecret: e.str("CALLBACK_SIGNING_SECRET", ""),
		ReservationTTL:        e.duration("ONBOARDING_RESERVATION_TTL", onboarding.DefaultReservationTTL),
		Stripe: payment.StripeConfig{
			SecretKey:    e.str("STRIPE_SECRET_KEY", ""),
			Country:      e.str("STRIPE_COUNTRY", "DE"),
			Currency:     strings.ToLower(e.str("STRIPE_CURRENCY", "eur")),
			BusinessType: e.str("STRIPE_BUSINESS_TYPE", "individual"),
			BackendURL:   e.str("STRIPE_API_BASE", ""),
		},
		TipBounds: payment.TipBounds{
			Min: e.decimal("TIP_MIN", payment.DefaultTipBounds().Min),
			Max: e.decimal("TIP_MAX", payment.DefaultTipBounds().Max),
		},
		Fees: payment.FeeModel{
			BaseMinor: e.int64("FEE_BASE_MINOR", payment.DefaultFeeModel().BaseMinor),
			Percent:   e.decimal("FEE_PERCENT", payment.DefaultFeeModel().Percent),
		},
		RateLimits: dispatch.Policies{
			Default: e.policy("RATE_LIMIT_DEFAULT", 30, time.Minute),
			Account: e.policy("RATE_LIMIT_ACCOUNT", 5, time.Minute),
			Payment: e.policy("RATE_LIMIT_PAYMENT", 10, time.Minute),
		},
	}
	if !live && cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = "http://localhost:8431"
	}
	cfg.AppBaseURL = strings.TrimRight(e.str("APP_BASE_URL", cfg.PublicBaseURL), "/")

	errs = append(errs, cfg.validate(live)...)
	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func (c Config) validate(live bool) []error {
	var errs []error
	if live && c.Stripe.SecretKey == "" {
		errs = append(errs, errors.New("STRIPE_SECRET_KEY is required"))
	}
	if c.PublicBaseURL == "" {
		errs = append(errs, errors.New("PUBLIC_BASE_URL is required"))
	}
	if !c.TipBounds.Min.IsPositive() || c.TipBounds.Max.LessThan(c.TipBounds.Min) {
		errs = append(errs, fmt.Errorf("tip bounds %s..%s are invalid", c.TipBounds.Min, c.TipBounds.Max))
	}
	if c.Fees.BaseMinor < 0 || c.Fees.Percent.IsNegative() || c.Fees.Percent.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		errs = append(errs, errors.New("fee model is invalid"))
	}
	for name, p := range map[string]ratelimit.Policy{
		"RATE_LIMIT_DEFAULT": c.RateLimits.Default,
		"RATE_LIMIT_ACCOUNT": c.RateLimits.Account,
		"RATE_LIMIT_PAYMENT": c.RateLimits.Payment,
	} {
		if p.MaxRequests < 1 || p.Window <= 0 {
			errs = append(errs, fmt.Errorf("%s needs a positive max and window", name))
		}
	}
	return errs
}

type envReader struct {
	errs *[]error
}

func (e *envReader) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *envReader) int64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		*e.errs = append(*e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (e *envReader) decimal(key string, def decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		*e.errs = append(*e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		*e.errs = append(*e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

// policy reads <prefix>_MAX and <prefix>_WINDOW_MS.
func (e *envReader) policy(prefix string, max int, window time.Duration) ratelimit.Policy {
	return ratelimit.Policy{
		MaxRequests: int(e.int64(prefix+"_MAX", int64(max))),
		Window:      time.Duration(e.int64(prefix+"_WINDOW_MS", window.Milliseconds())) * time.Millisecond,
	}
}
