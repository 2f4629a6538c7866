// Package daemon holds the coinledger process configuration.
//
// Configuration is layered:
//  1. Built-in defaults (DefaultConfig)
//  2. coinledger.toml, when present
//  3. .env file, then COINLEDGER_* environment variables
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/fableworks/coinledger/internal/domain"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "COINLEDGER_"

// Config is the top-level configuration.
type Config struct {
	API      APIConfig      `toml:"api"`
	Database DatabaseConfig `toml:"database"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Payment  PaymentConfig  `toml:"payment"`
	Platform PlatformConfig `toml:"platform"`
	Log      LogConfig      `toml:"log"`
}

// APIConfig configures the HTTP surface.
type APIConfig struct {
	Host             string   `toml:"host"`
	Port             int      `toml:"port"`
	JWTSecret        string   `toml:"jwt_secret"`
	SessionTTL       string   `toml:"session_ttl"`
	AllowMockPayment bool     `toml:"allow_mock_payment"`
	CORSOrigins      []string `toml:"cors_origins"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Dir string `toml:"dir"`
}

// LedgerConfig holds the fixed grant amounts.
type LedgerConfig struct {
	InitialGrant     int64 `toml:"initial_grant"`
	FirstChargeBonus int64 `toml:"first_charge_bonus"`
	InviteReward     int64 `toml:"invite_reward"`
}

// PaymentConfig configures order signing and callback verification.
type PaymentConfig struct {
	AppID            string        `toml:"app_id"`
	KeyVersion       string        `toml:"key_version"`
	PrivateKeyPath   string        `toml:"private_key_path"`
	NotifyURL        string        `toml:"notify_url"`
	CallbackToken    string        `toml:"callback_token"`
	ReplayWindow     string        `toml:"replay_window"`
	PayExpireSeconds int           `toml:"pay_expire_seconds"`
	SweepInterval    string        `toml:"sweep_interval"`
	OrderPrefix      string        `toml:"order_prefix"`
	Plans            []domain.Plan `toml:"plans"`
}

// PlatformConfig configures the mini-program platform client.
type PlatformConfig struct {
	AppID     string `toml:"app_id"`
	AppSecret string `toml:"app_secret"`
	BaseURL   string `toml:"base_url"`
	Timeout   string `toml:"timeout"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level string `toml:"level"`
	Env   string `toml:"env"`
}

// DefaultConfig returns a configuration usable for local development.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Host:       "127.0.0.1",
			Port:       3000,
			SessionTTL: "168h",
		},
		Database: DatabaseConfig{
			Dir: "data",
		},
		Ledger: LedgerConfig{
			InitialGrant:     10,
			FirstChargeBonus: 5,
			InviteReward:     10,
		},
		Payment: PaymentConfig{
			KeyVersion:       "1",
			ReplayWindow:     "10m",
			PayExpireSeconds: 3600,
			SweepInterval:    "5m",
			OrderPrefix:      "CL",
			Plans: []domain.Plan{
				{ProductID: "coins_10", Name: "10 coins", Coins: 10, Price: 500},
				{ProductID: "coins_30", Name: "30 coins", Coins: 30, Price: 1200},
				{ProductID: "coins_60", Name: "60 coins", Coins: 60, Price: 2000},
			},
		},
		Platform: PlatformConfig{
			BaseURL: "https://developer.toutiao.com",
			Timeout: "10s",
		},
		Log: LogConfig{
			Level: "info",
			Env:   "development",
		},
	}
}

// Load reads path (missing file is not an error), applies .env and
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("parse %s: %w", path, err)
		default:
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				return nil, fmt.Errorf("parse %s: unknown keys %v", path, undecoded)
			}
		}
	}

	envFile := ".env"
	if path != "" {
		envFile = filepath.Join(filepath.Dir(path), ".env")
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"HOST":                   &c.API.Host,
		"JWT_SECRET":             &c.API.JWTSecret,
		"DB_DIR":                 &c.Database.Dir,
		"PAYMENT_APP_ID":         &c.Payment.AppID,
		"PAYMENT_KEY_VERSION":    &c.Payment.KeyVersion,
		"PAYMENT_PRIVATE_KEY":    &c.Payment.PrivateKeyPath,
		"PAYMENT_NOTIFY_URL":     &c.Payment.NotifyURL,
		"PAYMENT_CALLBACK_TOKEN": &c.Payment.CallbackToken,
		"PLATFORM_APP_ID":        &c.Platform.AppID,
		"PLATFORM_APP_SECRET":    &c.Platform.AppSecret,
		"PLATFORM_BASE_URL":      &c.Platform.BaseURL,
		"LOG_LEVEL":              &c.Log.Level,
		"APP_ENV":                &c.Log.Env,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int64{
		"INITIAL_GRANT":      &c.Ledger.InitialGrant,
		"FIRST_CHARGE_BONUS": &c.Ledger.FirstChargeBonus,
		"INVITE_REWARD":      &c.Ledger.InviteReward,
	}
	for key, dst := range ints {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = n
		}
	}

	// PORT is honoured without prefix for container platforms.
	for _, key := range []string{"PORT", EnvPrefix + "PORT"} {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			c.API.Port = n
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "ALLOW_MOCK_PAYMENT"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sALLOW_MOCK_PAYMENT: %w", EnvPrefix, err)
		}
		c.API.AllowMockPayment = b
	}
	if v, ok := os.LookupEnv(EnvPrefix + "CORS_ORIGINS"); ok {
		c.API.CORSOrigins = splitList(v)
	}
	return nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port %d out of range", c.API.Port))
	}
	if c.API.JWTSecret != "" && len(c.API.JWTSecret) < 32 {
		errs = append(errs, errors.New("api.jwt_secret must be at least 32 characters"))
	}
	if c.Database.Dir == "" {
		errs = append(errs, errors.New("database.dir is required"))
	}
	if c.Ledger.InitialGrant < 0 || c.Ledger.FirstChargeBonus < 0 || c.Ledger.InviteReward < 0 {
		errs = append(errs, errors.New("ledger amounts must not be negative"))
	}
	if c.Payment.PayExpireSeconds <= 0 {
		errs = append(errs, errors.New("payment.pay_expire_seconds must be positive"))
	}
	if len(c.Payment.Plans) == 0 {
		errs = append(errs, errors.New("payment.plans must not be empty"))
	}
	seen := make(map[string]bool, len(c.Payment.Plans))
	for _, p := range c.Payment.Plans {
		switch {
		case p.ProductID == "":
			errs = append(errs, errors.New("payment.plans: product_id is required"))
		case seen[p.ProductID]:
			errs = append(errs, fmt.Errorf("payment.plans: duplicate product %q", p.ProductID))
		case p.Coins <= 0 || p.Price <= 0:
			errs = append(errs, fmt.Errorf("payment.plans: %q needs positive coins and price", p.ProductID))
		}
		seen[p.ProductID] = true
	}

	for name, v := range map[string]string{
		"api.session_ttl":        c.API.SessionTTL,
		"payment.replay_window":  c.Payment.ReplayWindow,
		"payment.sweep_interval": c.Payment.SweepInterval,
		"platform.timeout":       c.Platform.Timeout,
	} {
		if _, err := parseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	return errors.Join(errs...)
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// SessionTTL returns api.session_ttl as a duration.
func (c *Config) SessionTTL() time.Duration { return mustDuration(c.API.SessionTTL) }

// ReplayWindow returns payment.replay_window as a duration.
func (c *Config) ReplayWindow() time.Duration { return mustDuration(c.Payment.ReplayWindow) }

// SweepInterval returns payment.sweep_interval as a duration.
func (c *Config) SweepInterval() time.Duration { return mustDuration(c.Payment.SweepInterval) }

// PlatformTimeout returns platform.timeout as a duration.
func (c *Config) PlatformTimeout() time.Duration { return mustDuration(c.Platform.Timeout) }

// PayExpiry returns how long a pending order stays payable.
func (c *Config) PayExpiry() time.Duration {
	return time.Duration(c.Payment.PayExpireSeconds) * time.Second
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

// mustDuration is only called on validated values; invalid input reads as 0.
func mustDuration(s string) time.Duration {
	d, _ := parseDuration(s)
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
