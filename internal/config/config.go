// Package config loads tally settings from the environment.
//
// Values come from process environment variables, falling back to an
// optional .env file. Command-line flags override both.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/roach88/tally/internal/seal"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds tally settings.
type Config struct {
	DBPath        string   `env:"TALLY_DB"             envDefault:"tally.db"              validate:"required"`
	KeyHex        string   `env:"TALLY_KEY"                                               validate:"omitempty,hexadecimal"`
	Author        string   `env:"TALLY_AUTHOR"                                            validate:"max=200"`
	Device        string   `env:"TALLY_DEVICE"                                            validate:"max=200"`
	LogLevel      string   `env:"TALLY_LOG_LEVEL"      envDefault:"info"                  validate:"oneof=debug info warn error"`
	HTTPAddr      string   `env:"TALLY_HTTP_ADDR"      envDefault:"127.0.0.1:7433"        validate:"hostname_port"`
	CORSOrigins   []string `env:"TALLY_CORS_ORIGINS"   envDefault:"http://localhost:5173" envSeparator:"," validate:"dive,url"`
	ExportWorkers int      `env:"TALLY_EXPORT_WORKERS" envDefault:"4"                     validate:"min=1,max=64"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads configuration from the process environment.
//
// Variables missing from the environment are taken from the given dotenv
// files (".env" when none are given). Missing files are ignored.
func Load(dotenvFiles ...string) (Config, error) {
	environ := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			environ[k] = v
		}
	}

	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, path := range dotenvFiles {
		values, err := godotenv.Read(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
		for k, v := range values {
			if _, set := environ[k]; !set {
				environ[k] = v
			}
		}
	}
	return Parse(environ)
}

// Parse builds a configuration from an explicit environment.
func Parse(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and the snapshot key, if one is set.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("%w: %s", ErrInvalid, describe(verrs))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.KeyHex != "" {
		if _, err := c.Key(); err != nil {
			return fmt.Errorf("%w: TALLY_KEY: %v", ErrInvalid, err)
		}
	}
	return nil
}

func describe(errs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		switch e.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", e.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", e.Field(), e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %q validation", e.Field(), e.Tag()))
		}
	}
	sort.Strings(msgs)
	return strings.Join(msgs, "; ")
}

// Key decodes the hex snapshot key. It returns seal.ErrWeakKey for keys
// AES-GCM would reject or that are a single repeated byte.
func (c Config) Key() ([]byte, error) {
	if c.KeyHex == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.KeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if err := seal.CheckKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

// DeviceFingerprint returns the configured device, or a stable name-based
// UUID of the host name.
func (c Config) DeviceFingerprint() string {
	if c.Device != "" {
		return c.Device
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return HostFingerprint(host)
}

// HostFingerprint derives a device fingerprint from a host name.
func HostFingerprint(host string) string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(strings.ToLower(host))).String()
}

// SlogLevel maps LogLevel to a slog level.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
