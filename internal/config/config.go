package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr           string
	Env            string
	LogLevel       string
	DefaultStyle   string
	OutboxSize     int
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	AllowedOrigins []string
}

func Default() Config {
	return Config{
		Addr:         ":8888",
		Env:          "production",
		LogLevel:     "info",
		DefaultStyle: "1",
		OutboxSize:   16,
		WriteTimeout: 3 * time.Second,
	}
}

// Load reads envFile (if it exists) into the process environment and builds
// a Config from DRAFT_* variables on top of the defaults.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	c := Default()

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("DRAFT_ADDR", &c.Addr)
	str("DRAFT_ENV", &c.Env)
	str("DRAFT_LOG_LEVEL", &c.LogLevel)
	str("DRAFT_DEFAULT_STYLE", &c.DefaultStyle)

	if v, ok := lookup("DRAFT_OUTBOX_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("DRAFT_OUTBOX_SIZE: invalid value %q", v)
		}
		c.OutboxSize = n
	}

	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return fmt.Errorf("%s: invalid duration %q", key, v)
		}
		*dst = d
		return nil
	}
	if err := dur("DRAFT_WRITE_TIMEOUT", &c.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := dur("DRAFT_READ_TIMEOUT", &c.ReadTimeout); err != nil {
		return Config{}, err
	}

	if v, ok := lookup("DRAFT_ALLOWED_ORIGINS"); ok && v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, o)
			}
		}
	}
	return c, nil
}
