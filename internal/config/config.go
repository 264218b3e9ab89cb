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

// devAuthSecret signs tokens when GATE_AUTH_SECRET is unset in dev.
const devAuthSecret = "gate-dev-secret"

type Config struct {
	HTTPAddr string
	GRPCAddr string // "" disables the gRPC health listener

	// DB
	Env      string // "dev" | "prod"
	DBDriver string // "sqlite" | "postgres"
	DBPath   string // e.g. "./data/gate.db"
	PGDSN    string

	AuthSecret string

	// Gate timing
	AutoClose     time.Duration
	CommandTTL    time.Duration
	SweepInterval time.Duration // 0 disables the command sweeper

	// Controller endpoints
	RateLimitPerSecond float64 // 0 disables
	RateLimitBurst     int
}

// LoadDotEnv copies variables from the given files (".env" by default)
// into the environment without overriding ones already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func FromEnv() Config {
	addr := getenvDefault("GATE_HTTP_ADDR", ":8080")
	grpcAddr := strings.TrimSpace(os.Getenv("GATE_GRPC_ADDR"))

	env := strings.ToLower(getenvDefault("GATE_ENV", "dev"))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}

	driver := strings.ToLower(getenvDefault("GATE_DB_DRIVER", "sqlite"))
	dbPath := getenvDefault("GATE_DB_PATH", "./data/gate.db")

	secret := strings.TrimSpace(os.Getenv("GATE_AUTH_SECRET"))
	if secret == "" && env == "dev" {
		secret = devAuthSecret
	}

	return Config{
		HTTPAddr: addr,
		GRPCAddr: grpcAddr,

		Env:      env,
		DBDriver: driver,
		DBPath:   dbPath,
		PGDSN:    os.Getenv("GATE_PG_DSN"),

		AuthSecret: secret,

		AutoClose:     time.Duration(getenvInt("GATE_AUTO_CLOSE_SECONDS", 10)) * time.Second,
		CommandTTL:    time.Duration(getenvInt("GATE_COMMAND_TTL_SECONDS", 30)) * time.Second,
		SweepInterval: time.Duration(getenvInt("GATE_SWEEP_INTERVAL_SECONDS", 60)) * time.Second,

		RateLimitPerSecond: getenvFloat("GATE_RATE_LIMIT_PER_SECOND", 5),
		RateLimitBurst:     getenvInt("GATE_RATE_LIMIT_BURST", 10),
	}
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	switch c.DBDriver {
	case "sqlite":
	case "postgres":
		if strings.TrimSpace(c.PGDSN) == "" {
			return errors.New("GATE_PG_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown GATE_DB_DRIVER %q", c.DBDriver)
	}
	if c.AuthSecret == "" {
		return errors.New("GATE_AUTH_SECRET is required in prod")
	}
	if c.AutoClose <= 0 {
		return errors.New("GATE_AUTO_CLOSE_SECONDS must be positive")
	}
	if c.CommandTTL <= 0 {
		return errors.New("GATE_COMMAND_TTL_SECONDS must be positive")
	}
	return nil
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return def
	}
	return f
}
