package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in
// the application: strings for identifiers and secrets, durations for
// windows and intervals.
type Config struct {
	Env                string        // application environment (e.g. "dev", "prod")
	Port               string        // HTTP port to listen on
	DBUser             string        // database username
	DBPass             string        // database password (optional)
	DBHost             string        // database host address
	DBPort             string        // database port number
	DBName             string        // database name
	JWTSecret          string        // secret used to sign admin and grant JWTs
	AccessTTLMin       int           // admin access token time-to-live in minutes
	GrantTTLMin        int           // onboarding grant time-to-live in minutes
	BcryptCost         int           // bcrypt cost for admin password hashing
	ClaimWindow        time.Duration // how long an invited request may claim (default 48h)
	SweepInterval      time.Duration // how often the waitlist sweep runs
	AvailabilityTTL    time.Duration // TTL of the city availability cache
	AMQPURL            string        // RabbitMQ connection string (optional)
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  Windows and
// intervals have sensible defaults so a dev environment only needs the
// database and secret settings.
func Load() Config {
	return Config{
		Env:             must("APP_ENV"),
		Port:            must("APP_PORT"),
		DBUser:          must("DB_USER"),
		DBPass:          os.Getenv("DB_PASS"), // empty allowed
		DBHost:          must("DB_HOST"),
		DBPort:          must("DB_PORT"),
		DBName:          must("DB_NAME"),
		JWTSecret:       must("JWT_SECRET"),
		AccessTTLMin:    mustInt("ACCESS_TOKEN_TTL_MIN"),
		GrantTTLMin:     intDefault("GRANT_TTL_MIN", 15),
		BcryptCost:      mustInt("BCRYPT_COST"),
		ClaimWindow:     durDefault("CLAIM_WINDOW", 48*time.Hour),
		SweepInterval:   durDefault("WAITLIST_SWEEP_INTERVAL", 5*time.Minute),
		AvailabilityTTL: durDefault("AVAILABILITY_CACHE_TTL", 45*time.Second),
		AMQPURL:         os.Getenv("RABBITMQ_URL"), // empty = notifications logged only
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
// If conversion fails, the application logs a fatal error and exits.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

// intDefault reads an optional integer variable, falling back to def when
// unset or unparsable.
func intDefault(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// durDefault reads an optional duration variable ("45s", "48h"), falling
// back to def when unset or unparsable.
func durDefault(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
