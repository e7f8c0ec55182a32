package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

type Config struct {
	Host       string `env:"HOST,default=0.0.0.0"`
	Port       int    `env:"PORT,default=5000"`
	HealthPort int    `env:"HEALTH_PORT,default=5001"`
	DebugPort  int    `env:"DEBUG_PORT,default=8081"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	LogLevel       string `env:"LOG_LEVEL,default=INFO"`
	LimitMessages  *int   `env:"LIMIT_MESSAGES"`

	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=720h"`
	AuthTimeout       time.Duration `env:"AUTH_TIMEOUT,default=5s"`

	PersistenceTimeout   time.Duration `env:"PERSISTENCE_TIMEOUT,default=5s"`
	PresenceTimeout      time.Duration `env:"PRESENCE_TIMEOUT,default=5s"`
	DeliveryTimeout      time.Duration `env:"DELIVERY_TIMEOUT,default=2s"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=256"`
	MaxContentLength     int           `env:"MAX_CONTENT_LENGTH,default=4000"`
	AllowedOrigins       string        `env:"ALLOWED_ORIGINS,default=http://localhost:5173"`

	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL,default=1m"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c Config) Origins() []string {
	return lo.Compact(lo.Map(strings.Split(c.AllowedOrigins, ","), func(origin string, _ int) string {
		return strings.TrimSpace(origin)
	}))
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c Config) HealthAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HealthPort)
}

// Validate rejects values the defaults cannot fix.
func (c Config) Validate() error {
	switch {
	case c.ConnectionBufferSize <= 0:
		return fmt.Errorf("CONNECTION_BUFFER_SIZE must be positive, got %d", c.ConnectionBufferSize)
	case c.MaxContentLength <= 0:
		return fmt.Errorf("MAX_CONTENT_LENGTH must be positive, got %d", c.MaxContentLength)
	case c.ReconcileInterval <= 0:
		return fmt.Errorf("RECONCILE_INTERVAL must be positive, got %s", c.ReconcileInterval)
	case c.LimitMessages != nil && *c.LimitMessages <= 0:
		return fmt.Errorf("LIMIT_MESSAGES must be positive, got %d", *c.LimitMessages)
	case len(c.JWTSecret) < 16:
		return fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}
	return nil
}
