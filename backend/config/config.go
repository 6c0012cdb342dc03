package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"
)

const envPrefix = "GHOSTCHAT_"

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	ListenAddr      string
	APIListenAddr   string
	LogLevel        zerolog.Level
	HistoryLimit    int
	SendQueueSize   int
	SecretCost      int
	ShutdownTimeout time.Duration
}

// Load parses command line arguments. Every flag defaults to its environment variable,
// e.g. --history-limit falls back to GHOSTCHAT_HISTORY_LIMIT.
func Load(args []string) (Config, error) {
	fs := pflag.NewFlagSet("ghostchat", pflag.ContinueOnError)

	env := &envReader{}
	var (
		listenAddr = fs.StringP("listen-addr", "w", env.value("LISTEN_ADDR", ":8888"),
			"websocket chat listen address")
		apiListenAddr = fs.StringP("api-listen-addr", "a", env.value("API_LISTEN_ADDR", ":8080"),
			"api listen address")
		logLevel = fs.StringP("log-level", "l", env.value("LOG_LEVEL", "info"),
			"log level")
		historyLimit = fs.Int("history-limit", env.intValue("HISTORY_LIMIT", 100),
			"messages kept per room")
		sendQueue = fs.Int("send-queue", env.intValue("SEND_QUEUE", 256),
			"outbound queue size per connection")
		secretCost = fs.Int("secret-cost", env.intValue("SECRET_COST", bcrypt.DefaultCost),
			"bcrypt cost for private room secrets")
		shutdownTimeout = fs.Duration("shutdown-timeout", env.durationValue("SHUTDOWN_TIMEOUT", 10*time.Second),
			"graceful shutdown timeout")
	)
	if env.err != nil {
		return Config{}, env.err
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		return Config{}, errors.Join(ErrInvalid, err)
	}

	switch {
	case *historyLimit <= 0:
		return Config{}, fmt.Errorf("%w: history limit must be positive", ErrInvalid)
	case *sendQueue <= 0:
		return Config{}, fmt.Errorf("%w: send queue must be positive", ErrInvalid)
	case *secretCost < bcrypt.MinCost || *secretCost > bcrypt.MaxCost:
		return Config{}, fmt.Errorf("%w: secret cost must be within [%d, %d]",
			ErrInvalid, bcrypt.MinCost, bcrypt.MaxCost)
	case *shutdownTimeout <= 0:
		return Config{}, fmt.Errorf("%w: shutdown timeout must be positive", ErrInvalid)
	}

	return Config{
		ListenAddr:      *listenAddr,
		APIListenAddr:   *apiListenAddr,
		LogLevel:        lvl,
		HistoryLimit:    *historyLimit,
		SendQueueSize:   *sendQueue,
		SecretCost:      *secretCost,
		ShutdownTimeout: *shutdownTimeout,
	}, nil
}

// envReader reads defaults from the environment and keeps the first malformed value.
type envReader struct {
	err error
}

func (r *envReader) value(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func (r *envReader) intValue(key string, defaultValue int) int {
	value := os.Getenv(envPrefix + key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		r.fail(key, err)
		return defaultValue
	}
	return intValue
}

func (r *envReader) durationValue(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envPrefix + key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		r.fail(key, err)
		return defaultValue
	}
	return d
}

func (r *envReader) fail(key string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s%s: %w", ErrInvalid, envPrefix, key, err)
	}
}
