package main

import (
	"chat-sync/runtime"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

type Config struct {
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
	Host                 string        `env:"HOST,default=localhost"`
	Port                 int           `env:"PORT,default=8080"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	JWTSecret            string        `env:"JWT_SECRET,required=true"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=256"`
	PersistBufferSize    int           `env:"PERSIST_BUFFER_SIZE,default=1024"`
	NumberOfWorkers      int           `env:"NUMBER_OF_WORKERS,default=4"`
	LimitMessages        int           `env:"LIMIT_MESSAGES,default=50"`
	TypingTimeout        time.Duration `env:"TYPING_TIMEOUT,default=2s"`
	PresenceScope        string        `env:"PRESENCE_SCOPE,default=chat"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	CharacterReplacement string        `env:"CHARACTER_REPLACEMENT,default=*"`
	MaxContentLength     int           `env:"MAX_CONTENT_LENGTH,default=4096"`
	MaxMessageSize       int64         `env:"MAX_MESSAGE_SIZE,default=65536"`
	StatsInterval        time.Duration `env:"STATS_INTERVAL,default=1m"`
	AllowedOrigins       string        `env:"ALLOWED_ORIGINS"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,default=10s"`
	PongTimeout          time.Duration `env:"PONG_TIMEOUT,default=60s"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

// scope parses PRESENCE_SCOPE.
func (c Config) scope() (runtime.PresenceScope, error) {
	return runtime.ParsePresenceScope(c.PresenceScope)
}

// replacement returns the single rune written over censored characters.
func (c Config) replacement() (rune, error) {
	if utf8.RuneCountInString(c.CharacterReplacement) != 1 {
		return 0, fmt.Errorf("CHARACTER_REPLACEMENT must be a single character, got %q", c.CharacterReplacement)
	}
	r, _ := utf8.DecodeRuneInString(c.CharacterReplacement)
	return r, nil
}

// origins splits the comma separated ALLOWED_ORIGINS.
func (c Config) origins() []string {
	if strings.TrimSpace(c.AllowedOrigins) == "" {
		return nil
	}
	return strings.Split(c.AllowedOrigins, ",")
}

func (c Config) address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
