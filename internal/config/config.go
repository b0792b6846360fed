package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is loaded from environment variables. Defaults suit local
// development against a sqlite file.
type Config struct {
	Addr           string `env:"CHAT_ADDR" envDefault:":8080"`
	DBDriver       string `env:"CHAT_DB_DRIVER" envDefault:"sqlite3"`
	DBDSN          string `env:"CHAT_DB_DSN" envDefault:"chat.db"`
	GroupEcho      bool   `env:"CHAT_GROUP_ECHO" envDefault:"false"`
	SendBuffer     int    `env:"CHAT_SEND_BUFFER" envDefault:"256"`
	MaxMessageSize int64  `env:"CHAT_MAX_MESSAGE_SIZE" envDefault:"4096"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}
