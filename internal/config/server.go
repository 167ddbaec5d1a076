package config

import "github.com/caarlos0/env/v11"

type ServerConfig struct {
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`

	SessionTTLHours   int   `env:"SESSION_TTL_HOURS" envDefault:"72"`
	StartingBalanceCC int64 `env:"STARTING_BALANCE_CC" envDefault:"10000"`

	TurnTimeSecs int `env:"TURN_TIME_SECONDS" envDefault:"30"`
	HandGapSecs  int `env:"HAND_GAP_SECONDS" envDefault:"5"`
}

func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	err := env.Parse(&cfg)
	return cfg, err
}
