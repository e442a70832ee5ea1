package test

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// TEST_READ_TIMEOUT bounds every frame read; raise it on slow CI
	ReadTimeout time.Duration `envconfig:"TEST_READ_TIMEOUT" default:"3s"`
	SendBuffer  int           `envconfig:"TEST_SEND_BUFFER" default:"64"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
