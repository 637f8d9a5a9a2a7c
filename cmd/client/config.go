package main

import "github.com/kelseyhightower/envconfig"

type Config struct {
	RelayURL string `envconfig:"RELAY_URL" default:"http://localhost:8080"`
	Name     string `envconfig:"NAME"`
	Room     string `envconfig:"ROOM"`
	// TOKEN replaces NAME and ROOM when the relay requires signed handshakes
	Token string `envconfig:"TOKEN"`
	// COLOURS colorizes senders for readability
	Colours bool `envconfig:"COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("CLIENT", &cfg)
	return cfg, err
}
