package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_RELAY_URL points at a running relay; the suites are skipped when empty
	RelayURL string `envconfig:"RELAY_URL"`
	// E2E_TOKEN_SECRET must match the relay's TOKEN_SECRET when it requires tokens
	TokenSecret string `envconfig:"TOKEN_SECRET"`
	// E2E_DEBUG_JSON dumps every frame received
	DebugJSON bool `envconfig:"DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("E2E", &cfg)
	return cfg, err
}
