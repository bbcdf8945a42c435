package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// GATEWAY_URL points at a running relay, e.g. ws://localhost:8080/ws.
	// The suite is skipped entirely when unset.
	GatewayURL string `envconfig:"GATEWAY_URL"`
	// Two tokens for members of CONVERSATION_ID, minted by cmd/tools.
	TokenA         string `envconfig:"E2E_TOKEN_A"`
	TokenB         string `envconfig:"E2E_TOKEN_B"`
	ConversationID string `envconfig:"E2E_CONVERSATION_ID" default:"c-general"`
	// E2E_DEBUG_JSON dumps every received frame for troubleshooting
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
