package e2e

import (
	"chat-relay/client"
	"chat-relay/gateway"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
)

// BaseWsSuite owns the connection plumbing shared by end-to-end scenarios.
// Scenarios run against a live relay named by GATEWAY_URL; without it the
// whole suite skips so `go test ./...` stays green on a bare checkout.
type BaseWsSuite struct {
	suite.Suite
	Config Config
	log    *slog.Logger
}

func (s *BaseWsSuite) SetupSuite() {
	cfg, err := LoadConfig()
	s.Require().NoError(err)
	if cfg.GatewayURL == "" {
		s.T().Skip("GATEWAY_URL not set, skipping end-to-end suite")
	}
	if cfg.TokenA == "" || cfg.TokenB == "" {
		s.T().Skip("E2E_TOKEN_A / E2E_TOKEN_B not set, skipping end-to-end suite")
	}
	s.Config = cfg
	s.log = logs.GetLoggerFromString("warn")
}

// Participant bundles one live connection with its local store and a feed of
// every frame the server pushed to it.
type Participant struct {
	Client *client.Client
	Store  *client.Store
	Frames <-chan gateway.Envelope
}

// NewParticipant dials the gateway and starts the read loop. The connection
// is torn down via t.Cleanup.
func (s *BaseWsSuite) NewParticipant(token string) *Participant {
	store := client.NewStore()
	frames := make(chan gateway.Envelope, 64)

	handler := func(envelope gateway.Envelope, applied bool) {
		if s.Config.DebugJSON {
			raw, _ := json.Marshal(envelope.Payload)
			s.T().Logf("<- %s %s (applied=%t)", envelope.Type, raw, applied)
		}
		select {
		case frames <- envelope:
		default:
		}
	}

	c := client.NewClient(s.Config.GatewayURL, token, store, s.log, handler)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Require().NoError(c.Connect(ctx), "Failed to dial the gateway")

	runCtx, stop := context.WithCancel(context.Background())
	go func() { _ = c.Run(runCtx) }()
	s.T().Cleanup(func() {
		stop()
		c.Close()
	})

	return &Participant{Client: c, Store: store, Frames: frames}
}

// WaitForFrame drains the participant's feed until a frame of the wanted
// type arrives or the timeout elapses.
func (s *BaseWsSuite) WaitForFrame(p *Participant, frameType string, timeout time.Duration) (gateway.Envelope, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case envelope := <-p.Frames:
			if envelope.Type == frameType {
				return envelope, true
			}
		case <-deadline:
			return gateway.Envelope{}, false
		}
	}
}
