package transport

import (
	"context"
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"

	"github.com/MStylesMS/ParadoxFX-sub001/internal/logging"
)

// EmbeddedConfig configures an in-process NATS JetStream server, for
// single-box installations that would otherwise need a separately
// deployed broker.
type EmbeddedConfig struct {
	Host     string
	Port     int
	StoreDir string
}

func (c EmbeddedConfig) withDefaults() EmbeddedConfig {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 4222
	}
	if c.StoreDir == "" {
		c.StoreDir = "./paradoxfx-nats-store"
	}
	return c
}

// EmbeddedServer wraps a started in-process NATS server with the
// lifecycle the supervisor tree needs: a client URL to dial against, and
// a graceful Shutdown.
type EmbeddedServer struct {
	server    *natsserver.Server
	clientURL string
}

// StartEmbedded starts an in-process NATS JetStream server and blocks
// until it is ready for client connections or 30s elapse.
func StartEmbedded(cfg EmbeddedConfig) (*EmbeddedServer, error) {
	cfg = cfg.withDefaults()
	logger := logging.ForComponent("embedded-nats")

	opts := &natsserver.Options{
		ServerName: "paradoxfx",
		Host:       cfg.Host,
		Port:       cfg.Port,
		JetStream:  true,
		StoreDir:   cfg.StoreDir,
		DontListen: false,
		NoLog:      false,
		MaxPayload: 8 * 1024 * 1024,
	}

	ns, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}
	ns.ConfigureLogger()

	go ns.Start()

	if !ns.ReadyForConnections(30 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server not ready within timeout")
	}
	logger.Info().Str("url", ns.ClientURL()).Msg("embedded NATS server ready")

	return &EmbeddedServer{server: ns, clientURL: ns.ClientURL()}, nil
}

// ClientURL returns the URL a Transport should Dial against.
func (s *EmbeddedServer) ClientURL() string { return s.clientURL }

// Shutdown stops the embedded server, waiting for in-flight work to
// settle or ctx to expire, whichever comes first.
func (s *EmbeddedServer) Shutdown(ctx context.Context) error {
	s.server.Shutdown()
	done := make(chan struct{})
	go func() {
		s.server.WaitForShutdown()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
