// Package natsbus runs the embedded NATS broker that carries the live
// analysis event feed and the ops IPC channel.
package natsbus

import (
	"fmt"
	"os"
	"time"

	"github.com/mtzanidakis/skopos/internal/config"
	natsserver "github.com/nats-io/nats-server/v2/server"
)

// readyTimeout bounds how long startup waits for the broker to accept
// connections before the gateway gives up.
const readyTimeout = 5 * time.Second

// Bus is the embedded broker. One per process; everything else connects
// through a Client.
type Bus struct {
	server *natsserver.Server
}

// New starts the broker. Port 0 picks a free port, which tests rely on.
func New(cfg config.NATSConfig) (*Bus, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create nats data dir: %w", err)
	}

	opts := &natsserver.Options{
		Port:      cfg.Port,
		NoLog:     true,
		NoSigs:    true,
		JetStream: true,
		StoreDir:  cfg.DataDir,
	}

	ns, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create nats server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(readyTimeout) {
		return nil, fmt.Errorf("nats server not ready")
	}

	return &Bus{server: ns}, nil
}

// ClientURL returns the address clients connect to, with the resolved
// port when the broker was started on port 0.
func (b *Bus) ClientURL() string {
	return b.server.ClientURL()
}

func (b *Bus) Close() {
	b.server.Shutdown()
	b.server.WaitForShutdown()
}
