package bus

import (
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/rs/zerolog/log"
)

// StartEmbeddedServer runs an in-process NATS server so a single binary can
// carry its own event bus. Port -1 picks a random free port; the returned URL
// is what Connect should dial.
func StartEmbeddedServer(host string, port int) (*natsserver.Server, string, error) {
	if host == "" {
		host = "127.0.0.1"
	}

	ns, err := natsserver.NewServer(&natsserver.Options{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to create embedded NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, "", fmt.Errorf("embedded NATS server not ready")
	}

	log.Info().
		Str("component", "bus").
		Str("url", ns.ClientURL()).
		Msg("Embedded NATS server started")

	return ns, ns.ClientURL(), nil
}
