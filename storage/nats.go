package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Conn is a NATS connection with JetStream, and the embedded server behind
// it when one was started.
type Conn struct {
	Server *server.Server
	NC     *nats.Conn
	JS     jetstream.JetStream
}

// Connect dials an external NATS server.
func Connect(url string) (*Conn, error) {
	nc, err := nats.Connect(url, nats.Name("workbench"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	return &Conn{NC: nc, JS: js}, nil
}

// StartEmbedded runs an in-process JetStream server on a random port.
// storeDir holds JetStream data; empty means a temporary directory.
func StartEmbedded(storeDir string) (*Conn, error) {
	opts := &server.Options{
		Port:      -1, // Random available port
		JetStream: true,
		StoreDir:  storeDir,
		NoLog:     true,
		NoSigs:    true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}

	go ns.Start()

	// Wait for server to be ready
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, errors.New("embedded NATS server failed to start")
	}

	c, err := Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return nil, err
	}
	c.Server = ns
	return c, nil
}

// Close drains the connection and stops the embedded server, if any.
func (c *Conn) Close() {
	if c.NC != nil {
		_ = c.NC.Drain()
		c.NC.Close()
	}
	if c.Server != nil {
		c.Server.Shutdown()
		c.Server.WaitForShutdown()
	}
}
