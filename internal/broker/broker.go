// Package broker runs an in-process MQTT broker so a single binary can accept
// sensor telemetry without external infrastructure.
package broker

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
)

type Broker struct {
	server *mqtt.Server
	tcp    *listeners.TCP
	conns  *connectionHook
	logger *slog.Logger

	closeOnce sync.Once
}

// New prepares a broker that accepts any client on addr. It does not listen until Start.
func New(addr string, logger *slog.Logger) (*Broker, error) {
	if addr == "" {
		return nil, errors.New("broker address is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	server := mqtt.New(&mqtt.Options{
		Logger: logger.With("component", "broker"),
	})
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("add auth hook: %w", err)
	}
	conns := &connectionHook{logger: logger}
	if err := server.AddHook(conns, nil); err != nil {
		return nil, fmt.Errorf("add connection hook: %w", err)
	}

	tcp := listeners.NewTCP(listeners.Config{ID: "tcp", Address: addr})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("add tcp listener %s: %w", addr, err)
	}

	return &Broker{server: server, tcp: tcp, conns: conns, logger: logger}, nil
}

// Addr reports the bound address once started.
func (b *Broker) Addr() string { return b.tcp.Address() }

// Connected is the number of clients currently attached.
func (b *Broker) Connected() int { return int(b.conns.active.Load()) }

// Start begins serving in the background.
func (b *Broker) Start() error {
	if err := b.server.Serve(); err != nil {
		return fmt.Errorf("broker serve: %w", err)
	}
	b.logger.Info("mqtt broker listening", "addr", b.Addr())
	return nil
}

func (b *Broker) Close() error {
	var err error
	b.closeOnce.Do(func() {
		connected := b.Connected()
		err = b.server.Close()
		b.logger.Info("mqtt broker stopped", "clientsDropped", connected)
	})
	return err
}

// connectionHook logs client sessions and keeps a live count of them.
type connectionHook struct {
	mqtt.HookBase
	logger *slog.Logger
	active atomic.Int64
}

func (h *connectionHook) ID() string { return "connections" }

func (h *connectionHook) Provides(b byte) bool {
	return bytes.Contains([]byte{
		mqtt.OnConnect,
		mqtt.OnDisconnect,
	}, []byte{b})
}

func (h *connectionHook) OnConnect(cl *mqtt.Client, _ packets.Packet) error {
	n := h.active.Add(1)
	h.logger.Debug("mqtt client connected", "clientID", cl.ID, "connected", n)
	return nil
}

func (h *connectionHook) OnDisconnect(cl *mqtt.Client, err error, _ bool) {
	n := h.active.Add(-1)
	h.logger.Debug("mqtt client disconnected", "clientID", cl.ID, "connected", n, "error", err)
}
