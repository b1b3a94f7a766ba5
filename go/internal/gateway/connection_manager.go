// Package gateway serves TableTalk sessions over WebSocket. Each connection
// owns one room store and pushes its state to the client.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/tabletalk/go/internal/room"
	"github.com/rs/zerolog/log"
)

// ConnectionManager manages WebSocket connections and their sessions
type ConnectionManager struct {
	connections map[*Connection]bool
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	backend  Backend
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID       string
	Identity room.Identity
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager
	Session  *Session

	// commands are handled in order, off the read loop
	commands chan Command
	ctx      context.Context
	cancel   context.CancelFunc

	sendMu sync.Mutex
	closed bool

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	CommandTimeout  time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		CommandTimeout:  15 * time.Second,
		MaxMessageSize:  8192,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, backend Backend) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:  config,
		backend: backend,
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and starts a
// session for identity.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, identity room.Identity) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	connection := &Connection{
		ID:          uuid.New().String(),
		Identity:    identity,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		commands:    make(chan Command, 32),
		ctx:         ctx,
		cancel:      cancel,
		ConnectedAt: time.Now(),
	}
	connection.Session = NewSession(cm.backend, identity, connection.push)

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()
	go connection.commandLoop()

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", identity.UserID).
		Msg("WebSocket connection established")

	return nil
}

// registerConnection adds a connection to the manager
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connections[conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
}

// unregisterConnection removes a connection and tears its session down
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	_, exists := cm.connections[conn]
	delete(cm.connections, conn)
	cm.mu.Unlock()

	if !exists {
		return
	}

	conn.cancel()
	conn.Session.Close()

	conn.sendMu.Lock()
	conn.closed = true
	close(conn.Send)
	conn.sendMu.Unlock()

	log.Info().
		Str("connection_id", conn.ID).
		Str("user_id", conn.Identity.UserID).
		Msg("connection unregistered")
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()

	roomCounts := make(map[string]int)
	for _, conn := range conns {
		if id := conn.Session.store.CurrentRoomID(); id != uuid.Nil {
			roomCounts[id.String()]++
		}
	}

	return map[string]interface{}{
		"total_connections": len(conns),
		"active_rooms":      len(roomCounts),
		"room_connections":  roomCounts,
	}
}

// push queues a frame for the client. A connection whose buffer is full is
// dropped.
func (c *Connection) push(frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to marshal frame")
		return
	}

	c.sendMu.Lock()
	if c.closed {
		c.sendMu.Unlock()
		return
	}
	select {
	case c.Send <- data:
		c.sendMu.Unlock()
		return
	default:
	}
	c.sendMu.Unlock()

	log.Warn().
		Str("connection_id", c.ID).
		Str("user_id", c.Identity.UserID).
		Msg("connection send buffer full, closing connection")
	go func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()
}

// commandLoop runs the client's commands one at a time.
func (c *Connection) commandLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case cmd := <-c.commands:
			c.runCommand(cmd)
		}
	}
}

func (c *Connection) runCommand(cmd Command) {
	ctx, cancel := context.WithTimeout(c.ctx, c.Manager.config.CommandTimeout)
	defer cancel()

	data, err := c.Session.Handle(ctx, cmd)
	if err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Str("command", cmd.Type).
			Msg("command failed")
	}
	c.push(ack(cmd, data, err))
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading commands from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage parses a command and queues it for the command loop
func (c *Connection) handleClientMessage(message []byte) {
	var cmd Command
	if err := json.Unmarshal(message, &cmd); err != nil {
		c.push(ack(Command{}, nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)))
		return
	}

	select {
	case c.commands <- cmd:
	case <-c.ctx.Done():
	}
}
