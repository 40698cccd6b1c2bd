package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/idris/kestrel/pkg/agent"
)

// Command represents a client-initiated message after authentication.
type Command struct {
	ID     string                 `json:"id"`
	Method string                 `json:"method"` // run.start, run.cancel, run.list
	Goal   string                 `json:"goal,omitempty"`
	RunID  string                 `json:"run_id,omitempty"`
	Config *agent.ConfigOverrides `json:"config,omitempty"`
}

// Response answers a command.
type Response struct {
	ID      string      `json:"id"`
	Success bool        `json:"success"`
	Result  interface{} `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// EventMessage represents a server-initiated event. CommandID ties run
// events back to the run.start command that produced them; the run id is
// only known once the run completes.
type EventMessage struct {
	Type      string      `json:"type"`
	Event     string      `json:"event"` // run.step, run.complete, run.failed, server.shutdown
	CommandID string      `json:"command_id,omitempty"`
	RunID     string      `json:"run_id,omitempty"`
	Data      interface{} `json:"data"`
	Seq       int64       `json:"seq,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// AuthChallenge represents an authentication challenge message
type AuthChallenge struct {
	Event     string `json:"event"`
	Challenge string `json:"challenge"`
}

// AuthResponse represents a client's authentication response
type AuthResponse struct {
	Method    string `json:"method"`
	Signature string `json:"signature"`
}

// AuthResult represents the result of authentication
type AuthResult struct {
	Event   string `json:"event"`
	Success bool   `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
}

// ClientState represents the state of a client connection
type ClientState int

const (
	StateConnecting ClientState = iota
	StateAuthenticating
	StateAuthenticated
	StateDisconnected
)

// Client represents a connected WebSocket client
type Client struct {
	ID            string
	Conn          *websocket.Conn
	Authenticated bool
	Challenge     string
	ConnectedAt   time.Time
	LastActivity  time.Time
	IPAddress     string
	AuthAttempts  int
	State         ClientState

	writeMu sync.Mutex
}

// WriteJSON serializes writes to the connection. Run events and command
// responses come from different goroutines and the connection allows only
// one concurrent writer.
func (c *Client) WriteJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteJSON(v)
}

// ClientInfo represents information about a connected client
type ClientInfo struct {
	ID            string    `json:"id"`
	Authenticated bool      `json:"authenticated"`
	ConnectedAt   time.Time `json:"connected_at"`
	LastActivity  time.Time `json:"last_activity"`
	IPAddress     string    `json:"ip_address"`
	Idle          bool      `json:"idle"`
}
