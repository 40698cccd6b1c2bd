// Package gateway exposes the agent over WebSocket: authenticated clients
// submit goals, cancel runs, and receive step and completion events.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/idris/kestrel/internal/observability"
	"github.com/idris/kestrel/pkg/agent"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// AgentService is the agent surface the gateway exposes to clients.
type AgentService interface {
	Run(ctx context.Context, goal string, overrides *agent.ConfigOverrides, cbs *agent.Callbacks) (*agent.Run, error)
	Cancel(runID string) bool
	ListActive() []string
}

// RunSaver persists terminal runs. The run store satisfies it; a nil saver
// disables persistence.
type RunSaver interface {
	Save(ctx context.Context, run *agent.Run) error
}

// authTimeout disconnects clients that never complete the handshake.
const authTimeout = time.Minute

// Server is the WebSocket gateway server.
type Server struct {
	host         string
	port         int
	sharedSecret string
	server       *http.Server
	upgrader     websocket.Upgrader
	clients      *ClientRegistry
	authHandler  *AuthHandler
	agents       AgentService
	store        RunSaver
	logger       zerolog.Logger

	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightRuns   sync.WaitGroup
	seq            uint64
	done           chan struct{}
}

// Config holds server configuration
type Config struct {
	Host         string
	Port         int
	SharedSecret string
	Agents       AgentService
	Store        RunSaver
	Logger       zerolog.Logger
}

// NewServer creates a new gateway server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.SharedSecret == "" {
		return nil, fmt.Errorf("shared secret is required")
	}
	if cfg.Agents == nil {
		return nil, fmt.Errorf("agent service is required")
	}

	return &Server{
		host:         cfg.Host,
		port:         cfg.Port,
		sharedSecret: cfg.SharedSecret,
		clients:      NewClientRegistry(),
		authHandler:  NewAuthHandler(cfg.SharedSecret),
		agents:       cfg.Agents,
		store:        cfg.Store,
		logger:       cfg.Logger,
		done:         make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local tool, auth happens in-band
			},
		},
	}, nil
}

// Start starts the gateway server
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: mux,
	}

	s.logger.Info().Str("host", s.host).Int("port", s.port).Msg("Starting gateway server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	go s.sweepStaleClients()

	return nil
}

// sweepStaleClients disconnects clients that connected but never finished
// the handshake within authTimeout.
func (s *Server) sweepStaleClients() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			for _, client := range s.clients.StaleUnauthenticated(authTimeout) {
				s.logger.Warn().Str("clientId", client.ID).Msg("Dropping unauthenticated client")
				client.Conn.Close()
				s.clients.Remove(client.ID)
			}
		}
	}
}

// Stop gracefully stops the gateway server
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	close(s.done)
	s.logger.Info().Msg("Shutting down gateway server")

	s.broadcast(EventMessage{
		Event: "server.shutdown",
		Data:  map[string]interface{}{"message": "Server is shutting down"},
	})

	// Wait for in-flight runs with timeout
	done := make(chan struct{})
	go func() {
		s.inFlightRuns.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight runs completed")
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	for _, client := range s.clients.All() {
		client.Conn.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("Gateway server stopped")
	return nil
}

// GetConnectedClients returns information about all connected clients
func (s *Server) GetConnectedClients() []ClientInfo {
	return s.clients.Infos()
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.shutdownMu.RUnlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, _ := gonanoid.New()
	client := &Client{
		ID:           clientID,
		Conn:         conn,
		ConnectedAt:  time.Now(),
		LastActivity: time.Now(),
		IPAddress:    r.RemoteAddr,
		State:        StateConnecting,
	}

	s.clients.Add(client)

	s.logger.Info().
		Str("clientId", clientID).
		Str("ip", r.RemoteAddr).
		Msg("Client connected")

	if err := s.sendAuthChallenge(client); err != nil {
		s.logger.Error().Err(err).Str("clientId", clientID).Msg("Failed to send auth challenge")
		conn.Close()
		s.clients.Remove(clientID)
		return
	}

	go s.handleClient(client)
}

// sendAuthChallenge sends an authentication challenge to a client
func (s *Server) sendAuthChallenge(client *Client) error {
	challenge, err := s.authHandler.GenerateChallenge()
	if err != nil {
		return err
	}

	client.Challenge = challenge
	client.State = StateAuthenticating

	return client.WriteJSON(AuthChallenge{
		Event:     "auth.challenge",
		Challenge: challenge,
	})
}

// handleClient handles messages from a client
func (s *Server) handleClient(client *Client) {
	defer func() {
		client.Conn.Close()
		s.clients.Remove(client.ID)
		s.logger.Info().Str("clientId", client.ID).Msg("Client disconnected")
	}()

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Error().Err(err).Str("clientId", client.ID).Msg("WebSocket error")
			}
			break
		}

		s.clients.Touch(client.ID)
		s.handleMessage(client, message)
	}
}

// handleMessage handles a single message from a client
func (s *Server) handleMessage(client *Client, message []byte) {
	var authResp AuthResponse
	if err := json.Unmarshal(message, &authResp); err == nil && authResp.Method == "auth.response" {
		s.handleAuthMessage(client, authResp)
		return
	}

	if !client.Authenticated {
		_ = client.WriteJSON(Response{Success: false, Error: "authentication required"})
		return
	}

	var cmd Command
	if err := json.Unmarshal(message, &cmd); err != nil {
		_ = client.WriteJSON(Response{Success: false, Error: "invalid message"})
		return
	}

	switch cmd.Method {
	case "run.start":
		s.handleRunStart(client, cmd)
	case "run.cancel":
		cancelled := s.agents.Cancel(cmd.RunID)
		_ = client.WriteJSON(Response{ID: cmd.ID, Success: cancelled, Result: map[string]bool{"cancelled": cancelled}})
	case "run.list":
		_ = client.WriteJSON(Response{ID: cmd.ID, Success: true, Result: s.agents.ListActive()})
	default:
		_ = client.WriteJSON(Response{ID: cmd.ID, Success: false, Error: fmt.Sprintf("unknown method: %s", cmd.Method)})
	}
}

// handleRunStart launches an agent run and streams its events back to the
// submitting client.
func (s *Server) handleRunStart(client *Client, cmd Command) {
	if cmd.Goal == "" {
		_ = client.WriteJSON(Response{ID: cmd.ID, Success: false, Error: "goal is required"})
		return
	}

	s.inFlightRuns.Add(1)
	go func() {
		defer s.inFlightRuns.Done()

		cbs := &agent.Callbacks{
			OnStep: func(step agent.Step) {
				s.sendEvent(client, EventMessage{
					Event:     "run.step",
					CommandID: cmd.ID,
					Data:      step,
				})
			},
		}

		run, err := s.agents.Run(context.Background(), cmd.Goal, cmd.Config, cbs)
		if err != nil {
			_ = client.WriteJSON(Response{ID: cmd.ID, Success: false, Error: err.Error()})
			return
		}

		if s.store != nil {
			if saveErr := s.store.Save(context.Background(), run); saveErr != nil {
				s.logger.Warn().Err(saveErr).Str("run_id", run.ID).Msg("Failed to persist run")
			}
		}

		event := "run.complete"
		if run.Status == agent.StatusFailed {
			event = "run.failed"
		}
		s.sendEvent(client, EventMessage{
			Event:     event,
			CommandID: cmd.ID,
			RunID:     run.ID,
			Data:      run,
		})
		_ = client.WriteJSON(Response{ID: cmd.ID, Success: run.Status != agent.StatusFailed, Result: run})
	}()
}

// handleAuthMessage handles authentication messages
func (s *Server) handleAuthMessage(client *Client, authResp AuthResponse) {
	result := s.authHandler.HandleAuthResponse(client, authResp.Signature)

	if err := client.WriteJSON(result); err != nil {
		s.logger.Error().Err(err).Str("clientId", client.ID).Msg("Failed to send auth result")
		return
	}

	if !result.Success {
		s.logger.Warn().
			Str("clientId", client.ID).
			Str("reason", result.Message).
			Msg("Authentication failed")

		if client.AuthAttempts >= maxAuthAttempts {
			client.Conn.Close()
		}
	} else {
		s.logger.Info().Str("clientId", client.ID).Msg("Client authenticated")
	}
}

func (s *Server) sendEvent(client *Client, msg EventMessage) {
	msg.Type = "event"
	msg.Seq = int64(atomic.AddUint64(&s.seq, 1))
	msg.Timestamp = time.Now().UnixMilli()

	if err := client.WriteJSON(msg); err != nil {
		s.logger.Warn().
			Err(err).
			Str("clientId", client.ID).
			Str("event", msg.Event).
			Msg("Failed to send event")
	}
}

// broadcast sends an event to all authenticated clients.
func (s *Server) broadcast(msg EventMessage) {
	msg.Type = "event"
	msg.Seq = int64(atomic.AddUint64(&s.seq, 1))
	msg.Timestamp = time.Now().UnixMilli()

	for _, client := range s.clients.Authenticated() {
		if err := client.WriteJSON(msg); err != nil {
			s.logger.Warn().
				Err(err).
				Str("clientId", client.ID).
				Str("event", msg.Event).
				Msg("Failed to broadcast to client")
		}
	}
}
