// Package web serves the notepad's browser frontend and the WebSocket
// JSON-RPC endpoint it edits documents through.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/dshills/notepad/internal/editor"
	"github.com/dshills/notepad/internal/history"
	"github.com/dshills/notepad/internal/logging"
	"github.com/dshills/notepad/internal/store"
	"github.com/dshills/notepad/internal/workspace"
)

//go:embed static/*
var staticFS embed.FS

// maxMessageSize bounds one inbound WebSocket message.
const maxMessageSize = 8 << 20

// Option configures a Server.
type Option func(*Server)

// WithStore persists settings to s.
func WithStore(st store.Store) Option {
	return func(s *Server) {
		s.store = st
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSettings sets the initial display settings.
func WithSettings(settings editor.Settings) Option {
	return func(s *Server) {
		s.settings = settings
	}
}

// WithAllowedOrigins accepts WebSocket connections from pages served at
// these origins (e.g. "http://localhost:3000") in addition to the
// server's own.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		s.allowedOrigins = append(s.allowedOrigins, origins...)
	}
}

// Server provides the web frontend HTTP + WebSocket server.
type Server struct {
	reg      *workspace.Registry
	store    store.Store
	logger   *logging.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	allowedOrigins []string

	mu      sync.Mutex
	clients []*wsClient

	settingsMu sync.RWMutex
	settings   editor.Settings
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// NewServer creates a web server editing the documents in reg.
func NewServer(reg *workspace.Registry, opts ...Option) *Server {
	s := &Server{
		reg:      reg,
		logger:   logging.Nop(),
		settings: editor.DefaultSettings(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader.CheckOrigin = s.checkOrigin
	s.logger = s.logger.WithComponent("web")

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/ws", s.handleWebSocket)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	if sub, err := fs.Sub(staticFS, "static"); err == nil {
		s.mux.Handle("/", http.FileServer(http.FS(sub)))
	}

	reg.Observe(s.documentChanged)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// checkOrigin admits same-origin pages, listed origins and clients that
// send no Origin header. Browsers always send one on WebSocket upgrades.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, allowed := range s.allowedOrigins {
		if strings.EqualFold(strings.TrimSuffix(allowed, "/"), origin) {
			return true
		}
	}
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade from %q: %v", r.Header.Get("Origin"), err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := &wsClient{conn: conn}
	s.mu.Lock()
	s.clients = append(s.clients, client)
	s.mu.Unlock()
	s.logger.Debug("client connected from %s", r.RemoteAddr)

	defer func() {
		conn.Close()
		s.mu.Lock()
		for i, c := range s.clients {
			if c == client {
				s.clients = append(s.clients[:i], s.clients[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		s.logger.Debug("client disconnected from %s", r.RemoteAddr)
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req rpcRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			s.logger.Debug("dropping malformed request: %v", err)
			continue
		}
		resp := s.handleRPC(r.Context(), req)
		data, err := json.Marshal(resp)
		if err != nil {
			s.logger.Error("encoding %s response: %v", req.Method, err)
			continue
		}
		if err := client.write(data); err != nil {
			return
		}
	}
}

// Broadcast sends a notification to all connected WebSocket clients.
func (s *Server) Broadcast(method string, params any) {
	msg, err := json.Marshal(rpcNotification{Method: method, Params: params})
	if err != nil {
		s.logger.Error("encoding %s notification: %v", method, err)
		return
	}
	s.mu.Lock()
	clients := append([]*wsClient(nil), s.clients...)
	s.mu.Unlock()

	for _, c := range clients {
		_ = c.write(msg)
	}
}

// Close disconnects every WebSocket client.
func (s *Server) Close() error {
	s.mu.Lock()
	clients := s.clients
	s.clients = nil
	s.mu.Unlock()

	var errs []error
	for _, c := range clients {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// documentChanged pushes commits, undo and redo to every client. Live
// keystrokes are only echoed in the editing client's response.
func (s *Server) documentChanged(doc *workspace.Document, c history.Change) {
	if c.Kind == history.ChangeLive {
		return
	}
	s.Broadcast("doc.changed", newDocState(doc.ID, c))
}

// Settings returns the current display settings.
func (s *Server) Settings() editor.Settings {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()
	return s.settings
}

// SetSettings replaces the display settings and notifies clients.
func (s *Server) SetSettings(settings editor.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.settingsMu.Lock()
	s.settings = settings
	s.settingsMu.Unlock()

	s.Broadcast("settings.changed", newSettingsResult(settings))
	return nil
}

// LoadSettings applies settings saved by a previous session over the
// current ones. Unreadable or invalid saved settings are ignored.
func (s *Server) LoadSettings(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	raw, err := s.store.Get(ctx, store.KeySettings)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var saved editor.Settings
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		s.logger.Warn("ignoring unreadable saved settings: %v", err)
		return nil
	}
	merged := s.Settings().Merge(saved)
	if err := merged.Validate(); err != nil {
		s.logger.Warn("ignoring invalid saved settings: %v", err)
		return nil
	}

	s.settingsMu.Lock()
	s.settings = merged
	s.settingsMu.Unlock()
	return nil
}

func (s *Server) saveSettings(ctx context.Context, settings editor.Settings) {
	if s.store == nil {
		return
	}
	data, err := json.Marshal(settings)
	if err != nil {
		s.logger.Error("encoding settings: %v", err)
		return
	}
	if err := s.store.Put(ctx, store.KeySettings, string(data)); err != nil {
		s.logger.Warn("saving settings: %v", err)
	}
}
