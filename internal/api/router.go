// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wingedpig/instancehub/internal/api/handlers"
	"github.com/wingedpig/instancehub/internal/api/middleware"
	"github.com/wingedpig/instancehub/internal/api/version"
	"github.com/wingedpig/instancehub/internal/events"
)

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Host string
	Port int
}

// Dependencies holds all dependencies for API handlers.
type Dependencies struct {
	Hub      handlers.Hub
	EventBus events.EventBus
	Shutdown func() // requested by POST /api/v1/shutdown; must not block
	Version  string // application version string
}

// NewRouter creates a new API router.
func NewRouter(deps Dependencies) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.Logging)
	r.Use(middleware.Recovery)
	r.Use(middleware.CORS)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(version.Middleware)

	api.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteJSON(w, http.StatusOK, map[string]string{
			"version":     deps.Version,
			"api_version": version.FromContext(r.Context()),
		})
	}).Methods("GET")

	// Instance handlers
	instanceHandler := handlers.NewInstanceHandler(deps.Hub)
	api.HandleFunc("/instances", instanceHandler.List).Methods("GET")
	api.HandleFunc("/instances", instanceHandler.Create).Methods("POST")
	api.HandleFunc("/instances/{id}", instanceHandler.Get).Methods("GET")
	api.HandleFunc("/instances/{id}", instanceHandler.Rename).Methods("PATCH")
	api.HandleFunc("/instances/{id}", instanceHandler.Delete).Methods("DELETE")
	api.HandleFunc("/instances/{id}/start", instanceHandler.Start).Methods("POST")
	api.HandleFunc("/instances/{id}/stop", instanceHandler.Stop).Methods("POST")
	api.HandleFunc("/instances/{id}/commands", instanceHandler.GetCommands).Methods("GET")
	api.HandleFunc("/instances/{id}/commands", instanceHandler.PutCommands).Methods("PUT")
	api.HandleFunc("/instances/{id}/files/{name}", instanceHandler.GetFile).Methods("GET")
	api.HandleFunc("/instances/{id}/files/{name}", instanceHandler.PutFile).Methods("PUT")

	// Console handlers
	consoleHandler := handlers.NewConsoleHandler(deps.Hub)
	api.HandleFunc("/instances/{id}/consoles/{index}", consoleHandler.Get).Methods("GET")
	api.HandleFunc("/instances/{id}/consoles/{index}", consoleHandler.Close).Methods("DELETE")
	api.HandleFunc("/instances/{id}/consoles/{index}/input", consoleHandler.Input).Methods("POST")
	api.HandleFunc("/instances/{id}/consoles/{index}/restart", consoleHandler.Restart).Methods("POST")
	api.HandleFunc("/instances/{id}/consoles/{index}/ws", consoleHandler.WebSocket).Methods("GET")
	api.HandleFunc("/instances/{id}/alarm/clear", consoleHandler.ClearAlarm).Methods("POST")

	// Event handlers
	eventHandler := handlers.NewEventHandler(deps.EventBus)
	api.HandleFunc("/events", eventHandler.History).Methods("GET")
	api.HandleFunc("/events/ws", eventHandler.WebSocket).Methods("GET")

	// Shutdown handlers
	shutdownHandler := handlers.NewShutdownHandler(deps.Hub, deps.Shutdown)
	api.HandleFunc("/shutdown", shutdownHandler.Summary).Methods("GET")
	api.HandleFunc("/shutdown", shutdownHandler.Shutdown).Methods("POST")

	return r
}

// Server represents the API server.
type Server struct {
	router *mux.Router
	cfg    ServerConfig
	server *http.Server
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig, deps Dependencies) *Server {
	router := NewRouter(deps)
	return &Server{
		router: router,
		cfg:    cfg,
		server: &http.Server{
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Router returns the underlying router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

// Listen binds the configured address. It is separate from Serve so that
// callers learn about a busy port before anything else starts.
func (s *Server) Listen() (net.Listener, error) {
	return net.Listen("tcp", s.Addr())
}

// Serve serves the API on ln until Shutdown is called. It returns nil
// after a clean shutdown.
func (s *Server) Serve(ln net.Listener) error {
	log.Printf("API server listening on http://%s", ln.Addr())
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down API server...")

	shutdownCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	return s.server.Shutdown(shutdownCtx)
}
