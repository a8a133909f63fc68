// Package api implements the Paqbot HTTP API: the assistant chat
// endpoint plus the management endpoints the back office uses.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/enviamx/paqbot/internal/config"
	"github.com/enviamx/paqbot/internal/llm"
	"github.com/enviamx/paqbot/internal/store"
	"github.com/enviamx/paqbot/internal/tools"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// errorJSON writes a JSON error body with the given status.
func errorJSON(w http.ResponseWriter, status int, msg string, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	writeJSON(w, map[string]string{"error": msg}, logger)
}

// clientFactory builds a provider client from resolved settings.
// Overridable in tests to avoid real network calls.
type clientFactory func(name string, pc config.ProviderConfig) llm.Client

// Server is the HTTP API server.
type Server struct {
	address       string
	port          int
	providers     config.ProvidersConfig
	maxIterations int
	qrBaseURL     string
	data          store.DataService
	registry      *tools.Registry
	logger        *slog.Logger
	server        *http.Server
	newClient     clientFactory
}

// NewServer creates the API server.
func NewServer(cfg *config.Config, data store.DataService, registry *tools.Registry, logger *slog.Logger) *Server {
	s := &Server{
		address:       cfg.Listen.Address,
		port:          cfg.Listen.Port,
		providers:     cfg.Providers,
		maxIterations: cfg.Assistant.MaxIterations,
		qrBaseURL:     cfg.Tracking.QRBaseURL,
		data:          data,
		registry:      registry,
		logger:        logger,
	}
	s.newClient = func(name string, pc config.ProviderConfig) llm.Client {
		switch name {
		case "mistral":
			return llm.NewMistralClient(pc.APIKey, pc.Model, pc.BaseURL, logger)
		case "deepseek":
			return llm.NewDeepSeekClient(pc.APIKey, pc.Model, pc.BaseURL, logger)
		}
		return nil
	}
	return s
}

// routes builds the request mux.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Assistant
	mux.HandleFunc("POST /v1/assistant/chat", s.handleChat)

	// Clients
	mux.HandleFunc("GET /v1/clients", s.handleListClients)
	mux.HandleFunc("POST /v1/clients", s.handleCreateClient)
	mux.HandleFunc("GET /v1/clients/{id}/shipments", s.handleClientShipments)
	mux.HandleFunc("GET /v1/clients/{id}/invoices", s.handleClientInvoices)

	// Shipments
	mux.HandleFunc("GET /v1/shipments", s.handleListShipments)
	mux.HandleFunc("POST /v1/shipments", s.handleCreateShipment)
	mux.HandleFunc("GET /v1/shipments/{ref}", s.handleGetShipment)
	mux.HandleFunc("GET /v1/shipments/{ref}/scans", s.handleShipmentScans)
	mux.HandleFunc("GET /v1/shipments/{ref}/qr", s.handleShipmentQR)

	// Invoices
	mux.HandleFunc("GET /v1/invoices", s.handleListInvoices)
	mux.HandleFunc("POST /v1/invoices", s.handleCreateInvoice)

	// Settings
	mux.HandleFunc("GET /v1/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /v1/settings", s.handleUpdateSettings)

	// Health
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests. It blocks until the listener
// fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 180 * time.Second, // chat requests ride out slow providers
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":   "Paqbot",
		"status": "ok",
	}, s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

// limitParam reads an optional ?limit= query value.
func limitParam(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
