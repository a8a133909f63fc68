package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/enviamx/paqbot/internal/store"
)

// --- Clients ---

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.data.ListClients(r.Context(), limitParam(r))
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "list clients failed", s.logger)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"clients": clients}, s.logger)
}

func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var c store.Client
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid JSON body", s.logger)
		return
	}
	if strings.TrimSpace(c.Name) == "" {
		errorJSON(w, http.StatusBadRequest, "name is required", s.logger)
		return
	}
	if err := s.data.CreateClient(r.Context(), &c); err != nil {
		s.logger.Error("create client failed", "error", err)
		errorJSON(w, http.StatusInternalServerError, "create client failed", s.logger)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, c, s.logger)
}

func (s *Server) handleClientShipments(w http.ResponseWriter, r *http.Request) {
	shipments, err := s.data.ClientShipments(r.Context(), r.PathValue("id"))
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "list shipments failed", s.logger)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"shipments": shipments}, s.logger)
}

func (s *Server) handleClientInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := s.data.ClientInvoices(r.Context(), r.PathValue("id"))
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "list invoices failed", s.logger)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"invoices": invoices}, s.logger)
}

// --- Shipments ---

func (s *Server) handleListShipments(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))

	var (
		shipments []store.Shipment
		err       error
	)
	if q != "" {
		shipments, err = s.data.SearchShipments(r.Context(), q)
	} else {
		shipments, err = s.data.ListShipments(r.Context(), limitParam(r))
	}
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "list shipments failed", s.logger)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"shipments": shipments}, s.logger)
}

func (s *Server) handleCreateShipment(w http.ResponseWriter, r *http.Request) {
	var sh store.Shipment
	if err := json.NewDecoder(r.Body).Decode(&sh); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid JSON body", s.logger)
		return
	}
	if sh.ClientID == "" || sh.OriginCity == "" || sh.DestinationCity == "" {
		errorJSON(w, http.StatusBadRequest, "clientId, originCity and destinationCity are required", s.logger)
		return
	}
	if sh.Weight <= 0 {
		errorJSON(w, http.StatusBadRequest, "weight must be positive", s.logger)
		return
	}
	if err := s.data.CreateShipment(r.Context(), &sh); err != nil {
		s.logger.Error("create shipment failed", "error", err)
		errorJSON(w, http.StatusInternalServerError, "create shipment failed", s.logger)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, sh, s.logger)
}

func (s *Server) handleGetShipment(w http.ResponseWriter, r *http.Request) {
	sh, err := s.data.GetShipment(r.Context(), r.PathValue("ref"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			errorJSON(w, http.StatusNotFound, "shipment not found", s.logger)
			return
		}
		errorJSON(w, http.StatusInternalServerError, "get shipment failed", s.logger)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, sh, s.logger)
}

func (s *Server) handleShipmentScans(w http.ResponseWriter, r *http.Request) {
	sh, err := s.data.GetShipment(r.Context(), r.PathValue("ref"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			errorJSON(w, http.StatusNotFound, "shipment not found", s.logger)
			return
		}
		errorJSON(w, http.StatusInternalServerError, "get shipment failed", s.logger)
		return
	}

	scans, err := s.data.ShipmentScans(r.Context(), sh.ShipmentID)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "list scans failed", s.logger)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"shipmentId": sh.ShipmentID, "scans": scans}, s.logger)
}

// --- Invoices ---

func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := s.data.ListInvoices(r.Context(), limitParam(r))
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "list invoices failed", s.logger)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"invoices": invoices}, s.logger)
}

func (s *Server) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var inv store.Invoice
	if err := json.NewDecoder(r.Body).Decode(&inv); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid JSON body", s.logger)
		return
	}
	if inv.ClientID == "" || inv.Amount <= 0 {
		errorJSON(w, http.StatusBadRequest, "clientId and a positive amount are required", s.logger)
		return
	}
	switch inv.Status {
	case "", store.InvoicePaid, store.InvoicePending, store.InvoiceOverdue:
	default:
		errorJSON(w, http.StatusBadRequest, "status must be pagada, pendiente or vencida", s.logger)
		return
	}
	if err := s.data.CreateInvoice(r.Context(), &inv); err != nil {
		s.logger.Error("create invoice failed", "error", err)
		errorJSON(w, http.StatusInternalServerError, "create invoice failed", s.logger)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, inv, s.logger)
}

// --- Settings ---

// handleGetSettings returns the settings record with API keys masked.
// Keys go in via PUT but never come back out in full.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.data.GetSettings(r.Context())
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "get settings failed", s.logger)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"companyName":    settings.CompanyName,
		"mistralKeySet":  settings.MistralAPIKey != "",
		"deepseekKeySet": settings.DeepSeekAPIKey != "",
		"updatedAt":      settings.UpdatedAt,
	}, s.logger)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var in store.Settings
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid JSON body", s.logger)
		return
	}
	if err := s.data.UpdateSettings(r.Context(), &in); err != nil {
		s.logger.Error("update settings failed", "error", err)
		errorJSON(w, http.StatusInternalServerError, "update settings failed", s.logger)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "updated"}, s.logger)
}
