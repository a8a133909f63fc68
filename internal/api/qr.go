package api

import (
	"errors"
	"net/http"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/enviamx/paqbot/internal/store"
)

// qrSize is the PNG edge length in pixels. Big enough for thermal
// label printers at 203 dpi.
const qrSize = 256

// handleShipmentQR renders the tracking-page QR code printed on the
// shipping label.
func (s *Server) handleShipmentQR(w http.ResponseWriter, r *http.Request) {
	sh, err := s.data.GetShipment(r.Context(), r.PathValue("ref"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			errorJSON(w, http.StatusNotFound, "shipment not found", s.logger)
			return
		}
		errorJSON(w, http.StatusInternalServerError, "get shipment failed", s.logger)
		return
	}
	if sh.TrackingNumber == "" {
		errorJSON(w, http.StatusConflict, "shipment has no tracking number", s.logger)
		return
	}

	png, err := qrcode.Encode(s.qrBaseURL+sh.TrackingNumber, qrcode.Medium, qrSize)
	if err != nil {
		s.logger.Error("qr encode failed", "tracking", sh.TrackingNumber, "error", err)
		errorJSON(w, http.StatusInternalServerError, "qr encode failed", s.logger)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if _, err := w.Write(png); err != nil {
		s.logger.Debug("failed to write QR response", "error", err)
	}
}
