// Package store provides the document data service backing the
// assistant: clients, shipments, invoices, and system settings.
package store

import (
	"context"
	"time"
)

// DefaultLimit bounds unfiltered listings. Mirrors the upstream page
// size the tools promise the model.
const DefaultLimit = 50

// Shipment status values used across the system. Scan events carry
// these verbatim.
const (
	StatusPending   = "pendiente"
	StatusInTransit = "en_transito"
	StatusDelivered = "entregado"
	StatusReturned  = "devuelto"
)

// Invoice status values.
const (
	InvoicePaid    = "pagada"
	InvoicePending = "pendiente"
	InvoiceOverdue = "vencida"
)

// Client is a customer record.
type Client struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"clientId"` // Human-facing code, e.g. CLI-0042
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Company   string    `json:"company"`
	CreatedAt time.Time `json:"createdAt"`
}

// Shipment is a parcel shipment record.
type Shipment struct {
	ID              string    `json:"id"`
	ShipmentID      string    `json:"shipmentId"` // Human-facing code, e.g. ENV-2026-0193
	TrackingNumber  string    `json:"trackingNumber"`
	ClientID        string    `json:"clientId"`
	ClientName      string    `json:"clientName"`
	OriginCity      string    `json:"originCity"`
	DestinationCity string    `json:"destinationCity"`
	PackageType     string    `json:"packageType"`
	Weight          float64   `json:"weight"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Invoice is a billing record tied to a client and optionally a shipment.
type Invoice struct {
	ID         string    `json:"id"`
	InvoiceID  string    `json:"invoiceId"` // Human-facing code, e.g. FAC-2026-0045
	ClientID   string    `json:"clientId"`
	ClientName string    `json:"clientName"`
	ShipmentID string    `json:"shipmentId,omitempty"`
	Amount     float64   `json:"amount"`
	Status     string    `json:"status"` // pagada, pendiente, vencida
	IssuedAt   time.Time `json:"issuedAt"`
	DueAt      time.Time `json:"dueAt"`
}

// ScanEvent records one carrier scan of a shipment.
type ScanEvent struct {
	ID         string    `json:"id"`
	ShipmentID string    `json:"shipmentId"`
	Status     string    `json:"status"`
	Location   string    `json:"location"`
	RecordedAt time.Time `json:"recordedAt"`
}

// Settings is the single system-settings record. Provider keys stored
// here override the config file, letting operators rotate credentials
// at runtime.
type Settings struct {
	CompanyName    string    `json:"companyName"`
	MistralAPIKey  string    `json:"mistralApiKey"`
	DeepSeekAPIKey string    `json:"deepseekApiKey"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// DataService is the persistence contract the tool handlers and the
// HTTP API consume. All listing methods are bounded by DefaultLimit
// unless a smaller limit is given.
type DataService interface {
	// SearchClients matches query case-insensitively as a substring of
	// name, email, clientId, or company.
	SearchClients(ctx context.Context, query string) ([]Client, error)

	// SearchShipments matches query case-insensitively as a substring
	// of shipmentId, trackingNumber, or clientName.
	SearchShipments(ctx context.Context, query string) ([]Shipment, error)

	ListClients(ctx context.Context, limit int) ([]Client, error)
	ListShipments(ctx context.Context, limit int) ([]Shipment, error)
	ListInvoices(ctx context.Context, limit int) ([]Invoice, error)

	// ClientShipments and ClientInvoices filter by the client's
	// human-facing code.
	ClientShipments(ctx context.Context, clientID string) ([]Shipment, error)
	ClientInvoices(ctx context.Context, clientID string) ([]Invoice, error)

	CreateClient(ctx context.Context, c *Client) error
	CreateShipment(ctx context.Context, s *Shipment) error
	CreateInvoice(ctx context.Context, inv *Invoice) error

	// GetShipment looks a shipment up by internal ID, shipment code, or
	// tracking number.
	GetShipment(ctx context.Context, ref string) (*Shipment, error)

	// RecordScan appends a scan event and moves the shipment to the
	// event's status.
	RecordScan(ctx context.Context, ev *ScanEvent) error

	ShipmentScans(ctx context.Context, shipmentID string) ([]ScanEvent, error)

	GetSettings(ctx context.Context) (*Settings, error)
	UpdateSettings(ctx context.Context, s *Settings) error
}
