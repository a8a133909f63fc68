package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("record not found")

// SQLite's built-in lower() and LIKE only fold ASCII, which breaks
// case-insensitive search for accented Spanish text ("MARTÍNEZ" never
// matches "Martínez"). lower_unicode folds the full range via Go.
func init() {
	sqlite.MustRegisterDeterministicScalarFunction("lower_unicode", 1,
		func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			switch v := args[0].(type) {
			case string:
				return strings.ToLower(v), nil
			case nil:
				return nil, nil
			}
			return args[0], nil
		})
}

// SQLiteStore is a SQLite-backed DataService.
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time interface check.
var _ DataService = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and if necessary creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// migrate creates the database schema.
func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		company TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_clients_name ON clients(name);

	CREATE TABLE IF NOT EXISTS shipments (
		id TEXT PRIMARY KEY,
		shipment_id TEXT NOT NULL UNIQUE,
		tracking_number TEXT NOT NULL UNIQUE,
		client_id TEXT NOT NULL,
		client_name TEXT NOT NULL DEFAULT '',
		origin_city TEXT NOT NULL,
		destination_city TEXT NOT NULL,
		package_type TEXT NOT NULL DEFAULT 'paquete',
		weight REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pendiente',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_shipments_client ON shipments(client_id);
	CREATE INDEX IF NOT EXISTS idx_shipments_status ON shipments(status);

	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL UNIQUE,
		client_id TEXT NOT NULL,
		client_name TEXT NOT NULL DEFAULT '',
		shipment_id TEXT NOT NULL DEFAULT '',
		amount REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pendiente',
		issued_at TIMESTAMP NOT NULL,
		due_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_invoices_client ON invoices(client_id);
	CREATE INDEX IF NOT EXISTS idx_invoices_status ON invoices(status);

	CREATE TABLE IF NOT EXISTS scan_events (
		id TEXT PRIMARY KEY,
		shipment_id TEXT NOT NULL,
		status TEXT NOT NULL,
		location TEXT NOT NULL DEFAULT '',
		recorded_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_scan_events_shipment ON scan_events(shipment_id, recorded_at);

	-- Single-row settings record (id is always 1).
	CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		company_name TEXT NOT NULL DEFAULT '',
		mistral_api_key TEXT NOT NULL DEFAULT '',
		deepseek_api_key TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// newID returns a time-ordered UUID string.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > DefaultLimit {
		return DefaultLimit
	}
	return limit
}

// --- Clients ---

const clientCols = "id, client_id, name, email, phone, company, created_at"

func scanClient(row interface{ Scan(...any) error }) (Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.ClientID, &c.Name, &c.Email, &c.Phone, &c.Company, &c.CreatedAt)
	return c, err
}

func (s *SQLiteStore) queryClients(ctx context.Context, query string, args ...any) ([]Client, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query clients: %w", err)
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SearchClients matches query case-insensitively as a substring of
// name, email, clientId, or company.
func (s *SQLiteStore) SearchClients(ctx context.Context, query string) ([]Client, error) {
	pattern := "%" + strings.ToLower(query) + "%"
	return s.queryClients(ctx, `
		SELECT `+clientCols+` FROM clients
		WHERE lower_unicode(name) LIKE ?
		   OR lower_unicode(email) LIKE ?
		   OR lower_unicode(client_id) LIKE ?
		   OR lower_unicode(company) LIKE ?
		ORDER BY created_at DESC LIMIT ?`,
		pattern, pattern, pattern, pattern, DefaultLimit)
}

// ListClients returns up to limit clients, newest first.
func (s *SQLiteStore) ListClients(ctx context.Context, limit int) ([]Client, error) {
	return s.queryClients(ctx,
		`SELECT `+clientCols+` FROM clients ORDER BY created_at DESC LIMIT ?`,
		clampLimit(limit))
}

// CreateClient inserts a client, assigning an ID when absent.
func (s *SQLiteStore) CreateClient(ctx context.Context, c *Client) error {
	if c.ID == "" {
		c.ID = newID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, client_id, name, email, phone, company, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ClientID, c.Name, c.Email, c.Phone, c.Company, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert client: %w", err)
	}
	return nil
}

// --- Shipments ---

const shipmentCols = "id, shipment_id, tracking_number, client_id, client_name, origin_city, destination_city, package_type, weight, status, created_at, updated_at"

func scanShipment(row interface{ Scan(...any) error }) (Shipment, error) {
	var sh Shipment
	err := row.Scan(&sh.ID, &sh.ShipmentID, &sh.TrackingNumber, &sh.ClientID, &sh.ClientName,
		&sh.OriginCity, &sh.DestinationCity, &sh.PackageType, &sh.Weight, &sh.Status,
		&sh.CreatedAt, &sh.UpdatedAt)
	return sh, err
}

func (s *SQLiteStore) queryShipments(ctx context.Context, query string, args ...any) ([]Shipment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query shipments: %w", err)
	}
	defer rows.Close()

	var out []Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shipment: %w", err)
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

// SearchShipments matches query case-insensitively as a substring of
// shipmentId, trackingNumber, or clientName.
func (s *SQLiteStore) SearchShipments(ctx context.Context, query string) ([]Shipment, error) {
	pattern := "%" + strings.ToLower(query) + "%"
	return s.queryShipments(ctx, `
		SELECT `+shipmentCols+` FROM shipments
		WHERE lower_unicode(shipment_id) LIKE ?
		   OR lower_unicode(tracking_number) LIKE ?
		   OR lower_unicode(client_name) LIKE ?
		ORDER BY created_at DESC LIMIT ?`,
		pattern, pattern, pattern, DefaultLimit)
}

// ListShipments returns up to limit shipments, newest first.
func (s *SQLiteStore) ListShipments(ctx context.Context, limit int) ([]Shipment, error) {
	return s.queryShipments(ctx,
		`SELECT `+shipmentCols+` FROM shipments ORDER BY created_at DESC LIMIT ?`,
		clampLimit(limit))
}

// ClientShipments returns all shipments for the given client code.
func (s *SQLiteStore) ClientShipments(ctx context.Context, clientID string) ([]Shipment, error) {
	return s.queryShipments(ctx,
		`SELECT `+shipmentCols+` FROM shipments WHERE client_id = ? ORDER BY created_at DESC LIMIT ?`,
		clientID, DefaultLimit)
}

// CreateShipment inserts a shipment, assigning an ID when absent.
func (s *SQLiteStore) CreateShipment(ctx context.Context, sh *Shipment) error {
	if sh.ID == "" {
		sh.ID = newID()
	}
	now := time.Now().UTC()
	if sh.CreatedAt.IsZero() {
		sh.CreatedAt = now
	}
	if sh.UpdatedAt.IsZero() {
		sh.UpdatedAt = sh.CreatedAt
	}
	if sh.Status == "" {
		sh.Status = StatusPending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shipments (`+shipmentCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sh.ID, sh.ShipmentID, sh.TrackingNumber, sh.ClientID, sh.ClientName,
		sh.OriginCity, sh.DestinationCity, sh.PackageType, sh.Weight, sh.Status,
		sh.CreatedAt, sh.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert shipment: %w", err)
	}
	return nil
}

// GetShipment looks a shipment up by internal ID, shipment code, or
// tracking number.
func (s *SQLiteStore) GetShipment(ctx context.Context, ref string) (*Shipment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+shipmentCols+` FROM shipments
		WHERE id = ? OR shipment_id = ? OR tracking_number = ?`,
		ref, ref, ref)
	sh, err := scanShipment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("shipment %q: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get shipment: %w", err)
	}
	return &sh, nil
}

// RecordScan appends a scan event and moves the shipment to the
// event's status. The two writes share a transaction so a status can
// never exist without its event.
func (s *SQLiteStore) RecordScan(ctx context.Context, ev *ScanEvent) error {
	if ev.ID == "" {
		ev.ID = newID()
	}
	if ev.RecordedAt.IsZero() {
		ev.RecordedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE shipments SET status = ?, updated_at = ? WHERE shipment_id = ? OR tracking_number = ?`,
		ev.Status, ev.RecordedAt, ev.ShipmentID, ev.ShipmentID)
	if err != nil {
		return fmt.Errorf("update shipment status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("shipment %q: %w", ev.ShipmentID, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO scan_events (id, shipment_id, status, location, recorded_at)
		VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.ShipmentID, ev.Status, ev.Location, ev.RecordedAt); err != nil {
		return fmt.Errorf("insert scan event: %w", err)
	}

	return tx.Commit()
}

// ShipmentScans returns scan events for a shipment, oldest first.
func (s *SQLiteStore) ShipmentScans(ctx context.Context, shipmentID string) ([]ScanEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shipment_id, status, location, recorded_at
		FROM scan_events WHERE shipment_id = ? ORDER BY recorded_at`,
		shipmentID)
	if err != nil {
		return nil, fmt.Errorf("query scan events: %w", err)
	}
	defer rows.Close()

	var out []ScanEvent
	for rows.Next() {
		var ev ScanEvent
		if err := rows.Scan(&ev.ID, &ev.ShipmentID, &ev.Status, &ev.Location, &ev.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// --- Invoices ---

const invoiceCols = "id, invoice_id, client_id, client_name, shipment_id, amount, status, issued_at, due_at"

func (s *SQLiteStore) queryInvoices(ctx context.Context, query string, args ...any) ([]Invoice, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(&inv.ID, &inv.InvoiceID, &inv.ClientID, &inv.ClientName,
			&inv.ShipmentID, &inv.Amount, &inv.Status, &inv.IssuedAt, &inv.DueAt); err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// ListInvoices returns up to limit invoices, newest first.
func (s *SQLiteStore) ListInvoices(ctx context.Context, limit int) ([]Invoice, error) {
	return s.queryInvoices(ctx,
		`SELECT `+invoiceCols+` FROM invoices ORDER BY issued_at DESC LIMIT ?`,
		clampLimit(limit))
}

// ClientInvoices returns all invoices for the given client code.
func (s *SQLiteStore) ClientInvoices(ctx context.Context, clientID string) ([]Invoice, error) {
	return s.queryInvoices(ctx,
		`SELECT `+invoiceCols+` FROM invoices WHERE client_id = ? ORDER BY issued_at DESC LIMIT ?`,
		clientID, DefaultLimit)
}

// CreateInvoice inserts an invoice, assigning an ID when absent.
func (s *SQLiteStore) CreateInvoice(ctx context.Context, inv *Invoice) error {
	if inv.ID == "" {
		inv.ID = newID()
	}
	if inv.IssuedAt.IsZero() {
		inv.IssuedAt = time.Now().UTC()
	}
	if inv.DueAt.IsZero() {
		inv.DueAt = inv.IssuedAt.AddDate(0, 1, 0)
	}
	if inv.Status == "" {
		inv.Status = InvoicePending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invoices (`+invoiceCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.InvoiceID, inv.ClientID, inv.ClientName, inv.ShipmentID,
		inv.Amount, inv.Status, inv.IssuedAt, inv.DueAt)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

// --- Settings ---

// GetSettings returns the settings record, or zero-valued settings if
// none has been written yet.
func (s *SQLiteStore) GetSettings(ctx context.Context) (*Settings, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT company_name, mistral_api_key, deepseek_api_key, updated_at FROM settings WHERE id = 1`)

	var st Settings
	err := row.Scan(&st.CompanyName, &st.MistralAPIKey, &st.DeepSeekAPIKey, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &Settings{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return &st, nil
}

// UpdateSettings upserts the single settings record.
func (s *SQLiteStore) UpdateSettings(ctx context.Context, st *Settings) error {
	st.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (id, company_name, mistral_api_key, deepseek_api_key, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			company_name = excluded.company_name,
			mistral_api_key = excluded.mistral_api_key,
			deepseek_api_key = excluded.deepseek_api_key,
			updated_at = excluded.updated_at`,
		st.CompanyName, st.MistralAPIKey, st.DeepSeekAPIKey, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	return nil
}
