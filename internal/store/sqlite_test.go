package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedFixtures(t *testing.T, s *SQLiteStore) {
	t.Helper()
	ctx := context.Background()

	clients := []Client{
		{ClientID: "CLI-0001", Name: "Rosa Martínez", Email: "rosa@acmepaq.mx", Company: "Acme Paquetería"},
		{ClientID: "CLI-0002", Name: "Juan López", Email: "juan@norteno.mx", Company: "Transportes Norteño"},
	}
	for i := range clients {
		if err := s.CreateClient(ctx, &clients[i]); err != nil {
			t.Fatalf("seed client: %v", err)
		}
	}

	shipments := []Shipment{
		{ShipmentID: "ENV-2026-0001", TrackingNumber: "TRK111", ClientID: "CLI-0001", ClientName: "Rosa Martínez",
			OriginCity: "Monterrey", DestinationCity: "Guadalajara", PackageType: "caja", Weight: 5},
		{ShipmentID: "ENV-2026-0002", TrackingNumber: "TRK222", ClientID: "CLI-0002", ClientName: "Juan López",
			OriginCity: "Houston", DestinationCity: "Puebla", PackageType: "documento", Weight: 0.5, Status: StatusInTransit},
	}
	for i := range shipments {
		if err := s.CreateShipment(ctx, &shipments[i]); err != nil {
			t.Fatalf("seed shipment: %v", err)
		}
	}

	invoices := []Invoice{
		{InvoiceID: "FAC-0001", ClientID: "CLI-0001", ClientName: "Rosa Martínez", ShipmentID: "ENV-2026-0001", Amount: 510.40, Status: InvoicePaid},
		{InvoiceID: "FAC-0002", ClientID: "CLI-0001", ClientName: "Rosa Martínez", Amount: 120.00, Status: InvoicePending},
		{InvoiceID: "FAC-0003", ClientID: "CLI-0002", ClientName: "Juan López", Amount: 89.00, Status: InvoiceOverdue},
	}
	for i := range invoices {
		if err := s.CreateInvoice(ctx, &invoices[i]); err != nil {
			t.Fatalf("seed invoice: %v", err)
		}
	}
}

func TestSearchClients_CaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	seedFixtures(t, s)
	ctx := context.Background()

	tests := []struct {
		query string
		want  int
	}{
		{"rosa", 1},
		{"ROSA", 1},
		{"acme", 1},     // company match
		{"cli-000", 2},  // clientId prefix matches both
		{"norteno", 1},  // email match
		{"zzz", 0},
	}

	for _, tt := range tests {
		got, err := s.SearchClients(ctx, tt.query)
		if err != nil {
			t.Fatalf("SearchClients(%q): %v", tt.query, err)
		}
		if len(got) != tt.want {
			t.Errorf("SearchClients(%q) = %d results, want %d", tt.query, len(got), tt.want)
		}
	}
}

// SQLite's LIKE only folds ASCII case, so accented names need the
// registered lower_unicode function to stay case-insensitive.
func TestSearch_AccentedCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	seedFixtures(t, s)
	ctx := context.Background()

	clients, err := s.SearchClients(ctx, "MARTÍNEZ")
	if err != nil {
		t.Fatalf("SearchClients: %v", err)
	}
	if len(clients) != 1 || clients[0].Name != "Rosa Martínez" {
		t.Errorf("SearchClients(MARTÍNEZ) = %+v, want Rosa Martínez", clients)
	}

	clients, err = s.SearchClients(ctx, "paquetería")
	if err != nil {
		t.Fatalf("SearchClients: %v", err)
	}
	if len(clients) != 1 || clients[0].Company != "Acme Paquetería" {
		t.Errorf("SearchClients(paquetería) = %+v, want Acme Paquetería", clients)
	}

	ships, err := s.SearchShipments(ctx, "LÓPEZ")
	if err != nil {
		t.Fatalf("SearchShipments: %v", err)
	}
	if len(ships) != 1 || ships[0].ShipmentID != "ENV-2026-0002" {
		t.Errorf("SearchShipments(LÓPEZ) = %+v, want ENV-2026-0002", ships)
	}
}

func TestSearchShipments(t *testing.T) {
	s := newTestStore(t)
	seedFixtures(t, s)
	ctx := context.Background()

	got, err := s.SearchShipments(ctx, "trk1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].TrackingNumber != "TRK111" {
		t.Errorf("tracking search = %+v", got)
	}

	got, err = s.SearchShipments(ctx, "juan")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ShipmentID != "ENV-2026-0002" {
		t.Errorf("client name search = %+v", got)
	}
}

func TestClientFilters(t *testing.T) {
	s := newTestStore(t)
	seedFixtures(t, s)
	ctx := context.Background()

	ships, err := s.ClientShipments(ctx, "CLI-0001")
	if err != nil {
		t.Fatal(err)
	}
	if len(ships) != 1 {
		t.Errorf("shipments for CLI-0001 = %d, want 1", len(ships))
	}

	invs, err := s.ClientInvoices(ctx, "CLI-0001")
	if err != nil {
		t.Fatal(err)
	}
	if len(invs) != 2 {
		t.Errorf("invoices for CLI-0001 = %d, want 2", len(invs))
	}
}

func TestListLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < DefaultLimit+10; i++ {
		c := Client{ClientID: newID(), Name: "cliente"}
		if err := s.CreateClient(ctx, &c); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListClients(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != DefaultLimit {
		t.Errorf("unbounded list = %d, want capped at %d", len(got), DefaultLimit)
	}

	got, err = s.ListClients(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 {
		t.Errorf("limited list = %d, want 5", len(got))
	}
}

func TestRecordScan(t *testing.T) {
	s := newTestStore(t)
	seedFixtures(t, s)
	ctx := context.Background()

	ev := &ScanEvent{
		ShipmentID: "ENV-2026-0001",
		Status:     StatusInTransit,
		Location:   "CEDIS Monterrey",
		RecordedAt: time.Now().UTC(),
	}
	if err := s.RecordScan(ctx, ev); err != nil {
		t.Fatalf("RecordScan: %v", err)
	}

	sh, err := s.GetShipment(ctx, "ENV-2026-0001")
	if err != nil {
		t.Fatal(err)
	}
	if sh.Status != StatusInTransit {
		t.Errorf("status = %q, want %q", sh.Status, StatusInTransit)
	}

	scans, err := s.ShipmentScans(ctx, "ENV-2026-0001")
	if err != nil {
		t.Fatal(err)
	}
	if len(scans) != 1 || scans[0].Location != "CEDIS Monterrey" {
		t.Errorf("scans = %+v", scans)
	}
}

func TestRecordScan_UnknownShipment(t *testing.T) {
	s := newTestStore(t)
	seedFixtures(t, s)

	err := s.RecordScan(context.Background(), &ScanEvent{ShipmentID: "ENV-NOPE", Status: StatusDelivered})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGetShipment_ByAnyRef(t *testing.T) {
	s := newTestStore(t)
	seedFixtures(t, s)
	ctx := context.Background()

	for _, ref := range []string{"ENV-2026-0002", "TRK222"} {
		sh, err := s.GetShipment(ctx, ref)
		if err != nil {
			t.Fatalf("GetShipment(%q): %v", ref, err)
		}
		if sh.ShipmentID != "ENV-2026-0002" {
			t.Errorf("GetShipment(%q) = %q", ref, sh.ShipmentID)
		}
	}

	if _, err := s.GetShipment(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Unset settings read as zero values, not an error.
	st, err := s.GetSettings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.MistralAPIKey != "" {
		t.Errorf("unexpected key %q", st.MistralAPIKey)
	}

	if err := s.UpdateSettings(ctx, &Settings{CompanyName: "Envía MX", MistralAPIKey: "mk-1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateSettings(ctx, &Settings{CompanyName: "Envía MX", MistralAPIKey: "mk-2", DeepSeekAPIKey: "dk-1"}); err != nil {
		t.Fatal(err)
	}

	st, err = s.GetSettings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.MistralAPIKey != "mk-2" || st.DeepSeekAPIKey != "dk-1" {
		t.Errorf("settings = %+v", st)
	}
}
