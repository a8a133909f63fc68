package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/enviamx/paqbot/internal/config"
	"github.com/enviamx/paqbot/internal/llm"
	"github.com/enviamx/paqbot/internal/store"
	"github.com/enviamx/paqbot/internal/tools"
)

// memData is an in-memory DataService for handler tests.
type memData struct {
	clients   []store.Client
	shipments []store.Shipment
	invoices  []store.Invoice
	scans     []store.ScanEvent
	settings  store.Settings
	err       error
}

func (m *memData) SearchClients(_ context.Context, q string) ([]store.Client, error) {
	return m.clients, m.err
}

func (m *memData) SearchShipments(_ context.Context, q string) ([]store.Shipment, error) {
	var out []store.Shipment
	for _, sh := range m.shipments {
		if strings.Contains(strings.ToLower(sh.TrackingNumber), strings.ToLower(q)) {
			out = append(out, sh)
		}
	}
	return out, m.err
}

func (m *memData) ListClients(context.Context, int) ([]store.Client, error) {
	return m.clients, m.err
}

func (m *memData) ListShipments(context.Context, int) ([]store.Shipment, error) {
	return m.shipments, m.err
}

func (m *memData) ListInvoices(context.Context, int) ([]store.Invoice, error) {
	return m.invoices, m.err
}

func (m *memData) ClientShipments(_ context.Context, id string) ([]store.Shipment, error) {
	var out []store.Shipment
	for _, sh := range m.shipments {
		if sh.ClientID == id {
			out = append(out, sh)
		}
	}
	return out, m.err
}

func (m *memData) ClientInvoices(_ context.Context, id string) ([]store.Invoice, error) {
	var out []store.Invoice
	for _, inv := range m.invoices {
		if inv.ClientID == id {
			out = append(out, inv)
		}
	}
	return out, m.err
}

func (m *memData) CreateClient(_ context.Context, c *store.Client) error {
	if m.err != nil {
		return m.err
	}
	m.clients = append(m.clients, *c)
	return nil
}

func (m *memData) CreateShipment(_ context.Context, sh *store.Shipment) error {
	if m.err != nil {
		return m.err
	}
	m.shipments = append(m.shipments, *sh)
	return nil
}

func (m *memData) CreateInvoice(_ context.Context, inv *store.Invoice) error {
	if m.err != nil {
		return m.err
	}
	m.invoices = append(m.invoices, *inv)
	return nil
}

func (m *memData) GetShipment(_ context.Context, ref string) (*store.Shipment, error) {
	for i := range m.shipments {
		sh := &m.shipments[i]
		if sh.ID == ref || sh.ShipmentID == ref || sh.TrackingNumber == ref {
			return sh, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memData) RecordScan(_ context.Context, ev *store.ScanEvent) error {
	m.scans = append(m.scans, *ev)
	return nil
}

func (m *memData) ShipmentScans(context.Context, string) ([]store.ScanEvent, error) {
	return m.scans, m.err
}

func (m *memData) GetSettings(context.Context) (*store.Settings, error) {
	return &m.settings, m.err
}

func (m *memData) UpdateSettings(_ context.Context, s *store.Settings) error {
	m.settings = *s
	return nil
}

// fixedClient answers with a canned response or error.
type fixedClient struct {
	provider string
	model    string
	content  string
	err      error
}

func (c *fixedClient) Chat(context.Context, []llm.Message, []map[string]any) (*llm.ChatResponse, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &llm.ChatResponse{
		Provider: c.provider,
		Model:    c.model,
		Message:  llm.Message{Role: "assistant", Content: c.content},
	}, nil
}

func (c *fixedClient) Provider() string           { return c.provider }
func (c *fixedClient) Model() string              { return c.model }
func (c *fixedClient) Ping(context.Context) error { return nil }

func newTestServer(t *testing.T, data *memData, clients map[string]llm.Client) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Providers.Mistral.APIKey = "mk-test"
	cfg.Providers.DeepSeek.APIKey = "dk-test"

	reg, err := tools.NewRegistry(data)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	s := NewServer(cfg, data, reg, slog.New(slog.DiscardHandler))
	if clients != nil {
		s.newClient = func(name string, _ config.ProviderConfig) llm.Client {
			return clients[name]
		}
	}
	return s
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestChat_Success(t *testing.T) {
	s := newTestServer(t, &memData{}, map[string]llm.Client{
		"mistral": &fixedClient{provider: "mistral", model: "mistral-small-latest", content: "Hola."},
	})
	h := s.routes()

	rec := doJSON(t, h, http.MethodPost, "/v1/assistant/chat", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hola"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Response != "Hola." || resp.Provider != "mistral" || resp.Model != "mistral-small-latest" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.ToolCalls == nil {
		t.Error("toolCalls should encode as [], not null")
	}
}

func TestChat_BadRequests(t *testing.T) {
	s := newTestServer(t, &memData{}, nil)
	h := s.routes()

	req := httptest.NewRequest(http.MethodPost, "/v1/assistant/chat", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/v1/assistant/chat", map[string]any{"messages": []any{}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty messages: status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/v1/assistant/chat", map[string]any{
		"messages": []map[string]string{{"content": "sin rol"}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty role: status = %d", rec.Code)
	}
}

func TestChat_NoProviderConfigured(t *testing.T) {
	data := &memData{}
	cfg := config.Default() // no API keys anywhere
	reg, err := tools.NewRegistry(data)
	if err != nil {
		t.Fatal(err)
	}
	s := NewServer(cfg, data, reg, slog.New(slog.DiscardHandler))
	h := s.routes()

	rec := doJSON(t, h, http.MethodPost, "/v1/assistant/chat", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hola"}},
	})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestChat_FallbackToSecondProvider(t *testing.T) {
	s := newTestServer(t, &memData{}, map[string]llm.Client{
		"mistral":  &fixedClient{provider: "mistral", err: errors.New("upstream 500")},
		"deepseek": &fixedClient{provider: "deepseek", model: "deepseek-chat", content: "Listo."},
	})
	h := s.routes()

	rec := doJSON(t, h, http.MethodPost, "/v1/assistant/chat", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hola"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Provider != "deepseek" || resp.Response != "Listo." {
		t.Errorf("resp = %+v", resp)
	}
}

func TestChat_AllProvidersFail(t *testing.T) {
	s := newTestServer(t, &memData{}, map[string]llm.Client{
		"mistral":  &fixedClient{provider: "mistral", err: errors.New("boom")},
		"deepseek": &fixedClient{provider: "deepseek", err: errors.New("boom")},
	})
	h := s.routes()

	rec := doJSON(t, h, http.MethodPost, "/v1/assistant/chat", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hola"}},
	})
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestResolveCandidates_SettingsOverrideConfig(t *testing.T) {
	data := &memData{}
	cfg := config.Default()
	cfg.Providers.Mistral.APIKey = "from-config"
	reg, err := tools.NewRegistry(data)
	if err != nil {
		t.Fatal(err)
	}
	s := NewServer(cfg, data, reg, slog.New(slog.DiscardHandler))

	// Settings add a DeepSeek key the config lacks and rotate Mistral's.
	got := s.resolveCandidates(&store.Settings{MistralAPIKey: "rotated", DeepSeekAPIKey: "dk-live"})
	if len(got) != 2 {
		t.Fatalf("candidates = %+v", got)
	}
	if got[0].name != "mistral" || got[0].pc.APIKey != "rotated" {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].name != "deepseek" || got[1].pc.APIKey != "dk-live" {
		t.Errorf("second = %+v", got[1])
	}
}

func TestCreateAndListClients(t *testing.T) {
	s := newTestServer(t, &memData{}, nil)
	h := s.routes()

	rec := doJSON(t, h, http.MethodPost, "/v1/clients", map[string]any{
		"clientId": "CLI-0001",
		"name":     "Rosa Martínez",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPost, "/v1/clients", map[string]any{"email": "sin@nombre.mx"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("nameless create: status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/clients", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	var out struct {
		Clients []store.Client `json:"clients"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Clients) != 1 || out.Clients[0].Name != "Rosa Martínez" {
		t.Errorf("clients = %+v", out.Clients)
	}
}

func TestCreateShipment_Validation(t *testing.T) {
	s := newTestServer(t, &memData{}, nil)
	h := s.routes()

	rec := doJSON(t, h, http.MethodPost, "/v1/shipments", map[string]any{
		"clientId":        "CLI-0001",
		"originCity":      "Monterrey",
		"destinationCity": "Puebla",
		"weight":          -2,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative weight: status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/v1/shipments", map[string]any{
		"clientId":        "CLI-0001",
		"originCity":      "Monterrey",
		"destinationCity": "Puebla",
		"packageType":     "caja",
		"weight":          3,
	})
	if rec.Code != http.StatusCreated {
		t.Errorf("valid shipment: status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestGetShipment_NotFound(t *testing.T) {
	s := newTestServer(t, &memData{}, nil)
	h := s.routes()

	rec := doJSON(t, h, http.MethodGet, "/v1/shipments/ENV-404", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestShipmentQR(t *testing.T) {
	data := &memData{shipments: []store.Shipment{
		{ShipmentID: "ENV-2026-0001", TrackingNumber: "TRK111"},
		{ShipmentID: "ENV-2026-0002"}, // no tracking number yet
	}}
	s := newTestServer(t, data, nil)
	h := s.routes()

	rec := doJSON(t, h, http.MethodGet, "/v1/shipments/TRK111/qr", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("body is not a PNG")
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/shipments/ENV-2026-0002/qr", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("no tracking number: status = %d", rec.Code)
	}
}

func TestSettingsRedaction(t *testing.T) {
	data := &memData{settings: store.Settings{CompanyName: "Envía MX", MistralAPIKey: "mk-secret"}}
	s := newTestServer(t, data, nil)
	h := s.routes()

	rec := doJSON(t, h, http.MethodGet, "/v1/settings", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "mk-secret") {
		t.Error("API key leaked in settings response")
	}
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out["mistralKeySet"] != true || out["deepseekKeySet"] != false {
		t.Errorf("settings = %+v", out)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &memData{}, nil)
	h := s.routes()

	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}
