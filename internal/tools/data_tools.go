package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/enviamx/paqbot/internal/store"
)

// dataTools are the lookup tools backed directly by the data service.
func (r *Registry) dataTools() []*Tool {
	return []*Tool{
		{
			Name:        "search_clients",
			Description: "Busca clientes por nombre, correo, código de cliente o empresa. La búsqueda no distingue mayúsculas de minúsculas.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Texto a buscar, por ejemplo un nombre o CLI-0042",
					},
				},
				"required": []string{"query"},
			},
			Handler: r.searchClients,
		},
		{
			Name:        "search_shipments",
			Description: "Busca envíos por código de envío, número de guía o nombre del cliente.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Texto a buscar, por ejemplo ENV-2026-0193 o una guía",
					},
				},
				"required": []string{"query"},
			},
			Handler: r.searchShipments,
		},
		{
			Name:        "get_all_clients",
			Description: "Lista los clientes registrados (máximo 50).",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
			Handler: r.getAllClients,
		},
		{
			Name:        "get_all_shipments",
			Description: "Lista los envíos registrados con su estado actual (máximo 50).",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
			Handler: r.getAllShipments,
		},
		{
			Name:        "get_all_invoices",
			Description: "Lista las facturas con su estado: pagada, pendiente o vencida (máximo 50).",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
			Handler: r.getAllInvoices,
		},
		{
			Name:        "get_client_shipments",
			Description: "Obtiene los envíos de un cliente dado su código de cliente.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"clientId": map[string]any{
						"type":        "string",
						"description": "Código del cliente, por ejemplo CLI-0042",
					},
				},
				"required": []string{"clientId"},
			},
			Handler: r.getClientShipments,
		},
		{
			Name:        "get_client_invoices",
			Description: "Obtiene las facturas de un cliente dado su código de cliente.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"clientId": map[string]any{
						"type":        "string",
						"description": "Código del cliente, por ejemplo CLI-0042",
					},
				},
				"required": []string{"clientId"},
			},
			Handler: r.getClientInvoices,
		},
	}
}

func (r *Registry) searchClients(ctx context.Context, args map[string]any) (string, error) {
	query := strings.TrimSpace(stringArg(args, "query"))
	if query == "" {
		return "", fmt.Errorf("query is required")
	}
	clients, err := r.data.SearchClients(ctx, query)
	if err != nil {
		return "", fmt.Errorf("search clients: %w", err)
	}
	return toJSON(map[string]any{"count": len(clients), "clients": clients})
}

func (r *Registry) searchShipments(ctx context.Context, args map[string]any) (string, error) {
	query := strings.TrimSpace(stringArg(args, "query"))
	if query == "" {
		return "", fmt.Errorf("query is required")
	}
	shipments, err := r.data.SearchShipments(ctx, query)
	if err != nil {
		return "", fmt.Errorf("search shipments: %w", err)
	}
	return toJSON(map[string]any{"count": len(shipments), "shipments": shipments})
}

func (r *Registry) getAllClients(ctx context.Context, _ map[string]any) (string, error) {
	clients, err := r.data.ListClients(ctx, store.DefaultLimit)
	if err != nil {
		return "", fmt.Errorf("list clients: %w", err)
	}
	return toJSON(map[string]any{"count": len(clients), "clients": clients})
}

func (r *Registry) getAllShipments(ctx context.Context, _ map[string]any) (string, error) {
	shipments, err := r.data.ListShipments(ctx, store.DefaultLimit)
	if err != nil {
		return "", fmt.Errorf("list shipments: %w", err)
	}
	return toJSON(map[string]any{"count": len(shipments), "shipments": shipments})
}

func (r *Registry) getAllInvoices(ctx context.Context, _ map[string]any) (string, error) {
	invoices, err := r.data.ListInvoices(ctx, store.DefaultLimit)
	if err != nil {
		return "", fmt.Errorf("list invoices: %w", err)
	}
	return toJSON(map[string]any{"count": len(invoices), "invoices": invoices})
}

func (r *Registry) getClientShipments(ctx context.Context, args map[string]any) (string, error) {
	clientID := strings.TrimSpace(stringArg(args, "clientId"))
	if clientID == "" {
		return "", fmt.Errorf("clientId is required")
	}
	shipments, err := r.data.ClientShipments(ctx, clientID)
	if err != nil {
		return "", fmt.Errorf("client shipments: %w", err)
	}
	return toJSON(map[string]any{"clientId": clientID, "count": len(shipments), "shipments": shipments})
}

func (r *Registry) getClientInvoices(ctx context.Context, args map[string]any) (string, error) {
	clientID := strings.TrimSpace(stringArg(args, "clientId"))
	if clientID == "" {
		return "", fmt.Errorf("clientId is required")
	}
	invoices, err := r.data.ClientInvoices(ctx, clientID)
	if err != nil {
		return "", fmt.Errorf("client invoices: %w", err)
	}
	return toJSON(map[string]any{"clientId": clientID, "count": len(invoices), "invoices": invoices})
}
