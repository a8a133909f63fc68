package tools

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/enviamx/paqbot/internal/store"
)

func (r *Registry) statsTools() []*Tool {
	return []*Tool{
		{
			Name:        "calculate_total_revenue",
			Description: "Calcula el ingreso total de las facturas, opcionalmente filtrado por estado (pagada, pendiente, vencida).",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"status": map[string]any{
						"type":        "string",
						"enum":        []string{"pagada", "pendiente", "vencida", "all"},
						"description": "Estado de factura a incluir; omitir o 'all' para todas",
					},
				},
			},
			Handler: r.totalRevenue,
		},
		{
			Name:        "get_shipment_statistics",
			Description: "Estadísticas de envíos agrupadas por estado, por mes de creación (este mes contra el anterior) o por los 5 clientes con más envíos.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"groupBy": map[string]any{
						"type":        "string",
						"enum":        []string{"status", "month", "top_clients"},
						"description": "Criterio de agrupación; por omisión 'status'",
					},
				},
			},
			Handler: r.shipmentStatistics,
		},
	}
}

func (r *Registry) totalRevenue(ctx context.Context, args map[string]any) (string, error) {
	status := strings.ToLower(strings.TrimSpace(stringArg(args, "status")))
	switch status {
	case "", "all", store.InvoicePaid, store.InvoicePending, store.InvoiceOverdue:
	default:
		return "", fmt.Errorf("unknown invoice status %q, expected pagada, pendiente, vencida or all", status)
	}
	if status == "" {
		status = "all"
	}

	invoices, err := r.data.ListInvoices(ctx, store.DefaultLimit)
	if err != nil {
		return "", fmt.Errorf("list invoices: %w", err)
	}

	var total float64
	count := 0
	for _, inv := range invoices {
		if status != "all" && inv.Status != status {
			continue
		}
		total += inv.Amount
		count++
	}

	average := 0.0
	if count > 0 {
		average = total / float64(count)
	}
	return toJSON(map[string]any{
		"status":  status,
		"count":   count,
		"total":   round2(total),
		"average": round2(average),
	})
}

func (r *Registry) shipmentStatistics(ctx context.Context, args map[string]any) (string, error) {
	groupBy := strings.ToLower(strings.TrimSpace(stringArg(args, "groupBy")))
	if groupBy == "" {
		groupBy = "status"
	}

	shipments, err := r.data.ListShipments(ctx, store.DefaultLimit)
	if err != nil {
		return "", fmt.Errorf("list shipments: %w", err)
	}

	switch groupBy {
	case "status":
		byStatus := map[string]int{}
		for _, sh := range shipments {
			byStatus[sh.Status]++
		}
		return toJSON(map[string]any{
			"groupBy":  "status",
			"total":    len(shipments),
			"byStatus": byStatus,
		})

	case "month":
		now := r.now()
		thisMonth, lastMonth := 0, 0
		curY, curM, _ := now.Date()
		prev := now.AddDate(0, -1, -now.Day()+1)
		prevY, prevM, _ := prev.Date()
		for _, sh := range shipments {
			y, m, _ := sh.CreatedAt.Date()
			switch {
			case y == curY && m == curM:
				thisMonth++
			case y == prevY && m == prevM:
				lastMonth++
			}
		}
		return toJSON(map[string]any{
			"groupBy":   "month",
			"total":     len(shipments),
			"thisMonth": thisMonth,
			"lastMonth": lastMonth,
		})

	case "top_clients":
		counts := map[string]int{}
		for _, sh := range shipments {
			name := sh.ClientName
			if name == "" {
				name = sh.ClientID
			}
			counts[name]++
		}
		type clientCount struct {
			Client    string `json:"client"`
			Shipments int    `json:"shipments"`
		}
		ranked := make([]clientCount, 0, len(counts))
		for name, n := range counts {
			ranked = append(ranked, clientCount{Client: name, Shipments: n})
		}
		// Ties break alphabetically so repeated calls rank identically.
		sort.Slice(ranked, func(i, j int) bool {
			if ranked[i].Shipments != ranked[j].Shipments {
				return ranked[i].Shipments > ranked[j].Shipments
			}
			return ranked[i].Client < ranked[j].Client
		})
		if len(ranked) > 5 {
			ranked = ranked[:5]
		}
		return toJSON(map[string]any{
			"groupBy":    "top_clients",
			"total":      len(shipments),
			"topClients": ranked,
		})

	default:
		return "", fmt.Errorf("unknown groupBy %q, expected status, month or top_clients", groupBy)
	}
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
