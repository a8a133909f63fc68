package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/enviamx/paqbot/internal/quote"
)

func (r *Registry) quoteTool() *Tool {
	return &Tool{
		Name:        "calculate_shipping_quote",
		Description: "Calcula una cotización de envío con desglose de costos (base, seguro, IVA) y tiempo estimado de entrega. Tipos de paquete: documento, paquete, caja.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"weight": map[string]any{
					"type":        "number",
					"description": "Peso en kilogramos",
				},
				"originCity": map[string]any{
					"type":        "string",
					"description": "Ciudad de origen",
				},
				"destinationCity": map[string]any{
					"type":        "string",
					"description": "Ciudad de destino",
				},
				"packageType": map[string]any{
					"type": "string",
					"enum": []string{"documento", "paquete", "caja"},
				},
				"urgent": map[string]any{
					"type":        "boolean",
					"description": "Entrega urgente (recargo del 50%)",
				},
			},
			"required": []string{"weight", "originCity", "destinationCity", "packageType"},
		},
		Handler: r.calculateQuote,
	}
}

func (r *Registry) calculateQuote(_ context.Context, args map[string]any) (string, error) {
	weight, ok := floatArg(args, "weight")
	if !ok || weight <= 0 {
		return "", fmt.Errorf("weight must be a positive number of kilograms")
	}
	origin := strings.TrimSpace(stringArg(args, "originCity"))
	dest := strings.TrimSpace(stringArg(args, "destinationCity"))
	if origin == "" || dest == "" {
		return "", fmt.Errorf("originCity and destinationCity are required")
	}

	q := quote.Calculate(quote.Input{
		Weight:          weight,
		OriginCity:      origin,
		DestinationCity: dest,
		PackageType:     stringArg(args, "packageType"),
		Urgent:          boolArg(args, "urgent"),
	})
	return toJSON(q)
}
