package services

import (
	"context"
	"delivery-coordination-service/internal/domain"
	"delivery-coordination-service/internal/platform/obs"
	"delivery-coordination-service/internal/ports"
	"errors"
	"fmt"
	"log"
)

// GeocodeReport summarizes one GeocodeMissingOrders run.
type GeocodeReport struct {
	Updated    []string
	Unresolved []string
}

// GeocodeMissingOrders fills in coordinates for every order that has an
// address but no location, so its stops pass route validation.
// Addresses the geocoder cannot match are reported, not treated as errors.
func GeocodeMissingOrders(
	ctx context.Context,
	orders ports.OrderLocationRepository,
	geocoder ports.Geocoder,
) (_ GeocodeReport, err error) {
	defer obs.Time(ctx, "orders.GeocodeMissing")(&err)

	var report GeocodeReport
	if orders == nil || geocoder == nil {
		return report, errors.New("geocode orders: repository and geocoder must be non-nil")
	}

	pending, err := orders.ListOrdersMissingCoordinates(ctx)
	if err != nil {
		return report, fmt.Errorf("geocode orders: %w", err)
	}
	if len(pending) == 0 {
		return report, nil
	}

	addresses := make([]string, 0, len(pending))
	for _, o := range pending {
		addresses = append(addresses, o.Address)
	}

	found, err := geocoder.GeocodeMany(ctx, addresses)
	if err != nil {
		return report, fmt.Errorf("geocode orders: %w", err)
	}

	for _, o := range pending {
		c, ok := found[domain.NormalizeAddress(o.Address)]
		if !ok {
			log.Printf("req_id=%s op=orders.GeocodeMissing order_id=%s err=no match for address", obs.RequestID(ctx), o.OrderID)
			report.Unresolved = append(report.Unresolved, o.OrderID)
			continue
		}
		if err := orders.SetOrderCoordinates(ctx, o.OrderID, c); err != nil {
			return report, fmt.Errorf("geocode orders: order %q: %w", o.OrderID, err)
		}
		report.Updated = append(report.Updated, o.OrderID)
	}

	return report, nil
}
