package services

import "delivery-coordination-service/internal/domain"

func ptr[T any](v T) *T { return &v }

func stopAt(id string, lat, lng float64) domain.Stop {
	return domain.Stop{StopID: id, OrderID: "order-" + id, Lat: ptr(lat), Lng: ptr(lng)}
}
