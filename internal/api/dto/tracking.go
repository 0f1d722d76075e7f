package dto

import "time"

type UpdateOrderStatusRequest struct {
	Status string `json:"status"`
}

// A nil DeliveryPhotoURL keeps the stored photo.
type UpdateStopRequest struct {
	Status           string  `json:"status"`
	DeliveryPhotoURL *string `json:"delivery_photo_url"`
}

type RecordLocationRequest struct {
	Latitude   *float64   `json:"latitude"`
	Longitude  *float64   `json:"longitude"`
	Accuracy   *float64   `json:"accuracy"`
	Heading    *float64   `json:"heading"`
	RecordedAt *time.Time `json:"recorded_at"`
}
