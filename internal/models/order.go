package models

import "time"

// Order lifecycle statuses. The store keeps them as plain strings so
// statuses owned by other systems pass through untouched.
const (
	OrderStatusPackingComplete = "packing-complete"
	OrderStatusInTransit       = "in-transit"
	OrderStatusReturned        = "returned"
	OrderStatusCompleted       = "completed"
)

type Order struct {
	ID              uint64
	Number          string
	Status          string
	ShippingCountry string

	// LastStatusByTrackingNumber maps tracking number -> last observed raw
	// carrier status. Nil means no prior state.
	LastStatusByTrackingNumber map[string]string

	// LastShipmentDetail keeps the full last-fetched shipment per tracking
	// number for audit/display.
	LastShipmentDetail map[string]*Shipment

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TrackingItem is one tracking entry attached to an order.
type TrackingItem struct {
	Provider       string
	TrackingNumber string
}
