package messages

import "time"

// OrderEvent is the envelope for order lifecycle notices. Kind mirrors the
// topic the event is published to so consumers reading several topics into
// one handler can still tell them apart.
type OrderEvent struct {
	Kind        string    `json:"kind"`
	OrderID     uint64    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	OrderStatus string    `json:"order_status"`
	OccurredAt  time.Time `json:"occurred_at"`
}

const (
	KindDispatched     = "dispatched"
	KindOutForDelivery = "out_for_delivery"
	KindDelivered      = "delivered"
	KindCompleted      = "completed"
)

// ShipmentStatusObserved is emitted for every tracking number whose carrier
// status changed during a cycle, regardless of whether the order itself moved.
type ShipmentStatusObserved struct {
	OrderID        uint64          `json:"order_id"`
	OrderNumber    string          `json:"order_number"`
	TrackingNumber string          `json:"tracking_number"`
	Status         string          `json:"status"`
	IsDelivered    bool            `json:"is_delivered"`
	DeliveredAt    *time.Time      `json:"delivered_at,omitempty"`
	Events         []ShipmentEvent `json:"events,omitempty"`
	ObservedAt     time.Time       `json:"observed_at"`
}

type ShipmentEvent struct {
	Time        time.Time `json:"time"`
	Description string    `json:"description"`
	City        string    `json:"city,omitempty"`
	State       string    `json:"state,omitempty"`
	ZIPCode     string    `json:"zip_code,omitempty"`
	Country     string    `json:"country,omitempty"`
}
