package models

import "time"

// Shipment is the per-tracking-number record returned by the tracking service.
type Shipment struct {
	TrackingNumber string          `json:"tracking_number"`
	Events         []ShipmentEvent `json:"events,omitempty"` // oldest first
	Status         string          `json:"status"`           // description of the most recent event
	IsDelivered    bool            `json:"is_delivered"`
	DeliveredAt    *time.Time      `json:"delivered_at,omitempty"`
}

type ShipmentEvent struct {
	Time        time.Time `json:"time"`
	Description string    `json:"description"`
	City        string    `json:"city,omitempty"`
	State       string    `json:"state,omitempty"`
	ZIPCode     string    `json:"zip_code,omitempty"`
	Country     string    `json:"country,omitempty"`
}

// LastEventTime returns the newest event's timestamp, false when the shipment
// has no events.
func (s *Shipment) LastEventTime() (time.Time, bool) {
	if len(s.Events) == 0 {
		return time.Time{}, false
	}
	return s.Events[len(s.Events)-1].Time, true
}
