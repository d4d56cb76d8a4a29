package uspsfake

import (
	"context"
	"hash/fnv"
	"time"

	"shipwatch/internal/models"
)

// Tracker is a deterministic stand-in for the USPS API, for demo runs and
// tests. The shipment history is picked by hashing the tracking number, so
// repeated fetches return identical results.
type Tracker struct{}

func New() *Tracker { return &Tracker{} }

func (f *Tracker) FetchBatch(ctx context.Context, trackingNumbers []string) (map[string]*models.Shipment, error) {
	out := make(map[string]*models.Shipment, len(trackingNumbers))
	for _, tn := range trackingNumbers {
		out[tn] = f.shipment(tn)
	}
	return out, nil
}

func (f *Tracker) shipment(trackingNumber string) *models.Shipment {
	h := fnv.New32a()
	_, _ = h.Write([]byte(trackingNumber))
	v := h.Sum32()

	base := time.Now().UTC().Add(-72 * time.Hour).Truncate(time.Hour)
	events := []models.ShipmentEvent{
		{Time: base, Description: "Shipping Label Created, USPS Awaiting Item"},
	}

	sh := &models.Shipment{TrackingNumber: trackingNumber}

	switch v % 4 {
	case 0:
		events = append(events,
			models.ShipmentEvent{Time: base.Add(12 * time.Hour), Description: "USPS in possession of item"},
			models.ShipmentEvent{Time: base.Add(40 * time.Hour), Description: "Out for Delivery"},
			models.ShipmentEvent{Time: base.Add(46 * time.Hour), Description: "Delivered, In/At Mailbox"},
		)
		sh.IsDelivered = true
		at := base
		sh.DeliveredAt = &at
	case 1:
		events = append(events,
			models.ShipmentEvent{Time: base.Add(12 * time.Hour), Description: "USPS in possession of item"},
			models.ShipmentEvent{Time: base.Add(40 * time.Hour), Description: "Out for Delivery"},
		)
	case 2:
		events = append(events,
			models.ShipmentEvent{Time: base.Add(12 * time.Hour), Description: "USPS in possession of item"},
		)
	default:
		// Label created only, not yet picked up.
	}

	sh.Events = events
	sh.Status = events[len(events)-1].Description
	return sh
}
