package kafkanotify

import (
	"context"
	"encoding/json"
	"strconv"
	"sync/atomic"
	"time"

	"shipwatch/internal/broker/messages"
	"shipwatch/internal/models"

	"github.com/pkg/errors"
)

type publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Topics struct {
	Dispatched     string
	OutForDelivery string
	Delivered      string
	Completed      string
	StatusObserved string
}

// Notifier publishes order lifecycle notices to Kafka, one topic per notice
// kind. Keys are the order id so per-order ordering survives partitioning.
type Notifier struct {
	p      publisher
	topics Topics

	completedMuted atomic.Bool

	now func() time.Time
}

func New(p publisher, topics Topics) *Notifier {
	return &Notifier{p: p, topics: topics, now: time.Now}
}

// MuteCompleted suppresses the stock completed notice. The reconciliation
// cycle mutes it for the duration of a pass so delivered notices are not
// doubled by the completion scan.
func (n *Notifier) MuteCompleted(muted bool) {
	n.completedMuted.Store(muted)
}

func (n *Notifier) Dispatched(ctx context.Context, orderID uint64, o *models.Order) error {
	return n.publishOrderEvent(ctx, n.topics.Dispatched, messages.KindDispatched, orderID, o)
}

func (n *Notifier) OutForDelivery(ctx context.Context, orderID uint64, o *models.Order) error {
	return n.publishOrderEvent(ctx, n.topics.OutForDelivery, messages.KindOutForDelivery, orderID, o)
}

func (n *Notifier) Delivered(ctx context.Context, orderID uint64, o *models.Order) error {
	return n.publishOrderEvent(ctx, n.topics.Delivered, messages.KindDelivered, orderID, o)
}

func (n *Notifier) Completed(ctx context.Context, orderID uint64, o *models.Order) error {
	if n.completedMuted.Load() {
		return nil
	}
	return n.publishOrderEvent(ctx, n.topics.Completed, messages.KindCompleted, orderID, o)
}

func (n *Notifier) StatusObserved(ctx context.Context, rawStatus string, sh *models.Shipment, o *models.Order) error {
	msg := messages.ShipmentStatusObserved{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		Status:      rawStatus,
		ObservedAt:  n.now().UTC(),
	}
	if sh != nil {
		msg.TrackingNumber = sh.TrackingNumber
		msg.IsDelivered = sh.IsDelivered
		msg.DeliveredAt = sh.DeliveredAt
		for _, ev := range sh.Events {
			msg.Events = append(msg.Events, messages.ShipmentEvent{
				Time:        ev.Time,
				Description: ev.Description,
				City:        ev.City,
				State:       ev.State,
				ZIPCode:     ev.ZIPCode,
				Country:     ev.Country,
			})
		}
	}
	return n.publish(ctx, n.topics.StatusObserved, o.ID, msg)
}

func (n *Notifier) publishOrderEvent(ctx context.Context, topic, kind string, orderID uint64, o *models.Order) error {
	return n.publish(ctx, topic, orderID, messages.OrderEvent{
		Kind:        kind,
		OrderID:     orderID,
		OrderNumber: o.Number,
		OrderStatus: o.Status,
		OccurredAt:  n.now().UTC(),
	})
}

func (n *Notifier) publish(ctx context.Context, topic string, orderID uint64, msg any) error {
	if topic == "" {
		return nil
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "encode notice")
	}
	key := []byte(strconv.FormatUint(orderID, 10))
	return n.p.Publish(ctx, topic, key, value)
}
