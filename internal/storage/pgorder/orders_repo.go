package pgorder

import (
	"context"
	"encoding/json"
	"time"

	"shipwatch/internal/models"

	"github.com/pkg/errors"
)

func (s *Storage) CreateOrder(ctx context.Context, o *models.Order) (uint64, error) {
	now := time.Now().UTC()
	createdAt := o.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	var id uint64
	err := s.db.QueryRow(ctx, `
INSERT INTO orders (number, status, shipping_country, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5)
RETURNING id
`, o.Number, o.Status, o.ShippingCountry, createdAt, now).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "insert order")
	}
	o.ID = id
	o.CreatedAt = createdAt
	return id, nil
}

func (s *Storage) AddTrackingItem(ctx context.Context, orderID uint64, item models.TrackingItem) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO order_tracking_items (order_id, provider, tracking_number, created_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (order_id, provider, tracking_number) DO NOTHING
`, orderID, item.Provider, item.TrackingNumber, time.Now().UTC())
	return errors.Wrap(err, "insert tracking item")
}

// SelectCandidates returns orders in the given statuses created strictly
// after createdAfter, oldest first.
func (s *Storage) SelectCandidates(ctx context.Context, statuses []string, createdAfter time.Time, limit int) ([]*models.Order, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, number, status, shipping_country, status_map, detail_map, created_at, updated_at
FROM orders
WHERE status = ANY($1)
  AND created_at > $2
ORDER BY created_at ASC
LIMIT $3
`, statuses, createdAfter, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select candidate orders")
	}
	defer rows.Close()

	var out []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) GetOrder(ctx context.Context, id uint64) (*models.Order, error) {
	row := s.db.QueryRow(ctx, `
SELECT id, number, status, shipping_country, status_map, detail_map, created_at, updated_at
FROM orders
WHERE id = $1
`, id)
	return scanOrder(row.Scan)
}

func (s *Storage) TrackingItems(ctx context.Context, orderID uint64) ([]models.TrackingItem, error) {
	rows, err := s.db.Query(ctx, `
SELECT provider, tracking_number
FROM order_tracking_items
WHERE order_id = $1
ORDER BY id ASC
`, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "select tracking items")
	}
	defer rows.Close()

	var out []models.TrackingItem
	for rows.Next() {
		var it models.TrackingItem
		if err := rows.Scan(&it.Provider, &it.TrackingNumber); err != nil {
			return nil, errors.Wrap(err, "scan tracking item")
		}
		out = append(out, it)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// SaveOrder persists the order's lifecycle status and both reconciliation
// maps. The maps are written wholesale, replacing whatever was stored.
func (s *Storage) SaveOrder(ctx context.Context, o *models.Order) error {
	statusMap, err := marshalMeta(o.LastStatusByTrackingNumber)
	if err != nil {
		return errors.Wrap(err, "encode status map")
	}
	detailMap, err := marshalMeta(o.LastShipmentDetail)
	if err != nil {
		return errors.Wrap(err, "encode detail map")
	}

	_, err = s.db.Exec(ctx, `
UPDATE orders
SET status = $2, status_map = $3, detail_map = $4, updated_at = now()
WHERE id = $1
`, o.ID, o.Status, statusMap, detailMap)
	return errors.Wrap(err, "save order")
}

// UpdateOrdersStatus moves a set of orders to the given status (admin bulk
// action). Returns the number of orders affected.
func (s *Storage) UpdateOrdersStatus(ctx context.Context, ids []uint64, status string) (int64, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE orders SET status = $2, updated_at = now() WHERE id = ANY($1)
`, ids, status)
	if err != nil {
		return 0, errors.Wrap(err, "bulk update status")
	}
	return tag.RowsAffected(), nil
}

func marshalMeta(v any) ([]byte, error) {
	switch m := v.(type) {
	case map[string]string:
		if m == nil {
			return nil, nil
		}
	case map[string]*models.Shipment:
		if m == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

func scanOrder(scan func(dest ...any) error) (*models.Order, error) {
	var o models.Order
	var statusMap, detailMap []byte
	if err := scan(
		&o.ID, &o.Number, &o.Status, &o.ShippingCountry,
		&statusMap, &detailMap,
		&o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, errors.Wrap(err, "scan order")
	}

	// Absent and empty stored state both mean "no prior state"; anything
	// else malformed is a data error, not something to guess around.
	if len(statusMap) > 0 {
		if err := json.Unmarshal(statusMap, &o.LastStatusByTrackingNumber); err != nil {
			return nil, errors.Wrapf(err, "malformed status map for order %d", o.ID)
		}
	}
	if len(detailMap) > 0 {
		if err := json.Unmarshal(detailMap, &o.LastShipmentDetail); err != nil {
			return nil, errors.Wrapf(err, "malformed detail map for order %d", o.ID)
		}
	}
	return &o, nil
}
