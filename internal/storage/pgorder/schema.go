package pgorder

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS orders (
  id BIGSERIAL PRIMARY KEY,
  number TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  shipping_country TEXT NOT NULL DEFAULT '',
  status_map JSONB NULL,
  detail_map JSONB NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status_created_at ON orders(status, created_at)`,
		`
CREATE TABLE IF NOT EXISTS order_tracking_items (
  id BIGSERIAL PRIMARY KEY,
  order_id BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
  provider TEXT NOT NULL,
  tracking_number TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_order_tracking_items_order_id ON order_tracking_items(order_id)`,
		// Enforce de-duplication of tracking entries per order.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_order_tracking_items ON order_tracking_items(order_id, provider, tracking_number)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
