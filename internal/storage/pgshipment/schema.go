package pgshipment

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  is_admin BOOLEAN NOT NULL DEFAULT FALSE,
  active BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMPTZ NOT NULL,
  CONSTRAINT users_username_key UNIQUE (username)
)`,
		`
CREATE TABLE IF NOT EXISTS shipments (
  id TEXT PRIMARY KEY,
  tracking_number TEXT NOT NULL,
  recipient_name TEXT NOT NULL,
  recipient_email TEXT NOT NULL DEFAULT '',
  recipient_phone TEXT NOT NULL,
  delivery_address TEXT NOT NULL,
  origin TEXT NOT NULL,
  destination TEXT NOT NULL,
  carrier TEXT NOT NULL DEFAULT '',
  carrier_reference TEXT NOT NULL DEFAULT '',
  shipment_type TEXT NOT NULL DEFAULT '',
  product TEXT NOT NULL DEFAULT '',
  quantity INT NOT NULL DEFAULT 0,
  piece_type TEXT NOT NULL DEFAULT '',
  dimensions TEXT NOT NULL DEFAULT '',
  weight TEXT NOT NULL DEFAULT '',
  payment_mode TEXT NOT NULL DEFAULT '',
  expected_delivery_date TIMESTAMPTZ NULL,
  departure_time TIMESTAMPTZ NULL,
  pickup_date TIMESTAMPTZ NULL,
  status TEXT NOT NULL,
  created_by TEXT NULL REFERENCES users(id) ON DELETE SET NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  CONSTRAINT shipments_tracking_number_key UNIQUE (tracking_number),
  CONSTRAINT shipments_tracking_number_format CHECK (tracking_number ~ '^[0-9]{9}$')
)`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_created_at ON shipments(created_at DESC, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_status ON shipments(status)`,
		`
CREATE TABLE IF NOT EXISTS shipment_history (
  id BIGSERIAL PRIMARY KEY,
  shipment_id TEXT NOT NULL REFERENCES shipments(id) ON DELETE CASCADE,
  status TEXT NOT NULL,
  location TEXT NOT NULL DEFAULT '',
  message TEXT NOT NULL DEFAULT '',
  event_time TIMESTAMPTZ NOT NULL,
  updated_by TEXT NOT NULL DEFAULT ''
)`,
		`CREATE INDEX IF NOT EXISTS idx_shipment_history_shipment_id ON shipment_history(shipment_id, id)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
