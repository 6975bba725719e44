package pgshipment

import (
	"context"
	"time"

	"github.com/BearBump/ShipBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

const shipmentColumns = `
  id, tracking_number,
  recipient_name, recipient_email, recipient_phone, delivery_address, origin, destination,
  carrier, carrier_reference, shipment_type, product, quantity, piece_type, dimensions, weight,
  payment_mode, expected_delivery_date, departure_time, pickup_date,
  status, created_by, created_at, updated_at`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Storage) CreateShipment(ctx context.Context, sh *models.Shipment) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	d := sh.Details
	_, err = tx.Exec(ctx, `
INSERT INTO shipments (`+shipmentColumns+`
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
`, sh.ID, sh.TrackingNumber,
		d.RecipientName, d.RecipientEmail, d.RecipientPhone, d.DeliveryAddress, d.Origin, d.Destination,
		d.Carrier, d.CarrierReference, string(d.ShipmentType), d.Product, d.Quantity, d.PieceType, d.Dimensions, d.Weight,
		string(d.PaymentMode), utcPtr(d.ExpectedDeliveryDate), utcPtr(d.DepartureTime), utcPtr(d.PickupDate),
		string(sh.Status), sh.CreatedBy, sh.CreatedAt.UTC(), sh.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err, "shipments_tracking_number_key") {
			return errors.Wrap(models.ErrDuplicateTrackingNumber, sh.TrackingNumber)
		}
		return errors.Wrap(err, "insert shipment")
	}

	for _, e := range sh.TrackingHistory {
		if err := insertHistory(ctx, tx, sh.ID, e); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

func (s *Storage) GetShipmentByID(ctx context.Context, id string) (*models.Shipment, error) {
	return s.getOne(ctx, s.db, `WHERE id = $1`, id)
}

func (s *Storage) GetShipmentByTrackingNumber(ctx context.Context, trackingNumber string) (*models.Shipment, error) {
	return s.getOne(ctx, s.db, `WHERE tracking_number = $1`, trackingNumber)
}

func (s *Storage) TrackingNumberExists(ctx context.Context, trackingNumber string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM shipments WHERE tracking_number = $1)`, trackingNumber).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "check tracking number")
	}
	return exists, nil
}

// UpdateShipment merges patch into the locked row and refreshes updated_at.
func (s *Storage) UpdateShipment(ctx context.Context, id string, patch models.ShipmentPatch, updatedAt time.Time) (*models.Shipment, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sh, err := s.getOne(ctx, tx, `WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, err
	}

	patch.Apply(&sh.Details)
	sh.UpdatedAt = updatedAt.UTC()

	d := sh.Details
	_, err = tx.Exec(ctx, `
UPDATE shipments
SET
  recipient_name = $2,
  recipient_email = $3,
  recipient_phone = $4,
  delivery_address = $5,
  origin = $6,
  destination = $7,
  carrier = $8,
  carrier_reference = $9,
  shipment_type = $10,
  product = $11,
  quantity = $12,
  piece_type = $13,
  dimensions = $14,
  weight = $15,
  payment_mode = $16,
  expected_delivery_date = $17,
  departure_time = $18,
  pickup_date = $19,
  updated_at = $20
WHERE id = $1
`, id,
		d.RecipientName, d.RecipientEmail, d.RecipientPhone, d.DeliveryAddress, d.Origin, d.Destination,
		d.Carrier, d.CarrierReference, string(d.ShipmentType), d.Product, d.Quantity, d.PieceType, d.Dimensions, d.Weight,
		string(d.PaymentMode), utcPtr(d.ExpectedDeliveryDate), utcPtr(d.DepartureTime), utcPtr(d.PickupDate),
		sh.UpdatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "update shipment")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return sh, nil
}

func (s *Storage) DeleteShipment(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM shipments WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete shipment")
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ListShipments returns shipments newest first, each with its full history.
func (s *Storage) ListShipments(ctx context.Context, opts models.ListOptions) ([]*models.Shipment, error) {
	if opts.Limit <= 0 {
		opts.Limit = defaultListLimit
	}
	if opts.Limit > maxListLimit {
		opts.Limit = maxListLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT`+shipmentColumns+`
FROM shipments
WHERE ($1::text[] IS NULL OR status = ANY($1))
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3
`, statusArg(opts.Statuses), opts.Limit, opts.Offset)
	if err != nil {
		return nil, errors.Wrap(err, "select shipments")
	}
	defer rows.Close()

	var out []*models.Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	if err := s.attachHistory(ctx, s.db, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Storage) CountShipments(ctx context.Context, f models.ShipmentFilter) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `
SELECT count(*)
FROM shipments
WHERE ($1::text[] IS NULL OR status = ANY($1))
`, statusArg(f.Statuses)).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "count shipments")
	}
	return n, nil
}

func (s *Storage) getOne(ctx context.Context, q querier, where string, arg any) (*models.Shipment, error) {
	sh, err := scanShipment(q.QueryRow(ctx, `SELECT`+shipmentColumns+` FROM shipments `+where, arg))
	if err != nil {
		return nil, err
	}
	if err := s.attachHistory(ctx, q, []*models.Shipment{sh}); err != nil {
		return nil, err
	}
	return sh, nil
}

func scanShipment(row pgx.Row) (*models.Shipment, error) {
	var sh models.Shipment
	var shipmentType, paymentMode, status string
	d := &sh.Details
	err := row.Scan(
		&sh.ID, &sh.TrackingNumber,
		&d.RecipientName, &d.RecipientEmail, &d.RecipientPhone, &d.DeliveryAddress, &d.Origin, &d.Destination,
		&d.Carrier, &d.CarrierReference, &shipmentType, &d.Product, &d.Quantity, &d.PieceType, &d.Dimensions, &d.Weight,
		&paymentMode, &d.ExpectedDeliveryDate, &d.DepartureTime, &d.PickupDate,
		&status, &sh.CreatedBy, &sh.CreatedAt, &sh.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan shipment")
	}
	d.ShipmentType = models.ShipmentType(shipmentType)
	d.PaymentMode = models.PaymentMode(paymentMode)
	sh.Status = models.ShipmentStatus(status)
	return &sh, nil
}

func statusArg(statuses []models.ShipmentStatus) []string {
	if len(statuses) == 0 {
		return nil
	}
	out := make([]string, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, string(st))
	}
	return out
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
