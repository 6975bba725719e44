package pgshipment

import (
	"context"

	"github.com/BearBump/ShipBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// AppendHistory locks the shipment row, lets build compute the next entry from the locked
// state, then appends it and moves status and updated_at in the same transaction.
func (s *Storage) AppendHistory(ctx context.Context, id string, build models.HistoryBuilder) (*models.Shipment, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sh, err := s.getOne(ctx, tx, `WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, err
	}

	entry, err := build(sh)
	if err != nil {
		return nil, err
	}
	entry.Timestamp = entry.Timestamp.UTC()

	if err := insertHistory(ctx, tx, id, entry); err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, `UPDATE shipments SET status = $2, updated_at = $3 WHERE id = $1`,
		id, string(entry.Status), entry.Timestamp)
	if err != nil {
		return nil, errors.Wrap(err, "update shipment status")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}

	sh.Status = entry.Status
	sh.UpdatedAt = entry.Timestamp
	sh.TrackingHistory = append(sh.TrackingHistory, entry)
	return sh, nil
}

func insertHistory(ctx context.Context, q querier, shipmentID string, e models.HistoryEntry) error {
	_, err := q.Exec(ctx, `
INSERT INTO shipment_history (shipment_id, status, location, message, event_time, updated_by)
VALUES ($1,$2,$3,$4,$5,$6)
`, shipmentID, string(e.Status), e.Location, e.Message, e.Timestamp.UTC(), e.UpdatedBy)
	if err != nil {
		return errors.Wrap(err, "insert history entry")
	}
	return nil
}

// attachHistory loads the ledgers of the given shipments in append order.
func (s *Storage) attachHistory(ctx context.Context, q querier, shipments []*models.Shipment) error {
	if len(shipments) == 0 {
		return nil
	}
	byID := make(map[string]*models.Shipment, len(shipments))
	ids := make([]string, 0, len(shipments))
	for _, sh := range shipments {
		byID[sh.ID] = sh
		sh.TrackingHistory = []models.HistoryEntry{}
		ids = append(ids, sh.ID)
	}

	rows, err := q.Query(ctx, `
SELECT shipment_id, status, location, message, event_time, updated_by
FROM shipment_history
WHERE shipment_id = ANY($1)
ORDER BY shipment_id, id ASC
`, ids)
	if err != nil {
		return errors.Wrap(err, "select history")
	}
	defer rows.Close()

	for rows.Next() {
		var shipmentID, status string
		var e models.HistoryEntry
		if err := rows.Scan(&shipmentID, &status, &e.Location, &e.Message, &e.Timestamp, &e.UpdatedBy); err != nil {
			return errors.Wrap(err, "scan history entry")
		}
		e.Status = models.ShipmentStatus(status)
		if sh, ok := byID[shipmentID]; ok {
			sh.TrackingHistory = append(sh.TrackingHistory, e)
		}
	}
	if rows.Err() != nil {
		return errors.Wrap(rows.Err(), "rows")
	}
	return nil
}
