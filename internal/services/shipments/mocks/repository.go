package mocks

import (
	"context"
	"time"

	"github.com/BearBump/ShipBox/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateShipment(ctx context.Context, sh *models.Shipment) error {
	args := m.Called(ctx, sh)
	return args.Error(0)
}

func (m *MockRepository) GetShipmentByID(ctx context.Context, id string) (*models.Shipment, error) {
	args := m.Called(ctx, id)
	return shipment(args, 0), args.Error(1)
}

func (m *MockRepository) GetShipmentByTrackingNumber(ctx context.Context, trackingNumber string) (*models.Shipment, error) {
	args := m.Called(ctx, trackingNumber)
	return shipment(args, 0), args.Error(1)
}

func (m *MockRepository) TrackingNumberExists(ctx context.Context, trackingNumber string) (bool, error) {
	args := m.Called(ctx, trackingNumber)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) UpdateShipment(ctx context.Context, id string, patch models.ShipmentPatch, updatedAt time.Time) (*models.Shipment, error) {
	args := m.Called(ctx, id, patch, updatedAt)
	return shipment(args, 0), args.Error(1)
}

// AppendHistory runs build against the shipment registered with On(...).Return(current, nil)
// and returns current with the built entry applied, mimicking the store.
func (m *MockRepository) AppendHistory(ctx context.Context, id string, build models.HistoryBuilder) (*models.Shipment, error) {
	args := m.Called(ctx, id, build)
	cur := shipment(args, 0)
	if err := args.Error(1); err != nil || cur == nil {
		return nil, err
	}
	entry, err := build(cur)
	if err != nil {
		return nil, err
	}
	out := *cur
	out.TrackingHistory = append(append([]models.HistoryEntry(nil), cur.TrackingHistory...), entry)
	out.Status = entry.Status
	out.UpdatedAt = entry.Timestamp
	return &out, nil
}

func (m *MockRepository) DeleteShipment(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) ListShipments(ctx context.Context, opts models.ListOptions) ([]*models.Shipment, error) {
	args := m.Called(ctx, opts)
	var out []*models.Shipment
	if v := args.Get(0); v != nil {
		out = v.([]*models.Shipment)
	}
	return out, args.Error(1)
}

func (m *MockRepository) CountShipments(ctx context.Context, f models.ShipmentFilter) (int64, error) {
	args := m.Called(ctx, f)
	return args.Get(0).(int64), args.Error(1)
}

func shipment(args mock.Arguments, i int) *models.Shipment {
	if v := args.Get(i); v != nil {
		return v.(*models.Shipment)
	}
	return nil
}
