package messages

import "time"

type ChangeKind string

const (
	ChangeCreated       ChangeKind = "created"
	ChangeUpdated       ChangeKind = "updated"
	ChangeStatusChanged ChangeKind = "status_changed"
	ChangeDeleted       ChangeKind = "deleted"
)

// ShipmentChanged is published after every committed shipment mutation, keyed by shipment id.
type ShipmentChanged struct {
	ShipmentID     string     `json:"shipment_id"`
	TrackingNumber string     `json:"tracking_number"`
	Kind           ChangeKind `json:"kind"`
	Status         string     `json:"status,omitempty"`
	Location       string     `json:"location,omitempty"`
	Message        string     `json:"message,omitempty"`
	Actor          string     `json:"actor,omitempty"`
	OccurredAt     time.Time  `json:"occurred_at"`
}
