package models

import "time"

type ShipmentStatus string

// Canonical statuses. Processing, in transit, rejected and awarded come from the extended
// lineage of the system; the enumeration is open and may grow.
const (
	StatusPending        ShipmentStatus = "pending"
	StatusProcessing     ShipmentStatus = "processing"
	StatusInTransit      ShipmentStatus = "in transit"
	StatusOnHold         ShipmentStatus = "on hold"
	StatusOutForDelivery ShipmentStatus = "out for delivery"
	StatusDelivered      ShipmentStatus = "delivered"
	StatusRejected       ShipmentStatus = "rejected"
	StatusAwarded        ShipmentStatus = "awarded"
)

var knownStatuses = map[ShipmentStatus]struct{}{
	StatusPending:        {},
	StatusProcessing:     {},
	StatusInTransit:      {},
	StatusOnHold:         {},
	StatusOutForDelivery: {},
	StatusDelivered:      {},
	StatusRejected:       {},
	StatusAwarded:        {},
}

func (s ShipmentStatus) String() string { return string(s) }

func (s ShipmentStatus) Valid() bool {
	_, ok := knownStatuses[s]
	return ok
}

// ActiveStatuses is the fixed set counted as "in progress" by the reporting layer.
var ActiveStatuses = []ShipmentStatus{
	StatusProcessing,
	StatusInTransit,
	StatusOnHold,
	StatusOutForDelivery,
}

type ShipmentType string

const (
	ShipmentTypeAir   ShipmentType = "AIR"
	ShipmentTypeWater ShipmentType = "WATER"
	ShipmentTypeRoad  ShipmentType = "ROAD"
)

type PaymentMode string

const (
	PaymentCash         PaymentMode = "cash"
	PaymentBankTransfer PaymentMode = "bank transfer"
	PaymentCard         PaymentMode = "card"
	PaymentMobileMoney  PaymentMode = "mobile money"
)

func (p PaymentMode) Valid() bool {
	switch p {
	case PaymentCash, PaymentBankTransfer, PaymentCard, PaymentMobileMoney:
		return true
	}
	return false
}

// HistoryEntry is one event of the append-only tracking ledger.
type HistoryEntry struct {
	Status    ShipmentStatus `json:"status"`
	Location  string         `json:"location"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	UpdatedBy string         `json:"updatedBy"`
}

// Details are the mutable logistics attributes of a shipment.
type Details struct {
	RecipientName   string `json:"recipientName"`
	RecipientEmail  string `json:"recipientEmail"`
	RecipientPhone  string `json:"recipientPhone"`
	DeliveryAddress string `json:"deliveryAddress"`
	Origin          string `json:"origin"`
	Destination     string `json:"destination"`

	Carrier          string       `json:"carrier,omitempty"`
	CarrierReference string       `json:"carrierReference,omitempty"`
	ShipmentType     ShipmentType `json:"shipmentType,omitempty"`
	Product          string       `json:"product,omitempty"`
	Quantity         int          `json:"quantity,omitempty"`
	PieceType        string       `json:"pieceType,omitempty"`
	Dimensions       string       `json:"dimensions,omitempty"`
	Weight           string       `json:"weight,omitempty"`
	PaymentMode      PaymentMode  `json:"paymentMode,omitempty"`

	ExpectedDeliveryDate *time.Time `json:"expectedDeliveryDate,omitempty"`
	DepartureTime        *time.Time `json:"departureTime,omitempty"`
	PickupDate           *time.Time `json:"pickupDate,omitempty"`
}

type Shipment struct {
	ID             string `json:"id"`
	TrackingNumber string `json:"trackingNumber"`

	Details

	Status          ShipmentStatus `json:"status"`
	TrackingHistory []HistoryEntry `json:"trackingHistory"`

	CreatedBy *string   `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LastEntry returns the most recently appended history entry.
func (s *Shipment) LastEntry() (HistoryEntry, bool) {
	if len(s.TrackingHistory) == 0 {
		return HistoryEntry{}, false
	}
	return s.TrackingHistory[len(s.TrackingHistory)-1], true
}

type ShipmentCreateInput struct {
	// TrackingNumber is optional; when empty one is generated.
	TrackingNumber string
	Status         ShipmentStatus
	Details
}

// ShipmentPatch is a partial update of Details. Nil fields are left unchanged. Status,
// tracking number and creation time are not patchable; status moves only through the
// history ledger.
type ShipmentPatch struct {
	RecipientName   *string `json:"recipientName"`
	RecipientEmail  *string `json:"recipientEmail"`
	RecipientPhone  *string `json:"recipientPhone"`
	DeliveryAddress *string `json:"deliveryAddress"`
	Origin          *string `json:"origin"`
	Destination     *string `json:"destination"`

	Carrier          *string       `json:"carrier"`
	CarrierReference *string       `json:"carrierReference"`
	ShipmentType     *ShipmentType `json:"shipmentType"`
	Product          *string       `json:"product"`
	Quantity         *int          `json:"quantity"`
	PieceType        *string       `json:"pieceType"`
	Dimensions       *string       `json:"dimensions"`
	Weight           *string       `json:"weight"`
	PaymentMode      *PaymentMode  `json:"paymentMode"`

	ExpectedDeliveryDate *time.Time `json:"expectedDeliveryDate"`
	DepartureTime        *time.Time `json:"departureTime"`
	PickupDate           *time.Time `json:"pickupDate"`
}

// Apply merges the patch into d.
func (p ShipmentPatch) Apply(d *Details) {
	setString(&d.RecipientName, p.RecipientName)
	setString(&d.RecipientEmail, p.RecipientEmail)
	setString(&d.RecipientPhone, p.RecipientPhone)
	setString(&d.DeliveryAddress, p.DeliveryAddress)
	setString(&d.Origin, p.Origin)
	setString(&d.Destination, p.Destination)
	setString(&d.Carrier, p.Carrier)
	setString(&d.CarrierReference, p.CarrierReference)
	if p.ShipmentType != nil {
		d.ShipmentType = *p.ShipmentType
	}
	setString(&d.Product, p.Product)
	if p.Quantity != nil {
		d.Quantity = *p.Quantity
	}
	setString(&d.PieceType, p.PieceType)
	setString(&d.Dimensions, p.Dimensions)
	setString(&d.Weight, p.Weight)
	if p.PaymentMode != nil {
		d.PaymentMode = *p.PaymentMode
	}
	if p.ExpectedDeliveryDate != nil {
		d.ExpectedDeliveryDate = p.ExpectedDeliveryDate
	}
	if p.DepartureTime != nil {
		d.DepartureTime = p.DepartureTime
	}
	if p.PickupDate != nil {
		d.PickupDate = p.PickupDate
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// ShipmentFilter narrows Count and List. An empty filter matches everything.
type ShipmentFilter struct {
	Statuses []ShipmentStatus
}

type ListOptions struct {
	Limit  int
	Offset int
	ShipmentFilter
}

// HistoryBuilder computes the entry to append from the locked current state of a shipment.
// Returning an error aborts the append without changes.
type HistoryBuilder func(current *Shipment) (HistoryEntry, error)
