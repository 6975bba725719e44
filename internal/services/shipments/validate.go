package shipments

import (
	"reflect"
	"strings"

	"github.com/BearBump/ShipBox/internal/models"
	"github.com/BearBump/ShipBox/internal/trackingnumber"
	"github.com/go-playground/validator/v10"
)

type detailsRules struct {
	RecipientName   string `json:"recipientName" validate:"required"`
	RecipientEmail  string `json:"recipientEmail" validate:"omitempty,email"`
	RecipientPhone  string `json:"recipientPhone" validate:"required"`
	DeliveryAddress string `json:"deliveryAddress" validate:"required"`
	Origin          string `json:"origin" validate:"required"`
	Destination     string `json:"destination" validate:"required"`
	ShipmentType    string `json:"shipmentType" validate:"omitempty,shipment_type"`
	Quantity        int    `json:"quantity" validate:"gte=0"`
	PaymentMode     string `json:"paymentMode" validate:"omitempty,payment_mode"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("payment_mode", func(fl validator.FieldLevel) bool {
		return models.PaymentMode(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("shipment_type", func(fl validator.FieldLevel) bool {
		switch models.ShipmentType(fl.Field().String()) {
		case models.ShipmentTypeAir, models.ShipmentTypeWater, models.ShipmentTypeRoad:
			return true
		}
		return false
	})
	return v
}

func validateCreate(in models.ShipmentCreateInput) error {
	var fields []string
	if in.TrackingNumber != "" && !trackingnumber.Valid(in.TrackingNumber) {
		fields = append(fields, "trackingNumber")
	}
	if in.Status != "" && !in.Status.Valid() {
		fields = append(fields, "status")
	}
	fields = append(fields, detailsErrors(in.Details)...)
	if len(fields) > 0 {
		return models.NewValidationError("missing or malformed fields", fields...)
	}
	return nil
}

func detailsErrors(d models.Details) []string {
	err := validate.Struct(detailsRules{
		RecipientName:   d.RecipientName,
		RecipientEmail:  d.RecipientEmail,
		RecipientPhone:  d.RecipientPhone,
		DeliveryAddress: d.DeliveryAddress,
		Origin:          d.Origin,
		Destination:     d.Destination,
		ShipmentType:    string(d.ShipmentType),
		Quantity:        d.Quantity,
		PaymentMode:     string(d.PaymentMode),
	})
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return fields
}

// validatePatch checks only the fields the patch sets. Required fields may be changed
// but not blanked.
func validatePatch(p models.ShipmentPatch) error {
	var fields []string
	required := []struct {
		name string
		v    *string
	}{
		{"recipientName", p.RecipientName},
		{"recipientPhone", p.RecipientPhone},
		{"deliveryAddress", p.DeliveryAddress},
		{"origin", p.Origin},
		{"destination", p.Destination},
	}
	for _, f := range required {
		if f.v != nil && *f.v == "" {
			fields = append(fields, f.name)
		}
	}
	if p.RecipientEmail != nil && *p.RecipientEmail != "" && validate.Var(*p.RecipientEmail, "email") != nil {
		fields = append(fields, "recipientEmail")
	}
	if p.ShipmentType != nil && *p.ShipmentType != "" && validate.Var(string(*p.ShipmentType), "shipment_type") != nil {
		fields = append(fields, "shipmentType")
	}
	if p.Quantity != nil && *p.Quantity < 0 {
		fields = append(fields, "quantity")
	}
	if p.PaymentMode != nil && *p.PaymentMode != "" && !p.PaymentMode.Valid() {
		fields = append(fields, "paymentMode")
	}
	if len(fields) > 0 {
		return models.NewValidationError("malformed fields", fields...)
	}
	return nil
}

func validateFilter(f models.ShipmentFilter) error {
	for _, st := range f.Statuses {
		if !st.Valid() {
			return models.NewValidationError("unknown status "+string(st), "status")
		}
	}
	return nil
}

func normalizeDetails(d models.Details) models.Details {
	d.RecipientName = strings.TrimSpace(d.RecipientName)
	d.RecipientEmail = strings.TrimSpace(d.RecipientEmail)
	d.RecipientPhone = strings.TrimSpace(d.RecipientPhone)
	d.DeliveryAddress = strings.TrimSpace(d.DeliveryAddress)
	d.Origin = strings.TrimSpace(d.Origin)
	d.Destination = strings.TrimSpace(d.Destination)
	return d
}

func normalizePatch(p models.ShipmentPatch) models.ShipmentPatch {
	p.RecipientName = trimPtr(p.RecipientName)
	p.RecipientEmail = trimPtr(p.RecipientEmail)
	p.RecipientPhone = trimPtr(p.RecipientPhone)
	p.DeliveryAddress = trimPtr(p.DeliveryAddress)
	p.Origin = trimPtr(p.Origin)
	p.Destination = trimPtr(p.Destination)
	return p
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

// optional returns the trimmed value, or "" for nil.
func optional(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
