package shipments_api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/BearBump/ShipBox/internal/identity"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/pkg/errors"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "message": message})
}

// writeError maps domain failures onto HTTP statuses. Unknown errors are logged and
// reported as a generic 500 so storage details never reach the caller.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": verr.Error(), "fields": verr.Fields})
	case errors.Is(err, models.ErrValidation):
		writeFailure(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrDuplicateTrackingNumber):
		writeFailure(w, http.StatusConflict, "Tracking number already exists")
	case errors.Is(err, models.ErrTransitionNotAllowed):
		writeFailure(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrNotFound):
		writeFailure(w, http.StatusNotFound, "Shipment not found")
	case errors.Is(err, models.ErrGenerationExhausted):
		writeFailure(w, http.StatusServiceUnavailable, "Could not allocate a tracking number, try again")
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeFailure(w, http.StatusUnauthorized, "Invalid username or password")
	case errors.Is(err, identity.ErrInvalidToken):
		writeFailure(w, http.StatusUnauthorized, "Invalid or expired token")
	case errors.Is(err, identity.ErrUserInactive):
		writeFailure(w, http.StatusForbidden, "Account is inactive")
	default:
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestIDFrom(r.Context()),
			"error", err.Error(),
		)
		writeFailure(w, http.StatusInternalServerError, "Internal server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}
