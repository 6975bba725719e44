package shipments_api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/ShipBox/internal/models"
	"github.com/BearBump/ShipBox/internal/services/shipments"
	"github.com/go-chi/chi/v5"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type createShipmentRequest struct {
	TrackingNumber string                `json:"trackingNumber"`
	Status         models.ShipmentStatus `json:"status"`
	models.Details
}

type updateStatusRequest struct {
	Status   models.ShipmentStatus `json:"status"`
	Location *string               `json:"location"`
	Message  *string               `json:"message"`
}

func (a *API) handleTest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "API is working"})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeFailure(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	if a.limiter != nil && a.opts.LoginLimitPerMinute > 0 {
		key := "login:" + strings.ToLower(req.Username)
		ok, n, err := a.limiter.Allow(r.Context(), key, a.opts.LoginLimitPerMinute, time.Minute)
		switch {
		case err != nil:
			slog.Warn("login rate limit unavailable", "error", err.Error())
		case !ok:
			slog.Warn("login rate limit exceeded", "username", req.Username, "count", n)
			writeFailure(w, http.StatusTooManyRequests, "Too many login attempts, try again later")
			return
		}
	}

	token, id, err := a.identity.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "token": token, "user": id})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": identityFrom(r.Context())})
}

func (a *API) handleTrack(w http.ResponseWriter, r *http.Request) {
	sh, err := a.shipments.TrackPublic(r.Context(), chi.URLParam(r, "trackingNumber"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "shipment": sh})
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := a.stats.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": st})
}

func (a *API) handleListShipments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := models.ListOptions{}
	var err error
	if v := q.Get("limit"); v != "" {
		if opts.Limit, err = strconv.Atoi(v); err != nil {
			writeFailure(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if opts.Offset, err = strconv.Atoi(v); err != nil {
			writeFailure(w, http.StatusBadRequest, "offset must be an integer")
			return
		}
	}
	for _, v := range q["status"] {
		for _, st := range strings.Split(v, ",") {
			if st = strings.TrimSpace(st); st != "" {
				opts.Statuses = append(opts.Statuses, models.ShipmentStatus(st))
			}
		}
	}

	page, err := a.shipments.ListShipments(r.Context(), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"shipments": page.Items,
		"total":     page.Total,
		"limit":     page.Limit,
		"offset":    page.Offset,
	})
}

func (a *API) handleCreateShipment(w http.ResponseWriter, r *http.Request) {
	var req createShipmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sh, err := a.shipments.CreateShipment(r.Context(), models.ShipmentCreateInput{
		TrackingNumber: req.TrackingNumber,
		Status:         req.Status,
		Details:        req.Details,
	}, identityFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "shipment": sh})
}

func (a *API) handleGetShipment(w http.ResponseWriter, r *http.Request) {
	sh, err := a.shipments.GetShipment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "shipment": sh})
}

func (a *API) handleUpdateShipment(w http.ResponseWriter, r *http.Request) {
	var patch models.ShipmentPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	sh, err := a.shipments.UpdateFields(r.Context(), chi.URLParam(r, "id"), patch, identityFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "shipment": sh})
}

func (a *API) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sh, err := a.shipments.UpdateStatus(r.Context(), chi.URLParam(r, "id"), shipments.StatusUpdate{
		Status:   req.Status,
		Location: req.Location,
		Message:  req.Message,
	}, identityFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "shipment": sh})
}

func (a *API) handleDeleteShipment(w http.ResponseWriter, r *http.Request) {
	if err := a.shipments.DeleteShipment(r.Context(), chi.URLParam(r, "id"), identityFrom(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Shipment deleted"})
}
