// Package httpapi exposes the REST surface consumed by the tracking
// dashboard.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	app "github.com/chainsight-labs/chainsight/internal/app"
	"github.com/chainsight-labs/chainsight/internal/app/domain/insight"
	"github.com/chainsight-labs/chainsight/internal/app/domain/shipment"
	"github.com/chainsight-labs/chainsight/internal/app/metrics"
	"github.com/chainsight-labs/chainsight/internal/app/services/lifecycle"
	"github.com/chainsight-labs/chainsight/internal/ledger"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
}

// NewHandler returns a router exposing the REST API.
func NewHandler(application *app.Application) *mux.Router {
	h := &handler{app: application}

	r := mux.NewRouter()
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/shipments", h.listShipments).Methods(http.MethodGet)
	api.HandleFunc("/shipments", h.createShipment).Methods(http.MethodPost)
	api.HandleFunc("/shipments/{id}", h.getShipment).Methods(http.MethodGet)
	api.HandleFunc("/shipments/{id}/status", h.setStatus).Methods(http.MethodPut)
	api.HandleFunc("/shipments/{id}/advance", h.advanceStatus).Methods(http.MethodPost)
	api.HandleFunc("/shipments/{id}/record", h.ledgerRecord).Methods(http.MethodGet)
	api.HandleFunc("/shipments/{id}/history", h.shipmentHistory).Methods(http.MethodGet)
	api.HandleFunc("/shipments/{id}/verify", h.verifyShipment).Methods(http.MethodGet)
	api.HandleFunc("/insights", h.computeInsights).Methods(http.MethodPost)
	api.Handle("/events", application.Events).Methods(http.MethodGet)
	api.HandleFunc("/health", h.health).Methods(http.MethodGet)

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	return r
}

// shipmentEnvelope adds the dual-write warning to shipment responses.
type shipmentEnvelope struct {
	shipment.Shipment
	LedgerWarning *lifecycle.Warning `json:"ledgerWarning,omitempty"`
}

func envelope(res lifecycle.Result) shipmentEnvelope {
	return shipmentEnvelope{Shipment: res.Shipment, LedgerWarning: res.Warning}
}

func (h *handler) listShipments(w http.ResponseWriter, r *http.Request) {
	shipments, err := h.app.Shipments.ListShipments(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shipments)
}

func (h *handler) createShipment(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ShipmentID  string `json:"shipmentId"`
		Origin      string `json:"origin"`
		Destination string `json:"destination"`
		Carrier     string `json:"carrier"`
		Status      string `json:"status"`
		ETA         string `json:"eta"`
		Temperature string `json:"temperature"`
		Condition   string `json:"condition"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := h.app.Shipments.CreateShipment(r.Context(), lifecycle.CreateInput{
		ShipmentID:  payload.ShipmentID,
		Origin:      payload.Origin,
		Destination: payload.Destination,
		Carrier:     payload.Carrier,
		Status:      payload.Status,
		ETA:         payload.ETA,
		Temperature: payload.Temperature,
		Condition:   payload.Condition,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope(res))
}

func (h *handler) getShipment(w http.ResponseWriter, r *http.Request) {
	shp, err := h.resolve(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shp)
}

func (h *handler) setStatus(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	shp, err := h.resolve(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	res, err := h.app.Shipments.SetStatus(r.Context(), shp.ID, shipment.Status(payload.Status))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope(res))
}

func (h *handler) advanceStatus(w http.ResponseWriter, r *http.Request) {
	shp, err := h.resolve(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	res, err := h.app.Shipments.AdvanceStatus(r.Context(), shp.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope(res))
}

func (h *handler) ledgerRecord(w http.ResponseWriter, r *http.Request) {
	shp, err := h.resolve(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	record, err := h.app.Audit.Record(r.Context(), shp.ShipmentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *handler) shipmentHistory(w http.ResponseWriter, r *http.Request) {
	shp, err := h.resolve(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	history, err := h.app.Audit.History(r.Context(), shp.ShipmentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"shipmentId": shp.ShipmentID,
		"history":    history,
	})
}

func (h *handler) verifyShipment(w http.ResponseWriter, r *http.Request) {
	shp, err := h.resolve(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	result, err := h.app.Audit.Verify(r.Context(), shp.ShipmentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// computeInsights serves the insight report. The shipment snapshot comes from
// the store; the body is normally empty, but supplemental feature rows are
// accepted.
func (h *handler) computeInsights(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Shipments []insight.ShipmentFeatures `json:"shipments"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Insights.Compute(r.Context(), payload.Shipments))
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"ledgerEnabled": h.app.LedgerEnabled(),
		"time":          time.Now().UTC().Format(time.RFC3339),
	})
}

// resolve accepts either the store id or the business shipmentId in the
// path, matching what the dashboard sends.
func (h *handler) resolve(r *http.Request) (shipment.Shipment, error) {
	id := mux.Vars(r)["id"]
	shp, err := h.app.Shipments.GetShipment(r.Context(), id)
	if err == nil {
		return shp, nil
	}
	if !errors.Is(err, shipment.ErrNotFound) {
		return shipment.Shipment{}, err
	}
	return h.app.Shipments.GetByShipmentID(r.Context(), id)
}

func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, shipment.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, shipment.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, shipment.ErrConflict),
		errors.Is(err, shipment.ErrInvalidTransition),
		errors.Is(err, shipment.ErrTerminalState),
		errors.Is(err, shipment.ErrStaleStatus):
		status = http.StatusConflict
	case errors.Is(err, ledger.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, ledger.ErrTransaction):
		status = http.StatusBadGateway
	}
	writeError(w, status, err)
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
