// Package httpapi exposes the trust engine's REST and SSE surface.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/zippycoin-network/trust_engine/internal/delegation"
	"github.com/zippycoin-network/trust_engine/internal/engine"
	"github.com/zippycoin-network/trust_engine/internal/ledger"
	"github.com/zippycoin-network/trust_engine/internal/metrics"
	"github.com/zippycoin-network/trust_engine/internal/stream"
	"github.com/zippycoin-network/trust_engine/internal/trust"
	"github.com/zippycoin-network/trust_engine/pkg/logger"
)

// Handler bundles the trust engine's HTTP endpoints.
type Handler struct {
	engine      *engine.Engine
	ledger      *ledger.Service
	delegations *delegation.Service
	streamer    *stream.Streamer
	streamOpts  stream.Options
	log         *logger.Logger
}

// Deps are the services the handler exposes.
type Deps struct {
	Engine      *engine.Engine
	Ledger      *ledger.Service
	Delegations *delegation.Service
	Streamer    *stream.Streamer
	StreamOpts  stream.Options
	Log         *logger.Logger
}

// NewRouter builds the API router with per-route Prometheus instrumentation.
func NewRouter(d Deps) *mux.Router {
	if d.Log == nil {
		d.Log = logger.NewDefault("trust-api")
	}
	h := &Handler{
		engine:      d.Engine,
		ledger:      d.Ledger,
		delegations: d.Delegations,
		streamer:    d.Streamer,
		streamOpts:  d.StreamOpts,
		log:         d.Log,
	}

	r := mux.NewRouter()
	route := func(method, path string, fn http.HandlerFunc) {
		r.Handle(path, metrics.Instrument(path, fn)).Methods(method)
	}

	route(http.MethodPost, "/trust/custom-metrics", h.registerMetrics)
	route(http.MethodGet, "/trust/score/{address}", h.score)
	route(http.MethodPut, "/trust/custom-field", h.updateField)
	route(http.MethodPost, "/trust/verify", h.verify)
	route(http.MethodGet, "/trust/metrics/{appId}", h.getMetricsConfig)
	route(http.MethodGet, "/trust/subscribe", h.subscribe)

	route(http.MethodPost, "/trust/delegations", h.createDelegation)
	route(http.MethodGet, "/trust/delegations/{address}", h.listDelegations)
	route(http.MethodDelete, "/trust/delegations/{id}", h.removeDelegation)
	route(http.MethodGet, "/trust/effective/{address}", h.effectiveTrust)

	route(http.MethodGet, "/trust/base/{address}", h.baseScore)
	route(http.MethodPost, "/trust/base/{address}/initialize", h.initializeBase)
	route(http.MethodPost, "/trust/base/{address}/environmental", h.submitEnvironmental)
	route(http.MethodPut, "/trust/base/{address}", h.updateBase)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	return r
}

func (h *Handler) registerMetrics(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AppID       string `json:"app_id"`
		DeveloperID string `json:"developer_id"`
		Metrics     struct {
			Fields           map[string]trust.FieldSpec `json:"fields"`
			AggregationRules trust.AggregationRules     `json:"aggregation_rules"`
			ValidationRules  trust.ValidationRules      `json:"validation_rules"`
		} `json:"metrics"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	cfg, err := h.engine.Registry.Register(r.Context(), trust.MetricsConfig{
		AppID:            payload.AppID,
		DeveloperID:      payload.DeveloperID,
		Fields:           payload.Metrics.Fields,
		AggregationRules: payload.Metrics.AggregationRules,
		ValidationRules:  payload.Metrics.ValidationRules,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

func (h *Handler) score(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	appID := r.URL.Query().Get("appId")

	if appID == "" {
		score, err := h.engine.CoreScore(r.Context(), address)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"address":    address,
			"core_score": score,
		})
		return
	}

	score, err := h.engine.CompositeScore(r.Context(), address, appID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

func (h *Handler) updateField(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AppID     string  `json:"app_id"`
		Address   string  `json:"address"`
		FieldName string  `json:"field_name"`
		Value     float64 `json:"value"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	stored, err := h.engine.UpdateField(r.Context(), payload.Address, payload.AppID, payload.FieldName, payload.Value)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AppID        string              `json:"app_id"`
		Address      string              `json:"address"`
		Requirements engine.Requirements `json:"requirements"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.engine.Verify(r.Context(), payload.Address, payload.AppID, payload.Requirements)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) getMetricsConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.engine.Registry.Get(r.Context(), mux.Vars(r)["appId"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) createDelegation(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Delegator string  `json:"delegator"`
		Delegate  string  `json:"delegate"`
		Amount    float64 `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	d, err := h.delegations.Delegate(r.Context(), payload.Delegator, payload.Delegate, payload.Amount)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *Handler) listDelegations(w http.ResponseWriter, r *http.Request) {
	edges, err := h.delegations.ListByAddress(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if edges == nil {
		edges = []trust.Delegation{}
	}
	writeJSON(w, http.StatusOK, edges)
}

func (h *Handler) removeDelegation(w http.ResponseWriter, r *http.Request) {
	if err := h.delegations.Remove(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) effectiveTrust(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	score, err := h.delegations.EffectiveTrust(r.Context(), address)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":         address,
		"effective_trust": score,
	})
}

func (h *Handler) baseScore(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	score, err := h.ledger.Score(r.Context(), address)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": address,
		"score":   score,
	})
}

func (h *Handler) initializeBase(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Score float64 `json:"score"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	address := mux.Vars(r)["address"]
	score, err := h.ledger.Initialize(r.Context(), address, payload.Score)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"address": address,
		"score":   score,
	})
}

func (h *Handler) submitEnvironmental(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		RenewableRatio float64 `json:"renewable_ratio"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.ledger.SubmitEnvironmentalData(r.Context(), mux.Vars(r)["address"], payload.RenewableRatio); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) updateBase(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Score float64 `json:"score"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	address := mux.Vars(r)["address"]
	if err := h.ledger.UpdateScore(r.Context(), address, payload.Score); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": address,
		"score":   payload.Score,
	})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case trust.IsValidation(err):
		return http.StatusBadRequest
	case trust.IsPolicy(err):
		return http.StatusForbidden
	case errors.Is(err, trust.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, trust.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
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
