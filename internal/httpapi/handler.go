// Package httpapi exposes the coordinator's read-only views over HTTP.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/vrf_coordinator/internal/audit"
	"github.com/R3E-Network/vrf_coordinator/internal/coordinator"
	"github.com/R3E-Network/vrf_coordinator/internal/domain/vrf"
	svcerrors "github.com/R3E-Network/vrf_coordinator/internal/errors"
	"github.com/R3E-Network/vrf_coordinator/internal/journal"
	"github.com/R3E-Network/vrf_coordinator/internal/metrics"
	"github.com/R3E-Network/vrf_coordinator/internal/middleware"
	"github.com/R3E-Network/vrf_coordinator/internal/wrapper"
	"github.com/R3E-Network/vrf_coordinator/pkg/logger"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// Config wires the handler. Wrapper, Events, Auditor and RateLimiter are
// optional; their routes answer 404 or are skipped when absent.
type Config struct {
	Coordinator *coordinator.Coordinator
	Wrapper     *wrapper.Wrapper
	Events      *journal.Memory
	Auditor     *audit.Auditor
	Metrics     *metrics.Metrics
	RateLimiter *middleware.RateLimiter
	CORSOrigins []string
	Logger      *logger.Logger
}

// Handler serves the read API.
type Handler struct {
	coord   *coordinator.Coordinator
	wrapper *wrapper.Wrapper
	events  *journal.Memory
	auditor *audit.Auditor
	router  *mux.Router
	handler http.Handler
}

// NewHandler builds the router.
func NewHandler(cfg Config) *Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("http")
	}
	h := &Handler{
		coord:   cfg.Coordinator,
		wrapper: cfg.Wrapper,
		events:  cfg.Events,
		auditor: cfg.Auditor,
		router:  mux.NewRouter(),
	}

	r := h.router
	r.Use(middleware.LoggingMiddleware(log))
	if cfg.Metrics != nil {
		r.Use(middleware.MetricsMiddleware(cfg.Metrics))
		r.Handle("/metrics", cfg.Metrics.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	if cfg.RateLimiter != nil {
		v1.Use(cfg.RateLimiter.Handler)
	}
	v1.HandleFunc("/config", h.getConfig).Methods(http.MethodGet)
	v1.HandleFunc("/totals", h.getTotals).Methods(http.MethodGet)
	v1.HandleFunc("/subscriptions/{id:[0-9]+}", h.getSubscription).Methods(http.MethodGet)
	v1.HandleFunc("/subscriptions/{id:[0-9]+}/nonces/{consumer}", h.getNonce).Methods(http.MethodGet)
	v1.HandleFunc("/provingkeys", h.listProvingKeys).Methods(http.MethodGet)
	v1.HandleFunc("/provingkeys/{hash}", h.getProvingKey).Methods(http.MethodGet)
	v1.HandleFunc("/feetier/{count:[0-9]+}", h.getFeeTier).Methods(http.MethodGet)
	v1.HandleFunc("/requests/{id}", h.getRequest).Methods(http.MethodGet)
	v1.HandleFunc("/withdrawable/{address}", h.getWithdrawable).Methods(http.MethodGet)
	v1.HandleFunc("/events", h.listEvents).Methods(http.MethodGet)
	v1.HandleFunc("/audit", h.getAudit).Methods(http.MethodGet)
	v1.HandleFunc("/wrapper/config", h.getWrapperConfig).Methods(http.MethodGet)
	v1.HandleFunc("/wrapper/price", h.getWrapperPrice).Methods(http.MethodGet)
	v1.HandleFunc("/wrapper/requests/{id}", h.getWrapperRequest).Methods(http.MethodGet)

	// Preflight requests match no route, so CORS sits outside the router.
	h.handler = r
	if len(cfg.CORSOrigins) > 0 {
		h.handler = middleware.NewCORSMiddleware(cfg.CORSOrigins).Handler(r)
	}
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok"}
	if h.auditor != nil {
		if rep, ok := h.auditor.Last(); ok && !rep.OK() {
			status["status"] = "degraded"
			status["violations"] = rep.Violations
		}
	}
	writeJSON(w, http.StatusOK, status)
}

// =============================================================================
// Coordinator
// =============================================================================

func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.coord.GetConfig(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) getTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.coord.Totals(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"held":        totals.Held,
		"tracked":     totals.Tracked,
		"unaccounted": totals.Unaccounted(),
	})
}

func (h *Handler) getSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, svcerrors.ErrInvalidSubscription.WithDetails("id", mux.Vars(r)["id"]))
		return
	}
	sub, err := h.coord.GetSubscription(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	pending, err := h.coord.PendingRequestExists(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		vrf.Subscription
		PendingRequestExists bool `json:"pending_request_exists"`
	}{sub, pending})
}

func (h *Handler) getNonce(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		writeError(w, svcerrors.ErrInvalidSubscription)
		return
	}
	consumer, err := parseUint160(vars["consumer"])
	if err != nil {
		writeError(w, badRequest("consumer", err))
		return
	}
	nonce, err := h.coord.Nonce(r.Context(), id, consumer)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sub_id": id, "consumer": consumer, "nonce": nonce})
}

func (h *Handler) listProvingKeys(w http.ResponseWriter, r *http.Request) {
	hashes, err := h.coord.ProvingKeyHashes(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	keys := make([]vrf.ProvingKey, 0, len(hashes))
	for _, kh := range hashes {
		key, err := h.coord.GetProvingKey(r.Context(), kh)
		if err != nil {
			writeError(w, err)
			return
		}
		keys = append(keys, key)
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

func (h *Handler) getProvingKey(w http.ResponseWriter, r *http.Request) {
	kh, err := parseUint256(mux.Vars(r)["hash"])
	if err != nil {
		writeError(w, badRequest("hash", err))
		return
	}
	key, err := h.coord.GetProvingKey(r.Context(), kh)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, key)
}

func (h *Handler) getFeeTier(w http.ResponseWriter, r *http.Request) {
	count, err := strconv.ParseUint(mux.Vars(r)["count"], 10, 64)
	if err != nil {
		writeError(w, badRequest("count", err))
		return
	}
	fee, err := h.coord.FeeTier(r.Context(), count)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"request_count": count,
		"fee":           fee,
		"flat_fee":      int64(fee) * vrf.FlatFeeUnit,
	})
}

func (h *Handler) getRequest(w http.ResponseWriter, r *http.Request) {
	id, err := parseUint256(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, badRequest("id", err))
		return
	}
	c, ok, err := h.coord.CommitmentOf(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, svcerrors.ErrNoCorrespondingRequest.WithDetails("request_id", id.StringLE()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"request_id": id, "commitment": c})
}

func (h *Handler) getWithdrawable(w http.ResponseWriter, r *http.Request) {
	addr, err := parseUint160(mux.Vars(r)["address"])
	if err != nil {
		writeError(w, badRequest("address", err))
		return
	}
	amount, err := h.coord.Withdrawable(r.Context(), addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"address": addr, "amount": amount})
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeError(w, svcerrors.NotFound("EventsDisabled", "event history is not kept"))
		return
	}
	q := r.URL.Query()
	after, err := queryUint(q.Get("after"), 0)
	if err != nil {
		writeError(w, badRequest("after", err))
		return
	}
	limit, err := queryUint(q.Get("limit"), defaultEventLimit)
	if err != nil {
		writeError(w, badRequest("limit", err))
		return
	}
	if limit == 0 || limit > maxEventLimit {
		limit = maxEventLimit
	}
	var envs []journal.Envelope
	if name := q.Get("name"); name != "" {
		for _, env := range h.events.Named(name) {
			if env.Seq > after && uint64(len(envs)) < limit {
				envs = append(envs, env)
			}
		}
	} else {
		envs = h.events.Since(after, int(limit))
	}
	if envs == nil {
		envs = []journal.Envelope{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": envs})
}

func (h *Handler) getAudit(w http.ResponseWriter, r *http.Request) {
	if h.auditor == nil {
		writeError(w, svcerrors.NotFound("AuditDisabled", "auditor is not running"))
		return
	}
	rep, err := h.auditor.Check(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// =============================================================================
// Wrapper
// =============================================================================

var errWrapperDisabled = svcerrors.NotFound("WrapperNotDeployed", "wrapper is not deployed")

func (h *Handler) getWrapperConfig(w http.ResponseWriter, r *http.Request) {
	if h.wrapper == nil {
		writeError(w, errWrapperDisabled)
		return
	}
	cfg, err := h.wrapper.GetConfig(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	st, err := h.wrapper.State(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"config":          cfg,
		"enabled":         st.Enabled,
		"sub_id":          st.SubID,
		"last_request_id": st.LastRequestID,
	})
}

func (h *Handler) getWrapperPrice(w http.ResponseWriter, r *http.Request) {
	if h.wrapper == nil {
		writeError(w, errWrapperDisabled)
		return
	}
	q := r.URL.Query()
	gasLimit, err := queryUint(q.Get("callback_gas_limit"), 0)
	if err != nil || gasLimit > uint64(^uint32(0)) {
		writeError(w, badRequest("callback_gas_limit", err))
		return
	}
	numWords, err := queryUint(q.Get("num_words"), 1)
	if err != nil || numWords > uint64(^uint32(0)) {
		writeError(w, badRequest("num_words", err))
		return
	}
	gasPrice, err := strconv.ParseInt(q.Get("gas_price"), 10, 64)
	if err != nil {
		writeError(w, badRequest("gas_price", err))
		return
	}
	price, err := h.wrapper.CalculateRequestPrice(r.Context(), uint32(gasLimit), uint32(numWords), gasPrice)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"price": price})
}

func (h *Handler) getWrapperRequest(w http.ResponseWriter, r *http.Request) {
	if h.wrapper == nil {
		writeError(w, errWrapperDisabled)
		return
	}
	id, err := parseUint256(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, badRequest("id", err))
		return
	}
	cb, err := h.wrapper.Callback(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cb)
}

// =============================================================================
// Helpers
// =============================================================================

func parseUint256(s string) (util.Uint256, error) {
	return util.Uint256DecodeStringLE(strings.TrimPrefix(s, "0x"))
}

func parseUint160(s string) (util.Uint160, error) {
	return util.Uint160DecodeStringLE(strings.TrimPrefix(s, "0x"))
}

func queryUint(s string, def uint64) (uint64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

func badRequest(field string, err error) *svcerrors.ServiceError {
	e := svcerrors.Validation("BadRequest", fmt.Sprintf("invalid %s", field))
	if err != nil {
		e = e.WithDetails("reason", err.Error())
	}
	return e
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	se := svcerrors.GetServiceError(err)
	if se == nil {
		se = svcerrors.Internal("internal error", err)
	}
	status := se.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]any{"error": se})
}
