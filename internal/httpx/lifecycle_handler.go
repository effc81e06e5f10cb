package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-order-lifecycle/internal/audit"
	"github.com/ariefcatur/go-order-lifecycle/internal/workflow"
)

// Actor identity is asserted by the upstream gateway.
const (
	HeaderActorID   = "X-Actor-Id"
	HeaderActorRole = "X-Actor-Role"
)

// AuditReader lists the audit trail of an entity.
type AuditReader interface {
	ListByEntity(ctx context.Context, entityType, entityID string) ([]audit.Event, error)
}

type LifecycleHandler struct {
	Transitions *workflow.Orchestrator
	Offers      *workflow.OfferCoordinator
	AuditLog    AuditReader // nil when audit events are not queryable from this process
}

type TransitionReq struct {
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	FromStatus string         `json:"from_status"`
	ToStatus   string         `json:"to_status"`
	EventType  string         `json:"event_type,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type SubmitOfferReq struct {
	DriverID   string `json:"driver_id"`
	PriceCents int64  `json:"price_cents"`
}

type errorResp struct {
	Error string             `json:"error"`
	Kind  workflow.ErrorKind `json:"kind,omitempty"`
}

func (h *LifecycleHandler) Register(r chi.Router) {
	r.Post("/transitions", h.performTransition)
	r.Get("/transitions/check", h.checkTransition)
	r.Get("/entities/{type}/{id}/status", h.getStatus)
	r.Get("/entities/{type}/{id}/audit", h.listAudit)
	r.Post("/orders/{orderID}/offers", h.submitOffer)
	r.Post("/orders/{orderID}/offers/{offerID}/accept", h.acceptOffer)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	kind := workflow.KindOf(err)
	writeJSON(w, statusFor(kind), errorResp{Error: err.Error(), Kind: kind})
}

func statusFor(kind workflow.ErrorKind) int {
	switch kind {
	case workflow.KindInvalidTransition:
		return http.StatusUnprocessableEntity
	case workflow.KindUnauthorized:
		return http.StatusForbidden
	case workflow.KindContention, workflow.KindOfferClosed:
		return http.StatusConflict
	case workflow.KindNotFound:
		return http.StatusNotFound
	case workflow.KindInvalidInput:
		return http.StatusBadRequest
	case workflow.KindPersistence:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *LifecycleHandler) performTransition(w http.ResponseWriter, r *http.Request) {
	var req TransitionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid json", Kind: workflow.KindInvalidInput})
		return
	}
	entity, ok := workflow.ParseEntityType(req.EntityType)
	if !ok || req.EntityID == "" || req.ToStatus == "" {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "missing or unknown fields", Kind: workflow.KindInvalidInput})
		return
	}
	actorID, role := r.Header.Get(HeaderActorID), r.Header.Get(HeaderActorRole)
	if actorID == "" || role == "" {
		writeJSON(w, http.StatusUnauthorized, errorResp{Error: "missing actor headers", Kind: workflow.KindUnauthorized})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	_, err := h.Transitions.PerformTransition(ctx, workflow.TransitionRequest{
		EntityType: entity,
		EntityID:   req.EntityID,
		From:       workflow.Status(req.FromStatus),
		To:         workflow.Status(req.ToStatus),
		ActorID:    actorID,
		ActorRole:  workflow.Role(role),
		EventType:  req.EventType,
		Metadata:   req.Metadata,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": req.ToStatus})
}

func (h *LifecycleHandler) checkTransition(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entity, ok := workflow.ParseEntityType(q.Get("entity_type"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "unknown entity_type", Kind: workflow.KindInvalidInput})
		return
	}
	from, to := workflow.Status(q.Get("from")), workflow.Status(q.Get("to"))
	valid := workflow.IsValidTransition(entity, from, to)
	permitted := valid && workflow.HasPermission(entity, from, to, workflow.Role(q.Get("role")))
	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid, "permitted": permitted})
}

func (h *LifecycleHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	entity, ok := workflow.ParseEntityType(chi.URLParam(r, "type"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "unknown entity type", Kind: workflow.KindInvalidInput})
		return
	}
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status, err := h.Transitions.GetCurrentStatus(ctx, entity, id)
	if err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResp{Error: "not found", Kind: workflow.KindNotFound})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entity_type": entity, "entity_id": id, "status": status})
}

func (h *LifecycleHandler) listAudit(w http.ResponseWriter, r *http.Request) {
	if h.AuditLog == nil {
		writeJSON(w, http.StatusNotImplemented, errorResp{Error: "audit log is not queryable here"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	events, err := h.AuditLog.ListByEntity(ctx, chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *LifecycleHandler) submitOffer(w http.ResponseWriter, r *http.Request) {
	var req SubmitOfferReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid json", Kind: workflow.KindInvalidInput})
		return
	}
	if req.DriverID == "" {
		req.DriverID = r.Header.Get(HeaderActorID)
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	offer, err := h.Offers.SubmitOffer(ctx, chi.URLParam(r, "orderID"), req.DriverID, req.PriceCents)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, offer)
}

func (h *LifecycleHandler) acceptOffer(w http.ResponseWriter, r *http.Request) {
	actorID, role := r.Header.Get(HeaderActorID), workflow.Role(r.Header.Get(HeaderActorRole))
	if actorID == "" || role == "" {
		writeJSON(w, http.StatusUnauthorized, errorResp{Error: "missing actor headers", Kind: workflow.KindUnauthorized})
		return
	}
	// Accepting moves the order offer_pending → deal_accepted.
	if !workflow.HasPermission(workflow.EntityOrder, workflow.OrderOfferPending, workflow.OrderDealAccepted, role) {
		writeJSON(w, http.StatusForbidden, errorResp{Error: "role may not accept offers", Kind: workflow.KindUnauthorized})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Offers.AcceptOffer(ctx, chi.URLParam(r, "offerID"), chi.URLParam(r, "orderID"), actorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"offer":            res.Offer,
		"order_status":     res.OrderStatus,
		"already_accepted": res.AlreadyAccepted,
	})
}
