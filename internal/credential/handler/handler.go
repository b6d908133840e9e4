package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"soulcert/internal/credential/models"
	"soulcert/internal/platform/metrics"
	"soulcert/internal/platform/middleware"
	id "soulcert/pkg/domain"
	dErrors "soulcert/pkg/domain-errors"
	"soulcert/pkg/platform/audit"
	"soulcert/pkg/platform/httputil"
	"soulcert/pkg/platform/middleware/requesttime"
)

// Service defines the registry operations exposed over HTTP.
type Service interface {
	CreateOffer(ctx context.Context, issuer, recipient id.PrincipalID, metadataRef string, policyCode int) (int, error)
	CountOffers(ctx context.Context, caller id.PrincipalID) (int, error)
	GetOffer(ctx context.Context, caller id.PrincipalID, index int) (models.Offer, error)
	ListOffers(ctx context.Context, caller id.PrincipalID) ([]models.Offer, error)
	Accept(ctx context.Context, caller id.PrincipalID, index int) (models.RecordView, error)
	Reject(ctx context.Context, caller id.PrincipalID, index int) error
	Burn(ctx context.Context, caller id.PrincipalID, recordID id.RecordID) error
	Transfer(ctx context.Context, caller id.PrincipalID, recordID id.RecordID, to id.PrincipalID) error
	RecordOf(ctx context.Context, recordID id.RecordID) (models.RecordView, error)
	TotalRecords(ctx context.Context) (int, error)
	RecordsOf(ctx context.Context, holder id.PrincipalID) ([]models.RecordView, error)
	RecordOfHolderByIndex(ctx context.Context, holder id.PrincipalID, index int) (models.RecordView, error)
	AuditTrail(ctx context.Context, principal id.PrincipalID) ([]audit.Event, error)
}

const maxBodyBytes = 64 << 10

// Handler serves the credential registry under /v1.
type Handler struct {
	logger       *slog.Logger
	registry     Service
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
	timeout      time.Duration
}

// New creates a new registry Handler.
func New(
	registry Service,
	logger *slog.Logger,
	metrics *metrics.Metrics,
	jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		registry:     registry,
		metrics:      metrics,
		jwtValidator: jwtValidator,
		timeout:      30 * time.Second,
	}
}

// Register registers the registry routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	v1 := chi.NewRouter()
	v1.Use(middleware.Recovery(h.logger))
	v1.Use(middleware.RequestID)
	v1.Use(requesttime.Middleware)
	v1.Use(middleware.Logger(h.logger))
	v1.Use(middleware.Timeout(h.timeout))
	v1.Use(middleware.ContentTypeJSON)
	v1.Use(middleware.LatencyMiddleware(h.metrics))
	v1.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

	v1.Route("/offers", func(r chi.Router) {
		r.Post("/", h.handleCreateOffer)
		r.Get("/", h.handleListOffers)
		r.Get("/count", h.handleCountOffers)
		r.Get("/{index}", h.handleGetOffer)
		r.Post("/{index}/accept", h.handleAccept)
		r.Post("/{index}/reject", h.handleReject)
	})
	v1.Route("/records", func(r chi.Router) {
		r.Get("/", h.handleTotalRecords)
		r.Get("/{id}", h.handleRecordOf)
		r.Get("/{id}/metadata", h.handleRecordField("metadata_ref"))
		r.Get("/{id}/issuer", h.handleRecordField("issuer"))
		r.Get("/{id}/policy", h.handleRecordField("policy"))
		r.Get("/{id}/holder", h.handleRecordField("holder"))
		r.Delete("/{id}", h.handleBurn)
		r.Post("/{id}/transfer", h.handleTransfer)
	})
	v1.Get("/principals/{principal}/records", h.handleRecordsOf)
	v1.Get("/principals/{principal}/records/{index}", h.handleRecordOfHolderByIndex)
	v1.Get("/audit", h.handleAuditTrail)

	r.Mount("/v1", v1)
}

func (h *Handler) handleCreateOffer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CreateOfferRequest
	if !h.decode(w, r, &req) {
		return
	}
	recipient, err := id.ParsePrincipalID(req.Recipient)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Policy == nil {
		h.writeError(w, r, dErrors.New(dErrors.CodeBadRequest, "policy is required"))
		return
	}

	slot, err := h.registry.CreateOffer(ctx, middleware.GetPrincipal(r), recipient, req.MetadataRef, *req.Policy)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]int{"index": slot})
}

func (h *Handler) handleListOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := h.registry.ListOffers(r.Context(), middleware.GetPrincipal(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := OfferListResponse{Count: len(offers), Offers: make([]OfferResponse, 0, len(offers))}
	for i, o := range offers {
		resp.Offers = append(resp.Offers, toOfferResponse(i, o))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCountOffers(w http.ResponseWriter, r *http.Request) {
	n, err := h.registry.CountOffers(r.Context(), middleware.GetPrincipal(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (h *Handler) handleGetOffer(w http.ResponseWriter, r *http.Request) {
	index, ok := h.index(w, r)
	if !ok {
		return
	}
	offer, err := h.registry.GetOffer(r.Context(), middleware.GetPrincipal(r), index)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toOfferResponse(index, offer))
}

func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	index, ok := h.index(w, r)
	if !ok {
		return
	}
	view, err := h.registry.Accept(r.Context(), middleware.GetPrincipal(r), index)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toRecordResponse(view))
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	index, ok := h.index(w, r)
	if !ok {
		return
	}
	if err := h.registry.Reject(r.Context(), middleware.GetPrincipal(r), index); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleTotalRecords(w http.ResponseWriter, r *http.Request) {
	n, err := h.registry.TotalRecords(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"total": n})
}

func (h *Handler) handleRecordOf(w http.ResponseWriter, r *http.Request) {
	recordID, ok := h.recordID(w, r)
	if !ok {
		return
	}
	view, err := h.registry.RecordOf(r.Context(), recordID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(view))
}

// handleRecordField serves the single-field accessors.
func (h *Handler) handleRecordField(field string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recordID, ok := h.recordID(w, r)
		if !ok {
			return
		}
		view, err := h.registry.RecordOf(r.Context(), recordID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		body := map[string]any{"id": view.ID}
		switch field {
		case "metadata_ref":
			body[field] = view.MetadataRef
		case "issuer":
			body[field] = view.Issuer
		case "holder":
			body[field] = view.Holder
		case "policy":
			body[field] = view.Policy
			body["policy_code"] = view.Policy.Code()
		}
		httputil.WriteJSON(w, http.StatusOK, body)
	}
}

func (h *Handler) handleBurn(w http.ResponseWriter, r *http.Request) {
	recordID, ok := h.recordID(w, r)
	if !ok {
		return
	}
	if err := h.registry.Burn(r.Context(), middleware.GetPrincipal(r), recordID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	recordID, ok := h.recordID(w, r)
	if !ok {
		return
	}
	var req TransferRequest
	if !h.decode(w, r, &req) {
		return
	}
	to, err := id.ParsePrincipalID(req.To)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	err = h.registry.Transfer(r.Context(), middleware.GetPrincipal(r), recordID, to)
	if err == nil {
		err = models.ErrTransferNotPermitted
	}
	h.writeError(w, r, err)
}

func (h *Handler) handleRecordsOf(w http.ResponseWriter, r *http.Request) {
	holder, ok := h.principal(w, r)
	if !ok {
		return
	}
	views, err := h.registry.RecordsOf(r.Context(), holder)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := HoldingsResponse{Holder: holder, Balance: len(views), Records: make([]RecordResponse, 0, len(views))}
	for _, v := range views {
		resp.Records = append(resp.Records, toRecordResponse(v))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRecordOfHolderByIndex(w http.ResponseWriter, r *http.Request) {
	holder, ok := h.principal(w, r)
	if !ok {
		return
	}
	index, ok := h.index(w, r)
	if !ok {
		return
	}
	view, err := h.registry.RecordOfHolderByIndex(r.Context(), holder, index)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(view))
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	trail, err := h.registry.AuditTrail(r.Context(), middleware.GetPrincipal(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": toAuditResponse(trail)})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.logger.WarnContext(r.Context(), "invalid request body",
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		h.writeError(w, r, dErrors.New(dErrors.CodeBadRequest, "index must be a non-negative integer"))
		return 0, false
	}
	return index, true
}

func (h *Handler) recordID(w http.ResponseWriter, r *http.Request) (id.RecordID, bool) {
	recordID, err := id.ParseRecordID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return 0, false
	}
	return recordID, true
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (id.PrincipalID, bool) {
	p, err := id.ParsePrincipalID(chi.URLParam(r, "principal"))
	if err != nil {
		h.writeError(w, r, err)
		return id.PrincipalID{}, false
	}
	return p, true
}

// writeError logs server-side failures and writes the error envelope.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	var de *dErrors.Error
	if !errors.As(err, &de) || dErrors.ToHTTPStatus(de.Code) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "registry request failed",
			"request_id", requestID,
			"path", r.URL.Path,
			"error", err.Error(),
		)
	} else {
		h.logger.InfoContext(ctx, "registry request rejected",
			"request_id", requestID,
			"path", r.URL.Path,
			"code", string(de.Code),
		)
	}
	httputil.WriteError(w, err)
}
