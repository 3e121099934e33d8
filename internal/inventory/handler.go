package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/platform/httpx"
	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// Handler wires HTTP endpoints for the inventory module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/receipts", h.handleReceive)
	r.Post("/adjustments", h.handleAdjustment)
	r.Post("/transfers", h.handleTransfer)
	r.Post("/reservations", h.handleReserve)
	r.Delete("/reservations/{id}", h.handleRelease)
	r.Get("/movements", h.handleMovements)
	r.Get("/balance", h.handleBalance)
}

type receiveRequest struct {
	ProductID     int64  `json:"product_id" validate:"required,gt=0"`
	LocationID    int64  `json:"location_id" validate:"required,gt=0"`
	Quantity      int64  `json:"quantity" validate:"required,gt=0"`
	UnitCost      string `json:"unit_cost" validate:"required"`
	ReferenceType string `json:"reference_type" validate:"required,max=50"`
	ReferenceID   string `json:"reference_id" validate:"required,max=100"`
}

type adjustmentRequest struct {
	ProductID     int64  `json:"product_id" validate:"required,gt=0"`
	LocationID    int64  `json:"location_id" validate:"required,gt=0"`
	Quantity      int64  `json:"quantity" validate:"required"`
	UnitCost      string `json:"unit_cost,omitempty"`
	ReferenceType string `json:"reference_type,omitempty" validate:"max=50"`
	ReferenceID   string `json:"reference_id,omitempty" validate:"max=100"`
}

type transferRequest struct {
	ProductID     int64  `json:"product_id" validate:"required,gt=0"`
	SrcLocationID int64  `json:"src_location_id" validate:"required,gt=0"`
	DstLocationID int64  `json:"dst_location_id" validate:"required,gt=0,nefield=SrcLocationID"`
	Quantity      int64  `json:"quantity" validate:"required,gt=0"`
	ReferenceType string `json:"reference_type" validate:"required,max=50"`
	ReferenceID   string `json:"reference_id" validate:"required,max=100"`
}

type reserveRequest struct {
	ProductID     int64  `json:"product_id" validate:"required,gt=0"`
	LocationID    int64  `json:"location_id" validate:"required,gt=0"`
	Quantity      int64  `json:"quantity" validate:"required,gt=0"`
	ReferenceType string `json:"reference_type" validate:"required,max=50"`
	ReferenceID   string `json:"reference_id" validate:"required,max=100"`
	TTLSeconds    int64  `json:"ttl_seconds,omitempty" validate:"gte=0,lte=86400"`
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	var req receiveRequest
	if !h.decode(w, r, &req) {
		return
	}
	unitCost, err := decimal.NewFromString(req.UnitCost)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_cost is not a valid decimal")
		return
	}
	id := shared.IdentityFromContext(r.Context())
	movement, err := h.service.ReceiveStock(r.Context(), ReceiveInput{
		TenantID:      id.TenantID,
		ProductID:     req.ProductID,
		LocationID:    req.LocationID,
		Quantity:      req.Quantity,
		UnitCost:      unitCost,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		ActorID:       id.ActorID,
	})
	if err != nil {
		h.respondError(w, "receive stock", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movementResponse(movement))
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	unitCost := decimal.Zero
	if req.UnitCost != "" {
		var err error
		unitCost, err = decimal.NewFromString(req.UnitCost)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_cost is not a valid decimal")
			return
		}
	}
	id := shared.IdentityFromContext(r.Context())
	movement, err := h.service.PostAdjustment(r.Context(), AdjustmentInput{
		TenantID:      id.TenantID,
		ProductID:     req.ProductID,
		LocationID:    req.LocationID,
		Quantity:      req.Quantity,
		UnitCost:      unitCost,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		ActorID:       id.ActorID,
	})
	if err != nil {
		h.respondError(w, "post adjustment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movementResponse(movement))
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := shared.IdentityFromContext(r.Context())
	out, in, err := h.service.PostTransfer(r.Context(), TransferInput{
		TenantID:      id.TenantID,
		ProductID:     req.ProductID,
		SrcLocationID: req.SrcLocationID,
		DstLocationID: req.DstLocationID,
		Quantity:      req.Quantity,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		ActorID:       id.ActorID,
	})
	if err != nil {
		h.respondError(w, "post transfer", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"out": movementResponse(out),
		"in":  movementResponse(in),
	})
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := shared.IdentityFromContext(r.Context())
	res, err := h.service.Reserve(r.Context(), ReserveInput{
		TenantID:      id.TenantID,
		ProductID:     req.ProductID,
		LocationID:    req.LocationID,
		Quantity:      req.Quantity,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		TTL:           time.Duration(req.TTLSeconds) * time.Second,
	})
	if err != nil {
		h.respondError(w, "create reservation", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	resID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "reservation id is not a valid uuid")
		return
	}
	if err := h.service.Release(r.Context(), resID); err != nil {
		h.respondError(w, "release reservation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	id := shared.IdentityFromContext(r.Context())
	filter := HistoryFilter{TenantID: id.TenantID}
	q := r.URL.Query()
	filter.ProductID, _ = strconv.ParseInt(q.Get("product_id"), 10, 64)
	filter.LocationID, _ = strconv.ParseInt(q.Get("location_id"), 10, 64)
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			filter.From = t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			// end of day
			filter.To = t.Add(24*time.Hour - time.Nanosecond)
		}
	}
	if v := q.Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	movements, err := h.service.MovementHistory(r.Context(), filter)
	if err != nil {
		h.respondError(w, "list movements", err)
		return
	}
	out := make([]map[string]any, 0, len(movements))
	for _, m := range movements {
		out = append(out, movementResponse(m))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	id := shared.IdentityFromContext(r.Context())
	q := r.URL.Query()
	productID, _ := strconv.ParseInt(q.Get("product_id"), 10, 64)
	locationID, _ := strconv.ParseInt(q.Get("location_id"), 10, 64)
	if productID == 0 || locationID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product_id and location_id are required")
		return
	}
	balance, err := h.service.GetBalance(r.Context(), id.TenantID, productID, locationID)
	if err != nil {
		h.respondError(w, "get balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"product_id":  balance.ProductID,
		"location_id": balance.LocationID,
		"on_hand":     balance.OnHand,
		"reserved":    balance.Reserved,
		"available":   balance.Available(),
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func movementResponse(m Movement) map[string]any {
	return map[string]any{
		"id":             m.ID,
		"type":           m.Type,
		"product_id":     m.ProductID,
		"location_id":    m.LocationID,
		"quantity":       m.Quantity,
		"unit_cost":      m.UnitCost.StringFixed(shared.MoneyScale),
		"total_cost":     m.TotalCost.StringFixed(shared.MoneyScale),
		"reference_type": m.ReferenceType,
		"reference_id":   m.ReferenceID,
		"status":         m.Status,
		"created_at":     m.CreatedAt,
	}
}
