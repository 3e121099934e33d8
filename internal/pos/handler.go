package pos

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/platform/httpx"
	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// Handler wires HTTP endpoints for the POS module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs POS handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers POS routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/carts", h.handleCreateCart)
	r.Post("/carts/{saleID}/items", h.handleAddItem)
	r.Put("/carts/{saleID}/items/{itemID}", h.handleUpdateItem)
	r.Delete("/carts/{saleID}/items/{itemID}", h.handleRemoveItem)
	r.Post("/carts/{saleID}/complete", h.handleComplete)
	r.Post("/quick-sale", h.handleQuickSale)
	r.Get("/sales/{saleID}", h.handleGetSale)
	r.Post("/sales/{saleID}/void", h.handleVoid)
	r.Post("/sales/{saleID}/refund", h.handleRefund)
	r.Post("/sessions", h.handleOpenSession)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
	r.Post("/sessions/{sessionID}/close", h.handleCloseSession)
}

type createCartRequest struct {
	LocationID int64   `json:"location_id" validate:"required,gt=0"`
	SessionID  *string `json:"session_id,omitempty"`
	CustomerID *int64  `json:"customer_id,omitempty"`
}

type cartItemRequest struct {
	ProductID    int64  `json:"product_id" validate:"required,gt=0"`
	Quantity     int64  `json:"quantity" validate:"required,gt=0"`
	UnitPrice    string `json:"unit_price" validate:"required"`
	UnitDiscount string `json:"unit_discount,omitempty"`
}

type paymentRequest struct {
	Method string `json:"method" validate:"required,oneof=CASH CARD TRANSFER OTHER"`
	Amount string `json:"amount" validate:"required"`
}

type completeRequest struct {
	DiscountAmount string           `json:"discount_amount,omitempty"`
	Payments       []paymentRequest `json:"payments" validate:"required,min=1,dive"`
}

type quickSaleRequest struct {
	LocationID     int64             `json:"location_id" validate:"required,gt=0"`
	SessionID      *string           `json:"session_id,omitempty"`
	CustomerID     *int64            `json:"customer_id,omitempty"`
	Items          []cartItemRequest `json:"items" validate:"required,min=1,dive"`
	DiscountAmount string            `json:"discount_amount,omitempty"`
	Payments       []paymentRequest  `json:"payments" validate:"required,min=1,dive"`
}

type voidRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

type refundRequest struct {
	Lines []refundLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type refundLineRequest struct {
	ItemID   string `json:"item_id" validate:"required,uuid"`
	Quantity int64  `json:"quantity" validate:"required,gt=0"`
}

type openSessionRequest struct {
	TerminalID     string `json:"terminal_id" validate:"required,max=50"`
	LocationID     int64  `json:"location_id" validate:"required,gt=0"`
	OpeningBalance string `json:"opening_balance" validate:"required"`
}

type closeSessionRequest struct {
	ClosingBalance string `json:"closing_balance" validate:"required"`
}

func (h *Handler) handleCreateCart(w http.ResponseWriter, r *http.Request) {
	var req createCartRequest
	if !h.decode(w, r, &req) {
		return
	}
	sessionID, ok := h.optionalUUID(w, req.SessionID, "session_id")
	if !ok {
		return
	}
	id := shared.IdentityFromContext(r.Context())
	sale, err := h.service.CreateCart(r.Context(), CreateCartInput{
		TenantID:   id.TenantID,
		LocationID: req.LocationID,
		SessionID:  sessionID,
		CustomerID: req.CustomerID,
		ActorID:    id.ActorID,
	})
	if err != nil {
		h.respondError(w, "create cart", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, saleResponse(sale))
}

func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	saleID, ok := h.pathUUID(w, r, "saleID")
	if !ok {
		return
	}
	var req cartItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	input, ok := h.itemInput(w, req)
	if !ok {
		return
	}
	id := shared.IdentityFromContext(r.Context())
	sale, err := h.service.AddItem(r.Context(), id.TenantID, saleID, input)
	if err != nil {
		h.respondError(w, "add cart item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, saleResponse(sale))
}

func (h *Handler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	saleID, ok := h.pathUUID(w, r, "saleID")
	if !ok {
		return
	}
	itemID, ok := h.pathUUID(w, r, "itemID")
	if !ok {
		return
	}
	var req cartItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	input, ok := h.itemInput(w, req)
	if !ok {
		return
	}
	id := shared.IdentityFromContext(r.Context())
	sale, err := h.service.UpdateItem(r.Context(), id.TenantID, saleID, itemID, input)
	if err != nil {
		h.respondError(w, "update cart item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, saleResponse(sale))
}

func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	saleID, ok := h.pathUUID(w, r, "saleID")
	if !ok {
		return
	}
	itemID, ok := h.pathUUID(w, r, "itemID")
	if !ok {
		return
	}
	id := shared.IdentityFromContext(r.Context())
	sale, err := h.service.RemoveItem(r.Context(), id.TenantID, saleID, itemID)
	if err != nil {
		h.respondError(w, "remove cart item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, saleResponse(sale))
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	saleID, ok := h.pathUUID(w, r, "saleID")
	if !ok {
		return
	}
	var req completeRequest
	if !h.decode(w, r, &req) {
		return
	}
	discount, ok := h.optionalDecimal(w, req.DiscountAmount, "discount_amount")
	if !ok {
		return
	}
	payments, ok := h.payments(w, req.Payments)
	if !ok {
		return
	}
	id := shared.IdentityFromContext(r.Context())
	sale, err := h.service.Complete(r.Context(), id.TenantID, saleID, CompleteInput{
		DiscountAmount: discount,
		Payments:       payments,
		ActorID:        id.ActorID,
	})
	if err != nil {
		h.respondError(w, "complete sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, saleResponse(sale))
}

func (h *Handler) handleQuickSale(w http.ResponseWriter, r *http.Request) {
	var req quickSaleRequest
	if !h.decode(w, r, &req) {
		return
	}
	sessionID, ok := h.optionalUUID(w, req.SessionID, "session_id")
	if !ok {
		return
	}
	discount, ok := h.optionalDecimal(w, req.DiscountAmount, "discount_amount")
	if !ok {
		return
	}
	items := make([]CartItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		input, ok := h.itemInput(w, it)
		if !ok {
			return
		}
		items = append(items, input)
	}
	payments, ok := h.payments(w, req.Payments)
	if !ok {
		return
	}
	id := shared.IdentityFromContext(r.Context())
	sale, err := h.service.QuickSale(r.Context(), QuickSaleInput{
		TenantID:       id.TenantID,
		LocationID:     req.LocationID,
		SessionID:      sessionID,
		CustomerID:     req.CustomerID,
		Items:          items,
		DiscountAmount: discount,
		Payments:       payments,
		ActorID:        id.ActorID,
	})
	if err != nil {
		h.respondError(w, "quick sale", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, saleResponse(sale))
}

func (h *Handler) handleGetSale(w http.ResponseWriter, r *http.Request) {
	saleID, ok := h.pathUUID(w, r, "saleID")
	if !ok {
		return
	}
	id := shared.IdentityFromContext(r.Context())
	sale, err := h.service.GetSale(r.Context(), id.TenantID, saleID)
	if err != nil {
		h.respondError(w, "get sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, saleResponse(sale))
}

func (h *Handler) handleVoid(w http.ResponseWriter, r *http.Request) {
	saleID, ok := h.pathUUID(w, r, "saleID")
	if !ok {
		return
	}
	var req voidRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := shared.IdentityFromContext(r.Context())
	sale, err := h.service.Void(r.Context(), id.TenantID, saleID, req.Reason, id.ActorID)
	if err != nil {
		h.respondError(w, "void sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, saleResponse(sale))
}

func (h *Handler) handleRefund(w http.ResponseWriter, r *http.Request) {
	saleID, ok := h.pathUUID(w, r, "saleID")
	if !ok {
		return
	}
	var req refundRequest
	if !h.decode(w, r, &req) {
		return
	}
	lines := make([]RefundLineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		itemID, err := uuid.Parse(l.ItemID)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "item_id is not a valid uuid")
			return
		}
		lines = append(lines, RefundLineInput{ItemID: itemID, Quantity: l.Quantity})
	}
	id := shared.IdentityFromContext(r.Context())
	sale, err := h.service.Refund(r.Context(), id.TenantID, saleID, lines, id.ActorID)
	if err != nil {
		h.respondError(w, "refund sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, saleResponse(sale))
}

func (h *Handler) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	opening, err := decimal.NewFromString(req.OpeningBalance)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "opening_balance is not a valid decimal")
		return
	}
	id := shared.IdentityFromContext(r.Context())
	session, err := h.service.OpenSession(r.Context(), OpenSessionInput{
		TenantID:       id.TenantID,
		TerminalID:     req.TerminalID,
		LocationID:     req.LocationID,
		OpeningBalance: opening,
		ActorID:        id.ActorID,
	})
	if err != nil {
		h.respondError(w, "open session", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sessionResponse(session))
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.pathUUID(w, r, "sessionID")
	if !ok {
		return
	}
	id := shared.IdentityFromContext(r.Context())
	session, err := h.service.GetSession(r.Context(), id.TenantID, sessionID)
	if err != nil {
		h.respondError(w, "get session", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sessionResponse(session))
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.pathUUID(w, r, "sessionID")
	if !ok {
		return
	}
	var req closeSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	closing, err := decimal.NewFromString(req.ClosingBalance)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "closing_balance is not a valid decimal")
		return
	}
	id := shared.IdentityFromContext(r.Context())
	session, err := h.service.CloseSession(r.Context(), id.TenantID, sessionID, CloseSessionInput{
		ClosingBalance: closing,
		ActorID:        id.ActorID,
	})
	if err != nil {
		h.respondError(w, "close session", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sessionResponse(session))
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
	switch {
	case errors.Is(err, ErrPriceOutOfBounds), errors.Is(err, ErrRefundQuantity), errors.Is(err, ErrEmptySale):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

func (h *Handler) pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", name+" is not a valid uuid")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) optionalUUID(w http.ResponseWriter, raw *string, field string) (*uuid.UUID, bool) {
	if raw == nil || *raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", field+" is not a valid uuid")
		return nil, false
	}
	return &id, true
}

func (h *Handler) optionalDecimal(w http.ResponseWriter, raw, field string) (decimal.Decimal, bool) {
	if raw == "" {
		return decimal.Zero, true
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", field+" is not a valid decimal")
		return decimal.Zero, false
	}
	return d, true
}

func (h *Handler) itemInput(w http.ResponseWriter, req cartItemRequest) (CartItemInput, bool) {
	price, err := decimal.NewFromString(req.UnitPrice)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_price is not a valid decimal")
		return CartItemInput{}, false
	}
	discount, ok := h.optionalDecimal(w, req.UnitDiscount, "unit_discount")
	if !ok {
		return CartItemInput{}, false
	}
	return CartItemInput{
		ProductID:    req.ProductID,
		Quantity:     req.Quantity,
		UnitPrice:    price,
		UnitDiscount: discount,
	}, true
}

func (h *Handler) payments(w http.ResponseWriter, reqs []paymentRequest) ([]PaymentInput, bool) {
	payments := make([]PaymentInput, 0, len(reqs))
	for _, p := range reqs {
		amount, err := decimal.NewFromString(p.Amount)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "payment amount is not a valid decimal")
			return nil, false
		}
		payments = append(payments, PaymentInput{Method: PaymentMethod(p.Method), Amount: amount})
	}
	return payments, true
}

func saleResponse(sale Sale) map[string]any {
	items := make([]map[string]any, 0, len(sale.Items))
	for _, it := range sale.Items {
		items = append(items, map[string]any{
			"id":             it.ID,
			"product_id":     it.ProductID,
			"quantity":       it.Quantity,
			"unit_price":     it.UnitPrice.StringFixed(shared.MoneyScale),
			"unit_discount":  it.UnitDiscount.StringFixed(shared.MoneyScale),
			"unit_cost":      it.UnitCost.StringFixed(shared.MoneyScale),
			"line_total":     it.LineTotal.StringFixed(shared.MoneyScale),
			"refunded_qty":   it.RefundedQty,
			"reservation_id": it.ReservationID,
		})
	}
	payments := make([]map[string]any, 0, len(sale.Payments))
	for _, p := range sale.Payments {
		payments = append(payments, map[string]any{
			"id":     p.ID,
			"method": p.Method,
			"amount": p.Amount.StringFixed(shared.MoneyScale),
		})
	}
	return map[string]any{
		"id":              sale.ID,
		"sale_number":     sale.SaleNumber,
		"status":          sale.Status,
		"location_id":     sale.LocationID,
		"session_id":      sale.SessionID,
		"customer_id":     sale.CustomerID,
		"subtotal":        sale.Subtotal.StringFixed(shared.MoneyScale),
		"discount_amount": sale.DiscountAmount.StringFixed(shared.MoneyScale),
		"tax_amount":      sale.TaxAmount.StringFixed(shared.MoneyScale),
		"total_amount":    sale.TotalAmount.StringFixed(shared.MoneyScale),
		"paid_amount":     sale.PaidAmount.StringFixed(shared.MoneyScale),
		"change_amount":   sale.ChangeAmount.StringFixed(shared.MoneyScale),
		"void_reason":     sale.VoidReason,
		"created_at":      sale.CreatedAt,
		"completed_at":    sale.CompletedAt,
		"voided_at":       sale.VoidedAt,
		"items":           items,
		"payments":        payments,
	}
}

func sessionResponse(s POSSession) map[string]any {
	out := map[string]any{
		"id":              s.ID,
		"terminal_id":     s.TerminalID,
		"location_id":     s.LocationID,
		"opening_balance": s.OpeningBalance.StringFixed(shared.MoneyScale),
		"status":          s.Status,
		"opened_at":       s.OpenedAt,
		"closed_at":       s.ClosedAt,
	}
	if s.ClosingBalance != nil {
		out["closing_balance"] = s.ClosingBalance.StringFixed(shared.MoneyScale)
	}
	if s.ExpectedBalance != nil {
		out["expected_balance"] = s.ExpectedBalance.StringFixed(shared.MoneyScale)
	}
	if s.Variance != nil {
		out["variance"] = s.Variance.StringFixed(shared.MoneyScale)
	}
	return out
}
