package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/surveysystem/tax-api/internal/geo"
	"github.com/surveysystem/tax-api/internal/orders"
	"github.com/surveysystem/tax-api/internal/tax"
)

// Notifier publishes a finished import report to an external channel.
type Notifier interface {
	ReportImported(report *orders.ImportReport)
}

// OrderHandler handles order-related HTTP requests.
type OrderHandler struct {
	common    *CommonServices
	pipeline  *orders.Pipeline
	notifiers []Notifier
	logger    *zap.Logger
}

// NewOrderHandler creates an order handler. Notifiers are optional.
func NewOrderHandler(common *CommonServices, pipeline *orders.Pipeline, notifiers ...Notifier) *OrderHandler {
	return &OrderHandler{
		common:    common,
		pipeline:  pipeline,
		notifiers: notifiers,
		logger:    common.logger,
	}
}

// CreateOrderRequest represents a manual order entry. Subtotal is a
// decimal string so the amount stays fixed-point on the wire.
type CreateOrderRequest struct {
	ID        int64      `json:"id"`
	Longitude *float64   `json:"longitude" binding:"required"`
	Latitude  *float64   `json:"latitude" binding:"required"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Subtotal  string     `json:"subtotal" binding:"required"`
}

// OrderResponse represents an order in API responses.
type OrderResponse struct {
	ID               int64     `json:"id"`
	Longitude        float64   `json:"longitude"`
	Latitude         float64   `json:"latitude"`
	Timestamp        time.Time `json:"timestamp"`
	SubtotalCents    int64     `json:"subtotal_cents"`
	Subtotal         string    `json:"subtotal"`
	CompositeTaxRate string    `json:"composite_tax_rate"`
	TaxAmountCents   int64     `json:"tax_amount_cents"`
	TaxAmount        string    `json:"tax_amount"`
	TotalAmountCents int64     `json:"total_amount_cents"`
	TotalAmount      string    `json:"total_amount"`
	Jurisdictions    []string  `json:"jurisdictions"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ListOrdersResponse is one page of orders.
type ListOrdersResponse struct {
	Orders   []OrderResponse `json:"orders"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

func toOrderResponse(o *orders.Order) OrderResponse {
	jurisdictions := o.Jurisdictions
	if jurisdictions == nil {
		jurisdictions = []string{}
	}
	return OrderResponse{
		ID:               o.ID,
		Longitude:        o.Longitude,
		Latitude:         o.Latitude,
		Timestamp:        o.Timestamp,
		SubtotalCents:    o.SubtotalCents,
		Subtotal:         tax.FormatCents(o.SubtotalCents),
		CompositeTaxRate: tax.FormatRateMicros(o.RateMicros),
		TaxAmountCents:   o.TaxCents,
		TaxAmount:        tax.FormatCents(o.TaxCents),
		TotalAmountCents: o.TotalCents,
		TotalAmount:      tax.FormatCents(o.TotalCents),
		Jurisdictions:    jurisdictions,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}

// CreateOrder creates a single order from manual entry, resolving its
// jurisdictions and computing the tax breakdown before persisting.
// Unlike batch records, resolution and computation errors propagate to
// the caller here.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	ctx := c.Request.Context()

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.common.HandleError(c, err, "Invalid request body", http.StatusBadRequest)
		return
	}

	subtotalCents, err := tax.ParseCents(req.Subtotal)
	if err != nil {
		h.common.HandleError(c, err, "Invalid subtotal", http.StatusBadRequest)
		return
	}
	if subtotalCents < 0 {
		h.common.HandleError(c, tax.ErrInvalidSubtotal, "Subtotal must not be negative", http.StatusBadRequest)
		return
	}

	pt := geo.Point{Lon: *req.Longitude, Lat: *req.Latitude}
	res, err := h.common.resolver.Resolve(pt)
	if err != nil {
		switch {
		case errors.Is(err, geo.ErrInvalidLocation):
			h.common.HandleError(c, err, "Invalid location", http.StatusBadRequest)
		case errors.Is(err, tax.ErrIndexNotLoaded):
			h.common.HandleError(c, err, "Zone index not loaded", http.StatusServiceUnavailable)
		default:
			h.common.HandleError(c, err, "Failed to resolve jurisdictions", http.StatusInternalServerError)
		}
		return
	}

	taxCents, totalCents, err := h.common.calc.Compute(subtotalCents, res.RateMicros)
	if err != nil {
		h.common.HandleError(c, err, "Failed to compute tax", http.StatusBadRequest)
		return
	}

	timestamp := time.Now().UTC()
	if req.Timestamp != nil {
		timestamp = req.Timestamp.UTC()
	}
	order := &orders.Order{
		ID:            req.ID,
		Longitude:     pt.Lon,
		Latitude:      pt.Lat,
		Timestamp:     timestamp,
		SubtotalCents: subtotalCents,
		RateMicros:    res.RateMicros,
		TaxCents:      taxCents,
		TotalCents:    totalCents,
		Jurisdictions: res.Jurisdictions,
	}
	if err := h.common.store.Save(ctx, order); err != nil {
		if errors.Is(err, orders.ErrDuplicateID) {
			h.common.HandleError(c, err, "Order id already exists", http.StatusConflict)
			return
		}
		h.common.HandleError(c, err, "Failed to persist order", http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusCreated, toOrderResponse(order))
}

// GetOrder fetches one order by id.
func (h *OrderHandler) GetOrder(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("order_id"), 10, 64)
	if err != nil {
		h.common.HandleError(c, err, "Invalid order id", http.StatusBadRequest)
		return
	}
	order, err := h.common.store.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			h.common.HandleError(c, nil, "Order not found", http.StatusNotFound)
			return
		}
		h.common.HandleError(c, err, "Failed to fetch order", http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

// ListOrders returns a filtered, paginated order listing. Filters:
// from/to (RFC3339 or date), min_total/max_total (decimal amounts).
func (h *OrderHandler) ListOrders(c *gin.Context) {
	filter := orders.OrderFilter{}
	filter.Page, filter.PageSize = parsePagination(c)

	if v := c.Query("from"); v != "" {
		ts, err := parseTimeParam(v)
		if err != nil {
			h.common.HandleError(c, err, "Invalid 'from' parameter", http.StatusBadRequest)
			return
		}
		filter.From = &ts
	}
	if v := c.Query("to"); v != "" {
		ts, err := parseTimeParam(v)
		if err != nil {
			h.common.HandleError(c, err, "Invalid 'to' parameter", http.StatusBadRequest)
			return
		}
		filter.To = &ts
	}
	if v := c.Query("min_total"); v != "" {
		cents, err := tax.ParseCents(v)
		if err != nil {
			h.common.HandleError(c, err, "Invalid 'min_total' parameter", http.StatusBadRequest)
			return
		}
		filter.MinTotalCents = &cents
	}
	if v := c.Query("max_total"); v != "" {
		cents, err := tax.ParseCents(v)
		if err != nil {
			h.common.HandleError(c, err, "Invalid 'max_total' parameter", http.StatusBadRequest)
			return
		}
		filter.MaxTotalCents = &cents
	}

	page, err := h.common.store.Query(c.Request.Context(), filter)
	if err != nil {
		h.common.HandleError(c, err, "Failed to list orders", http.StatusInternalServerError)
		return
	}

	resp := ListOrdersResponse{
		Orders:   make([]OrderResponse, 0, len(page.Orders)),
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
	}
	for i := range page.Orders {
		resp.Orders = append(resp.Orders, toOrderResponse(&page.Orders[i]))
	}
	c.JSON(http.StatusOK, resp)
}

// RecalculateOrder re-resolves and re-computes an existing order
// against the currently loaded zone set.
func (h *OrderHandler) RecalculateOrder(c *gin.Context) {
	ctx := c.Request.Context()
	id, err := strconv.ParseInt(c.Param("order_id"), 10, 64)
	if err != nil {
		h.common.HandleError(c, err, "Invalid order id", http.StatusBadRequest)
		return
	}

	order, err := h.common.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			h.common.HandleError(c, nil, "Order not found", http.StatusNotFound)
			return
		}
		h.common.HandleError(c, err, "Failed to fetch order", http.StatusInternalServerError)
		return
	}

	res, err := h.common.resolver.Resolve(geo.Point{Lon: order.Longitude, Lat: order.Latitude})
	if err != nil {
		if errors.Is(err, tax.ErrIndexNotLoaded) {
			h.common.HandleError(c, err, "Zone index not loaded", http.StatusServiceUnavailable)
			return
		}
		h.common.HandleError(c, err, "Failed to resolve jurisdictions", http.StatusInternalServerError)
		return
	}
	taxCents, totalCents, err := h.common.calc.Compute(order.SubtotalCents, res.RateMicros)
	if err != nil {
		h.common.HandleError(c, err, "Failed to compute tax", http.StatusInternalServerError)
		return
	}

	order.RateMicros = res.RateMicros
	order.TaxCents = taxCents
	order.TotalCents = totalCents
	order.Jurisdictions = res.Jurisdictions
	if err := h.common.store.Update(ctx, order); err != nil {
		h.common.HandleError(c, err, "Failed to persist order", http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, toOrderResponse(order))
}

// ImportOrders ingests a CSV batch uploaded as multipart field "file"
// and returns the per-record import report.
func (h *OrderHandler) ImportOrders(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.common.HandleError(c, err, "Missing 'file' upload", http.StatusBadRequest)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		h.common.HandleError(c, err, "Failed to open upload", http.StatusBadRequest)
		return
	}
	defer file.Close()

	src, err := orders.NewCSVSource(file)
	if err != nil {
		h.common.HandleError(c, err, "Unreadable CSV file", http.StatusBadRequest)
		return
	}

	report, err := h.pipeline.ImportBatch(c.Request.Context(), src)
	if err != nil && report == nil {
		if errors.Is(err, tax.ErrIndexNotLoaded) {
			h.common.HandleError(c, err, "Zone index not loaded", http.StatusServiceUnavailable)
			return
		}
		h.common.HandleError(c, err, "Import failed", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		// partial report: dispatch stopped early, in-flight records are included
		h.logger.Warn("Import batch ended early",
			zap.String("batch_id", report.BatchID.String()),
			zap.Error(err))
	}

	for _, n := range h.notifiers {
		go n.ReportImported(report)
	}

	c.JSON(http.StatusOK, report)
}

func parseTimeParam(v string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, v); err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02", v)
}
