package server

import (
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/writepro/writepro/internal/apperrors"
	"github.com/writepro/writepro/internal/lifecycle"
	"github.com/writepro/writepro/internal/service"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	documents *service.DocumentService
	orders    *service.OrderService
	payments  *service.PaymentService
	logger    *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	documents *service.DocumentService,
	orders *service.OrderService,
	payments *service.PaymentService,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		documents: documents,
		orders:    orders,
		payments:  payments,
		logger:    logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func userID(c *gin.Context) string {
	return c.GetString("user_id")
}

// respondError maps domain errors to HTTP status codes
func (h *Handlers) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case errors.Is(err, apperrors.ErrValidation),
		errors.Is(err, apperrors.ErrUnsupportedFormat),
		errors.Is(err, apperrors.ErrExtraction):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, apperrors.ErrNotFound):
		status = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, apperrors.ErrConflict),
		errors.Is(err, apperrors.ErrInvalidState):
		status = http.StatusConflict
		message = err.Error()
	case errors.Is(err, apperrors.ErrInsufficientCredits):
		status = http.StatusPaymentRequired
		message = err.Error()
	default:
		h.logger.Error("Request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}

	c.JSON(status, Response{Success: false, Error: message})
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "writepro",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// UploadDocument handles POST /api/v1/documents (multipart)
func (h *Handlers) UploadDocument(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "missing file field"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		h.respondError(c, err)
		return
	}

	doc, err := h.documents.Upload(userID(c), service.UploadInput{
		FileName:       fileHeader.Filename,
		Title:          c.PostForm("title"),
		RewriteType:    c.PostForm("rewrite_type"),
		TargetLanguage: c.PostForm("target_language"),
		Content:        content,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: doc})
}

// ListDocuments handles GET /api/v1/documents
func (h *Handlers) ListDocuments(c *gin.Context) {
	docs, err := h.documents.List(userID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: docs})
}

// GetDocument handles GET /api/v1/documents/:id
func (h *Handlers) GetDocument(c *gin.Context) {
	doc, logs, err := h.documents.Get(userID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{
		"document": doc,
		"logs":     logs,
	}})
}

// DocumentStatus handles GET /api/v1/documents/:id/status
func (h *Handlers) DocumentStatus(c *gin.Context) {
	doc, err := h.documents.Status(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{
		"status":                  doc.Status,
		"ai_detection_rate_after": doc.DetectionRateAfter,
		"processed_at":            doc.ProcessedAt,
	}})
}

// DownloadDocument handles GET /api/v1/documents/:id/download
func (h *Handlers) DownloadDocument(c *gin.Context) {
	variant := c.DefaultQuery("variant", service.DownloadOriginal)
	content, name, err := h.documents.Download(userID(c), c.Param("id"), variant)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/octet-stream", content)
}

// DeleteDocument handles DELETE /api/v1/documents/:id
func (h *Handlers) DeleteDocument(c *gin.Context) {
	if err := h.documents.Delete(userID(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// CreateOrderRequest is the body for POST /api/v1/orders
type CreateOrderRequest struct {
	DocumentID     string `json:"document_id" binding:"required"`
	ServiceType    string `json:"service_type"`
	ReductionLevel string `json:"reduction_level"`
	Urgency        string `json:"urgency"`
	CreditsUsed    int    `json:"credits_used"`
}

// CreateOrder handles POST /api/v1/orders
func (h *Handlers) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	order, err := h.orders.Create(userID(c), service.CreateInput{
		DocumentID:     req.DocumentID,
		ServiceType:    req.ServiceType,
		ReductionLevel: req.ReductionLevel,
		Urgency:        req.Urgency,
		CreditsUsed:    req.CreditsUsed,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: order})
}

// ListOrders handles GET /api/v1/orders
func (h *Handlers) ListOrders(c *gin.Context) {
	orders, err := h.orders.List(userID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: orders})
}

// GetOrder handles GET /api/v1/orders/:id
func (h *Handlers) GetOrder(c *gin.Context) {
	order, items, history, err := h.orders.Get(userID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{
		"order":             order,
		"items":             items,
		"history":           history,
		"available_actions": orderActions(order.Status),
	}})
}

// orderActions lists the lifecycle triggers a client may still fire on an
// order in the given status
func orderActions(status string) []string {
	flow := lifecycle.OrderFlow()
	state := lifecycle.State(status)

	actions := []string{}
	if flow.IsTerminal(state) {
		return actions
	}
	machine, err := flow.Build(state)
	if err != nil {
		return actions
	}
	for _, trigger := range machine.PermittedTriggers() {
		actions = append(actions, trigger.String())
	}
	sort.Strings(actions)
	return actions
}

// PayOrder handles POST /api/v1/orders/:id/pay
func (h *Handlers) PayOrder(c *gin.Context) {
	order, err := h.orders.Pay(userID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: order})
}

// CancelOrder handles POST /api/v1/orders/:id/cancel
func (h *Handlers) CancelOrder(c *gin.Context) {
	order, err := h.orders.Cancel(userID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: order})
}

// DownloadOrderResult handles GET /api/v1/orders/:id/result
func (h *Handlers) DownloadOrderResult(c *gin.Context) {
	content, name, err := h.orders.DownloadResult(userID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/octet-stream", content)
}

// ListPackages handles GET /api/v1/packages
func (h *Handlers) ListPackages(c *gin.Context) {
	packages, err := h.payments.ListPackages()
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: packages})
}

// CreatePaymentRequest is the body for POST /api/v1/payments
type CreatePaymentRequest struct {
	PackageID     int64  `json:"package_id" binding:"required"`
	PaymentMethod string `json:"payment_method"`
}

// CreatePayment handles POST /api/v1/payments
func (h *Handlers) CreatePayment(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	payment, err := h.payments.CreateRechargeOrder(userID(c), req.PackageID, req.PaymentMethod)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: payment})
}

// ConfirmPayment handles POST /api/v1/payments/:id/confirm
func (h *Handlers) ConfirmPayment(c *gin.Context) {
	payment, err := h.payments.ConfirmSuccess(userID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: payment})
}

// CancelPayment handles POST /api/v1/payments/:id/cancel
func (h *Handlers) CancelPayment(c *gin.Context) {
	payment, err := h.payments.Cancel(userID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: payment})
}

// RechargeHistory handles GET /api/v1/payments/records
func (h *Handlers) RechargeHistory(c *gin.Context) {
	limit := 20
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	records, err := h.payments.RechargeHistory(userID(c), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: records})
}

// Credits handles GET /api/v1/credits
func (h *Handlers) Credits(c *gin.Context) {
	balance, err := h.payments.Credits(userID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{"credits": balance}})
}
