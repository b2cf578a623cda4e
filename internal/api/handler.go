package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"ticket-service/internal/models"
	"ticket-service/internal/service"
	"ticket-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	events       *service.EventService
	reservations *service.ReservationService
	orders       *service.OrderService
	payments     *service.PaymentService
}

// NewHandler creates a new HTTP handler
func NewHandler(
	events *service.EventService,
	reservations *service.ReservationService,
	orders *service.OrderService,
	payments *service.PaymentService,
) *Handler {
	return &Handler{
		events:       events,
		reservations: reservations,
		orders:       orders,
		payments:     payments,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/events", h.listEvents)
		v1.GET("/events/:id", h.getEvent)
		v1.GET("/events/:id/availability", h.getAvailability)
		v1.POST("/events", h.createEvent)
		v1.PATCH("/events/:id/capacity", h.adjustCapacity)

		v1.POST("/reservations", h.submitReservations)

		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/payment", h.processPayment)
		v1.POST("/orders/:id/cancel", h.cancelOrder)

		v1.POST("/admin/sweep", h.runSweep)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

type createEventRequest struct {
	Name         string    `json:"name" binding:"required"`
	Description  string    `json:"description"`
	Location     string    `json:"location"`
	StartsAt     time.Time `json:"starts_at" binding:"required"`
	TotalTickets int       `json:"total_tickets" binding:"min=0"`
	TicketPrice  int64     `json:"ticket_price" binding:"min=0"`
	Currency     string    `json:"currency"`
}

func (h *Handler) createEvent(c *gin.Context) {
	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	event, err := h.events.CreateEvent(c.Request.Context(), service.CreateEventInput{
		Name:         req.Name,
		Description:  req.Description,
		Location:     req.Location,
		StartsAt:     req.StartsAt,
		TotalTickets: req.TotalTickets,
		TicketPrice:  req.TicketPrice,
		Currency:     req.Currency,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, event)
}

func (h *Handler) listEvents(c *gin.Context) {
	events, err := h.events.ListEvents(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *Handler) getEvent(c *gin.Context) {
	eventID, ok := pathID(c)
	if !ok {
		return
	}

	event, err := h.events.GetEvent(c.Request.Context(), eventID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

func (h *Handler) getAvailability(c *gin.Context) {
	eventID, ok := pathID(c)
	if !ok {
		return
	}

	available, err := h.events.GetAvailability(c.Request.Context(), eventID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event_id": eventID, "available": available})
}

type adjustCapacityRequest struct {
	Delta int `json:"delta" binding:"required"`
}

func (h *Handler) adjustCapacity(c *gin.Context) {
	eventID, ok := pathID(c)
	if !ok {
		return
	}

	var req adjustCapacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	event, err := h.events.AdjustCapacity(c.Request.Context(), eventID, req.Delta)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

type submitReservationsRequest struct {
	UserID int64                 `json:"user_id" binding:"required"`
	Lines  []service.LineRequest `json:"lines" binding:"required,min=1"`
}

// submitReservations applies a reservation batch. Partial success is
// reported line by line; the request fails only when no line was applied.
func (h *Handler) submitReservations(c *gin.Context) {
	var req submitReservationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.reservations.SubmitReservations(c.Request.Context(), req.UserID, req.Lines)
	if err != nil {
		respondError(c, err)
		return
	}

	if len(result.Successes) == 0 {
		c.JSON(http.StatusUnprocessableEntity, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	order, tickets, total, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order":       order,
		"tickets":     tickets,
		"total_price": total,
	})
}

func (h *Handler) processPayment(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	payment, err := h.payments.ProcessPayment(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.orders.Refund(c.Request.Context(), orderID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "status": models.OrderStatusRefunded})
}

func (h *Handler) runSweep(c *gin.Context) {
	expired, err := h.orders.SweepExpired(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": expired})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return 0, false
	}
	return id, true
}

// respondError maps domain errors to HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrEventNotFound),
		errors.Is(err, models.ErrOrderNotFound),
		errors.Is(err, models.ErrTicketNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrInvalidQuantity):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrInsufficientInventory),
		errors.Is(err, models.ErrInvalidOrderTransition),
		errors.Is(err, models.ErrCapacityReductionBelowCommitted):
		status = http.StatusConflict
	}

	c.JSON(status, gin.H{
		"error":   models.ErrorCode(err),
		"details": err.Error(),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
