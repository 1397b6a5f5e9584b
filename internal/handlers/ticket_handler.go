package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
	"github.com/shopspring/decimal"

	"github.com/shaunfitzgarald/events-app-sub001/internal/services"
	"github.com/shaunfitzgarald/events-app-sub001/models"
	"github.com/shaunfitzgarald/events-app-sub001/security"
)

type TicketHandler struct {
	tickets *services.TicketService
	queries *services.QueryService
}

func NewTicketHandler(tickets *services.TicketService, queries *services.QueryService) *TicketHandler {
	return &TicketHandler{
		tickets: tickets,
		queries: queries,
	}
}

// Register mounts the ticket and event routes on g.
func (h *TicketHandler) Register(g *router.RouterGroup[*core.RequestEvent], limiter *security.RateLimiter) {
	g.POST("/tickets/purchase", h.Purchase).Bind(apis.RequireAuth())
	g.POST("/tickets/check-in/scan", h.CheckInByQR).BindFunc(limiter.CheckInRateLimit())
	g.GET("/ticket-numbers/{ticketNumber}", h.GetByNumber).Bind(apis.RequireAuth())
	g.POST("/tickets/{ticketId}/check-in", h.CheckIn).BindFunc(limiter.CheckInRateLimit())
	g.POST("/tickets/{ticketId}/cancel", h.Cancel).Bind(apis.RequireAuth())
	g.POST("/tickets/{ticketId}/refund", h.Refund).Bind(apis.RequireSuperuserAuth())
	g.GET("/tickets/{ticketId}/qr", h.GetQRPayload).Bind(apis.RequireAuth())
	g.GET("/tickets/{ticketId}", h.GetTicket).Bind(apis.RequireAuth())
	g.GET("/me/tickets", h.MyTickets).Bind(apis.RequireAuth())

	g.GET("/events/{eventId}/tickets", h.EventTickets).Bind(apis.RequireSuperuserAuth())
	g.PUT("/events/{eventId}/ticket-settings", h.UpdateTicketSettings).Bind(apis.RequireSuperuserAuth())
}

type purchaseRequest struct {
	EventID             string              `json:"event_id"`
	UseVerificationCode bool                `json:"use_verification_code"`
	Price               decimal.NullDecimal `json:"price"`
	Currency            string              `json:"currency"`
	Card                models.PaymentCard  `json:"card"`
}

// Purchase issues a ticket to the authenticated user.
func (h *TicketHandler) Purchase(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req purchaseRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if strings.TrimSpace(req.EventID) == "" {
		return apis.NewBadRequestError("event_id is required", nil)
	}

	ticket, err := h.tickets.Purchase(e.Request.Context(), services.PurchaseInput{
		EventID:             req.EventID,
		UserID:              e.Auth.Id,
		UseVerificationCode: req.UseVerificationCode,
		Price:               req.Price,
		Currency:            req.Currency,
		Card:                req.Card,
	})
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusCreated, ticketBody(ticket))
}

func (h *TicketHandler) CheckIn(e *core.RequestEvent) error {
	var req struct {
		Code string `json:"verification_code"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	ticket, err := h.tickets.CheckIn(e.Request.Context(), e.Request.PathValue("ticketId"), req.Code)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, ticketBody(ticket))
}

func (h *TicketHandler) CheckInByQR(e *core.RequestEvent) error {
	var req struct {
		Payload string `json:"payload"`
		EventID string `json:"event_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	ticket, err := h.tickets.CheckInByQR(e.Request.Context(), req.Payload, req.EventID)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, ticketBody(ticket))
}

// Cancel is allowed for the ticket owner and superusers.
func (h *TicketHandler) Cancel(e *core.RequestEvent) error {
	ctx := e.Request.Context()

	current, err := h.queries.Get(ctx, e.Request.PathValue("ticketId"))
	if err != nil {
		return apiError(err)
	}
	if err := requireOwnerOrSuperuser(e, current.UserID); err != nil {
		return err
	}

	ticket, err := h.tickets.Cancel(ctx, current.ID)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, ticketBody(ticket))
}

func (h *TicketHandler) Refund(e *core.RequestEvent) error {
	ticket, err := h.tickets.Refund(e.Request.Context(), e.Request.PathValue("ticketId"))
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, ticketBody(ticket))
}

// GetTicket returns the ticket with its holder's display name.
func (h *TicketHandler) GetTicket(e *core.RequestEvent) error {
	ctx := e.Request.Context()

	ticket, err := h.queries.Get(ctx, e.Request.PathValue("ticketId"))
	if err != nil {
		return apiError(err)
	}
	if err := requireOwnerOrSuperuser(e, ticket.UserID); err != nil {
		return err
	}

	holder, err := h.queries.HolderName(ctx, ticket)
	if err != nil {
		return apiError(err)
	}

	body := ticketBody(ticket)
	body["holder_name"] = holder
	return e.JSON(http.StatusOK, body)
}

func (h *TicketHandler) GetQRPayload(e *core.RequestEvent) error {
	ctx := e.Request.Context()
	ticketID := e.Request.PathValue("ticketId")

	ticket, err := h.queries.Get(ctx, ticketID)
	if err != nil {
		return apiError(err)
	}
	if err := requireOwnerOrSuperuser(e, ticket.UserID); err != nil {
		return err
	}

	payload, err := h.queries.QRPayload(ctx, ticketID)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"ticket_id":  ticketID,
		"qr_payload": payload,
	})
}

func (h *TicketHandler) GetByNumber(e *core.RequestEvent) error {
	ticket, err := h.queries.ByNumber(e.Request.Context(), e.Request.PathValue("ticketNumber"))
	if err != nil {
		return apiError(err)
	}
	if ticket == nil {
		return apis.NewNotFoundError("Ticket not found", nil)
	}
	if err := requireOwnerOrSuperuser(e, ticket.UserID); err != nil {
		return err
	}
	return e.JSON(http.StatusOK, ticketBody(ticket))
}

// MyTickets lists the caller's tickets, newest first. ?limit= caps the list.
func (h *TicketHandler) MyTickets(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	limit := 0
	if raw := e.Request.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return apis.NewBadRequestError("limit must be a non-negative integer", nil)
		}
		limit = n
	}

	tickets, err := h.queries.ByUser(e.Request.Context(), e.Auth.Id, limit)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"tickets": tickets,
		"total":   len(tickets),
	})
}

func (h *TicketHandler) EventTickets(e *core.RequestEvent) error {
	tickets, err := h.queries.ByEvent(e.Request.Context(), e.Request.PathValue("eventId"))
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"tickets": tickets,
		"total":   len(tickets),
	})
}

func (h *TicketHandler) UpdateTicketSettings(e *core.RequestEvent) error {
	var req models.TicketSettingsUpdate
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Available < 0 {
		return apis.NewBadRequestError("available must not be negative", nil)
	}
	if req.Price.IsNegative() {
		return apis.NewBadRequestError("price must not be negative", nil)
	}

	event, err := h.tickets.UpdateEventTicketSettings(e.Request.Context(), e.Request.PathValue("eventId"), req)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, event)
}

func ticketBody(t *models.Ticket) map[string]any {
	return map[string]any{
		"ticket": t,
		"state":  t.State(),
	}
}
