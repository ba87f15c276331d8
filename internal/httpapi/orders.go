package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func (s *server) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	order, err := s.orders.CreateOrder(r.Context(), identityFrom(r), req.toInput())
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (s *server) listOrders(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, codeValidation, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	orders, err := s.orders.ListOrders(r.Context(), identityFrom(r), limit)
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}
	resp := listOrdersResponse{Orders: make([]orderResponse, 0, len(orders))}
	for _, order := range orders {
		resp.Orders = append(resp.Orders, toOrderResponse(order))
	}
	writeJSON(w, http.StatusOK, resp)
}

// getOrder отдаёт заказ вместе с его timeline.
func (s *server) getOrder(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	orderID := chi.URLParam(r, "orderID")

	order, err := s.orders.GetOrder(r.Context(), identity, orderID)
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}
	events, err := s.orders.Timeline(r.Context(), identity, orderID)
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}
	resp := toOrderResponse(order)
	resp.Timeline = toTimelineResponse(events)
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) getTimeline(w http.ResponseWriter, r *http.Request) {
	events, err := s.orders.Timeline(r.Context(), identityFrom(r), chi.URLParam(r, "orderID"))
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": toTimelineResponse(events)})
}

func (s *server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}
	order, err := s.orders.Cancel(r.Context(), identityFrom(r), chi.URLParam(r, "orderID"), strings.TrimSpace(req.Reason))
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// advanceOrder — административный переход PAID → FULFILLING → DELIVERED.
func (s *server) advanceOrder(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	next := domain.OrderStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	order, err := s.orders.Advance(r.Context(), identityFrom(r), chi.URLParam(r, "orderID"), next)
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}
