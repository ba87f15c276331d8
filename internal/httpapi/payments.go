package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// listMethods отдаёт включённые способы оплаты.
func (s *server) listMethods(w http.ResponseWriter, _ *http.Request) {
	methods := s.orders.Payments().Methods()
	out := make([]string, 0, len(methods))
	for _, m := range methods {
		out = append(out, string(m))
	}
	writeJSON(w, http.StatusOK, map[string][]string{"methods": out})
}

func (s *server) initiatePayment(w http.ResponseWriter, r *http.Request) {
	method, err := domain.ParsePaymentMethod(chi.URLParam(r, "provider"))
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}
	var req initiateRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	result, err := s.orders.InitiatePayment(r.Context(), identityFrom(r), req.OrderID, method)
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, initiateResponse{
		handleResponse: toHandleResponse(result.Handle),
		OrderID:        result.Order.ID,
		Status:         string(result.Order.Status),
		Reused:         result.Reused,
	})
}

// paymentCallback принимает callback провайдера. Подписанные callback-и проходят без
// bearer-токена; для неподписанных подтверждений контроллер требует идентичность.
func (s *server) paymentCallback(w http.ResponseWriter, r *http.Request) {
	method, err := domain.ParsePaymentMethod(chi.URLParam(r, "provider"))
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}
	var req callbackRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	result, err := s.orders.Finalize(r.Context(), identityFrom(r), method, req.payload())
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, callbackResponse{
		Succeeded:    result.Succeeded,
		AlreadyFinal: result.AlreadyFinal,
		Order:        toOrderResponse(result.Order),
	})
}
