package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/payment"
)

// Коды ошибок в теле ответа.
const (
	codeValidation            = "validation_error"
	codeAuthentication        = "authentication_error"
	codeAuthorization         = "authorization_error"
	codeNotFound              = "not_found"
	codeConflict              = "conflict"
	codeInvalidState          = "invalid_state"
	codeProvider              = "provider_error"
	codeProviderTimeout       = "provider_timeout"
	codeProviderNotConfigured = "provider_not_configured"
	codeVerification          = "verification_error"
	codeStorage               = "storage_error"
	codeInternal              = "internal_error"
	codeIdempotencyConflict   = "idempotency_conflict"
)

// statusFor отображает класс доменной ошибки в HTTP-статус и код.
func statusFor(err error) (int, string) {
	if domain.IsIdempotencyConflict(err) {
		return http.StatusConflict, codeIdempotencyConflict
	}
	switch domain.KindOf(err) {
	case domain.ErrValidation:
		return http.StatusBadRequest, codeValidation
	case domain.ErrVerification:
		return http.StatusBadRequest, codeVerification
	case domain.ErrAuthentication:
		return http.StatusUnauthorized, codeAuthentication
	case domain.ErrAuthorization:
		return http.StatusForbidden, codeAuthorization
	case domain.ErrNotFound:
		return http.StatusNotFound, codeNotFound
	case domain.ErrConflict:
		return http.StatusConflict, codeConflict
	case domain.ErrInvalidState:
		return http.StatusConflict, codeInvalidState
	case domain.ErrProvider:
		if payment.IsTimeout(err) {
			return http.StatusGatewayTimeout, codeProviderTimeout
		}
		return http.StatusBadGateway, codeProvider
	case domain.ErrProviderNotConfigured:
		return http.StatusServiceUnavailable, codeProviderNotConfigured
	case domain.ErrStorage:
		return http.StatusInternalServerError, codeStorage
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

// clientMessage скрывает детали внутренних сбоев.
func clientMessage(status int, err error) string {
	switch status {
	case http.StatusInternalServerError:
		return "internal error"
	case http.StatusBadGateway, http.StatusGatewayTimeout:
		return "payment provider is unavailable"
	}
	var de *domain.Error
	if errors.As(err, &de) && de.Msg != "" {
		return de.Msg
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// writeDomainError пишет ответ по классу ошибки. Отказы проверки подписи
// логируются на warn для аудита, сбои хранилища и неизвестные ошибки на error.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *log.Entry, err error) {
	status, code := statusFor(err)
	entry := logger.WithError(err).WithFields(log.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": status,
	})
	switch {
	case status >= http.StatusInternalServerError:
		entry.Error("request failed")
	case code == codeVerification || code == codeAuthorization:
		entry.Warn("request rejected")
	default:
		entry.Debug("request rejected")
	}
	writeError(w, status, code, clientMessage(status, err))
}
