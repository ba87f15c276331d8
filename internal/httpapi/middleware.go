package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/auth"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// accessLog пишет строку на каждый запрос и учитывает его в метриках по шаблону маршрута.
func accessLog(logger *log.Entry, m *metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)

			route := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}
			m.Observe(r.Method, route, status, elapsed)

			entry := logger.WithFields(log.Fields{
				"request_id":  middleware.GetReqID(r.Context()),
				"method":      r.Method,
				"path":        r.URL.Path,
				"route":       route,
				"status":      status,
				"bytes":       ww.BytesWritten(),
				"duration_ms": elapsed.Milliseconds(),
			})
			if status >= http.StatusInternalServerError {
				entry.Warn("http request")
				return
			}
			entry.Info("http request")
		})
	}
}

// authenticate проверяет bearer-токен, если он передан. Запрос без токена идёт дальше
// анонимным: требование идентичности проверяет контроллер конкретной операции.
func authenticate(verifier *auth.Verifier, logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.BearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			if verifier == nil {
				writeError(w, http.StatusUnauthorized, codeAuthentication, "bearer authentication is not configured")
				return
			}
			identity, err := verifier.Verify(token)
			if err != nil {
				writeDomainError(w, r, logger, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
		})
	}
}

func identityFrom(r *http.Request) domain.Identity {
	return auth.IdentityFrom(r.Context())
}
