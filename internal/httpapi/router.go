// Package httpapi реализует REST API витрины: заказы, оплата, корзина и административные переходы.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/auth"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/lifecycle"
)

// Dependencies — сервисы, которые обслуживает API. Cart, Idempotency и Metrics необязательны.
type Dependencies struct {
	Lifecycle      *lifecycle.Controller
	Cart           *cart.Service
	Verifier       *auth.Verifier
	Idempotency    domain.IdempotencyRepository
	IdempotencyTTL time.Duration
	Metrics        *metrics.HTTPMetrics
	Logger         *log.Entry
}

type server struct {
	orders *lifecycle.Controller
	carts  *cart.Service
	logger *log.Entry
}

// NewRouter собирает chi-роутер со всеми маршрутами /api.
func NewRouter(deps Dependencies) (http.Handler, error) {
	if deps.Lifecycle == nil {
		return nil, errors.New("httpapi: lifecycle controller is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New().WithField("component", "httpapi")
	}

	s := &server{orders: deps.Lifecycle, carts: deps.Cart, logger: logger}
	idem := newIdempotency(deps.Idempotency, deps.IdempotencyTTL, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(logger, deps.Metrics))
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(authenticate(deps.Verifier, logger))

		r.Route("/orders", func(r chi.Router) {
			r.With(idem.middleware).Post("/", s.createOrder)
			r.Get("/", s.listOrders)
			r.Get("/{orderID}", s.getOrder)
			r.Get("/{orderID}/timeline", s.getTimeline)
			r.With(idem.middleware).Post("/{orderID}/cancel", s.cancelOrder)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Get("/", s.listMethods)
			r.With(idem.middleware).Post("/{provider}/initiate", s.initiatePayment)
			r.Post("/{provider}/callback", s.paymentCallback)
		})

		if s.carts != nil {
			r.Route("/cart", func(r chi.Router) {
				r.Get("/", s.getCart)
				r.Delete("/", s.clearCart)
				r.Post("/items", s.addCartItem)
				r.Put("/items/{productID}", s.setCartItem)
				r.Delete("/items/{productID}", s.removeCartItem)
			})
		}

		r.Post("/admin/orders/{orderID}/advance", s.advanceOrder)
	})

	return r, nil
}

// decodeJSON читает тело запроса. Пустое тело допустимо, если allowEmpty.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	switch {
	case err == nil:
		return true
	case errors.Is(err, io.EOF) && allowEmpty:
		return true
	case errors.Is(err, io.EOF):
		writeError(w, http.StatusBadRequest, codeValidation, "request body is required")
	default:
		writeError(w, http.StatusBadRequest, codeValidation, "invalid JSON body")
	}
	return false
}
