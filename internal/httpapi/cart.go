package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *server) getCart(w http.ResponseWriter, r *http.Request) {
	view, err := s.carts.Get(r.Context(), identityFrom(r))
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *server) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.Qty == 0 {
		req.Qty = 1
	}
	view, err := s.carts.Add(r.Context(), identityFrom(r), req.ProductID, req.Qty)
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *server) setCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	view, err := s.carts.SetQty(r.Context(), identityFrom(r), chi.URLParam(r, "productID"), req.Qty)
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *server) removeCartItem(w http.ResponseWriter, r *http.Request) {
	view, err := s.carts.Remove(r.Context(), identityFrom(r), chi.URLParam(r, "productID"))
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *server) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := s.carts.Clear(r.Context(), identityFrom(r)); err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
