package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestStatic(t *testing.T) {
	s := NewStatic(SeedProducts()...)

	p, err := s.Product(context.Background(), "fresh-apples")
	require.NoError(t, err)
	require.Equal(t, int64(19900), p.PriceMinor)
	require.True(t, p.Available)

	_, err = s.Product(context.Background(), "unknown")
	require.ErrorIs(t, err, domain.ErrProductNotFound)
	require.ErrorIs(t, err, domain.ErrValidation)

	require.Len(t, s.List(), len(SeedProducts()))
}

func TestHTTPClient_Product(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/products/p1":
			_, _ = w.Write([]byte(`{"id":"p1","name":"Mug","price":99.5,"currency":"inr","stock":3}`))
		case "/products/p2":
			_, _ = w.Write([]byte(`{"id":"p2","name":"Tee","price":"200.00","stock":0}`))
		case "/products/p3":
			_, _ = w.Write([]byte(`{"id":"p3","name":"Odd","price":1.005}`))
		case "/products/down":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL+"/", time.Second, nil)
	ctx := context.Background()

	p, err := client.Product(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, domain.Product{ID: "p1", Name: "Mug", PriceMinor: 9950, Currency: "INR", Available: true}, p)

	p, err = client.Product(ctx, "p2")
	require.NoError(t, err)
	require.Equal(t, int64(20000), p.PriceMinor)
	require.False(t, p.Available)

	_, err = client.Product(ctx, "p3")
	require.ErrorIs(t, err, domain.ErrProvider)

	_, err = client.Product(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrProductNotFound)

	_, err = client.Product(ctx, "down")
	require.ErrorIs(t, err, domain.ErrProvider)
	require.True(t, domain.IsRetryable(err))
}

func TestHTTPClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewHTTPClient(url, 200*time.Millisecond, nil).Product(context.Background(), "p1")
	require.ErrorIs(t, err, domain.ErrProvider)
}
