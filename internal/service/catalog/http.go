package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const defaultHTTPTimeout = 3 * time.Second

// productResponse — ответ Catalog Service. Цена в основных единицах валюты.
type productResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	Stock     *int64          `json:"stock"`
	Available *bool           `json:"available"`
}

// HTTPClient читает товары из Catalog Service по GET {baseURL}/products/{id}.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Entry
}

// NewHTTPClient создаёт клиента каталога.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *log.Entry) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.WithField("component", "catalog-client"),
	}
}

func (c *HTTPClient) Product(ctx context.Context, productID string) (domain.Product, error) {
	const op = "catalog.http.product"

	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, domain.ErrItemProductRequired
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/products/"+url.PathEscape(productID), nil)
	if err != nil {
		return domain.Product{}, domain.WrapError(domain.ErrProvider, op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).WithField("product_id", productID).Warn("catalog request failed")
		return domain.Product{}, &domain.Error{Kind: domain.ErrProvider, Op: op, Err: err, Retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.Product{}, fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Product{}, &domain.Error{
			Kind:      domain.ErrProvider,
			Op:        op,
			Msg:       fmt.Sprintf("catalog returned status %d", resp.StatusCode),
			Retryable: resp.StatusCode >= 500,
		}
	}

	var body productResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return domain.Product{}, domain.WrapError(domain.ErrProvider, op, fmt.Errorf("decode product: %w", err))
	}
	return body.toDomain(productID)
}

func (p productResponse) toDomain(requestedID string) (domain.Product, error) {
	const op = "catalog.http.product"

	minor := p.Price.Shift(2)
	if !minor.Equal(minor.Truncate(0)) {
		return domain.Product{}, domain.NewError(domain.ErrProvider, op,
			"catalog price "+p.Price.String()+" has more than two decimal places")
	}
	if p.Price.IsNegative() {
		return domain.Product{}, domain.ErrItemPriceInvalid
	}

	available := true
	switch {
	case p.Available != nil:
		available = *p.Available
	case p.Stock != nil:
		available = *p.Stock > 0
	}

	id := p.ID
	if id == "" {
		id = requestedID
	}
	if id != requestedID {
		return domain.Product{}, domain.WrapError(domain.ErrProvider, op,
			errors.New("catalog returned product "+id+" for "+requestedID))
	}

	return domain.Product{
		ID:         id,
		Name:       p.Name,
		PriceMinor: minor.IntPart(),
		Currency:   strings.ToUpper(p.Currency),
		Available:  available,
	}, nil
}

var _ domain.Catalog = (*HTTPClient)(nil)
