package httpapi

import (
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/payment"
	"github.com/vladislavdragonenkov/storefront/internal/service/lifecycle"
)

// ErrorResponse — тело ответа с ошибкой.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type createOrderItem struct {
	ProductID string `json:"productId"`
	Qty       int64  `json:"qty"`
}

type createOrderRequest struct {
	Items           []createOrderItem `json:"items"`
	FromCart        bool              `json:"fromCart"`
	ShippingAddress domain.Address    `json:"shippingAddress"`
	PaymentMethod   string            `json:"paymentMethod"`
}

func (r createOrderRequest) toInput() lifecycle.CreateOrderInput {
	items := make([]lifecycle.ItemInput, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, lifecycle.ItemInput{ProductID: item.ProductID, Qty: item.Qty})
	}
	return lifecycle.CreateOrderInput{
		Items:           items,
		FromCart:        r.FromCart,
		ShippingAddress: r.ShippingAddress,
		PaymentMethod:   r.PaymentMethod,
	}
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type initiateRequest struct {
	OrderID string `json:"orderId"`
}

type advanceRequest struct {
	Status string `json:"status"`
}

type cartItemRequest struct {
	ProductID string `json:"productId"`
	Qty       int32  `json:"qty"`
}

// callbackRequest принимает и нормализованные поля, и имена полей checkout-формы шлюза.
type callbackRequest struct {
	OrderID           string `json:"orderId"`
	ProviderOrderID   string `json:"providerOrderId"`
	ProviderPaymentID string `json:"providerPaymentId"`
	Signature         string `json:"signature"`
	Status            string `json:"status"`
	TransactionRef    string `json:"transactionRef"`
	ReceiptRef        string `json:"receiptRef"`

	GatewayOrderID   string `json:"razorpay_order_id"`
	GatewayPaymentID string `json:"razorpay_payment_id"`
	GatewaySignature string `json:"razorpay_signature"`
}

func (r callbackRequest) payload() payment.CallbackPayload {
	return payment.CallbackPayload{
		OrderID:           strings.TrimSpace(r.OrderID),
		ProviderOrderID:   firstNonEmpty(r.ProviderOrderID, r.GatewayOrderID),
		ProviderPaymentID: firstNonEmpty(r.ProviderPaymentID, r.GatewayPaymentID),
		Signature:         firstNonEmpty(r.Signature, r.GatewaySignature),
		Status:            r.Status,
		TransactionRef:    r.TransactionRef,
		ReceiptRef:        r.ReceiptRef,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

type orderItemResponse struct {
	ID             string `json:"id"`
	ProductID      string `json:"productId"`
	Name           string `json:"name"`
	Qty            int32  `json:"qty"`
	UnitPriceMinor int64  `json:"unitPriceMinor"`
	LineTotalMinor int64  `json:"lineTotalMinor"`
}

type paymentResponse struct {
	Provider          string    `json:"provider"`
	ProviderPaymentID string    `json:"providerPaymentId,omitempty"`
	ProviderOrderID   string    `json:"providerOrderId,omitempty"`
	TrustLevel        string    `json:"trustLevel"`
	ConfirmedAt       time.Time `json:"confirmedAt"`
}

type timelineEventResponse struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

type orderResponse struct {
	ID              string                  `json:"id"`
	CustomerID      string                  `json:"customerId"`
	Status          string                  `json:"status"`
	Items           []orderItemResponse     `json:"items"`
	SubtotalMinor   int64                   `json:"subtotalMinor"`
	FeesMinor       int64                   `json:"feesMinor"`
	AmountMinor     int64                   `json:"amountMinor"`
	Currency        string                  `json:"currency"`
	ShippingAddress domain.Address          `json:"shippingAddress"`
	PaymentMethod   string                  `json:"paymentMethod"`
	Payment         *paymentResponse        `json:"payment,omitempty"`
	Handle          *handleResponse         `json:"paymentHandle,omitempty"`
	Version         int64                   `json:"version"`
	CreatedAt       time.Time               `json:"createdAt"`
	UpdatedAt       time.Time               `json:"updatedAt"`
	Timeline        []timelineEventResponse `json:"timeline,omitempty"`
}

type handleResponse struct {
	Provider    string            `json:"provider"`
	ProviderRef string            `json:"providerRef"`
	AmountMinor int64             `json:"amountMinor"`
	Currency    string            `json:"currency"`
	Fields      map[string]string `json:"fields,omitempty"`
}

type initiateResponse struct {
	handleResponse
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
	Reused  bool   `json:"reused"`
}

type callbackResponse struct {
	Succeeded    bool          `json:"succeeded"`
	AlreadyFinal bool          `json:"alreadyFinal,omitempty"`
	Order        orderResponse `json:"order"`
}

type listOrdersResponse struct {
	Orders []orderResponse `json:"orders"`
}

func toHandleResponse(h payment.Handle) handleResponse {
	return handleResponse{
		Provider:    string(h.Provider),
		ProviderRef: h.ProviderRef,
		AmountMinor: h.AmountMinor,
		Currency:    h.Currency,
		Fields:      h.Fields,
	}
}

func toOrderResponse(order domain.Order) orderResponse {
	out := orderResponse{
		ID:              order.ID,
		CustomerID:      order.CustomerID,
		Status:          string(order.Status),
		Items:           make([]orderItemResponse, 0, len(order.Items)),
		SubtotalMinor:   order.SubtotalMinor,
		FeesMinor:       order.FeesMinor,
		AmountMinor:     order.AmountMinor,
		Currency:        order.Currency,
		ShippingAddress: order.ShippingAddress,
		PaymentMethod:   string(order.PaymentMethod),
		Version:         order.Version,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
	for _, item := range order.Items {
		out.Items = append(out.Items, orderItemResponse{
			ID:             item.ID,
			ProductID:      item.ProductID,
			Name:           item.Name,
			Qty:            item.Qty,
			UnitPriceMinor: item.UnitPriceMinor,
			LineTotalMinor: item.LineTotalMinor(),
		})
	}
	if order.Payment != nil {
		out.Payment = &paymentResponse{
			Provider:          string(order.Payment.Provider),
			ProviderPaymentID: order.Payment.ProviderPaymentID,
			ProviderOrderID:   order.Payment.ProviderOrderID,
			TrustLevel:        string(order.Payment.TrustLevel),
			ConfirmedAt:       order.Payment.ConfirmedAt,
		}
	}
	if order.Intent != nil {
		handle := toHandleResponse(payment.HandleFromIntent(*order.Intent))
		out.Handle = &handle
	}
	return out
}

func toTimelineResponse(events []domain.TimelineEvent) []timelineEventResponse {
	out := make([]timelineEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, timelineEventResponse{Type: e.Type, Reason: e.Reason, Occurred: e.Occurred})
	}
	return out
}
