package domain

import (
	"strings"
	"time"
)

// DefaultCurrency используется, если валюта не задана конфигурацией.
const DefaultCurrency = "INR"

// PaymentMethod — способ оплаты, выбранный при создании заказа.
type PaymentMethod string

const (
	// PaymentMethodCard — оплата картой через hosted-шлюз.
	PaymentMethodCard PaymentMethod = "card"
	// PaymentMethodRealtimePush — push-платёж (UPI) с подтверждением по callback.
	PaymentMethodRealtimePush PaymentMethod = "realtime_push"
	// PaymentMethodCashOnDelivery — наличные при доставке, подтверждает оператор.
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

// PaymentMethods перечисляет все поддерживаемые способы оплаты.
var PaymentMethods = []PaymentMethod{
	PaymentMethodCard,
	PaymentMethodRealtimePush,
	PaymentMethodCashOnDelivery,
}

// Valid проверяет, что способ оплаты входит в закрытый список.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodRealtimePush, PaymentMethodCashOnDelivery:
		return true
	default:
		return false
	}
}

// ParsePaymentMethod разбирает имя провайдера из пути или тела запроса.
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(raw)))
	if !m.Valid() {
		return "", ErrPaymentMethodInvalid
	}
	return m, nil
}

// TrustLevel описывает, насколько можно доверять подтверждению оплаты.
type TrustLevel string

const (
	// TrustProviderSigned — подтверждение подписано провайдером.
	TrustProviderSigned TrustLevel = "provider_signed"
	// TrustClientAsserted — подтверждение пришло от клиента без подписи.
	TrustClientAsserted TrustLevel = "client_asserted"
	// TrustManual — оплату зафиксировал оператор.
	TrustManual TrustLevel = "manual"
)

// Address — адрес доставки. После создания заказа не меняется.
type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	Region     string `json:"region"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// Complete сообщает, заполнены ли все поля адреса.
func (a Address) Complete() bool {
	for _, v := range []string{a.Street, a.City, a.Region, a.PostalCode, a.Country} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	// ID позиции нужен для однозначной идентификации и аудита.
	ID string
	// ProductID — идентификатор товара в каталоге.
	ProductID string
	// Name — название товара на момент оформления.
	Name string
	// Qty — количество единиц товара.
	Qty int32
	// UnitPriceMinor — цена за единицу, зафиксированная при создании заказа.
	UnitPriceMinor int64
}

// LineTotalMinor возвращает стоимость позиции.
func (i OrderItem) LineTotalMinor() int64 {
	return int64(i.Qty) * i.UnitPriceMinor
}

// PaymentIntent хранит результат initiatePayment, пока заказ ждёт оплаты.
type PaymentIntent struct {
	Method      PaymentMethod
	ProviderRef string
	AmountMinor int64
	Currency    string
	Handle      map[string]string
	CreatedAt   time.Time
}

// PaymentDetails заполняется только успешной финализацией.
type PaymentDetails struct {
	Provider          PaymentMethod
	ProviderPaymentID string
	ProviderOrderID   string
	TrustLevel        TrustLevel
	ConfirmedAt       time.Time
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID              string
	CustomerID      string
	Status          OrderStatus
	Currency        string
	Items           []OrderItem
	SubtotalMinor   int64
	FeesMinor       int64
	AmountMinor     int64
	ShippingAddress Address
	PaymentMethod   PaymentMethod
	Intent          *PaymentIntent
	Payment         *PaymentDetails
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ItemsSubtotal пересчитывает сумму позиций по зафиксированным ценам.
func (o *Order) ItemsSubtotal() int64 {
	var sum int64
	for _, item := range o.Items {
		sum += item.LineTotalMinor()
	}
	return sum
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if !o.PaymentMethod.Valid() {
		errs = append(errs, ErrPaymentMethodInvalid)
	}
	if !o.ShippingAddress.Complete() {
		errs = append(errs, ErrAddressIncomplete)
	}

	for _, item := range o.Items {
		if item.ProductID == "" {
			errs = append(errs, ErrItemProductRequired)
		}
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}

	// Итог = сумма позиций + объявленные сборы.
	if o.SubtotalMinor != o.ItemsSubtotal() || o.FeesMinor < 0 || o.AmountMinor != o.SubtotalMinor+o.FeesMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

// Clone возвращает глубокую копию заказа.
func (o Order) Clone() Order {
	out := o
	if o.Items != nil {
		out.Items = append([]OrderItem(nil), o.Items...)
	}
	if o.Intent != nil {
		intent := *o.Intent
		if o.Intent.Handle != nil {
			intent.Handle = make(map[string]string, len(o.Intent.Handle))
			for k, v := range o.Intent.Handle {
				intent.Handle[k] = v
			}
		}
		out.Intent = &intent
	}
	if o.Payment != nil {
		details := *o.Payment
		out.Payment = &details
	}
	return out
}

// FeeMinor считает сбор по ставке в базисных пунктах с округлением половины вверх.
func FeeMinor(subtotalMinor int64, rateBps int64) int64 {
	if rateBps <= 0 || subtotalMinor <= 0 {
		return 0
	}
	return (subtotalMinor*rateBps + 5000) / 10000
}
