package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Классы ошибок. Транспортный слой отображает их в HTTP-статусы.
var (
	// ErrValidation — некорректный ввод клиента.
	ErrValidation = errors.New("validation error")
	// ErrAuthentication — запрос без валидных учётных данных.
	ErrAuthentication = errors.New("authentication required")
	// ErrAuthorization — у идентичности нет прав на ресурс.
	ErrAuthorization = errors.New("access denied")
	// ErrNotFound — ресурс отсутствует.
	ErrNotFound = errors.New("not found")
	// ErrConflict — конкурентное изменение (compare-and-set не прошёл).
	ErrConflict = errors.New("conflict")
	// ErrInvalidState — переход недопустим из текущего статуса.
	ErrInvalidState = errors.New("invalid state")
	// ErrProvider — сбой внешнего платёжного провайдера или каталога.
	ErrProvider = errors.New("provider error")
	// ErrProviderNotConfigured — провайдер отключён из-за отсутствия настроек.
	ErrProviderNotConfigured = errors.New("provider not configured")
	// ErrVerification — подпись или payload callback-а невалидны.
	ErrVerification = errors.New("verification failed")
	// ErrStorage — сбой хранилища.
	ErrStorage = errors.New("storage error")
)

var (
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = fmt.Errorf("%w: customer_id is required", ErrValidation)
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = fmt.Errorf("%w: currency is required", ErrValidation)
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = fmt.Errorf("%w: order must contain at least one item", ErrValidation)
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = fmt.Errorf("%w: item qty must be greater than zero", ErrValidation)
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = fmt.Errorf("%w: item price must be non-negative", ErrValidation)
	// Ошибка отсутствующего идентификатора товара.
	ErrItemProductRequired = fmt.Errorf("%w: item product_id is required", ErrValidation)
	// Ошибка несоответствия суммы заказа и сумм позиций с учётом сборов.
	ErrAmountMismatch = fmt.Errorf("%w: order amount does not match items sum plus fees", ErrValidation)
	// Ошибка неполного адреса доставки.
	ErrAddressIncomplete = fmt.Errorf("%w: shipping address is incomplete", ErrValidation)
	// Ошибка неизвестного способа оплаты.
	ErrPaymentMethodInvalid = fmt.Errorf("%w: unsupported payment method", ErrValidation)
	// ErrPaymentMethodMismatch — провайдер не совпадает со способом оплаты заказа.
	ErrPaymentMethodMismatch = fmt.Errorf("%w: payment method does not match order", ErrValidation)
	// ErrOrderIDRequired — в запросе или callback-е нет идентификатора заказа.
	ErrOrderIDRequired = fmt.Errorf("%w: order_id is required", ErrValidation)
	// ErrProductNotFound — товар не найден в каталоге на момент создания заказа.
	ErrProductNotFound = fmt.Errorf("%w: product not found in catalog", ErrValidation)
	// ErrProductUnavailable — товар снят с продажи.
	ErrProductUnavailable = fmt.Errorf("%w: product is not available", ErrValidation)

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = fmt.Errorf("%w: order not found", ErrNotFound)
	// ErrOrderAlreadyExists — заказ с таким ID уже сохранён.
	ErrOrderAlreadyExists = fmt.Errorf("%w: order already exists", ErrConflict)
	// ErrOrderStatusConflict — статус заказа изменился между чтением и записью.
	ErrOrderStatusConflict = fmt.Errorf("%w: order status changed concurrently", ErrConflict)
	// ErrNotOrderOwner — заказ принадлежит другой идентичности.
	ErrNotOrderOwner = fmt.Errorf("%w: order belongs to another customer", ErrAuthorization)

	// ErrSignatureMismatch — пересчитанная подпись не совпала с переданной.
	ErrSignatureMismatch = fmt.Errorf("%w: signature mismatch", ErrVerification)
	// ErrCallbackMalformed — в callback-е нет обязательных полей или они повреждены.
	ErrCallbackMalformed = fmt.Errorf("%w: malformed callback payload", ErrVerification)

	// ErrCartItemNotFound — позиции нет в корзине.
	ErrCartItemNotFound = fmt.Errorf("%w: cart item not found", ErrNotFound)
	// ErrCartEmpty — заказ из пустой корзины.
	ErrCartEmpty = fmt.Errorf("%w: cart is empty", ErrValidation)

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = fmt.Errorf("%w: idempotency key is required", ErrValidation)
	// ErrIdempotencyRequestHashRequired — не передан хеш тела запроса.
	ErrIdempotencyRequestHashRequired = fmt.Errorf("%w: idempotency request hash is required", ErrValidation)
	// ErrIdempotencyKeyNotFound — запись по ключу отсутствует или истекла.
	ErrIdempotencyKeyNotFound = fmt.Errorf("%w: idempotency key not found", ErrNotFound)
	// ErrIdempotencyKeyAlreadyExists — ключ уже занят другим запросом.
	ErrIdempotencyKeyAlreadyExists = fmt.Errorf("%w: idempotency key already exists", ErrConflict)
	// ErrIdempotencyHashMismatch — ключ переиспользован с другим телом запроса.
	ErrIdempotencyHashMismatch = fmt.Errorf("%w: idempotency key reused with different request", ErrConflict)
)

// kinds перечисляет классы в порядке приоритета для KindOf.
var kinds = []error{
	ErrProviderNotConfigured,
	ErrVerification,
	ErrValidation,
	ErrAuthentication,
	ErrAuthorization,
	ErrNotFound,
	ErrConflict,
	ErrInvalidState,
	ErrProvider,
	ErrStorage,
}

// Error несёт класс ошибки, операцию и исходную причину.
type Error struct {
	Kind      error
	Op        string
	Msg       string
	Err       error
	Retryable bool
}

// NewError создаёт ошибку заданного класса с сообщением для клиента.
func NewError(kind error, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// WrapError оборачивает причину в ошибку заданного класса.
func WrapError(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Msg != "" && e.Err != nil:
		b.WriteString(e.Msg)
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	case e.Msg != "":
		b.WriteString(e.Msg)
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	case e.Kind != nil:
		b.WriteString(e.Kind.Error())
	}
	return b.String()
}

// Unwrap позволяет errors.Is находить и класс, и причину.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// KindOf возвращает класс ошибки или nil, если класс не определён.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// IsRetryable сообщает, может ли клиент повторить операцию.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) && e.Retryable {
		return true
	}
	return false
}

// IsConflict проверяет, является ли ошибка конфликтом compare-and-set.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsIdempotencyConflict проверяет, связана ли ошибка с повторным idempotency-key.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}

// JoinValidation склеивает ошибки инвариантов в одну ошибку валидации.
func JoinValidation(op string, errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return WrapError(ErrValidation, op, errors.Join(errs...))
}
