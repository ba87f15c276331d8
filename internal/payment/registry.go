package payment

import (
	"sort"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Registry — закрытое отображение способа оплаты в адаптер.
// Провайдер без конфигурации в реестр не попадает.
type Registry struct {
	adapters map[domain.PaymentMethod]Adapter
}

// NewRegistry регистрирует адаптеры; nil-адаптеры пропускаются.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[domain.PaymentMethod]Adapter, len(adapters))}
	for _, a := range adapters {
		if a == nil {
			continue
		}
		r.adapters[a.Method()] = a
	}
	return r
}

// Adapter возвращает адаптер или ошибку класса ErrProviderNotConfigured.
func (r *Registry) Adapter(method domain.PaymentMethod) (Adapter, error) {
	if !method.Valid() {
		return nil, domain.ErrPaymentMethodInvalid
	}
	a, ok := r.adapters[method]
	if !ok {
		return nil, domain.NewError(domain.ErrProviderNotConfigured, "payment.registry",
			string(method)+" provider is not configured")
	}
	return a, nil
}

// Methods перечисляет настроенные способы оплаты.
func (r *Registry) Methods() []domain.PaymentMethod {
	out := make([]domain.PaymentMethod, 0, len(r.adapters))
	for m := range r.adapters {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
