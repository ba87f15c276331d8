package kafka

import (
	"context"
	"errors"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/payment"
	"github.com/vladislavdragonenkov/storefront/internal/service/lifecycle"
)

// Finalizer — часть контроллера жизненного цикла, нужная обработчику callback-ов.
type Finalizer interface {
	Finalize(ctx context.Context, caller domain.Identity, method domain.PaymentMethod, payload payment.CallbackPayload) (lifecycle.FinalizeResult, error)
}

// NewCallbackHandler возвращает обработчик topic-а storefront.payment.callbacks.
// Callback из Kafka не несёт идентичности, поэтому принимаются только подписанные провайдеры.
func NewCallbackHandler(finalizer Finalizer, logger *log.Entry) MessageHandler {
	if logger == nil {
		logger = log.WithField("component", "payment-callback-consumer")
	}

	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		msg, err := ParseCallbackMessage(message)
		if err != nil {
			return Permanent(err)
		}
		method, err := domain.ParsePaymentMethod(msg.Provider)
		if err != nil {
			return Permanent(err)
		}

		fields := log.Fields{
			"order_id": msg.OrderID,
			"provider": method,
		}
		result, err := finalizer.Finalize(ctx, domain.Identity{}, method, msg.Payload())
		if err != nil {
			if retryableCallbackError(err) {
				return err
			}
			logger.WithError(err).WithFields(fields).Warn("relayed payment callback rejected")
			return Permanent(err)
		}

		fields["succeeded"] = result.Succeeded
		fields["already_final"] = result.AlreadyFinal
		fields["status"] = result.Order.Status
		logger.WithFields(fields).Info("relayed payment callback applied")
		return nil
	}
}

// retryableCallbackError — сбои хранилища и гонки CAS; остальное повторять бессмысленно.
func retryableCallbackError(err error) bool {
	return domain.IsRetryable(err) ||
		domain.IsConflict(err) ||
		errors.Is(err, domain.ErrStorage) ||
		errors.Is(err, context.DeadlineExceeded)
}
