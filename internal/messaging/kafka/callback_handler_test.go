package kafka

import (
	"context"
	"testing"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/payment"
	"github.com/vladislavdragonenkov/storefront/internal/service/lifecycle"
)

type mockFinalizer struct {
	mock.Mock
}

func (m *mockFinalizer) Finalize(ctx context.Context, caller domain.Identity, method domain.PaymentMethod, payload payment.CallbackPayload) (lifecycle.FinalizeResult, error) {
	args := m.Called(ctx, caller, method, payload)
	return args.Get(0).(lifecycle.FinalizeResult), args.Error(1)
}

func relayed(value string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{Topic: TopicPaymentCallbacks, Key: []byte("order-1"), Value: []byte(value)}
}

func TestCallbackHandler_Finalizes(t *testing.T) {
	finalizer := &mockFinalizer{}
	finalizer.On("Finalize", mock.Anything, domain.Identity{}, domain.PaymentMethodCard, payment.CallbackPayload{
		OrderID:           "order-1",
		ProviderOrderID:   "gw_order_1",
		ProviderPaymentID: "pay_1",
		Signature:         "abc",
		Status:            "captured",
	}).Return(lifecycle.FinalizeResult{
		Order:     domain.Order{ID: "order-1", Status: domain.OrderStatusPaid},
		Succeeded: true,
	}, nil).Once()

	handler := NewCallbackHandler(finalizer, log.WithField("test", "callback"))
	err := handler(context.Background(), relayed(`{
		"provider":"card",
		"order_id":" order-1 ",
		"provider_order_id":"gw_order_1",
		"provider_payment_id":"pay_1",
		"signature":"abc",
		"status":"captured"
	}`))

	require.NoError(t, err)
	finalizer.AssertExpectations(t)
}

func TestCallbackHandler_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		permanent bool
	}{
		{name: "verification", err: domain.ErrSignatureMismatch, permanent: true},
		{name: "unsigned provider needs identity", err: domain.NewError(domain.ErrAuthentication, "lifecycle.finalize", "no identity"), permanent: true},
		{name: "order missing", err: domain.ErrOrderNotFound, permanent: true},
		{name: "storage outage", err: domain.WrapError(domain.ErrStorage, "postgres.get", context.DeadlineExceeded), permanent: false},
		{name: "cas conflict", err: domain.ErrOrderStatusConflict, permanent: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			finalizer := &mockFinalizer{}
			finalizer.On("Finalize", mock.Anything, mock.Anything, domain.PaymentMethodRealtimePush, mock.Anything).
				Return(lifecycle.FinalizeResult{}, tt.err)

			handler := NewCallbackHandler(finalizer, nil)
			err := handler(context.Background(), relayed(`{"provider":"realtime_push","order_id":"order-1"}`))

			require.ErrorIs(t, err, tt.err)
			require.Equal(t, tt.permanent, IsPermanent(err))
		})
	}
}

func TestCallbackHandler_MalformedMessages(t *testing.T) {
	finalizer := &mockFinalizer{}
	handler := NewCallbackHandler(finalizer, nil)

	for _, value := range []string{
		`{`,
		`{"order_id":"order-1"}`,
		`{"provider":"paypal","order_id":"order-1"}`,
	} {
		err := handler(context.Background(), relayed(value))
		require.Error(t, err, value)
		require.True(t, IsPermanent(err), value)
	}
	finalizer.AssertNotCalled(t, "Finalize", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
