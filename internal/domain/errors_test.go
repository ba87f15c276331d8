package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "order not found", err: ErrOrderNotFound, want: ErrNotFound},
		{name: "status conflict", err: ErrOrderStatusConflict, want: ErrConflict},
		{name: "signature mismatch", err: ErrSignatureMismatch, want: ErrVerification},
		{name: "wrapped product not found", err: fmt.Errorf("create: %w", ErrProductNotFound), want: ErrValidation},
		{name: "typed provider error", err: WrapError(ErrProvider, "card.initiate", context.DeadlineExceeded), want: ErrProvider},
		{name: "not configured", err: NewError(ErrProviderNotConfigured, "registry", "card"), want: ErrProviderNotConfigured},
		{name: "owner mismatch", err: ErrNotOrderOwner, want: ErrAuthorization},
		{name: "plain error", err: errors.New("boom"), want: nil},
		{name: "nil error", err: nil, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorUnwrapKeepsCause(t *testing.T) {
	err := WrapError(ErrStorage, "postgres.get", context.DeadlineExceeded)
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected storage kind, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected cause to be reachable, got %v", err)
	}
	if err.Error() != "postgres.get: context deadline exceeded" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestIsRetryable(t *testing.T) {
	err := WrapError(ErrProvider, "card.initiate", errors.New("502"))
	if IsRetryable(err) {
		t.Fatal("expected non-retryable by default")
	}
	err.Retryable = true
	if !IsRetryable(fmt.Errorf("outer: %w", err)) {
		t.Fatal("expected retryable through wrapping")
	}
}

func TestIsIdempotencyConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "idempotency already exists",
			err:  ErrIdempotencyKeyAlreadyExists,
			want: true,
		},
		{
			name: "idempotency hash mismatch",
			err:  ErrIdempotencyHashMismatch,
			want: true,
		},
		{
			name: "wrapped idempotency conflict",
			err:  errors.Join(ErrIdempotencyHashMismatch, errors.New("extra context")),
			want: true,
		},
		{
			name: "non idempotency error",
			err:  ErrOrderStatusConflict,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsIdempotencyConflict(tt.err)
			if got != tt.want {
				t.Errorf("IsIdempotencyConflict() = %v, want %v", got, tt.want)
			}
		})
	}
}
