package domain

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestIdempotencyStatusValid(t *testing.T) {
	for _, s := range []IdempotencyStatus{IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed} {
		if !s.Valid() {
			t.Fatalf("status %q must be valid", s)
		}
	}
	if IdempotencyStatus("broken").Valid() {
		t.Fatal("unknown status must be invalid")
	}
}

func TestNewIdempotencyRecord(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if _, err := NewIdempotencyRecord("", "hash", now, now); !errors.Is(err, ErrIdempotencyKeyRequired) {
		t.Fatalf("expected ErrIdempotencyKeyRequired, got %v", err)
	}
	if _, err := NewIdempotencyRecord("key", "", now, now); !errors.Is(err, ErrIdempotencyRequestHashRequired) {
		t.Fatalf("expected ErrIdempotencyRequestHashRequired, got %v", err)
	}

	rec, err := NewIdempotencyRecord("alice:key", "hash", time.Time{}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != IdempotencyStatusProcessing {
		t.Fatalf("unexpected status %q", rec.Status)
	}
	if !rec.TTLAt.Equal(now.Add(DefaultIdempotencyTTL)) {
		t.Fatalf("default ttl not applied: %s", rec.TTLAt)
	}
	if rec.Replayable() {
		t.Fatal("processing record must not be replayable")
	}
	if rec.Expired(now) || !rec.Expired(rec.TTLAt) {
		t.Fatal("expiry must be strict at ttl_at")
	}
}

func TestIdempotencyRecordComplete(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rec, _ := NewIdempotencyRecord("k", "h", now.Add(time.Hour), now)

	body := []byte(`{"id":"o-1"}`)
	done := rec.Complete(StoredResponse{HTTPStatus: http.StatusCreated, ContentType: "application/json", Body: body}, now.Add(time.Second))
	body[0] = 'X'

	if done.Status != IdempotencyStatusDone || !done.Replayable() {
		t.Fatalf("expected replayable done record, got %+v", done)
	}
	if string(done.Response.Body) != `{"id":"o-1"}` {
		t.Fatalf("response body must be copied, got %s", done.Response.Body)
	}
	if !done.UpdatedAt.Equal(now.Add(time.Second)) {
		t.Fatalf("updated_at not bumped: %s", done.UpdatedAt)
	}

	failed := rec.Complete(StoredResponse{HTTPStatus: http.StatusBadGateway}, now)
	if failed.Status != IdempotencyStatusFailed || !failed.Replayable() {
		t.Fatalf("5xx must complete as failed, got %q", failed.Status)
	}

	clone := done.Clone()
	clone.Response.Body[0] = 'Y'
	if done.Response.Body[0] == 'Y' {
		t.Fatal("clone must not share the body")
	}
}

func TestReserveConflict(t *testing.T) {
	existing := IdempotencyRecord{Key: "k", RequestHash: "h1"}
	if err := ReserveConflict(existing, "h2"); !errors.Is(err, ErrIdempotencyHashMismatch) {
		t.Fatalf("expected hash mismatch, got %v", err)
	}
	if err := ReserveConflict(existing, "h1"); !errors.Is(err, ErrIdempotencyKeyAlreadyExists) {
		t.Fatalf("expected key already exists, got %v", err)
	}
}
