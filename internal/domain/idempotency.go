package domain

import (
	"net/http"
	"time"
)

// IdempotencyStatus — стадия обработки запроса с заголовком Idempotency-Key.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing — ключ занят, ответ ещё не готов.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone — обработчик ответил, ответ можно повторять.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed — обработчик упал с 5xx; ответ тоже повторяется до истечения TTL.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// StoredResponse — ответ на мутирующий запрос, который отдаётся при повторе ключа.
type StoredResponse struct {
	HTTPStatus  int
	ContentType string
	Body        []byte
}

// CompletionStatus выбирает итоговый статус записи по HTTP-коду ответа.
func (r StoredResponse) CompletionStatus() IdempotencyStatus {
	if r.HTTPStatus >= http.StatusInternalServerError {
		return IdempotencyStatusFailed
	}
	return IdempotencyStatusDone
}

// IdempotencyRecord — запись о запросе. Key уже включает идентичность и маршрут.
type IdempotencyRecord struct {
	Key         string
	RequestHash string
	Status      IdempotencyStatus
	Response    StoredResponse
	TTLAt       time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Expired сообщает, что запись больше не блокирует ключ.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.TTLAt.After(now)
}

// Replayable сообщает, что ответ сохранён и его можно отдать повторно.
func (r IdempotencyRecord) Replayable() bool {
	return r.Status == IdempotencyStatusDone || r.Status == IdempotencyStatusFailed
}

// Complete возвращает копию записи с сохранённым ответом.
func (r IdempotencyRecord) Complete(resp StoredResponse, now time.Time) IdempotencyRecord {
	out := r
	out.Status = resp.CompletionStatus()
	out.Response = StoredResponse{
		HTTPStatus:  resp.HTTPStatus,
		ContentType: resp.ContentType,
		Body:        append([]byte(nil), resp.Body...),
	}
	out.UpdatedAt = now
	return out
}

// Clone копирует запись вместе с телом ответа.
func (r IdempotencyRecord) Clone() IdempotencyRecord {
	out := r
	out.Response.Body = append([]byte(nil), r.Response.Body...)
	return out
}

// NewIdempotencyRecord проверяет ключ и хеш и создаёт запись в статусе processing.
func NewIdempotencyRecord(key, requestHash string, ttlAt, now time.Time) (IdempotencyRecord, error) {
	if key == "" {
		return IdempotencyRecord{}, ErrIdempotencyKeyRequired
	}
	if requestHash == "" {
		return IdempotencyRecord{}, ErrIdempotencyRequestHashRequired
	}
	if ttlAt.IsZero() {
		ttlAt = now.Add(DefaultIdempotencyTTL)
	}
	return IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// DefaultIdempotencyTTL — срок хранения ответа, если TTL не передан.
const DefaultIdempotencyTTL = 24 * time.Hour

// ReserveConflict объясняет, почему ключ не удалось занять: тот же запрос или другой.
func ReserveConflict(existing IdempotencyRecord, requestHash string) error {
	if existing.RequestHash != requestHash {
		return ErrIdempotencyHashMismatch
	}
	return ErrIdempotencyKeyAlreadyExists
}
