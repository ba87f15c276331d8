package httpapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	// IdempotencyKeyHeader — заголовок ключа идемпотентности.
	IdempotencyKeyHeader = "Idempotency-Key"
	// ReplayedHeader выставляется на ответах, взятых из кеша.
	ReplayedHeader = "Idempotent-Replayed"

	maxIdempotencyKeyLen = 255
	maxRequestBodyBytes  = 1 << 20
)

// idempotency кеширует ответ мутирующего запроса по заголовку Idempotency-Key.
// Ключ привязан к идентичности: разные клиенты не видят ответов друг друга.
type idempotency struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	logger *log.Entry
	now    func() time.Time
}

func newIdempotency(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) *idempotency {
	if ttl <= 0 {
		ttl = domain.DefaultIdempotencyTTL
	}
	return &idempotency{
		repo:   repo,
		ttl:    ttl,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (m *idempotency) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
		identity := identityFrom(r)
		if m == nil || m.repo == nil || key == "" || identity.Anonymous() {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			writeError(w, http.StatusBadRequest, codeValidation, "idempotency key is too long")
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidation, "failed to read request body")
			return
		}
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))

		storeKey := identity.UserID + ":" + key
		record, err := m.repo.Reserve(r.Context(), storeKey, requestHash(r, body), m.now().Add(m.ttl))
		if err != nil {
			m.replay(w, r, storeKey, record, err)
			return
		}

		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		// Ответ уже ушёл клиенту; сохраняем его, даже если клиент успел отключиться.
		resp := domain.StoredResponse{
			HTTPStatus:  rec.status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.body.Bytes(),
		}
		if err := m.repo.Complete(context.WithoutCancel(r.Context()), storeKey, resp); err != nil {
			m.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
		}
	})
}

func (m *idempotency) replay(w http.ResponseWriter, r *http.Request, key string, record domain.IdempotencyRecord, reserveErr error) {
	switch {
	case errors.Is(reserveErr, domain.ErrIdempotencyHashMismatch):
		writeError(w, http.StatusConflict, codeIdempotencyConflict, "idempotency key is already used with a different request")
	case errors.Is(reserveErr, domain.ErrIdempotencyKeyAlreadyExists) && record.Replayable():
		status := record.Response.HTTPStatus
		if status == 0 {
			status = http.StatusOK
		}
		contentType := record.Response.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set(ReplayedHeader, "true")
		w.WriteHeader(status)
		_, _ = w.Write(record.Response.Body)
	case errors.Is(reserveErr, domain.ErrIdempotencyKeyAlreadyExists):
		writeError(w, http.StatusConflict, codeIdempotencyConflict, "request with the same idempotency key is still processing")
	default:
		writeDomainError(w, r, m.logger.WithField("idempotency_key", key), reserveErr)
	}
}

// requestHash — sha256 от метода, пути и тела запроса.
func requestHash(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Method))
	h.Write([]byte{':'})
	h.Write([]byte(r.URL.Path))
	h.Write([]byte{':'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// responseRecorder пишет ответ клиенту и одновременно копирует его для кеша.
type responseRecorder struct {
	http.ResponseWriter
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func (r *responseRecorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}
