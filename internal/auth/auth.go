// Package auth проверяет bearer-токены Identity Provider и переносит идентичность в context.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Claims — полезная нагрузка токена. userId совпадает с форматом сессий витрины.
type Claims struct {
	UserID string `json:"userId"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Verifier проверяет HS256-токены общим секретом.
type Verifier struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// Option настраивает Verifier.
type Option func(*Verifier)

// WithIssuer требует совпадения iss.
func WithIssuer(issuer string) Option {
	return func(v *Verifier) { v.issuer = issuer }
}

// WithLeeway допускает расхождение часов при проверке exp/nbf.
func WithLeeway(leeway time.Duration) Option {
	return func(v *Verifier) { v.leeway = leeway }
}

// NewVerifier создаёт проверяющего. Пустой секрет считается ошибкой конфигурации.
func NewVerifier(secret string, opts ...Option) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	v := &Verifier{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify разбирает токен и возвращает идентичность.
func (v *Verifier) Verify(token string) (domain.Identity, error) {
	const op = "auth.verify"

	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Identity{}, domain.NewError(domain.ErrAuthentication, op, "bearer token is required")
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, parserOpts...)
	if err != nil {
		return domain.Identity{}, domain.WrapError(domain.ErrAuthentication, op, err)
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if strings.TrimSpace(userID) == "" {
		return domain.Identity{}, domain.NewError(domain.ErrAuthentication, op, "token has no user id")
	}

	role := domain.RoleCustomer
	if domain.Role(claims.Role) == domain.RoleAdmin {
		role = domain.RoleAdmin
	}
	return domain.Identity{UserID: userID, Role: role}, nil
}

// Issue подписывает токен для identity. Используется в тестах и dev-окружении.
func (v *Verifier) Issue(identity domain.Identity, ttl time.Duration) (string, error) {
	if identity.Anonymous() {
		return "", errors.New("auth: identity has no user id")
	}
	now := v.now()
	claims := Claims{
		UserID: identity.UserID,
		Role:   string(identity.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  identity.UserID,
			Issuer:   v.issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// BearerToken извлекает токен из заголовка Authorization.
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

type identityKey struct{}

// WithIdentity кладёт идентичность в context.
func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFrom достаёт идентичность; для анонимного запроса возвращает пустую.
func IdentityFrom(ctx context.Context) domain.Identity {
	identity, _ := ctx.Value(identityKey{}).(domain.Identity)
	return identity
}
