package testutils

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"tenderlens/internal/handlers"
)

// WithChiURLParams кладет параметры пути в контекст chi, чтобы вызывать
// хендлер напрямую без роутера
func WithChiURLParams(req *http.Request, params map[string]string) *http.Request {
	chiCtx := chi.NewRouteContext()
	for k, v := range params {
		chiCtx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, chiCtx))
}

// AsTenant привязывает tenantID так же, как TenantMiddleware
func AsTenant(req *http.Request, tenantID string) *http.Request {
	return req.WithContext(handlers.WithTenant(req.Context(), tenantID))
}

// BearerToken подписывает HS256 токен для subject. Отрицательный ttl дает
// просроченный токен
func BearerToken(secret, subject string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{"exp": time.Now().Add(ttl).Unix()}
	if subject != "" {
		claims["sub"] = subject
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
