package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultTenantHeader = "X-Tenant-ID"

	bearerPrefix = "bearer "
)

type tenantKey struct{}

// WithTenant сохраняет id арендатора в ctx
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// TenantFromContext возвращает арендатора, привязанного TenantMiddleware
func TenantFromContext(ctx context.Context) (string, bool) {
	tenantID, ok := ctx.Value(tenantKey{}).(string)
	return tenantID, ok && tenantID != ""
}

// TenantMiddleware определяет арендатора запроса. Если задан secret, это claim
// `sub` из HS256 bearer токена, иначе значение header (только для локальной разработки)
func TenantMiddleware(secret, header string) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultTenantHeader
	}
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				tenantID string
				err      error
			)
			if secret != "" {
				tenantID, err = tenantFromToken(extractBearer(r), key)
			} else {
				tenantID = strings.TrimSpace(r.Header.Get(header))
				if tenantID == "" {
					err = fmt.Errorf("missing %s header", header)
				}
			}
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), tenantID)))
		})
	}
}

func extractBearer(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(strings.ToLower(raw), bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(raw[len(bearerPrefix):])
}

func tenantFromToken(token string, secret []byte) (string, error) {
	if token == "" {
		return "", errors.New("bearer token required")
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", err
	}
	subject, err := parsed.Claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("read subject: %w", err)
	}
	if subject == "" {
		return "", errors.New("invalid subject")
	}
	return subject, nil
}
