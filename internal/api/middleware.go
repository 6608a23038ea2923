package api

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"soyle/internal/logger"
	"soyle/internal/models"
)

// IdentityKey - ключ Identity в контексте запроса.
type IdentityKey string

const (
	ContextIdentityKey IdentityKey = "identity"
	// ContextNewDeviceKey - true, если id устройства выдан этим же запросом.
	ContextNewDeviceKey IdentityKey = "new_device"
)

const DeviceHeader = "X-Device-ID"

// Claims - данные токена провайдера входа.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// IdentityFrom возвращает Identity, положенную IdentityMiddleware.
func IdentityFrom(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(ContextIdentityKey).(models.Identity)
	return id, ok
}

// NewDevice сообщает, что устройство впервые пришло в этом запросе:
// сохранённого прогресса у него быть не может.
func NewDevice(ctx context.Context) bool {
	fresh, _ := ctx.Value(ContextNewDeviceKey).(bool)
	return fresh
}

// IdentityMiddleware определяет, кто делает запрос. Токен необязателен:
// без него запрос анонимный и привязан к устройству. Неверный токен - 401.
func IdentityMiddleware(opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id models.Identity

			if authHeader := r.Header.Get("Authorization"); authHeader != "" {
				userID, msg := parseBearer(authHeader, opts.JWTSecret)
				if msg != "" {
					respondWithError(w, http.StatusUnauthorized, msg)
					return
				}
				id.UserID = userID
			}

			ctx := r.Context()
			id.DeviceID = deviceID(r, opts.DeviceCookie)
			if id.DeviceID == "" {
				id.DeviceID = uuid.NewString()
				ctx = context.WithValue(ctx, ContextNewDeviceKey, true)
				http.SetCookie(w, &http.Cookie{
					Name:     opts.DeviceCookie,
					Value:    id.DeviceID,
					Path:     "/",
					MaxAge:   int((365 * 24 * time.Hour).Seconds()),
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}
			w.Header().Set(DeviceHeader, id.DeviceID)

			ctx = context.WithValue(ctx, ContextIdentityKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// parseBearer возвращает user_id из токена или текст ошибки для клиента.
func parseBearer(authHeader string, secret []byte) (string, string) {
	headerParts := strings.Split(authHeader, " ")
	if len(headerParts) != 2 || headerParts[0] != "Bearer" {
		return "", "Invalid Authorization header format"
	}
	if len(secret) == 0 {
		return "", "Sign-in is not configured"
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(headerParts[1], claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", "Token has expired"
		}
		return "", "Invalid token"
	}
	if !token.Valid || claims.UserID == "" {
		return "", "Invalid token"
	}
	return claims.UserID, ""
}

func deviceID(r *http.Request, cookieName string) string {
	if v := r.Header.Get(DeviceHeader); deviceIDPattern.MatchString(v) {
		return v
	}
	if c, err := r.Cookie(cookieName); err == nil && deviceIDPattern.MatchString(c.Value) {
		return c.Value
	}
	return ""
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware пишет строку лога на каждый запрос.
func LoggingMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			kv := []interface{}{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
			}
			if rec.status >= 500 {
				log.Warn("request failed", kv...)
				return
			}
			log.Debug("request", kv...)
		})
	}
}
