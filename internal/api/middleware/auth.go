package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/skyglance/skyglance/internal/api/models"
)

// AdminRole is the role claim required on operator tokens.
const AdminRole = "admin"

// Admin token errors.
var (
	ErrInvalidAdminToken = errors.New("invalid admin token")
	ErrAdminTokenExpired = errors.New("admin token has expired")
	ErrNotAdmin          = errors.New("token does not carry the admin role")
)

// adminSubjectKey is the context key for the authenticated operator.
type adminSubjectKey struct{}

// AdminClaims are the claims carried by operator tokens.
type AdminClaims struct {
	jwt.RegisteredClaims

	Role string `json:"role"`
}

// AdminAuthConfig configures operator token validation.
type AdminAuthConfig struct {
	// SigningKey is the HS256 secret shared with whoever mints tokens.
	SigningKey string

	// Issuer and Audience are checked when set.
	Issuer   string
	Audience string
}

// ValidateAdminToken parses an HS256 token and returns the subject.
func ValidateAdminToken(cfg AdminAuthConfig, tokenString string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.SigningKey), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrAdminTokenExpired
		}
		return "", fmt.Errorf("%w: %s", ErrInvalidAdminToken, err.Error())
	}

	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidAdminToken
	}
	if claims.Role != AdminRole {
		return "", ErrNotAdmin
	}
	return claims.Subject, nil
}

// IssueAdminToken mints an operator token valid for ttl.
func IssueAdminToken(cfg AdminAuthConfig, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: AdminRole,
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.SigningKey))
	if err != nil {
		return "", fmt.Errorf("signing admin token: %w", err)
	}
	return signed, nil
}

// AdminAuth creates middleware that requires a valid operator bearer token.
func AdminAuth(cfg AdminAuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeUnauthorized(w, r, "missing authorization header")
				return
			}

			// Bearer prefix is case-insensitive
			const bearerPrefix = "Bearer "
			if len(authHeader) < len(bearerPrefix) ||
				!strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
				writeUnauthorized(w, r, "invalid authorization header format")
				return
			}

			tokenString := authHeader[len(bearerPrefix):]
			if tokenString == "" {
				writeUnauthorized(w, r, "missing bearer token")
				return
			}

			subject, err := ValidateAdminToken(cfg, tokenString)
			if err != nil {
				switch {
				case errors.Is(err, ErrAdminTokenExpired):
					writeUnauthorized(w, r, "admin token has expired")
				case errors.Is(err, ErrNotAdmin):
					writeUnauthorized(w, r, "admin role required")
				default:
					writeUnauthorized(w, r, "invalid admin token")
				}
				return
			}

			ctx := context.WithValue(r.Context(), adminSubjectKey{}, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeUnauthorized writes a 401 problem without going through the response
// package, which imports this one.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := GetRequestID(r.Context())
	problem := models.NewUnauthorized(traceID, detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// GetAdminSubject returns the authenticated operator, or "" outside admin routes.
func GetAdminSubject(ctx context.Context) string {
	if sub, ok := ctx.Value(adminSubjectKey{}).(string); ok {
		return sub
	}
	return ""
}
