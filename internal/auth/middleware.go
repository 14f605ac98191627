package auth

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/WailSalutem-Health-Care/user-directory/internal/users"
)

type ctxKey string

const principalKey ctxKey = "auth_principal"

var tracer = otel.Tracer("github.com/WailSalutem-Health-Care/user-directory/auth")

// MetricsRecorder interface for recording auth metrics
type MetricsRecorder interface {
	RecordAuthFailure(ctx context.Context, reason string)
}

// Middleware validates token, injects Principal into request context.
func Middleware(ver Verifier) func(http.Handler) http.Handler {
	return MiddlewareWithMetrics(ver, nil)
}

// MiddlewareWithMetrics validates token with metrics recording
func MiddlewareWithMetrics(ver Verifier, metrics MetricsRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx, span := tracer.Start(ctx, "auth.Middleware",
				trace.WithSpanKind(trace.SpanKindInternal),
			)
			defer span.End()

			fail := func(reason, msg string) {
				span.SetStatus(codes.Error, msg)
				span.SetAttributes(attribute.String("error.type", reason))
				if metrics != nil {
					metrics.RecordAuthFailure(ctx, reason)
				}
				WriteError(w, http.StatusUnauthorized, msg)
			}

			authz := r.Header.Get("Authorization")
			if authz == "" {
				fail("missing_authorization", "You need to log in to access this page")
				return
			}

			parts := strings.SplitN(authz, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				fail("invalid_header_format", "Invalid authorization header")
				return
			}

			pr, err := ver.ParseAndVerifyToken(parts[1])
			if err != nil {
				log.Printf("[ERROR] Token validation failed: %v", err)
				span.SetAttributes(attribute.String("error.message", err.Error()))
				fail("invalid_token", "Token cannot be verified")
				return
			}

			span.SetAttributes(
				attribute.String("user.username", pr.Username),
				attribute.String("user.role", pr.Role),
			)
			span.SetStatus(codes.Ok, "authentication successful")

			ctx = context.WithValue(ctx, principalKey, pr)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PermissionMetricsRecorder interface for recording permission check metrics
type PermissionMetricsRecorder interface {
	RecordPermissionCheck(ctx context.Context, permission string, durationMs float64, allowed bool)
}

// RequirePermission returns middleware that ensures the principal has permission.
func RequirePermission(per string, perms Permissions) func(http.Handler) http.Handler {
	return RequirePermissionWithMetrics(per, perms, nil)
}

// RequirePermissionWithMetrics returns middleware with metrics recording
func RequirePermissionWithMetrics(per string, perms Permissions, metrics PermissionMetricsRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			start := time.Now()
			ctx, span := tracer.Start(ctx, "auth.RequirePermission",
				trace.WithSpanKind(trace.SpanKindInternal),
				trace.WithAttributes(attribute.String("permission.required", per)),
			)
			defer span.End()

			pr, ok := FromContext(ctx)
			if !ok {
				span.SetStatus(codes.Error, "unauthenticated")
				if metrics != nil {
					metrics.RecordPermissionCheck(ctx, per, float64(time.Since(start).Milliseconds()), false)
				}
				WriteError(w, http.StatusUnauthorized, "You need to log in to access this page")
				return
			}

			allowed := HasPermission(pr, per, perms)
			duration := float64(time.Since(start).Milliseconds())

			span.SetAttributes(
				attribute.Bool("permission.allowed", allowed),
				attribute.String("user.username", pr.Username),
				attribute.String("user.role", pr.Role),
			)

			if metrics != nil {
				metrics.RecordPermissionCheck(ctx, per, duration, allowed)
			}

			if !allowed {
				log.Printf("[PERMISSION DENIED] User: %s, Role: %s, Required Permission: %s", pr.Username, pr.Role, per)
				span.SetStatus(codes.Error, "forbidden")
				WriteError(w, http.StatusForbidden, "You do not have enough permission")
				return
			}

			span.SetStatus(codes.Ok, "permission granted")
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext extracts Principal from context.
func FromContext(ctx context.Context) (*Principal, bool) {
	pr, ok := ctx.Value(principalKey).(*Principal)
	return pr, ok
}

// HasPermission checks the principal's role against the permissions mapping.
// "ROLE_ADMIN" and "ADMIN" resolve to the same entry.
func HasPermission(pr *Principal, permission string, perms Permissions) bool {
	for _, p := range perms.For(pr.Role) {
		if p == permission {
			return true
		}
	}
	return false
}

// WriteError writes the directory's JSON error envelope
func WriteError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(users.HTTPResponse{
		TimeStamp:      time.Now().UTC().Format(time.RFC3339),
		HTTPStatusCode: status,
		HTTPStatus:     strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_")),
		Reason:         strings.ToUpper(http.StatusText(status)),
		Message:        message,
	})
}

// WithPrincipal returns a context carrying pr, as the middleware would after verification
func WithPrincipal(ctx context.Context, pr *Principal) context.Context {
	return context.WithValue(ctx, principalKey, pr)
}
