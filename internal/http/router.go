package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"github.com/WailSalutem-Health-Care/user-directory/internal/auth"
	"github.com/WailSalutem-Health-Care/user-directory/internal/stub"
	"github.com/WailSalutem-Health-Care/user-directory/internal/telemetry"
)

// ServiceName is reported by /health and used for server spans
const ServiceName = "user-directory-stub"

// SetupRouter wires the directory routes. metrics may be nil.
func SetupRouter(handler *stub.Handler, verifier auth.Verifier, perms auth.Permissions, metrics *telemetry.Metrics, allowedOrigins string) *mux.Router {
	var authMetrics auth.MetricsRecorder
	var permMetrics auth.PermissionMetricsRecorder
	if metrics != nil {
		authMetrics = metrics
		permMetrics = metrics
	}

	protected := func(permission string, h http.HandlerFunc) http.Handler {
		return auth.MiddlewareWithMetrics(verifier, authMetrics)(
			auth.RequirePermissionWithMetrics(permission, perms, permMetrics)(h),
		)
	}

	r := mux.NewRouter()
	r.Use(otelmux.Middleware(ServiceName))
	r.Use(CORSMiddleware(allowedOrigins))
	if metrics != nil {
		r.Use(requestMetrics(metrics))
	}

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"` + ServiceName + `"}`))
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Public routes
	r.HandleFunc("/user/login", handler.Login).Methods(http.MethodPost)
	r.HandleFunc("/user/resetpassword/{email}", handler.ResetPassword).Methods(http.MethodGet)
	r.HandleFunc("/user/image/{username}", handler.ProfileImage).Methods(http.MethodGet)

	// Authenticated routes
	r.Handle("/user/list", protected("user:read", handler.ListUsers)).Methods(http.MethodGet)
	r.Handle("/user/add", protected("user:create", handler.AddUser)).Methods(http.MethodPost)
	r.Handle("/user/update", protected("user:update-self", handler.UpdateUser)).Methods(http.MethodPost)
	r.Handle("/user/delete/{id}", protected("user:delete", handler.DeleteUser)).Methods(http.MethodDelete)
	r.Handle("/user/updateProfileImage", protected("user:update-self", handler.UpdateProfileImage)).Methods(http.MethodPost)

	// Preflight requests are answered by the CORS middleware
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func requestMetrics(metrics *telemetry.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := r.URL.Path
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			metrics.RecordHTTPRequest(r.Context(), r.Method, route, rec.status, float64(time.Since(start).Milliseconds()))
		})
	}
}
