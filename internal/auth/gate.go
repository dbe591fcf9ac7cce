package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/cooperapp/cooperapp/internal"
	"github.com/cooperapp/cooperapp/internal/permission"
	"github.com/cooperapp/cooperapp/internal/transport"
)

// Gate builds the chi middleware that protects routes. Internal and
// counterpart requests carry different cookies and resolve to different
// principals, so each surface mounts its own chain.
type Gate struct {
	service *Service
	logger  *slog.Logger
}

func NewGate(service *Service, logger *slog.Logger) *Gate {
	return &Gate{service: service, logger: logger}
}

// InternalAuth resolves the session cookie to an internal user or
// rejects with 401.
func (g *Gate) InternalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := transport.Cookie(r, SessionCookieName)
		if token == "" {
			writeGateError(w, internal.ErrNotAuthenticated)
			return
		}

		user, err := g.service.ValidateSession(r.Context(), token)
		if err != nil {
			writeGateError(w, err)
			return
		}

		ctx := ContextWithUser(r.Context(), user)
		ctx = internal.ContextWithOrigin(ctx, transport.ClientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePermission enforces the role matrix for a single action. Must
// run after InternalAuth.
func (g *Gate) RequirePermission(action permission.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				writeGateError(w, internal.ErrNotAuthenticated)
				return
			}
			if !permission.IsAllowed(user.Role, action) {
				g.logger.Warn("permission denied",
					"user_id", user.ID, "action", string(action))
				writeGateError(w, internal.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireProjectAccess checks the {projectID} URL parameter. Only the
// country_manager role is held to its assignment list.
func (g *Gate) RequireProjectAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			writeGateError(w, internal.ErrNotAuthenticated)
			return
		}

		projectID, err := strconv.ParseInt(chi.URLParam(r, "projectID"), 10, 64)
		if err != nil {
			http.Error(w, "invalid project ID", http.StatusBadRequest)
			return
		}

		allowed, err := g.service.HasProjectAccess(user, projectID)
		if err != nil {
			g.logger.Error("project access check failed", "error", err, "user_id", user.ID)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if !allowed {
			writeGateError(w, internal.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CounterpartAuth resolves the counterpart cookie or rejects with 401.
func (g *Gate) CounterpartAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := transport.Cookie(r, CounterpartCookieName)
		if token == "" {
			writeGateError(w, internal.ErrNotAuthenticated)
			return
		}

		cp, err := g.service.ValidateCounterpartSession(r.Context(), token)
		if err != nil {
			writeGateError(w, err)
			return
		}

		ctx := ContextWithCounterpart(r.Context(), cp)
		ctx = internal.ContextWithOrigin(ctx, transport.ClientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CounterpartProjectScope pins counterpart requests to the project their
// session was opened for. A counterpart token never reaches any other
// project, whatever the URL says.
func (g *Gate) CounterpartProjectScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cp, ok := CounterpartFromContext(r.Context())
		if !ok {
			writeGateError(w, internal.ErrNotAuthenticated)
			return
		}

		projectID, err := strconv.ParseInt(chi.URLParam(r, "projectID"), 10, 64)
		if err != nil {
			http.Error(w, "invalid project ID", http.StatusBadRequest)
			return
		}
		if projectID != cp.ProjectID {
			writeGateError(w, internal.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeGateError(w http.ResponseWriter, err error) {
	appErr, ok := internal.IsAppError(err)
	if !ok {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	status, body := appErr.ToHTTPResponse()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
