package auth

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/cooperapp/cooperapp/internal/transport"
	"github.com/cooperapp/cooperapp/pkg/logger"
)

const stateCookieName = "cooperapp_oauth_state"

type Handler struct {
	*transport.BaseHandler
	Service  *Service
	Provider IdentityProvider

	// CookieSecure should be false only in local development.
	CookieSecure bool
	SessionTTL   time.Duration
}

func NewHandler(service *Service, provider IdentityProvider, cookieSecure bool, sessionTTL time.Duration) *Handler {
	lg := logger.L()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler:  transport.NewBaseHandler(lg),
		Service:      service,
		Provider:     provider,
		CookieSecure: cookieSecure,
		SessionTTL:   sessionTTL,
	}
}

// BeginLogin starts the authorization code flow. The random state lands
// in a short-lived cookie and must round-trip through the provider.
func (h *Handler) BeginLogin(w http.ResponseWriter, r *http.Request) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		h.Logger.Error("BeginLogin: state generation failed", "error", err)
		h.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	state := hex.EncodeToString(raw)

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.Provider.AuthURL(state), http.StatusFound)
}

// Callback finishes the code flow: state check, code exchange, local
// login, session cookie.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		h.WriteError(w, http.StatusBadRequest, "missing state or code")
		return
	}

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value != state {
		h.Logger.Warn("Callback: state mismatch", "remote_addr", r.RemoteAddr)
		h.WriteError(w, http.StatusBadRequest, "state mismatch")
		return
	}
	h.clearCookie(w, stateCookieName)

	identity, err := h.Provider.Exchange(r.Context(), code)
	if err != nil {
		h.Logger.Error("Callback: code exchange failed", "error", err)
		h.WriteError(w, http.StatusBadGateway, "identity provider exchange failed")
		return
	}

	user, token, err := h.Service.Login(r.Context(), identity, transport.ClientIP(r), r.UserAgent())
	if err != nil {
		h.Logger.Warn("Callback: login refused", "error", err)
		h.WriteAppError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	h.Logger.Info("Callback: login complete", "user_id", user.ID)
	http.Redirect(w, r, "/", http.StatusFound)
}

// Me returns the principal behind the current session.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	h.WriteJSON(w, http.StatusOK, NewMeResponse(user))
}

// Logout closes the internal session and drops the cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.Service.Logout(r.Context(), user, transport.ClientIP(r)); err != nil {
		h.Logger.Error("Logout: service error", "error", err, "user_id", user.ID)
		h.WriteAppError(w, err)
		return
	}

	h.clearCookie(w, SessionCookieName)
	w.WriteHeader(http.StatusNoContent)
}

// CounterpartLogin trades a project code for a counterpart session.
func (h *Handler) CounterpartLogin(w http.ResponseWriter, r *http.Request) {
	var dto CounterpartLoginDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.WriteAppError(w, err)
		return
	}

	cp, token, err := h.Service.CounterpartLogin(r.Context(), dto.Code, transport.ClientIP(r), r.UserAgent())
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CounterpartCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(CounterpartAbsoluteTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})

	h.WriteJSON(w, http.StatusOK, CounterpartLoginResponse{ProjectID: cp.ProjectID})
}

// CounterpartLogout closes the counterpart session and drops the cookie.
func (h *Handler) CounterpartLogout(w http.ResponseWriter, r *http.Request) {
	cp, ok := CounterpartFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.Service.CounterpartLogout(r.Context(), cp, transport.ClientIP(r)); err != nil {
		h.Logger.Error("CounterpartLogout: service error", "error", err)
		h.WriteAppError(w, err)
		return
	}

	h.clearCookie(w, CounterpartCookieName)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.CookieSecure,
	})
}
