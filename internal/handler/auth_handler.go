package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"campus-market/internal/domain"
	"campus-market/internal/middleware"
	"campus-market/internal/observability"
	"campus-market/internal/security"
	"campus-market/internal/service"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService   *service.AuthService
	tokenTTL      time.Duration
	secureCookies bool
	now           func() time.Time
}

// NewAuthHandler creates an authentication handler. secureCookies should
// be set whenever the server is reached over HTTPS.
func NewAuthHandler(authService *service.AuthService, tokenTTL time.Duration, secureCookies bool) *AuthHandler {
	return &AuthHandler{
		authService:   authService,
		tokenTTL:      tokenTTL,
		secureCookies: secureCookies,
		now:           time.Now,
	}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse also returns the token for clients that send it as a
// bearer header instead of relying on cookies.
type LoginResponse struct {
	User        *domain.User `json:"user"`
	AccessToken string       `json:"access_token"`
	ExpiresAt   time.Time    `json:"expires_at"`
}

// Register handles user registration
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.authService.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrEmailExists):
			writeError(w, http.StatusConflict, err.Error())
		default:
			observability.FromContext(r.Context()).Error("Failed to register user", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "Failed to register")
		}
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// Login checks credentials and sets the access token and CSRF cookies.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, token, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		observability.FromContext(r.Context()).Error("Failed to log in", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}

	csrfToken, err := security.GenerateCSRFToken()
	if err != nil {
		observability.FromContext(r.Context()).Error("Failed to generate CSRF token", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}

	maxAge := int(h.tokenTTL.Seconds())
	http.SetCookie(w, h.cookie(middleware.AccessTokenCookie, token, maxAge, true))
	http.SetCookie(w, h.cookie(middleware.CSRFCookie, csrfToken, maxAge, false))

	writeJSON(w, http.StatusOK, LoginResponse{
		User:        user,
		AccessToken: token,
		ExpiresAt:   h.now().Add(h.tokenTTL).UTC(),
	})
}

// Logout clears the auth cookies. Access tokens are stateless and stay
// valid until they expire.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.cookie(middleware.AccessTokenCookie, "", -1, true))
	http.SetCookie(w, h.cookie(middleware.CSRFCookie, "", -1, false))

	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	user, err := h.authService.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		observability.FromContext(r.Context()).Error("Failed to load user", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) cookie(name, value string, maxAge int, httpOnly bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: httpOnly,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	}
}
