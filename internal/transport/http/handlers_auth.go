package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"atelier/internal/account"
	otpservice "atelier/internal/otp/service"
	"atelier/internal/platform/middleware"
	"atelier/internal/session"
	dErrors "atelier/pkg/domain-errors"
)

// AuthHandler serves OTP issuance and verification. A successful verification
// mints the account (first login is signup) and sets the session cookie.
type AuthHandler struct {
	otp      *otpservice.Service
	accounts *account.Service
	sessions *session.Issuer

	insecureCookies bool
	logger          *slog.Logger
}

func NewAuthHandler(otp *otpservice.Service, accounts *account.Service, sessions *session.Issuer, insecureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		otp:             otp,
		accounts:        accounts,
		sessions:        sessions,
		insecureCookies: insecureCookies,
		logger:          logger,
	}
}

func (h *AuthHandler) Register(r chi.Router) {
	r.Post("/auth/otp/request", h.handleRequest)
	r.Post("/auth/otp/verify", h.handleVerify)
}

type otpRequestBody struct {
	Email string `json:"email"`
}

type otpVerifyBody struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (h *AuthHandler) handleRequest(w http.ResponseWriter, r *http.Request) {
	var body otpRequestBody
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}

	err := h.otp.Request(r.Context(), body.Email, middleware.GetClientIP(r.Context()), r.UserAgent())
	if err != nil {
		// Validation and conflict collapse to one generic rejection so the
		// response does not reveal whether an address is registered.
		if dErrors.Is(err, dErrors.CodeValidation) || dErrors.Is(err, dErrors.CodeConflict) {
			writeError(w, dErrors.New(dErrors.CodeBadRequest, "unable to send code"))
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *AuthHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var body otpVerifyBody
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}

	address, err := h.otp.Verify(r.Context(), body.Email, body.Code)
	if err != nil {
		writeError(w, err)
		return
	}

	acct, err := h.accounts.EnsureAccount(r.Context(), address)
	if err != nil {
		writeError(w, err)
		return
	}

	token, err := h.sessions.Issue(acct.ID)
	if err != nil {
		writeError(w, dErrors.Wrap(err, dErrors.CodeInternal, "issue session"))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   !h.insecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"accountId": acct.ID,
	})
}
