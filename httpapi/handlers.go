package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	goCred "github.com/MrEthical07/goCred"
	authmw "github.com/MrEthical07/goCred/middleware"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

type handler struct {
	engine        *goCred.Engine
	logger        *slog.Logger
	secureCookies bool
}

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

func (r signUpRequest) validate() error {
	if strings.TrimSpace(r.Email) == "" || r.Password == "" {
		return fmt.Errorf("%w: email and password are required", goCred.ErrInvalidInput)
	}
	return nil
}

type emailRequest struct {
	Email string `json:"email"`
}

func (r emailRequest) validate() error {
	if strings.TrimSpace(r.Email) == "" {
		return fmt.Errorf("%w: email is required", goCred.ErrInvalidInput)
	}
	return nil
}

type codeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (r codeRequest) validate() error {
	if strings.TrimSpace(r.Email) == "" || strings.TrimSpace(r.Code) == "" {
		return fmt.Errorf("%w: email and code are required", goCred.ErrInvalidInput)
	}
	return nil
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r credentialsRequest) validate() error {
	if strings.TrimSpace(r.Email) == "" || r.Password == "" {
		return fmt.Errorf("%w: email and password are required", goCred.ErrInvalidInput)
	}
	return nil
}

type googleRequest struct {
	IDToken string `json:"id_token"`
}

func (r googleRequest) validate() error {
	if strings.TrimSpace(r.IDToken) == "" {
		return fmt.Errorf("%w: id_token is required", goCred.ErrInvalidInput)
	}
	return nil
}

type logoutRequest struct {
	Mode string `json:"mode"`
}

func (r logoutRequest) validate() error { return nil }

type updatePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	Logout          string `json:"logout"`
}

func (r updatePasswordRequest) validate() error {
	if r.CurrentPassword == "" || r.NewPassword == "" {
		return fmt.Errorf("%w: current_password and new_password are required", goCred.ErrInvalidInput)
	}
	return nil
}

type validator interface {
	validate() error
}

type tokenResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	Scheme           string    `json:"scheme"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func newTokenResponse(p goCred.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		Scheme:           string(p.Scheme),
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

// principalResponse never carries hashes, codes or the encrypted phone.
type principalResponse struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	Role             string     `json:"role"`
	Provider         string     `json:"provider"`
	IsEmailConfirmed bool       `json:"is_email_confirmed"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty"`
	RestoredAt       *time.Time `json:"restored_at,omitempty"`
}

func newPrincipalResponse(p goCred.Principal) principalResponse {
	out := principalResponse{
		ID:               p.ID,
		Email:            p.Email,
		Role:             string(p.Role),
		Provider:         string(p.Provider),
		IsEmailConfirmed: p.IsEmailConfirmed,
	}
	if !p.DeletedAt.IsZero() {
		t := p.DeletedAt
		out.DeletedAt = &t
	}
	if !p.RestoredAt.IsZero() {
		t := p.RestoredAt
		out.RestoredAt = &t
	}
	return out
}

type signInResponse struct {
	Tokens tokenResponse     `json:"tokens"`
	User   principalResponse `json:"user"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *handler) signUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.engine.Register(r.Context(), goCred.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newPrincipalResponse(p))
}

func (h *handler) confirmEmail(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.engine.ConfirmEmail(r.Context(), req.Email, req.Code); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "email confirmed"})
}

func (h *handler) resendConfirmEmail(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.engine.ResendConfirmEmail(r.Context(), req.Email); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "confirmation code sent"})
}

func (h *handler) signIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	pair, p, err := h.engine.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.setRefreshCookie(w, pair)
	writeJSON(w, http.StatusOK, signInResponse{Tokens: newTokenResponse(pair), User: newPrincipalResponse(p)})
}

func (h *handler) signInGoogle(w http.ResponseWriter, r *http.Request) {
	var req googleRequest
	if !h.decode(w, r, &req) {
		return
	}
	pair, p, err := h.engine.SignInFederated(r.Context(), req.IDToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.setRefreshCookie(w, pair)
	writeJSON(w, http.StatusOK, signInResponse{Tokens: newTokenResponse(pair), User: newPrincipalResponse(p)})
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	pair, err := h.engine.Refresh(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		h.writeError(w, r, authmw.Unauthorized(err))
		return
	}
	h.setRefreshCookie(w, pair)
	writeJSON(w, http.StatusOK, newTokenResponse(pair))
}

// forgotPassword answers the same way for unknown emails so the endpoint
// cannot be used to discover accounts.
func (h *handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := h.engine.RequestReset(r.Context(), req.Email)
	if err != nil && !errors.Is(err, goCred.ErrPrincipalNotFound) {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "if the account exists, a reset code was sent"})
}

func (h *handler) confirmReset(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.engine.ConfirmReset(r.Context(), req.Email, req.Code); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "reset code confirmed"})
}

func (h *handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.engine.CompleteReset(r.Context(), req.Email, req.Password); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "password reset"})
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	mode, err := goCred.ParseLogoutMode(req.Mode)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, _ := authmw.AuthResult(r.Context())
	if err := h.engine.Logout(r.Context(), res, mode); err != nil {
		h.writeError(w, r, err)
		return
	}
	if mode != goCred.LogoutStay {
		h.clearRefreshCookie(w)
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

func (h *handler) updatePassword(w http.ResponseWriter, r *http.Request) {
	var req updatePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	mode, err := goCred.ParseLogoutMode(req.Logout)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, _ := authmw.AuthResult(r.Context())
	pair, err := h.engine.UpdatePassword(r.Context(), res, goCred.UpdatePasswordInput{
		Current: req.CurrentPassword,
		New:     req.NewPassword,
		Logout:  mode,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if pair.RefreshToken != "" {
		h.setRefreshCookie(w, pair)
	} else {
		h.clearRefreshCookie(w)
	}
	writeJSON(w, http.StatusOK, newTokenResponse(pair))
}

func (h *handler) freezeSelf(w http.ResponseWriter, r *http.Request) {
	h.freeze(w, r, "")
}

func (h *handler) freezeOther(w http.ResponseWriter, r *http.Request) {
	h.freeze(w, r, chi.URLParam(r, "id"))
}

func (h *handler) freeze(w http.ResponseWriter, r *http.Request, targetID string) {
	res, _ := authmw.AuthResult(r.Context())
	p, err := h.engine.SoftDelete(r.Context(), res, targetID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPrincipalResponse(p))
}

func (h *handler) restore(w http.ResponseWriter, r *http.Request) {
	res, _ := authmw.AuthResult(r.Context())
	p, err := h.engine.Restore(r.Context(), res, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPrincipalResponse(p))
}

// decode reads a JSON body into v and validates it. It writes the error
// response itself and reports whether the handler should continue.
func (h *handler) decode(w http.ResponseWriter, r *http.Request, v validator) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty body")
		}
		h.writeError(w, r, fmt.Errorf("%w: %v", goCred.ErrInvalidInput, err))
		return false
	}
	if err := v.validate(); err != nil {
		h.writeError(w, r, err)
		return false
	}
	return true
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if authmw.StatusCode(err) >= http.StatusInternalServerError {
		h.logger.Error("httpapi: request failed", "path", r.URL.Path, "error", err)
	}
	authmw.WriteError(w, r, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
