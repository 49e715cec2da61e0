package httpapi

import (
	"net/http"
	"time"

	goCred "github.com/MrEthical07/goCred"
)

const refreshCookieName = "refreshToken"

// setRefreshCookie mirrors the body's refresh token into an httpOnly cookie
// scoped like the token itself.
func (h *handler) setRefreshCookie(w http.ResponseWriter, pair goCred.TokenPair) {
	if pair.RefreshToken == "" {
		return
	}
	maxAge := int(time.Until(pair.RefreshExpiresAt).Seconds())
	if maxAge <= 0 {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    pair.RefreshToken,
		Path:     "/",
		Expires:  pair.RefreshExpiresAt,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}
