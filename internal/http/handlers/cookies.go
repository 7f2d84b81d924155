package handlers

import (
	"net/http"
	"time"

	"github.com/tutorhub/server/internal/auth"
	"github.com/tutorhub/server/internal/middleware"
)

// RefreshTokenCookie names the cookie carrying the refresh token.
const RefreshTokenCookie = "refreshToken"

// CookieConfig controls the attributes of the session cookies.
type CookieConfig struct {
	Secure   bool
	SameSite string
	Path     string
}

// CookieManager sets and clears the session cookies.
type CookieManager struct {
	config CookieConfig
}

// NewCookieManager creates a cookie manager
func NewCookieManager(config CookieConfig) *CookieManager {
	if config.Path == "" {
		config.Path = "/"
	}
	return &CookieManager{config: config}
}

// SetTokens writes both session cookies, each living as long as its token.
func (m *CookieManager) SetTokens(w http.ResponseWriter, pair auth.TokenPair, accessTTL, refreshTTL time.Duration) {
	m.set(w, middleware.AccessTokenCookie, pair.AccessToken, int(accessTTL/time.Second))
	m.set(w, RefreshTokenCookie, pair.RefreshToken, int(refreshTTL/time.Second))
}

// ClearTokens expires both session cookies.
func (m *CookieManager) ClearTokens(w http.ResponseWriter) {
	m.set(w, middleware.AccessTokenCookie, "", -1)
	m.set(w, RefreshTokenCookie, "", -1)
}

func (m *CookieManager) set(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     m.config.Path,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.config.Secure,
		SameSite: m.sameSite(),
	})
}

func (m *CookieManager) sameSite() http.SameSite {
	switch m.config.SameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
