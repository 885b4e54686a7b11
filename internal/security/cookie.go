package security

import (
	"net/http"
	"time"
)

// CookieManager writes and clears the session token cookie. The cookie is
// always HttpOnly and SameSite=Strict; name, domain, path and the Secure flag
// come from configuration.
type CookieManager struct {
	Name   string
	Path   string
	Domain string
	Secure bool
}

func NewCookieManager(name, path, domain string, secure bool) *CookieManager {
	if name == "" {
		name = "jwt"
	}
	if path == "" {
		path = "/"
	}
	return &CookieManager{Name: name, Path: path, Domain: domain, Secure: secure}
}

// SetTokenCookie delivers token with a max-age equal to the token's validity
// window.
func (m *CookieManager) SetTokenCookie(w http.ResponseWriter, token string, validity time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.Name,
		Value:    token,
		Path:     m.Path,
		Domain:   m.Domain,
		MaxAge:   int(validity.Seconds()),
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearTokenCookie overwrites the session cookie with an empty value and an
// immediate expiry.
func (m *CookieManager) ClearTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.Name,
		Value:    "",
		Path:     m.Path,
		Domain:   m.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// GetCookie returns the named cookie's value or "" when absent.
func GetCookie(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
