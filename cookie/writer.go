// Package cookie moves the session tokens on and off the wire. Both tokens
// ride in httpOnly cookies so script code can never read them; the writer is
// the only component that touches the response for session transport.
package cookie

import (
	"net/http"
	"time"
)

// Cookie names used for session transport.
const (
	AccessTokenName  = "access-token"
	RefreshTokenName = "refresh-token"
)

// Config controls cookie attributes. MaxAge of each cookie is bound to the
// lifetime of the token it carries.
type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Secure     bool
	SameSite   http.SameSite
	Domain     string
	Path       string
}

// Writer attaches and clears the protected session cookies.
type Writer struct {
	config Config
}

func NewWriter(cfg Config) *Writer {
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if cfg.SameSite == 0 {
		cfg.SameSite = http.SameSiteLaxMode
	}
	return &Writer{config: cfg}
}

// Attach sets both session cookies on the response.
func (w *Writer) Attach(rw http.ResponseWriter, accessToken, refreshToken string) {
	http.SetCookie(rw, w.cookie(AccessTokenName, accessToken, w.config.AccessTTL))
	http.SetCookie(rw, w.cookie(RefreshTokenName, refreshToken, w.config.RefreshTTL))
}

// Clear removes both session cookies. It only deletes the client's copy;
// revocation of the underlying tokens is a separate engine call.
func (w *Writer) Clear(rw http.ResponseWriter) {
	http.SetCookie(rw, w.expired(AccessTokenName))
	http.SetCookie(rw, w.expired(RefreshTokenName))
}

// ClearAccess removes only the access cookie, as done after a
// token-generation bump.
func (w *Writer) ClearAccess(rw http.ResponseWriter) {
	http.SetCookie(rw, w.expired(AccessTokenName))
}

func (w *Writer) cookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     w.config.Path,
		Domain:   w.config.Domain,
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   w.config.Secure,
		SameSite: w.config.SameSite,
	}
}

func (w *Writer) expired(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     w.config.Path,
		Domain:   w.config.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   w.config.Secure,
		SameSite: w.config.SameSite,
	}
}
