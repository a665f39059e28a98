package identity

import (
	"time"
)

const (
	AccessCookieName  = "access_token"
	RefreshCookieName = "refresh_token"
)

// SameSite values understood by the transport adapters
const (
	SameSiteLax    = "Lax"
	SameSiteStrict = "Strict"
	SameSiteNone   = "None"
)

// Cookie is a transport neutral cookie description
type Cookie struct {
	Name     string
	Value    string
	Path     string
	MaxAge   int
	Expires  time.Time
	Secure   bool
	HTTPOnly bool
	SameSite string
}

// SessionCookies describes the access/refresh cookie pair. The pair is
// always set and cleared together.
type SessionCookies struct {
	AccessName  string
	RefreshName string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	Secure      bool
	Path        string
	SameSite    string
}

func NewSessionCookies(accessTTL, refreshTTL time.Duration, secure bool) SessionCookies {
	return SessionCookies{
		AccessName:  AccessCookieName,
		RefreshName: RefreshCookieName,
		AccessTTL:   accessTTL,
		RefreshTTL:  refreshTTL,
		Secure:      secure,
		Path:        "/",
		SameSite:    SameSiteLax,
	}
}

// Set returns both cookies carrying pair.
func (s SessionCookies) Set(pair *TokenPair) []Cookie {
	if pair == nil {
		return nil
	}
	return []Cookie{
		s.cookie(s.AccessName, pair.AccessToken, s.AccessTTL),
		s.cookie(s.RefreshName, pair.RefreshToken, s.RefreshTTL),
	}
}

// Clear returns both cookies expired.
func (s SessionCookies) Clear() []Cookie {
	access := s.cookie(s.AccessName, "", 0)
	refresh := s.cookie(s.RefreshName, "", 0)
	expired := time.Unix(0, 0).UTC()
	access.MaxAge, refresh.MaxAge = -1, -1
	access.Expires, refresh.Expires = expired, expired
	return []Cookie{access, refresh}
}

func (s SessionCookies) cookie(name, value string, ttl time.Duration) Cookie {
	return Cookie{
		Name:     name,
		Value:    value,
		Path:     s.Path,
		MaxAge:   int(ttl / time.Second),
		Secure:   s.Secure,
		HTTPOnly: true,
		SameSite: s.SameSite,
	}
}
