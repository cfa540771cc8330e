package request

import (
	"net/http"
	"net/url"
	"time"
)

// Request is the read side of the framework abstraction the session core
// consumes. Framework adapters implement it once; the core never branches on
// framework identity.
type Request interface {
	GetMethod() string
	GetOriginalURL() string
	GetCookieValue(name string) (string, bool)
	GetHeaderValue(name string) (string, bool)
	GetKeyValueFromQuery(key string) (string, bool)
	GetJSONBody(dest any) error
	GetFormData() (url.Values, error)
}

// Cookie carries every attribute the session core needs to serialize.
// Expiry is absolute because token lifetimes come from the auth core as
// epoch timestamps, not relative max-ages.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Secure   bool
	HTTPOnly bool
	Expires  time.Time
	Path     string
	SameSite http.SameSite
}

// Response is the write side of the framework abstraction. Setting a cookie
// with a name that was already set during this request replaces the earlier
// instruction; the client must only ever see one value per token.
type Response interface {
	SetHeader(key, value string, allowDuplicate bool)
	RemoveHeader(key string)
	SetCookie(c Cookie)
	SetStatusCode(code int)
	SendJSON(obj any) error
}
