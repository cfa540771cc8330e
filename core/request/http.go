package request

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// HTTPRequest adapts a *net/http.Request to the Request interface.
type HTTPRequest struct {
	r *http.Request
}

// NewHTTPRequest wraps a net/http request.
func NewHTTPRequest(r *http.Request) *HTTPRequest {
	return &HTTPRequest{r: r}
}

func (h *HTTPRequest) GetMethod() string {
	return h.r.Method
}

func (h *HTTPRequest) GetOriginalURL() string {
	return h.r.URL.RequestURI()
}

// GetCookieValue returns the URL-decoded cookie value. Token cookies are
// written URL-encoded because JWT payloads may contain characters that are
// not cookie-octet safe.
func (h *HTTPRequest) GetCookieValue(name string) (string, bool) {
	c, err := h.r.Cookie(name)
	if err != nil {
		return "", false
	}
	value, err := url.QueryUnescape(c.Value)
	if err != nil {
		return c.Value, true
	}
	return value, true
}

func (h *HTTPRequest) GetHeaderValue(name string) (string, bool) {
	v := h.r.Header.Get(name)
	return v, v != ""
}

func (h *HTTPRequest) GetKeyValueFromQuery(key string) (string, bool) {
	if !h.r.URL.Query().Has(key) {
		return "", false
	}
	return h.r.URL.Query().Get(key), true
}

func (h *HTTPRequest) GetJSONBody(dest any) error {
	return json.NewDecoder(h.r.Body).Decode(dest)
}

func (h *HTTPRequest) GetFormData() (url.Values, error) {
	if err := h.r.ParseForm(); err != nil {
		return nil, err
	}
	return h.r.Form, nil
}

// HTTPResponse adapts a net/http ResponseWriter to the Response interface.
// The status code is buffered until the first body write so that later
// error handling can still change it.
type HTTPResponse struct {
	w          http.ResponseWriter
	statusCode int
	wrote      bool
}

// NewHTTPResponse wraps a net/http response writer.
func NewHTTPResponse(w http.ResponseWriter) *HTTPResponse {
	return &HTTPResponse{w: w}
}

func (h *HTTPResponse) SetHeader(key, value string, allowDuplicate bool) {
	if allowDuplicate {
		h.w.Header().Add(key, value)
		return
	}
	h.w.Header().Set(key, value)
}

func (h *HTTPResponse) RemoveHeader(key string) {
	h.w.Header().Del(key)
}

// SetCookie serializes the cookie, replacing any Set-Cookie instruction for
// the same name issued earlier in this request. A refresh that rotates a
// token must not leave both the old and new value in the response.
func (h *HTTPResponse) SetCookie(c Cookie) {
	cookie := &http.Cookie{
		Name:     c.Name,
		Value:    url.QueryEscape(c.Value),
		Domain:   c.Domain,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
		Expires:  c.Expires,
		Path:     c.Path,
		SameSite: c.SameSite,
	}

	existing := h.w.Header()["Set-Cookie"]
	if len(existing) > 0 {
		kept := existing[:0]
		for _, line := range existing {
			if !strings.HasPrefix(line, c.Name+"=") {
				kept = append(kept, line)
			}
		}
		h.w.Header()["Set-Cookie"] = kept
	}

	http.SetCookie(h.w, cookie)
}

func (h *HTTPResponse) SetStatusCode(code int) {
	if !h.wrote {
		h.statusCode = code
	}
}

func (h *HTTPResponse) SendJSON(obj any) error {
	if h.wrote {
		return nil
	}
	h.wrote = true

	h.w.Header().Set("Content-Type", "application/json")
	if h.statusCode != 0 {
		h.w.WriteHeader(h.statusCode)
	}
	return json.NewEncoder(h.w).Encode(obj)
}
