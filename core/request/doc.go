// Package request defines the request/response abstraction the session core
// consumes, together with a net/http adapter.
//
// The session core never touches framework types directly. An adapter is
// selected once at startup by the integrator, so the core contains no
// runtime framework detection:
//
//	req := request.NewHTTPRequest(r)
//	res := request.NewHTTPResponse(w)
//	container, err := recipe.GetSession(r.Context(), req, res, nil, nil)
//
// Adapters for other frameworks only need to satisfy the two small
// interfaces in this package.
package request
