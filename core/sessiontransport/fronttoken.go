package sessiontransport

import (
	"encoding/base64"
	"encoding/json"

	"github.com/dmitrymomot/sessiongate/core/request"
)

// frontTokenRemove tells frontend SDKs to drop their cached front token.
const frontTokenRemove = "remove"

// BuildFrontToken encodes the redacted, signature-free token mirrored to
// the client for client-side introspection: base64 JSON {uid, ate, up}.
func BuildFrontToken(userID string, accessTokenExpiry int64, payload map[string]any) string {
	if payload == nil {
		payload = map[string]any{}
	}
	raw, _ := json.Marshal(map[string]any{
		"uid": userID,
		"ate": accessTokenExpiry,
		"up":  payload,
	})
	return base64.StdEncoding.EncodeToString(raw)
}

// SetFrontToken attaches the front token to the response.
func SetFrontToken(res request.Response, userID string, accessTokenExpiry int64, payload map[string]any) {
	res.SetHeader(FrontTokenHeaderName, BuildFrontToken(userID, accessTokenExpiry, payload), false)
	exposeHeader(res, FrontTokenHeaderName)
}

// ClearFrontToken marks the front token for removal on the client.
func ClearFrontToken(res request.Response) {
	res.SetHeader(FrontTokenHeaderName, frontTokenRemove, false)
	exposeHeader(res, FrontTokenHeaderName)
}
