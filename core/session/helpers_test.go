package session_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessiongate/core/querier"
	"github.com/dmitrymomot/sessiongate/core/request"
	"github.com/dmitrymomot/sessiongate/core/session"
	"github.com/dmitrymomot/sessiongate/core/signingkeys"
)

// testKey is generated once; RSA keygen is slow enough to matter across
// the suite.
var testKey = func() *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return key
}()

func publicKeyPEM(t *testing.T, key *rsa.PrivateKey) string {
	t.Helper()

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

// signToken mints a compact JWT the way the core does, with the version
// discriminator in the header.
func signToken(t *testing.T, key *rsa.PrivateKey, version string, payload map[string]any) string {
	t.Helper()

	headerJSON, err := json.Marshal(map[string]any{"alg": "RS256", "typ": "JWT", "version": version})
	require.NoError(t, err)
	payloadJSON, err := json.Marshal(payload)
	require.NoError(t, err)

	signingInput := base64.RawURLEncoding.EncodeToString(headerJSON) + "." + base64.RawURLEncoding.EncodeToString(payloadJSON)
	sig, err := jwtlib.SigningMethodRS256.Sign(signingInput, key)
	require.NoError(t, err)

	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig)
}

// v3Payload builds a minimal valid v3 access-token payload.
func v3Payload(userID, handle string, extra map[string]any) map[string]any {
	now := time.Now()
	payload := map[string]any{
		"sub":           userID,
		"rsub":          userID,
		"sessionHandle": handle,
		"tId":           "public",
		"exp":           now.Add(time.Hour).Unix(),
		"iat":           now.Unix(),
	}
	for k, v := range extra {
		payload[k] = v
	}
	return payload
}

// newTestRecipe wires a recipe against a fake core and seeds the key cache
// with the test key so verification stays local unless a test forces a
// round-trip.
func newTestRecipe(t *testing.T, handler http.Handler, mutate func(*session.Config), opts ...session.Option) (*session.Recipe, *signingkeys.Cache) {
	t.Helper()

	if handler == nil {
		handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Errorf("unexpected core call: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusInternalServerError)
		})
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	q, err := querier.New(querier.Config{ConnectionURI: srv.URL})
	require.NoError(t, err)

	keys := signingkeys.New(q, signingkeys.DefaultConfig())
	keys.SetKeys([]signingkeys.SigningKey{{
		PublicKey: publicKeyPEM(t, testKey),
		CreatedAt: time.Now().Add(-time.Hour).UnixMilli(),
	}})

	cfg := session.DefaultConfig()
	cfg.APIDomain = "https://api.example.com"
	cfg.WebsiteDomain = "https://example.com"
	if mutate != nil {
		mutate(&cfg)
	}

	recipe, err := session.New(q, keys, cfg, opts...)
	require.NoError(t, err)
	return recipe, keys
}

func jsonResponse(w http.ResponseWriter, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func newReqRes(t *testing.T, method string, mutate func(*http.Request)) (request.Request, request.Response, *httptest.ResponseRecorder) {
	t.Helper()

	r := httptest.NewRequest(method, "/", nil)
	if mutate != nil {
		mutate(r)
	}
	w := httptest.NewRecorder()
	return request.NewHTTPRequest(r), request.NewHTTPResponse(w), w
}

// coreCreateResponse is what the core answers on session creation and
// refresh.
func coreCreateResponse(handle, userID, accessToken, refreshToken string, payload map[string]any) map[string]any {
	if payload == nil {
		payload = map[string]any{}
	}
	now := time.Now()
	return map[string]any{
		"status": "OK",
		"session": map[string]any{
			"handle":        handle,
			"userId":        userID,
			"recipeUserId":  userID,
			"tenantId":      "public",
			"userDataInJWT": payload,
		},
		"accessToken": map[string]any{
			"token":       accessToken,
			"expiry":      now.Add(time.Hour).UnixMilli(),
			"createdTime": now.UnixMilli(),
		},
		"refreshToken": map[string]any{
			"token":       refreshToken,
			"expiry":      now.Add(100 * 24 * time.Hour).UnixMilli(),
			"createdTime": now.UnixMilli(),
		},
	}
}
