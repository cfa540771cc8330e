// Package jwt parses and verifies the compact JWTs minted by the auth core.
//
// Parsing and verification are deliberately split. ParseWithoutVerification
// is a cheap structural check: the header segment must byte-match a small
// whitelist of pre-encoded headers, so JWTs issued by anything else are
// rejected before any signature work. Verify then checks the RSA-SHA256
// signature against a single PEM public key; trying a whole key set is the
// caller's loop.
//
//	parsed, err := jwt.ParseWithoutVerification(raw)
//	if err != nil {
//		// not one of ours
//	}
//	for _, key := range keys {
//		if parsed.Verify(key.PublicKey) == nil {
//			// trusted
//		}
//	}
package jwt
