// Package claims implements typed session claims and their validators.
//
// A claim is a named, typed fact stored in the access-token payload under
// {key: {"v": value, "t": fetchedAtMillis}}. Claims are composable: product
// features contribute validators independently, and the session layer runs
// the union of them when verifying a session.
//
//	secondFactor := claims.NewBoolClaim("2fa-completed", fetch2FAStatus)
//
//	// During verification:
//	container.AssertClaims(ctx, []claims.Validator{secondFactor.IsTrue()}, nil)
package claims
