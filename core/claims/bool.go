package claims

// BoolClaim is a PrimitiveClaim specialized for boolean product flags, e.g.
// "has completed second factor" or "email verified".
type BoolClaim struct {
	PrimitiveClaim[bool]
}

// NewBoolClaim creates a boolean claim with the given payload key.
func NewBoolClaim(key string, fetch FetchValueFunc[bool]) *BoolClaim {
	return &BoolClaim{PrimitiveClaim[bool]{Key: key, FetchValue: fetch}}
}

// IsTrue returns a validator requiring the claim to be true.
func (c *BoolClaim) IsTrue() Validator {
	return c.HasValue(true)
}

// IsFalse returns a validator requiring the claim to be false.
func (c *BoolClaim) IsFalse() Validator {
	return c.HasValue(false)
}
