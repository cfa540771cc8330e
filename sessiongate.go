package sessiongate

// UserContext carries integrator-supplied values through every SDK call.
// It is passed explicitly by the caller and never mutated by the SDK itself;
// override implementations may read and extend it to share state between
// decorated recipe functions within a single request.
type UserContext map[string]any

// NewUserContext returns an empty, ready-to-use context map.
func NewUserContext() UserContext {
	return UserContext{}
}

// With returns a copy of the context with the given key set. The receiver is
// left untouched so contexts can be treated as immutable values.
func (uc UserContext) With(key string, value any) UserContext {
	next := make(UserContext, len(uc)+1)
	for k, v := range uc {
		next[k] = v
	}
	next[key] = value
	return next
}

// Value returns the value stored under key, if any.
func (uc UserContext) Value(key string) (any, bool) {
	v, ok := uc[key]
	return v, ok
}
