package auth

import "context"

type contextKey struct{}

// AuthContext is the caller identity attached to a request. AccountID is
// also the family document key.
type AuthContext struct {
	AccountID string
	Email     string
	Parent    bool
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

// FamilyID returns the family document key of the caller, or "".
func FamilyID(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return ac.AccountID
}

// IsParent reports whether the caller unlocked the parent panel.
func IsParent(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.Parent
}
