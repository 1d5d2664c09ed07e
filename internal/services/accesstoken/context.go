package accesstoken

import "context"

type userKey struct{}

type user struct {
	hdid  string
	token string
}

// WithUser attaches the authenticated user's HDID and bearer token to ctx.
func WithUser(ctx context.Context, hdid, token string) context.Context {
	return context.WithValue(ctx, userKey{}, user{hdid: hdid, token: token})
}

// ContextAuthenticator reads the user stored by WithUser.
type ContextAuthenticator struct{}

func (ContextAuthenticator) UserHDID(ctx context.Context) string {
	u, _ := ctx.Value(userKey{}).(user)
	return u.hdid
}

func (ContextAuthenticator) UserToken(ctx context.Context) (string, bool) {
	u, ok := ctx.Value(userKey{}).(user)
	if !ok || u.token == "" {
		return "", false
	}
	return u.token, true
}
