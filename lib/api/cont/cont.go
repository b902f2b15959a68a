package cont

import (
	"context"

	"membergate/entity"
)

type ctxKey string

const clientKey ctxKey = "apiClient"

// PutClient stores the authenticated API client on the request context.
func PutClient(c context.Context, user *entity.User) context.Context {
	return context.WithValue(c, clientKey, *user)
}

// GetClient returns the authenticated API client, or an empty user when
// the request was not authenticated.
func GetClient(c context.Context) *entity.User {
	user, ok := c.Value(clientKey).(entity.User)
	if !ok {
		return &entity.User{}
	}
	return &user
}
