package auth

import (
	"chat-dm/domain"
	"chat-dm/errors"
	"chat-dm/repositories"
	"context"
	"fmt"
	"strings"
	"time"
)

// Authenticator resolves a bearer token into the identity it was issued for.
type Authenticator struct {
	tokens  *TokenIssuer
	users   repositories.IUserRepository
	timeout time.Duration
}

func NewAuthenticator(tokens *TokenIssuer, users repositories.IUserRepository, timeout time.Duration) *Authenticator {
	return &Authenticator{tokens: tokens, users: users, timeout: timeout}
}

// Authenticate verifies the token and loads its subject.
// Every failure is reported as ErrAuthentication.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (domain.User, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return domain.User{}, fmt.Errorf("%w: missing token", errors.ErrAuthentication)
	}
	claims, err := a.tokens.Validate(token)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", errors.ErrAuthentication, err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	user, err := a.users.FindUserByID(ctx, claims.UserID)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", errors.ErrAuthentication, err)
	}
	return user.Identity(), nil
}
