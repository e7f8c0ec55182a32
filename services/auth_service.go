//go:generate go run go.uber.org/mock/mockgen -source=auth_service.go -destination=../mocks/mock_auth_service.go -package=mocks
package services

import (
	"chat-dm/auth"
	"chat-dm/contract"
	"chat-dm/errors"
	"chat-dm/repositories"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
)

type IAuthService interface {
	Register(ctx context.Context, username, email, password string) (Account, error)
	Login(ctx context.Context, email, password string) (Account, error)
	Me(ctx context.Context, userID string) (Profile, error)
	ListUsers(ctx context.Context, userID string) ([]Contact, error)
	Logout(ctx context.Context, userID string) error
}

// PresenceKeeper owns the persisted presence while connections are live.
type PresenceKeeper interface {
	Logout(ctx context.Context, userID string) (bool, error)
}

// Account is returned on register and login.
type Account struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Token    string `json:"token"`
}

type Profile struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsOnline bool   `json:"isOnline"`
}

type Contact struct {
	ID       string     `json:"_id"`
	Username string     `json:"username"`
	Email    string     `json:"email"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen"`
}

type AuthService struct {
	userRepository repositories.IUserRepository
	tokens         *auth.TokenIssuer
	registry       contract.IRegistry
	presence       PresenceKeeper
}

func NewAuthService(
	repo repositories.IUserRepository,
	tokens *auth.TokenIssuer,
	registry contract.IRegistry,
	presence PresenceKeeper,
) IAuthService {
	return &AuthService{userRepository: repo, tokens: tokens, registry: registry, presence: presence}
}

func (s *AuthService) Register(ctx context.Context, username, email, password string) (Account, error) {
	username, email = strings.TrimSpace(username), strings.TrimSpace(email)

	// Business rules are checked before any expensive cryptographic operation
	if err := auth.ValidateRegister(auth.RegisterRequest{Username: username, Email: email, Password: password}); err != nil {
		return Account{}, err
	}

	// The repository never sees plain passwords
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return Account{}, fmt.Errorf("hashing failed: %w", err)
	}

	user, err := s.userRepository.CreateUser(ctx, username, email, hashedPassword)
	if err != nil {
		return Account{}, err
	}
	return s.account(user)
}

// Login issues a token. It does not touch presence: a user is online only
// while a connection is live.
func (s *AuthService) Login(ctx context.Context, email, password string) (Account, error) {
	if err := auth.ValidateLogin(auth.LoginRequest{Email: email, Password: password}); err != nil {
		return Account{}, err
	}

	user, err := s.userRepository.FindUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		// Generic error to prevent user enumeration
		return Account{}, errors.ErrInvalidCredentials
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return Account{}, errors.ErrInvalidCredentials
	}
	return s.account(user)
}

func (s *AuthService) Me(ctx context.Context, userID string) (Profile, error) {
	user, err := s.userRepository.FindUserByID(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
		IsOnline: s.registry.IsOnline(user.ID),
	}, nil
}

// ListUsers returns every other user sorted by username.
// Online status comes from the live registry, last seen from storage.
func (s *AuthService) ListUsers(ctx context.Context, userID string) ([]Contact, error) {
	users, err := s.userRepository.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	contacts := lo.FilterMap(users, func(user repositories.User, _ int) (Contact, bool) {
		return Contact{
			ID:       user.ID,
			Username: user.Username,
			Email:    user.Email,
			IsOnline: s.registry.IsOnline(user.ID),
			LastSeen: user.LastSeen,
		}, user.ID != userID
	})
	sort.SliceStable(contacts, func(i, j int) bool {
		return contacts[i].Username < contacts[j].Username
	})
	return contacts, nil
}

func (s *AuthService) Logout(ctx context.Context, userID string) error {
	_, err := s.presence.Logout(ctx, userID)
	return err
}

func (s *AuthService) account(user repositories.User) (Account, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return Account{}, fmt.Errorf("%w: %v", errors.ErrTokenGeneration, err)
	}
	return Account{ID: user.ID, Username: user.Username, Email: user.Email, Token: token}, nil
}
