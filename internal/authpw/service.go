// Package authpw provides username/email + password authentication.
package authpw

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"lostfound/api/internal/store"
	"lostfound/api/internal/util"
	"golang.org/x/crypto/bcrypt"
)

// MinAge is the minimum account-holder age in years.
const MinAge = 13

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrBirthDateInvalid   = errors.New("invalid birth date")
	ErrTooYoung           = errors.New("account holder must be at least 13 years old")
)

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByUsername(ctx context.Context, username string) (store.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	CreateUser(ctx context.Context, user store.User) error
	UpsertProfile(ctx context.Context, profile store.Profile) error
}

type Service struct {
	store UserStore
}

func NewService(store UserStore) *Service {
	return &Service{store: store}
}

// SignUpRequest contains sign-up parameters
type SignUpRequest struct {
	FullName        string
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
	BirthDate       string // ISO date, optional
}

// SignUp creates a new account and its profile row.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.User, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)
	fullName := strings.TrimSpace(req.FullName)
	if username == "" || email == "" || req.Password == "" {
		return store.User{}, errors.New("username, email, and password are required")
	}
	if req.Password != req.ConfirmPassword {
		return store.User{}, ErrPasswordMismatch
	}
	if len(req.Password) < 8 {
		return store.User{}, errors.New("password must be at least 8 characters")
	}

	var birthDate *time.Time
	if strings.TrimSpace(req.BirthDate) != "" {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(req.BirthDate))
		if err != nil {
			return store.User{}, ErrBirthDateInvalid
		}
		now := time.Now()
		if parsed.After(now) {
			return store.User{}, ErrBirthDateInvalid
		}
		if ageYears(parsed, now) < MinAge {
			return store.User{}, ErrTooYoung
		}
		birthDate = &parsed
	}

	taken, err := s.store.UsernameExists(ctx, username)
	if err != nil {
		return store.User{}, err
	}
	if taken {
		return store.User{}, ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	displayName := fullName
	if displayName == "" {
		displayName = username
	}

	user := store.User{
		ID:           util.NewID("usr"),
		Username:     username,
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return store.User{}, err
	}
	if err := s.store.UpsertProfile(ctx, store.Profile{UserID: user.ID, BirthDate: birthDate}); err != nil {
		return store.User{}, err
	}
	return user, nil
}

// SignIn authenticates by email or username. The identifier is tried as
// an email first, then as a username, like the original login flow.
func (s *Service) SignIn(ctx context.Context, identifier, password string) (store.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return store.User{}, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, identifier)
	if errors.Is(err, sql.ErrNoRows) {
		user, err = s.store.GetUserByUsername(ctx, identifier)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.User{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func ageYears(birthDate, now time.Time) int {
	years := now.Year() - birthDate.Year()
	if now.Month() < birthDate.Month() || (now.Month() == birthDate.Month() && now.Day() < birthDate.Day()) {
		years--
	}
	return years
}
