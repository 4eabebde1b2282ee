package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"spesa/internal/core"
	applog "spesa/internal/log"
	"spesa/internal/storage"
	"spesa/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

// RegisterInput is the raw registration form.
type RegisterInput struct {
	Username string `json:"username" validate:"required,username"`
	Email    string `json:"email" validate:"omitempty,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// CredentialRemover forgets a user's stored cloud credential.
type CredentialRemover interface {
	Delete(ctx context.Context, userID int64) error
}

type UserService struct {
	storage   *storage.SQLiteRepository
	creds     CredentialRemover
	reports   ReportInvalidator
	validator *validation.Validator
	cost      int
	logger    *applog.Logger
}

func NewUserService(storage *storage.SQLiteRepository, creds CredentialRemover, reports ReportInvalidator) *UserService {
	return &UserService{
		storage:   storage,
		creds:     creds,
		reports:   reports,
		validator: validation.Default(),
		cost:      bcrypt.DefaultCost,
		logger:    applog.Default(applog.ComponentApp),
	}
}

// WithBcryptCost sets the hashing cost, mainly to keep tests fast.
func (s *UserService) WithBcryptCost(cost int) *UserService {
	s.cost = cost
	return s
}

// Register creates the user with the default categories.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (core.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := s.validator.Struct(in); err != nil {
		return core.User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return core.User{}, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.storage.CreateUser(ctx, in.Username, in.Email, string(hash))
	if errors.Is(err, core.ErrDuplicateUser) {
		return core.User{}, core.NewValidationError("username", "a user with that username already exists")
	}
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Authenticate checks a username and password pair.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (core.User, error) {
	u, err := s.storage.GetUserByUsername(ctx, username)
	if core.IsNotFound(err) {
		return core.User{}, core.ErrInvalidCredentials
	}
	if err != nil {
		return core.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return core.User{}, core.ErrInvalidCredentials
	}
	return u, nil
}

func (s *UserService) Get(ctx context.Context, userID int64) (core.User, error) {
	return s.storage.GetUser(ctx, userID)
}

// UpdateEmail sets or clears the address used for report emails.
func (s *UserService) UpdateEmail(ctx context.Context, userID int64, email string) error {
	in := struct {
		Email string `json:"email" validate:"omitempty,email,max=254"`
	}{Email: strings.TrimSpace(email)}
	if err := s.validator.Struct(in); err != nil {
		return err
	}
	return s.storage.UpdateUserEmail(ctx, userID, in.Email)
}

// Delete removes the user, everything they own and their cloud credential.
func (s *UserService) Delete(ctx context.Context, userID int64) error {
	if err := s.storage.DeleteUser(ctx, userID); err != nil {
		return err
	}
	if s.reports != nil {
		s.reports.Invalidate(userID)
	}
	if s.creds != nil {
		if err := s.creds.Delete(ctx, userID); err != nil {
			s.logger.WarnContext(ctx, "Failed to remove cloud credential", applog.FieldUserID, userID, applog.FieldError, err)
		}
	}
	return nil
}
