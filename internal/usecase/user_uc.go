package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"voiceforge/internal/domain"
	"voiceforge/internal/domain/model"
	"voiceforge/internal/domain/ports/repository"
)

type UserUseCase interface {
	Register(ctx context.Context, email, password, displayName string) (*model.User, error)
	// Authenticate verifies credentials and records the login time.
	Authenticate(ctx context.Context, email, password string) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
}

type userUseCase struct {
	users repository.UserRepository
	log   *zerolog.Logger
}

func NewUserUseCase(users repository.UserRepository, logger *zerolog.Logger) UserUseCase {
	l := logger.With().Str("component", "UserUseCase").Logger()
	return &userUseCase{users: users, log: &l}
}

func (u *userUseCase) Register(ctx context.Context, email, password, displayName string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") || len(email) > 255 {
		return nil, domain.ErrInvalidArgument
	}
	if len(password) < 8 {
		return nil, domain.ErrInvalidArgument
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  strings.TrimSpace(displayName),
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := u.users.Create(ctx, user); err != nil {
		return nil, err
	}
	u.log.Info().Str("user_id", user.ID).Msg("user registered")
	return user, nil
}

func (u *userUseCase) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := u.users.FindByEmail(ctx, email)
	if err != nil {
		// Uniform error keeps account enumeration out of the response.
		return nil, domain.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrUnauthorized
	}
	if !user.IsActive {
		return nil, domain.ErrAccountDisabled
	}
	if err := u.users.UpdateLastLogin(ctx, user.ID); err != nil {
		u.log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to record login time")
	}
	return user, nil
}

func (u *userUseCase) GetByID(ctx context.Context, id string) (*model.User, error) {
	return u.users.FindByID(ctx, id)
}
