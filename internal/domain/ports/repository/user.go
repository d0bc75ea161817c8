package repository

import (
	"context"

	"voiceforge/internal/domain/model"
)

type UserRepository interface {
	// Create returns domain.ErrAlreadyExists when the email is taken.
	Create(ctx context.Context, u *model.User) error
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateLastLogin(ctx context.Context, id string) error
	IncrementGenerations(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}
