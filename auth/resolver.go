package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/mehra/filevault-backend/models"
	"github.com/mehra/filevault-backend/storage"
)

// UserLookup is the slice of storage the resolver needs.
type UserLookup interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Resolver implements storage.SessionResolver on top of the token manager:
// a session token is valid when it parses, its subject is a uuid, and that
// user still exists. Any failure along the way resolves to no identity
// rather than an error.
type Resolver struct {
	manager *Manager
	users   UserLookup
}

func NewResolver(manager *Manager, users UserLookup) *Resolver {
	return &Resolver{manager: manager, users: users}
}

func (r *Resolver) ResolveSession(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, nil
	}
	subject, err := r.manager.ValidateToken(token)
	if err != nil {
		return nil, nil
	}
	userID, err := uuid.Parse(subject)
	if err != nil {
		return nil, nil
	}
	user, err := r.users.GetUserByID(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}
