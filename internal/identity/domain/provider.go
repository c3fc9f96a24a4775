package domain

import (
	"context"
	"errors"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrUserExists     = errors.New("user already exists")
	ErrInvalidEmail   = errors.New("invalid email")
	ErrWeakPassword   = errors.New("password too short")
	ErrInvalidRequest = errors.New("invalid request")
)

// Provider is the identity backend used for provisioning. LookupByEmail,
// CreateUser and GenerateLink are privileged operations; SignUp is the public
// self-service path.
type Provider interface {
	LookupByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, req CreateUserRequest) (*User, error)
	SignUp(ctx context.Context, req SignUpRequest) (*User, error)
	GenerateLink(ctx context.Context, req GenerateLinkRequest) (*Link, error)
}

type CreateUserRequest struct {
	Email          string
	Password       string
	EmailConfirmed bool
	Metadata       map[string]any
}

type SignUpRequest struct {
	Email    string
	Password string
	Metadata map[string]any
}

type GenerateLinkRequest struct {
	Type     LinkType
	Email    string
	Password string
}
