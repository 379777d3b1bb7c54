package engine

import (
	"context"

	"auth-gateway/internal/identity/domain"
)

// MergeInput is what the merge policy sees when an unseen provider subject
// arrives with an email that may belong to a local account.
type MergeInput struct {
	Model         domain.Model
	MergeByEmail  bool
	Provider      string
	Email         string
	EmailVerified bool
}

// MergePolicy decides whether an OAuth login may attach to an existing local
// account by email.
type MergePolicy interface {
	AllowMerge(ctx context.Context, in MergeInput) (bool, error)
}

// StaticMergePolicy answers every question with its own value. Useful in tests.
type StaticMergePolicy bool

func (s StaticMergePolicy) AllowMerge(context.Context, MergeInput) (bool, error) {
	return bool(s), nil
}
