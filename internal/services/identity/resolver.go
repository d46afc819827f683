// Package identity resolves free-form recipient input to platform users.
package identity

import (
	"context"
	"strings"

	"github.com/blurttok/wallet_layer/internal/domain/identity"
	"github.com/blurttok/wallet_layer/internal/errors"
	"github.com/blurttok/wallet_layer/internal/storage"
	"github.com/blurttok/wallet_layer/pkg/logger"
)

const (
	// MinSearchLength is the shortest prefix worth querying for.
	MinSearchLength = 2
	// DefaultSearchLimit caps typeahead result pages.
	DefaultSearchLimit = 10
)

// Resolver turns handles, display names and fragments of either into
// concrete platform identities.
type Resolver struct {
	directory storage.UserDirectory
	log       *logger.Logger
}

func NewResolver(directory storage.UserDirectory, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.NewDefault("identity-resolver")
	}
	return &Resolver{directory: directory, log: log}
}

// Resolve finds the user a piece of free-form input most plausibly refers
// to. Match steps run in order of specificity: exact handle, exact display
// name, display name fragment, handle fragment. The first step with a row
// wins and later steps never run.
func (r *Resolver) Resolve(ctx context.Context, input string) (identity.Identity, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return identity.Identity{}, errors.Validation("recipient is required")
	}

	id, err := r.directory.GetByHandle(ctx, input)
	if err == nil {
		return id, nil
	}
	if err != storage.ErrNotFound {
		return identity.Identity{}, errors.DataUnavailable("user lookup failed", err)
	}

	id, err = r.directory.GetByDisplayName(ctx, input)
	if err == nil {
		return id, nil
	}
	if err != storage.ErrNotFound {
		return identity.Identity{}, errors.DataUnavailable("user lookup failed", err)
	}

	ids, err := r.directory.FindByDisplayNameFragment(ctx, input, 1)
	if err != nil {
		return identity.Identity{}, errors.DataUnavailable("user lookup failed", err)
	}
	if len(ids) > 0 {
		return ids[0], nil
	}

	ids, err = r.directory.FindByHandleFragment(ctx, input, 1)
	if err != nil {
		return identity.Identity{}, errors.DataUnavailable("user lookup failed", err)
	}
	if len(ids) > 0 {
		return ids[0], nil
	}

	return identity.Identity{}, errors.NotFound("user %q not found", input)
}

// ResolveExact finds a user by exact handle only. Money-moving callers use
// this so a typo can never route funds to a fuzzy match.
func (r *Resolver) ResolveExact(ctx context.Context, handle string) (identity.Identity, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return identity.Identity{}, errors.Validation("recipient is required")
	}

	id, err := r.directory.GetByHandle(ctx, handle)
	if err == storage.ErrNotFound {
		return identity.Identity{}, errors.NotFound("user %q not found", handle)
	}
	if err != nil {
		return identity.Identity{}, errors.DataUnavailable("user lookup failed", err)
	}
	return id, nil
}

// Search returns typeahead candidates for a prefix. Inputs shorter than
// MinSearchLength return an empty page without touching the directory.
// The requesting user is excluded from results.
func (r *Resolver) Search(ctx context.Context, prefix, selfHandle string) ([]identity.Identity, error) {
	prefix = strings.TrimSpace(prefix)
	if len(prefix) < MinSearchLength {
		return []identity.Identity{}, nil
	}

	ids, err := r.directory.Search(ctx, prefix, selfHandle, DefaultSearchLimit)
	if err != nil {
		return nil, errors.DataUnavailable("user search failed", err)
	}

	seen := make(map[string]bool, len(ids))
	out := make([]identity.Identity, 0, len(ids))
	for _, id := range ids {
		if seen[id.AccountID] {
			continue
		}
		seen[id.AccountID] = true
		out = append(out, id)
	}
	return out, nil
}
