package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pdkslab/pdksgate/internal/gate/store"
	"github.com/pdkslab/pdksgate/internal/gate/types"
)

// IdentityResolver maps a credential to at most one employee.
//
// Concurrent lookups of the same credential (a reader retransmitting while
// the first request is still in flight) share one store call.
type IdentityResolver struct {
	store   store.IdentityStore
	timeout time.Duration
	group   singleflight.Group
}

func NewIdentityResolver(st store.IdentityStore, timeout time.Duration) *IdentityResolver {
	return &IdentityResolver{store: st, timeout: timeout}
}

// Resolve returns (nil, nil) when no employee holds the credential,
// ErrIdentityConflict when more than one does, and an error wrapping
// ErrStoreUnavailable when the lookup fails or exceeds the timeout.
func (r *IdentityResolver) Resolve(ctx context.Context, credential string) (*types.Employee, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, nil
	}

	// The shared call must not die with whichever caller arrived first.
	ch := r.group.DoChan(credential, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return r.store.FindByCredential(lctx, credential)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("%w: identity lookup: %v", ErrStoreUnavailable, res.Err)
		}
		matches, _ := res.Val.([]types.Employee)
		switch len(matches) {
		case 0:
			return nil, nil
		case 1:
			e := matches[0]
			return &e, nil
		default:
			return nil, fmt.Errorf("%w: %q", ErrIdentityConflict, credential)
		}
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: identity lookup: %v", ErrStoreUnavailable, ctx.Err())
	}
}
