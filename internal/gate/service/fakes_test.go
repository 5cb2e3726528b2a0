package service_test

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pdkslab/pdksgate/internal/gate/store"
	"github.com/pdkslab/pdksgate/internal/gate/types"
)

// wait blocks for d or until ctx ends, whichever is first.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type faultyIdentities struct {
	store.IdentityStore
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (f *faultyIdentities) FindByCredential(ctx context.Context, c string) ([]types.Employee, error) {
	f.calls.Add(1)
	if err := wait(ctx, f.delay); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.IdentityStore.FindByCredential(ctx, c)
}

func (f *faultyIdentities) GetEmployee(ctx context.Context, id string) (*types.Employee, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.IdentityStore.GetEmployee(ctx, id)
}

type faultyRules struct {
	store.RuleStore
	err error
}

func (f *faultyRules) RulesForEmployee(ctx context.Context, id string) ([]types.AccessRule, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.RuleStore.RulesForEmployee(ctx, id)
}

type faultyDevices struct {
	store.DeviceStore
	err error
}

func (f *faultyDevices) FindBySerial(ctx context.Context, serial string) (*types.Device, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.DeviceStore.FindBySerial(ctx, serial)
}

type faultyEvents struct {
	store.AccessEventStore
	err   error
	delay time.Duration
}

func (f *faultyEvents) InsertIfAbsent(ctx context.Context, ev types.AccessEvent, prior store.PriorKey) (types.AccessEvent, bool, error) {
	if err := wait(ctx, f.delay); err != nil {
		return types.AccessEvent{}, false, err
	}
	if f.err != nil {
		return types.AccessEvent{}, false, f.err
	}
	return f.AccessEventStore.InsertIfAbsent(ctx, ev, prior)
}
