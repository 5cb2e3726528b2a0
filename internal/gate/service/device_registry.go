package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pdkslab/pdksgate/internal/gate/store"
	"github.com/pdkslab/pdksgate/internal/gate/types"
)

// DeviceRegistry is the read-only view of reader metadata the engine needs:
// zone for rule matching, name and location for the audit row, dialect.
type DeviceRegistry struct {
	store   store.DeviceStore
	timeout time.Duration
}

func NewDeviceRegistry(st store.DeviceStore, timeout time.Duration) *DeviceRegistry {
	return &DeviceRegistry{store: st, timeout: timeout}
}

// Lookup returns nil for an unknown serial. Store failures wrap
// ErrStoreUnavailable.
func (r *DeviceRegistry) Lookup(ctx context.Context, serial string) (*types.Device, error) {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	d, err := r.store.FindBySerial(ctx, serial)
	if err != nil {
		return nil, fmt.Errorf("%w: device lookup: %v", ErrStoreUnavailable, err)
	}
	return d, nil
}

func (r *DeviceRegistry) Get(ctx context.Context, id string) (*types.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	d, err := r.store.GetDevice(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, fmt.Errorf("%w: device lookup: %v", ErrStoreUnavailable, err)
	}
	return d, nil
}
