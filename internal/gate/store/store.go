package store

import (
	"context"
	"time"

	"github.com/pdkslab/pdksgate/internal/gate/types"
)

// IdentityStore reads employee records. FindByCredential returns every
// match (implementations may cap the result at two) so the caller can
// detect duplicated card numbers. GetEmployee returns nil for unknown ids.
type IdentityStore interface {
	FindByCredential(ctx context.Context, credential string) ([]types.Employee, error)
	GetEmployee(ctx context.Context, id string) (*types.Employee, error)
}

// RuleStore reads the pre-evaluated time-window rules for one employee.
type RuleStore interface {
	RulesForEmployee(ctx context.Context, employeeID string) ([]types.AccessRule, error)
}

// DeviceStore reads reader metadata. Both lookups return nil for unknown devices.
type DeviceStore interface {
	FindBySerial(ctx context.Context, serial string) (*types.Device, error)
	GetDevice(ctx context.Context, id string) (*types.Device, error)
}

// PriorKey names the idempotency key of the preceding dedupe bucket. A row
// stored under Key counts as the same swipe when it occurred at or after
// Since. The zero value matches nothing.
type PriorKey struct {
	Key   string
	Since time.Time
}

// AccessEventStore persists access decisions as an append-only audit log.
//
// InsertIfAbsent is atomic on IdempotencyKey and prior: when a row with the
// same key, or a row matching prior, exists it is returned unchanged with
// inserted=false. MarkRelayConfirmed only stamps allow events that are not
// yet confirmed.
type AccessEventStore interface {
	InsertIfAbsent(ctx context.Context, ev types.AccessEvent, prior PriorKey) (stored types.AccessEvent, inserted bool, err error)
	LatestAllowed(ctx context.Context, serial, credential string, since time.Time) (*types.AccessEvent, error)
	MarkRelayConfirmed(ctx context.Context, eventID string, at time.Time) (bool, error)
}

// Pinger is implemented by stores backed by a connection that can be probed.
type Pinger interface {
	Ping(ctx context.Context) error
}
