package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pdkslab/pdksgate/internal/gate/store"
	"github.com/pdkslab/pdksgate/internal/gate/types"
)

// Recorder appends one AccessEvent per physical swipe.
type Recorder struct {
	events  store.AccessEventStore
	window  time.Duration
	timeout time.Duration
	newID   func() string
}

func NewRecorder(events store.AccessEventStore, window, timeout time.Duration) *Recorder {
	return &Recorder{events: events, window: window, timeout: timeout, newID: uuid.NewString}
}

// Record builds the audit row for a verdict and inserts it unless the swipe
// is already recorded, in which case that row is returned with
// inserted=false. A row counts as the same swipe when it shares the
// idempotency key, or when it sits in the preceding bucket less than one
// window before ev.ReceivedAt.
func (r *Recorder) Record(
	ctx context.Context,
	ev types.CanonicalEvent,
	emp *types.Employee,
	dev *types.Device,
	v types.Verdict,
) (types.AccessEvent, bool, error) {
	row := r.build(ev, emp, dev, v)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	stored, inserted, err := r.events.InsertIfAbsent(ctx, row, r.prior(ev))
	if err != nil {
		return types.AccessEvent{}, false, fmt.Errorf("%w: record event: %v", ErrStoreUnavailable, err)
	}
	return stored, inserted, nil
}

// prior names the bucket before the swipe's own so a retry that crosses a
// bucket boundary still finds the first transmission.
func (r *Recorder) prior(ev types.CanonicalEvent) store.PriorKey {
	if r.window <= 0 {
		return store.PriorKey{}
	}
	since := ev.ReceivedAt.UTC().Add(-r.window)
	return store.PriorKey{
		Key:   IdempotencyKey(ev.DeviceSerial, ev.CardNumber, since, r.window),
		Since: since,
	}
}

func (r *Recorder) build(ev types.CanonicalEvent, emp *types.Employee, dev *types.Device, v types.Verdict) types.AccessEvent {
	row := types.AccessEvent{
		ID:             r.newID(),
		Credential:     ev.CardNumber,
		DeviceSerial:   ev.DeviceSerial,
		DeviceName:     ev.DeviceName,
		DeviceLocation: ev.DeviceLocation,
		Decision:       v.Decision,
		Reason:         v.Reason,
		OccurredAt:     ev.ReceivedAt.UTC(),
		IdempotencyKey: IdempotencyKey(ev.DeviceSerial, ev.CardNumber, ev.ReceivedAt, r.window),
	}
	// Registered metadata wins over what the reader reports about itself.
	if dev != nil {
		if dev.Name != "" {
			row.DeviceName = dev.Name
		}
		if dev.Location != "" {
			row.DeviceLocation = dev.Location
		}
	}
	if emp != nil {
		id := emp.ID
		row.EmployeeID = &id
		row.EmployeeName = emp.DisplayName()
	}
	return row
}
