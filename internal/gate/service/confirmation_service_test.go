package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdkslab/pdksgate/internal/gate/service"
	"github.com/pdkslab/pdksgate/internal/gate/store"
	"github.com/pdkslab/pdksgate/internal/gate/store/memory"
	"github.com/pdkslab/pdksgate/internal/gate/types"
)

func recordAllowed(t *testing.T, events *memory.AccessEventStore, id, card, serial string, at time.Time) {
	t.Helper()
	_, _, err := events.InsertIfAbsent(context.Background(), types.AccessEvent{
		ID: id, Credential: card, DeviceSerial: serial,
		Decision: types.Allow, Reason: types.ReasonPermissionFlag,
		OccurredAt: at, IdempotencyKey: id,
	}, store.PriorKey{})
	require.NoError(t, err)
}

func confirmedAt(events *memory.AccessEventStore, id string) *time.Time {
	for _, ev := range events.Events() {
		if ev.ID == id {
			return ev.RelayConfirmedAt
		}
	}
	return nil
}

func newConfirmations(events *memory.AccessEventStore) *service.ConfirmationService {
	log, _ := logtest.NewNullLogger()
	return service.NewConfirmationService(events, 30*time.Second, time.Second, 8, log)
}

func TestConfirmation_ByEventID(t *testing.T) {
	events := memory.NewAccessEventStore()
	recordAllowed(t, events, "ev-1", "c1", "SN-1", monday10)
	svc := newConfirmations(events)

	assert.True(t, svc.Submit(service.RelayConfirmation{EventID: "ev-1", ReceivedAt: monday10.Add(time.Second)}))
	svc.Close()

	at := confirmedAt(events, "ev-1")
	require.NotNil(t, at)
	assert.True(t, at.Equal(monday10.Add(time.Second)))
}

func TestConfirmation_ByCardAndSerialWithinWindow(t *testing.T) {
	events := memory.NewAccessEventStore()
	recordAllowed(t, events, "old", "c1", "SN-1", monday10.Add(-time.Minute))
	recordAllowed(t, events, "new", "c1", "SN-1", monday10)
	svc := newConfirmations(events)

	svc.Submit(service.RelayConfirmation{CardNumber: "c1", DeviceSerial: "SN-1", ReceivedAt: monday10.Add(2 * time.Second)})
	svc.Close()

	assert.NotNil(t, confirmedAt(events, "new"))
	assert.Nil(t, confirmedAt(events, "old"))
}

func TestConfirmation_OutsideWindowIgnored(t *testing.T) {
	events := memory.NewAccessEventStore()
	recordAllowed(t, events, "ev-1", "c1", "SN-1", monday10)
	svc := newConfirmations(events)

	svc.Submit(service.RelayConfirmation{CardNumber: "c1", DeviceSerial: "SN-1", ReceivedAt: monday10.Add(time.Minute)})
	svc.Close()

	assert.Nil(t, confirmedAt(events, "ev-1"))
}

func TestConfirmation_StampsOnce(t *testing.T) {
	events := memory.NewAccessEventStore()
	recordAllowed(t, events, "ev-1", "c1", "SN-1", monday10)
	svc := newConfirmations(events)

	svc.Submit(service.RelayConfirmation{EventID: "ev-1", ReceivedAt: monday10.Add(time.Second)})
	svc.Submit(service.RelayConfirmation{EventID: "ev-1", ReceivedAt: monday10.Add(5 * time.Second)})
	svc.Close()

	at := confirmedAt(events, "ev-1")
	require.NotNil(t, at)
	assert.True(t, at.Equal(monday10.Add(time.Second)))
}

func TestConfirmation_RejectsUncorrelatable(t *testing.T) {
	svc := newConfirmations(memory.NewAccessEventStore())
	defer svc.Close()

	assert.False(t, svc.Submit(service.RelayConfirmation{}))
	assert.False(t, svc.Submit(service.RelayConfirmation{CardNumber: "c1"}))
}

func TestConfirmation_SubmitAfterClose(t *testing.T) {
	svc := newConfirmations(memory.NewAccessEventStore())
	svc.Close()
	svc.Close()

	assert.False(t, svc.Submit(service.RelayConfirmation{EventID: "ev-1"}))
}

func TestConfirmation_FullQueueDrops(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.WarnLevel)
	gate := make(chan struct{})
	events := &blockingEvents{AccessEventStore: memory.NewAccessEventStore(), gate: gate}
	svc := service.NewConfirmationService(events, 30*time.Second, 5*time.Second, 1, log)

	accepted := 0
	for i := 0; i < 10; i++ {
		if svc.Submit(service.RelayConfirmation{EventID: "ev"}) {
			accepted++
		}
	}
	close(gate)
	svc.Close()

	assert.Less(t, accepted, 10)
	assert.NotEmpty(t, hook.AllEntries())
}

type blockingEvents struct {
	*memory.AccessEventStore
	gate chan struct{}
}

func (b *blockingEvents) MarkRelayConfirmed(ctx context.Context, id string, at time.Time) (bool, error) {
	<-b.gate
	return b.AccessEventStore.MarkRelayConfirmed(ctx, id, at)
}
