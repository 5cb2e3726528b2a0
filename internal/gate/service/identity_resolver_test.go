package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdkslab/pdksgate/internal/gate/service"
	"github.com/pdkslab/pdksgate/internal/gate/store/memory"
	"github.com/pdkslab/pdksgate/internal/gate/types"
)

func TestIdentityResolver_Resolve(t *testing.T) {
	st := memory.NewIdentityStore(
		types.Employee{ID: "e1", CardNumber: "111"},
		types.Employee{ID: "e2", CardNumber: "222"},
		types.Employee{ID: "e3", CardNumber: "222"},
	)
	r := service.NewIdentityResolver(st, time.Second)

	emp, err := r.Resolve(context.Background(), " 111 ")
	require.NoError(t, err)
	require.NotNil(t, emp)
	assert.Equal(t, "e1", emp.ID)

	emp, err = r.Resolve(context.Background(), "999")
	require.NoError(t, err)
	assert.Nil(t, emp)

	emp, err = r.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, emp)

	_, err = r.Resolve(context.Background(), "222")
	assert.ErrorIs(t, err, service.ErrIdentityConflict)
}

func TestIdentityResolver_StoreError(t *testing.T) {
	st := &faultyIdentities{IdentityStore: memory.NewIdentityStore(), err: errors.New("conn refused")}
	r := service.NewIdentityResolver(st, time.Second)

	_, err := r.Resolve(context.Background(), "111")
	assert.ErrorIs(t, err, service.ErrStoreUnavailable)
}

func TestIdentityResolver_Timeout(t *testing.T) {
	st := &faultyIdentities{IdentityStore: memory.NewIdentityStore(), delay: time.Second}
	r := service.NewIdentityResolver(st, 20*time.Millisecond)

	start := time.Now()
	_, err := r.Resolve(context.Background(), "111")
	assert.ErrorIs(t, err, service.ErrStoreUnavailable)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestIdentityResolver_CallerCancel(t *testing.T) {
	st := &faultyIdentities{IdentityStore: memory.NewIdentityStore(), delay: time.Second}
	r := service.NewIdentityResolver(st, 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Resolve(ctx, "111")
	assert.ErrorIs(t, err, service.ErrStoreUnavailable)
}

// gatedIdentities blocks every lookup until release is closed.
type gatedIdentities struct {
	*memory.IdentityStore
	release chan struct{}
	calls   atomic.Int32
}

func (g *gatedIdentities) FindByCredential(ctx context.Context, c string) ([]types.Employee, error) {
	g.calls.Add(1)
	<-g.release
	return g.IdentityStore.FindByCredential(ctx, c)
}

func TestIdentityResolver_ConcurrentLookupsShareOneCall(t *testing.T) {
	g := &gatedIdentities{
		IdentityStore: memory.NewIdentityStore(types.Employee{ID: "e1", CardNumber: "111"}),
		release:       make(chan struct{}),
	}
	r := service.NewIdentityResolver(g, 5*time.Second)

	const n = 8
	var wg sync.WaitGroup
	results := make([]*types.Employee, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			emp, err := r.Resolve(context.Background(), "111")
			assert.NoError(t, err)
			results[i] = emp
		}(i)
	}

	require.Eventually(t, func() bool { return g.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(g.release)
	wg.Wait()

	assert.Equal(t, int32(1), g.calls.Load())
	for _, emp := range results {
		require.NotNil(t, emp)
		assert.Equal(t, "e1", emp.ID)
	}
	// Each caller gets its own copy.
	results[0].FirstName = "changed"
	assert.Empty(t, results[1].FirstName)
}
