// Package publisher fans recorded access events out to live consumers.
// Publishing is best-effort: the audit row in the event store is the
// record of truth and a failed publish never changes a decision.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pdkslab/pdksgate/internal/gate/types"
)

type Publisher interface {
	Publish(ctx context.Context, ev types.AccessEvent) error
	Name() string
	Close()
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, types.AccessEvent) error { return nil }
func (Noop) Name() string                                     { return "none" }
func (Noop) Close()                                           {}

func encode(ev types.AccessEvent) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal access event: %w", err)
	}
	return payload, nil
}
