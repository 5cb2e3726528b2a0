package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dbpkg "github.com/pdkslab/pdksgate/internal/db"
	"github.com/pdkslab/pdksgate/internal/gate/store"
	"github.com/pdkslab/pdksgate/internal/gate/types"
)

type AccessEventStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAccessEventStore(db *sql.DB, writer *dbpkg.Worker) *AccessEventStore {
	return &AccessEventStore{db: db, writer: writer}
}

const eventColumns = `id, credential, device_serial, device_name, device_location,
  employee_id, employee_name, decision, reason, occurred_at_ms, idempotency_key,
  relay_confirmed_at_ms`

func (s *AccessEventStore) InsertIfAbsent(ctx context.Context, ev types.AccessEvent, prior store.PriorKey) (types.AccessEvent, bool, error) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	var (
		stored   types.AccessEvent
		inserted bool
	)
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if prior.Key != "" {
			row := tx.QueryRowContext(ctx, `
SELECT `+eventColumns+` FROM access_events
WHERE idempotency_key = ? AND occurred_at_ms >= ?;`, prior.Key, prior.Since.UTC().UnixMilli())
			existing, err := scanEvent(row)
			switch {
			case err == nil:
				stored = existing
				return nil
			case !errors.Is(err, sql.ErrNoRows):
				return fmt.Errorf("InsertIfAbsent load prior: %w", err)
			}
		}

		res, err := tx.ExecContext(ctx, `
INSERT INTO access_events(
  id, credential, device_serial, device_name, device_location,
  employee_id, employee_name, decision, reason, occurred_at_ms, idempotency_key
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(idempotency_key) DO NOTHING;`,
			ev.ID, ev.Credential, ev.DeviceSerial, ev.DeviceName, ev.DeviceLocation,
			nullable(ev.EmployeeID), ev.EmployeeName, string(ev.Decision), ev.Reason,
			ev.OccurredAt.UTC().UnixMilli(), ev.IdempotencyKey,
		)
		if err != nil {
			return fmt.Errorf("InsertIfAbsent insert: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("InsertIfAbsent rows affected: %w", err)
		}
		if n == 1 {
			stored, inserted = ev, true
			return nil
		}

		// Conflict: hand back the row that won.
		row := tx.QueryRowContext(ctx, `
SELECT `+eventColumns+` FROM access_events WHERE idempotency_key = ?;`, ev.IdempotencyKey)
		stored, err = scanEvent(row)
		if err != nil {
			return fmt.Errorf("InsertIfAbsent load existing: %w", err)
		}
		return nil
	})
	if err != nil {
		return types.AccessEvent{}, false, err
	}
	return stored, inserted, nil
}

func (s *AccessEventStore) LatestAllowed(ctx context.Context, serial, credential string, since time.Time) (*types.AccessEvent, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+eventColumns+`
FROM access_events
WHERE device_serial = ? AND credential = ? AND decision = 'allow' AND occurred_at_ms >= ?
ORDER BY occurred_at_ms DESC
LIMIT 1;`, serial, credential, since.UTC().UnixMilli())

	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LatestAllowed: %w", err)
	}
	return &ev, nil
}

// MarkRelayConfirmed stamps relay_confirmed_at once on an allow event; later
// calls and deny events report false.
func (s *AccessEventStore) MarkRelayConfirmed(ctx context.Context, eventID string, at time.Time) (bool, error) {
	var updated bool
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE access_events
SET relay_confirmed_at_ms = ?
WHERE id = ? AND decision = 'allow' AND relay_confirmed_at_ms IS NULL;`, at.UTC().UnixMilli(), eventID)
		if err != nil {
			return fmt.Errorf("MarkRelayConfirmed: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("MarkRelayConfirmed rows affected: %w", err)
		}
		updated = n == 1
		return nil
	})
	return updated, err
}

func scanEvent(sc scanner) (types.AccessEvent, error) {
	var (
		ev          types.AccessEvent
		employeeID  sql.NullString
		decision    string
		occurredMs  int64
		confirmedMs sql.NullInt64
	)
	if err := sc.Scan(
		&ev.ID, &ev.Credential, &ev.DeviceSerial, &ev.DeviceName, &ev.DeviceLocation,
		&employeeID, &ev.EmployeeName, &decision, &ev.Reason, &occurredMs,
		&ev.IdempotencyKey, &confirmedMs,
	); err != nil {
		return types.AccessEvent{}, err
	}
	if employeeID.Valid {
		id := employeeID.String
		ev.EmployeeID = &id
	}
	ev.Decision = types.Decision(decision)
	ev.OccurredAt = time.UnixMilli(occurredMs).UTC()
	if confirmedMs.Valid {
		t := time.UnixMilli(confirmedMs.Int64).UTC()
		ev.RelayConfirmedAt = &t
	}
	return ev, nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
