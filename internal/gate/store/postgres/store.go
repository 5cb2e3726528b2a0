// Package postgres reads identity, rule and device data from the dashboard
// database and appends access events next to them. Numeric dashboard ids are
// rendered as text so the rest of the engine sees opaque string ids.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pdkslab/pdksgate/internal/gate/store"
	"github.com/pdkslab/pdksgate/internal/gate/types"
)

// Store implements every store interface on one *sql.DB opened with the
// pgx stdlib driver.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ── identities ──

// The dashboard schema has no employee zone; it is reported empty.
const employeeSelect = `SELECT id::text, card_number, first_name, last_name,
  COALESCE(department_id::text, ''), '', COALESCE(access_permission, false), COALESCE(is_active, false)
FROM employees`

func (s *Store) FindByCredential(ctx context.Context, credential string) ([]types.Employee, error) {
	rows, err := s.db.QueryContext(ctx,
		employeeSelect+` WHERE card_number = $1 ORDER BY id LIMIT 2`,
		strings.TrimSpace(credential))
	if err != nil {
		return nil, fmt.Errorf("FindByCredential query: %w", err)
	}
	defer rows.Close()

	var out []types.Employee
	for rows.Next() {
		var e types.Employee
		if err := rows.Scan(&e.ID, &e.CardNumber, &e.FirstName, &e.LastName,
			&e.DepartmentID, &e.ZoneID, &e.AccessPermission, &e.Active); err != nil {
			return nil, fmt.Errorf("FindByCredential scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("FindByCredential rows: %w", err)
	}
	return out, nil
}

func (s *Store) GetEmployee(ctx context.Context, id string) (*types.Employee, error) {
	var e types.Employee
	err := s.db.QueryRowContext(ctx, employeeSelect+` WHERE id::text = $1`, id).Scan(
		&e.ID, &e.CardNumber, &e.FirstName, &e.LastName,
		&e.DepartmentID, &e.ZoneID, &e.AccessPermission, &e.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetEmployee: %w", err)
	}
	return &e, nil
}

// ── rules ──

func (s *Store) RulesForEmployee(ctx context.Context, employeeID string) ([]types.AccessRule, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id::text, employee_id::text, COALESCE(device_id::text, ''),
       COALESCE(array_to_string(days, ','), ''), start_time::text, end_time::text,
       COALESCE(is_active, false)
FROM access_rules
WHERE employee_id::text = $1
ORDER BY id`, employeeID)
	if err != nil {
		return nil, fmt.Errorf("RulesForEmployee query: %w", err)
	}
	defer rows.Close()

	var out []types.AccessRule
	for rows.Next() {
		var (
			r    types.AccessRule
			days string
		)
		if err := rows.Scan(&r.ID, &r.EmployeeID, &r.DeviceID, &days,
			&r.StartTime, &r.EndTime, &r.Active); err != nil {
			return nil, fmt.Errorf("RulesForEmployee scan: %w", err)
		}
		for _, d := range strings.Split(days, ",") {
			if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
				r.Days = append(r.Days, d)
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("RulesForEmployee rows: %w", err)
	}
	return out, nil
}

// ── devices ──

const deviceSelect = `SELECT id::text, COALESCE(serial_number, device_serial, ''), name,
  COALESCE(location, device_location, ''), COALESCE(zone_id::text, ''), COALESCE(door_id::text, ''), ''
FROM devices`

func (s *Store) FindBySerial(ctx context.Context, serial string) (*types.Device, error) {
	return s.device(ctx, "FindBySerial",
		deviceSelect+` WHERE serial_number = $1 OR device_serial = $1 ORDER BY id LIMIT 1`, serial)
}

func (s *Store) GetDevice(ctx context.Context, id string) (*types.Device, error) {
	return s.device(ctx, "GetDevice", deviceSelect+` WHERE id::text = $1`, id)
}

func (s *Store) device(ctx context.Context, op, query, arg string) (*types.Device, error) {
	var d types.Device
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&d.ID, &d.Serial, &d.Name, &d.Location, &d.ZoneID, &d.DoorID, &d.Dialect)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &d, nil
}

// ── access events ──

const eventColumns = `id::text, credential, device_serial, device_name, device_location,
  employee_id, employee_name, decision, reason, occurred_at, idempotency_key, relay_confirmed_at`

func (s *Store) InsertIfAbsent(ctx context.Context, ev types.AccessEvent, prior store.PriorKey) (types.AccessEvent, bool, error) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.AccessEvent{}, false, fmt.Errorf("InsertIfAbsent begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stored, inserted, err := s.insertIfAbsent(ctx, tx, ev, prior)
	if err != nil {
		return types.AccessEvent{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return types.AccessEvent{}, false, fmt.Errorf("InsertIfAbsent commit: %w", err)
	}
	return stored, inserted, nil
}

func (s *Store) insertIfAbsent(ctx context.Context, tx *sql.Tx, ev types.AccessEvent, prior store.PriorKey) (types.AccessEvent, bool, error) {
	// Swipes of one card on one reader take turns, so a retry straddling a
	// bucket boundary sees the row written for the first transmission.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		ev.DeviceSerial+"/"+ev.Credential); err != nil {
		return types.AccessEvent{}, false, fmt.Errorf("InsertIfAbsent lock: %w", err)
	}

	if prior.Key != "" {
		existing, err := s.scanEvent(tx.QueryRowContext(ctx, `SELECT `+eventColumns+`
FROM access_events WHERE idempotency_key = $1 AND occurred_at >= $2`, prior.Key, prior.Since.UTC()))
		switch {
		case err == nil:
			return existing, false, nil
		case !errors.Is(err, sql.ErrNoRows):
			return types.AccessEvent{}, false, fmt.Errorf("InsertIfAbsent load prior: %w", err)
		}
	}

	var id string
	err := tx.QueryRowContext(ctx, `
INSERT INTO access_events(
  id, credential, device_serial, device_name, device_location,
  employee_id, employee_name, decision, reason, occurred_at, idempotency_key
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (idempotency_key) DO NOTHING
RETURNING id::text`,
		ev.ID, ev.Credential, ev.DeviceSerial, ev.DeviceName, ev.DeviceLocation,
		ev.EmployeeID, ev.EmployeeName, string(ev.Decision), ev.Reason,
		ev.OccurredAt.UTC(), ev.IdempotencyKey,
	).Scan(&id)
	switch {
	case err == nil:
		return ev, true, nil
	case !errors.Is(err, sql.ErrNoRows):
		return types.AccessEvent{}, false, fmt.Errorf("InsertIfAbsent insert: %w", err)
	}

	// DO NOTHING returned no row: another request owns the key.
	existing, err := s.scanEvent(tx.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM access_events WHERE idempotency_key = $1`, ev.IdempotencyKey))
	if err != nil {
		return types.AccessEvent{}, false, fmt.Errorf("InsertIfAbsent load existing: %w", err)
	}
	return existing, false, nil
}

func (s *Store) LatestAllowed(ctx context.Context, serial, credential string, since time.Time) (*types.AccessEvent, error) {
	ev, err := s.scanEvent(s.db.QueryRowContext(ctx, `
SELECT `+eventColumns+`
FROM access_events
WHERE device_serial = $1 AND credential = $2 AND decision = 'allow' AND occurred_at >= $3
ORDER BY occurred_at DESC
LIMIT 1`, serial, credential, since.UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LatestAllowed: %w", err)
	}
	return &ev, nil
}

func (s *Store) MarkRelayConfirmed(ctx context.Context, eventID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE access_events SET relay_confirmed_at = $1
WHERE id::text = $2 AND decision = 'allow' AND relay_confirmed_at IS NULL`, at.UTC(), eventID)
	if err != nil {
		return false, fmt.Errorf("MarkRelayConfirmed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("MarkRelayConfirmed rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *Store) scanEvent(row *sql.Row) (types.AccessEvent, error) {
	var (
		ev        types.AccessEvent
		employee  sql.NullString
		decision  string
		confirmed sql.NullTime
	)
	if err := row.Scan(&ev.ID, &ev.Credential, &ev.DeviceSerial, &ev.DeviceName, &ev.DeviceLocation,
		&employee, &ev.EmployeeName, &decision, &ev.Reason, &ev.OccurredAt,
		&ev.IdempotencyKey, &confirmed); err != nil {
		return types.AccessEvent{}, err
	}
	if employee.Valid {
		id := employee.String
		ev.EmployeeID = &id
	}
	ev.Decision = types.Decision(decision)
	ev.OccurredAt = ev.OccurredAt.UTC()
	if confirmed.Valid {
		t := confirmed.Time.UTC()
		ev.RelayConfirmedAt = &t
	}
	return ev, nil
}
