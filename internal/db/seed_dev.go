package db

import (
	"context"
	"database/sql"
	"fmt"
)

// SeedDev inserts one reader, one active employee with a matching card and
// an always-open weekday rule so a fresh dev database answers swipes.
func SeedDev(ctx context.Context, db *sql.DB) error {
	stmts := []struct {
		name string
		sql  string
	}{
		{"devices", `
INSERT OR IGNORE INTO devices(id, serial_number, name, location, zone_id, door_id, relay_dialect)
VALUES ('dev-main', 'SN-0001', 'Main Entrance', 'Lobby', 'zone-lobby', 'door-main', 'relay');`},
		{"employees", `
INSERT OR IGNORE INTO employees(id, card_number, first_name, last_name, department_id, zone_id, access_permission, is_active)
VALUES ('emp-demo', '0001234567', 'Demo', 'User', 'dept-ops', 'zone-lobby', 1, 1);`},
		{"access_rules", `
INSERT OR IGNORE INTO access_rules(id, employee_id, device_id, zone_id, days, start_time, end_time, is_active)
VALUES ('rule-demo', 'emp-demo', NULL, 'zone-lobby', 'monday,tuesday,wednesday,thursday,friday', '07:00', '20:00', 1);`},
	}

	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s.sql); err != nil {
			return fmt.Errorf("seed %s: %w", s.name, err)
		}
	}
	return nil
}
