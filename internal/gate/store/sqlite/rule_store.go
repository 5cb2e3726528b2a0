package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pdkslab/pdksgate/internal/gate/types"
)

type RuleStore struct {
	db *sql.DB
}

func NewRuleStore(db *sql.DB) *RuleStore {
	return &RuleStore{db: db}
}

// RulesForEmployee returns active and inactive rules; filtering is the
// evaluator's job.
func (s *RuleStore) RulesForEmployee(ctx context.Context, employeeID string) ([]types.AccessRule, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, employee_id, COALESCE(device_id, ''), COALESCE(zone_id, ''),
       days, start_time, end_time, is_active
FROM access_rules
WHERE employee_id = ?
ORDER BY id;`, employeeID)
	if err != nil {
		return nil, fmt.Errorf("RulesForEmployee query: %w", err)
	}
	defer rows.Close()

	var out []types.AccessRule
	for rows.Next() {
		var (
			r      types.AccessRule
			days   string
			active int
		)
		if err := rows.Scan(
			&r.ID, &r.EmployeeID, &r.DeviceID, &r.ZoneID,
			&days, &r.StartTime, &r.EndTime, &active,
		); err != nil {
			return nil, fmt.Errorf("RulesForEmployee scan: %w", err)
		}
		r.Days = splitDays(days)
		r.Active = active != 0
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("RulesForEmployee rows: %w", err)
	}
	return out, nil
}

// splitDays parses the comma-separated days column.
func splitDays(s string) []string {
	var out []string
	for _, d := range strings.Split(s, ",") {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			out = append(out, d)
		}
	}
	return out
}
