package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/pdkslab/pdksgate/internal/gate/types"
)

const employeeColumns = `id, card_number, first_name, last_name,
  COALESCE(department_id, ''), COALESCE(zone_id, ''), access_permission, is_active`

type IdentityStore struct {
	db *sql.DB
}

func NewIdentityStore(db *sql.DB) *IdentityStore {
	return &IdentityStore{db: db}
}

// FindByCredential returns at most two employees; a second row is enough to
// signal a duplicated card number.
func (s *IdentityStore) FindByCredential(ctx context.Context, credential string) ([]types.Employee, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+employeeColumns+`
FROM employees
WHERE card_number = ?
ORDER BY id
LIMIT 2;`, strings.TrimSpace(credential))
	if err != nil {
		return nil, fmt.Errorf("FindByCredential query: %w", err)
	}
	defer rows.Close()

	var out []types.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("FindByCredential scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("FindByCredential rows: %w", err)
	}
	return out, nil
}

func (s *IdentityStore) GetEmployee(ctx context.Context, id string) (*types.Employee, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+employeeColumns+`
FROM employees
WHERE id = ?;`, id)

	e, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetEmployee: %w", err)
	}
	return &e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEmployee(sc scanner) (types.Employee, error) {
	var (
		e                  types.Employee
		permission, active int
	)
	if err := sc.Scan(
		&e.ID, &e.CardNumber, &e.FirstName, &e.LastName,
		&e.DepartmentID, &e.ZoneID, &permission, &active,
	); err != nil {
		return types.Employee{}, err
	}
	e.AccessPermission = permission != 0
	e.Active = active != 0
	return e, nil
}
