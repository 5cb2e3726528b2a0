package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pdkslab/pdksgate/internal/gate/types"
)

// DeviceStore reads reader rows. Devices are provisioned by the dashboard
// (or SeedDev); the engine never writes them.
type DeviceStore struct {
	db *sql.DB
}

func NewDeviceStore(db *sql.DB) *DeviceStore {
	return &DeviceStore{db: db}
}

const deviceColumns = `id, serial_number, name, location,
  COALESCE(zone_id, ''), COALESCE(door_id, ''), relay_dialect`

func (s *DeviceStore) FindBySerial(ctx context.Context, serial string) (*types.Device, error) {
	return s.one(ctx, "FindBySerial", `SELECT `+deviceColumns+` FROM devices WHERE serial_number = ?;`, serial)
}

func (s *DeviceStore) GetDevice(ctx context.Context, id string) (*types.Device, error) {
	return s.one(ctx, "GetDevice", `SELECT `+deviceColumns+` FROM devices WHERE id = ?;`, id)
}

func (s *DeviceStore) one(ctx context.Context, op, query string, arg string) (*types.Device, error) {
	var d types.Device
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&d.ID, &d.Serial, &d.Name, &d.Location, &d.ZoneID, &d.DoorID, &d.Dialect,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &d, nil
}

// Ping reports whether the database answers.
func (s *DeviceStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
