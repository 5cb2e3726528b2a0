package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdkslab/pdksgate/internal/db"
	sqlitestore "github.com/pdkslab/pdksgate/internal/gate/store/sqlite"
)

// ── IdentityStore ──

func TestIdentityStore_FindByCredential(t *testing.T) {
	conn := openTestDB(t)
	seedEmployee(t, conn, "e1", "12345", true, true)
	s := sqlitestore.NewIdentityStore(conn)

	got, err := s.FindByCredential(context.Background(), " 12345 ")
	require.NoError(t, err)
	require.Len(t, got, 1)

	e := got[0]
	assert.Equal(t, "e1", e.ID)
	assert.Equal(t, "zone-a", e.ZoneID)
	assert.Equal(t, "", e.DepartmentID)
	assert.True(t, e.AccessPermission)
	assert.True(t, e.Active)
	assert.Equal(t, "Ada Yilmaz", e.DisplayName())
}

func TestIdentityStore_FindByCredential_Unknown(t *testing.T) {
	conn := openTestDB(t)
	s := sqlitestore.NewIdentityStore(conn)

	got, err := s.FindByCredential(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestIdentityStore_FindByCredential_DuplicateCapsAtTwo(t *testing.T) {
	conn := openTestDB(t)
	seedEmployee(t, conn, "e1", "777", true, true)
	seedEmployee(t, conn, "e2", "777", true, true)
	seedEmployee(t, conn, "e3", "777", false, true)
	s := sqlitestore.NewIdentityStore(conn)

	got, err := s.FindByCredential(context.Background(), "777")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestIdentityStore_GetEmployee(t *testing.T) {
	conn := openTestDB(t)
	seedEmployee(t, conn, "e1", "1", false, false)
	s := sqlitestore.NewIdentityStore(conn)

	e, err := s.GetEmployee(context.Background(), "e1")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.False(t, e.AccessPermission)
	assert.False(t, e.Active)

	missing, err := s.GetEmployee(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

// ── RuleStore ──

func TestRuleStore_RulesForEmployee(t *testing.T) {
	conn := openTestDB(t)
	seedEmployee(t, conn, "e1", "1", true, true)
	mustExec(t, conn, `
INSERT INTO access_rules(id, employee_id, device_id, zone_id, days, start_time, end_time, is_active)
VALUES ('r1', 'e1', 'd1', NULL, 'Monday, tuesday,,', '08:00', '17:00', 1),
       ('r2', 'e1', NULL, 'zone-a', 'sunday', '00:00', '23:59', 0);`)
	s := sqlitestore.NewRuleStore(conn)

	rules, err := s.RulesForEmployee(context.Background(), "e1")
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, "d1", rules[0].DeviceID)
	assert.Equal(t, "", rules[0].ZoneID)
	assert.Equal(t, []string{"monday", "tuesday"}, rules[0].Days)
	assert.True(t, rules[0].Active)

	assert.Equal(t, "zone-a", rules[1].ZoneID)
	assert.False(t, rules[1].Active)

	none, err := s.RulesForEmployee(context.Background(), "e2")
	require.NoError(t, err)
	assert.Empty(t, none)
}

// ── DeviceStore ──

func TestDeviceStore_Lookups(t *testing.T) {
	conn := openTestDB(t)
	require.NoError(t, db.SeedDev(context.Background(), conn))
	s := sqlitestore.NewDeviceStore(conn)

	d, err := s.FindBySerial(context.Background(), "SN-0001")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "dev-main", d.ID)
	assert.Equal(t, "zone-lobby", d.ZoneID)
	assert.Equal(t, "relay", d.Dialect)

	byID, err := s.GetDevice(context.Background(), "dev-main")
	require.NoError(t, err)
	assert.Equal(t, d, byID)

	unknown, err := s.FindBySerial(context.Background(), "SN-9999")
	require.NoError(t, err)
	assert.Nil(t, unknown)

	require.NoError(t, s.Ping(context.Background()))
}

func TestSeedDev_Idempotent(t *testing.T) {
	conn := openTestDB(t)
	require.NoError(t, db.SeedDev(context.Background(), conn))
	require.NoError(t, db.SeedDev(context.Background(), conn))

	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM employees`).Scan(&n))
	assert.Equal(t, 1, n)
}
