package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type seedDepartment struct {
	id     int64
	number string
	tower  string
	floor  int
}

type seedUser struct {
	id     int64
	name   string
	email  string
	role   string
	deptID int64
}

type seedSensor struct {
	id           int64
	code         string
	status       string
	kind         string
	deptID       int64
	registeredBy any
	alias        any
}

const seedCondominium = "Condominio Los Pinos"

var (
	seedDepartments = []seedDepartment{
		{1, "101", "Torre A", 1},
		{2, "202", "Torre A", 2},
		{3, "303", "Torre B", 3},
	}
	seedUsers = []seedUser{
		{1, "Juan Pérez", "juan@example.com", "OPERATOR", 1},
		{2, "María González", "maria@example.com", "OPERATOR", 2},
		{3, "Admin Demo", "admin@example.com", "ADMIN", 1},
	}
	seedSensors = []seedSensor{
		{1, "A1:B2:C3:D4", "ACTIVE", "CARD", 1, int64(1), "Tarjeta Principal - Depto 101"},
		{2, "E5:F6:G7:H8", "ACTIVE", "KEYFOB", 1, int64(1), nil},
		{3, "AA:BB:CC:DD", "INACTIVE", "CARD", 2, nil, nil},
		{4, "11:22:33:44", "BLOCKED", "KEYFOB", 2, nil, nil},
	}
)

// SeedDev loads the demo condominium: three departments, three users
// (user 3 is the ADMIN of department 1) and four sensors covering the
// ACTIVE, INACTIVE and BLOCKED paths. Re-running it is a no-op.
func SeedDev(ctx context.Context, conn *sql.DB, dialect Dialect) error {
	now := time.Now().UTC().UnixMilli()

	for _, d := range seedDepartments {
		if _, err := conn.ExecContext(ctx, dialect.Rebind(`
INSERT INTO departments(department_id, number, tower, condominium, floor, created_at_ms)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT DO NOTHING;`), d.id, d.number, d.tower, seedCondominium, d.floor, now); err != nil {
			return fmt.Errorf("seed department %s: %w", d.number, err)
		}
	}

	for _, u := range seedUsers {
		if _, err := conn.ExecContext(ctx, dialect.Rebind(`
INSERT INTO users(user_id, name, email, role, status, department_id, created_at_ms)
VALUES (?, ?, ?, ?, 'ACTIVE', ?, ?)
ON CONFLICT DO NOTHING;`), u.id, u.name, u.email, u.role, u.deptID, now); err != nil {
			return fmt.Errorf("seed user %d: %w", u.id, err)
		}
	}

	for _, s := range seedSensors {
		var revoked any
		if s.status == "BLOCKED" || s.status == "LOST" {
			revoked = now
		}
		if _, err := conn.ExecContext(ctx, dialect.Rebind(`
INSERT INTO sensors(sensor_id, code, status, kind, department_id, registered_by, alias,
                    issued_at_ms, revoked_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT DO NOTHING;`),
			s.id, s.code, s.status, s.kind, s.deptID, s.registeredBy, s.alias,
			now, revoked, now); err != nil {
			return fmt.Errorf("seed sensor %s: %w", s.code, err)
		}
	}

	// Explicit ids leave postgres sequences behind; move them past the seed.
	if dialect == DialectPostgres {
		for _, t := range []struct{ table, col string }{
			{"departments", "department_id"},
			{"users", "user_id"},
			{"sensors", "sensor_id"},
		} {
			q := fmt.Sprintf(
				"SELECT setval(pg_get_serial_sequence('%s', '%s'), (SELECT COALESCE(MAX(%s), 1) FROM %s));",
				t.table, t.col, t.col, t.table)
			if _, err := conn.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("reset sequence %s: %w", t.table, err)
			}
		}
	}

	return nil
}
