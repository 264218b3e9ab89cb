package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/store"
	sqlitestore "github.com/BrandonDHaskell/Portunus/gate/internal/gate/store/sqlite"
	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/types"
)

// ── FindByCode ───────────────────────────────────────────────────────────────

func TestRegistry_FindByCode_JoinsDepartment(t *testing.T) {
	conn := openTestDB(t)
	r := sqlitestore.NewRegistry(conn, newTestWriter(t, conn))

	rec, err := r.FindByCode(context.Background(), "A1:B2:C3:D4")
	if err != nil {
		t.Fatalf("FindByCode: %v", err)
	}
	if rec.Status != types.SensorActive || rec.Kind != types.SensorCard {
		t.Errorf("status/kind = %s/%s, want ACTIVE/CARD", rec.Status, rec.Kind)
	}
	if rec.Alias != "Tarjeta Principal - Depto 101" {
		t.Errorf("alias = %q", rec.Alias)
	}
	if rec.Department.Number != "101" || rec.Department.Tower != "Torre A" {
		t.Errorf("department = %+v", rec.Department)
	}
	if rec.Department.Floor == nil || *rec.Department.Floor != 1 {
		t.Errorf("floor = %v, want 1", rec.Department.Floor)
	}
	if rec.RegisteredBy == nil || *rec.RegisteredBy != 1 {
		t.Errorf("registered_by = %v, want 1", rec.RegisteredBy)
	}
}

func TestRegistry_FindByCode_Normalizes(t *testing.T) {
	conn := openTestDB(t)
	r := sqlitestore.NewRegistry(conn, newTestWriter(t, conn))

	rec, err := r.FindByCode(context.Background(), "  a1:b2:c3:d4 ")
	if err != nil {
		t.Fatalf("FindByCode: %v", err)
	}
	if rec.Code != "A1:B2:C3:D4" {
		t.Errorf("code = %q", rec.Code)
	}
}

func TestRegistry_FindByCode_Unknown(t *testing.T) {
	conn := openTestDB(t)
	r := sqlitestore.NewRegistry(conn, newTestWriter(t, conn))

	_, err := r.FindByCode(context.Background(), "FF:FF:FF:FF")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRegistry_FindByCode_BlockedHasRevokedAt(t *testing.T) {
	conn := openTestDB(t)
	r := sqlitestore.NewRegistry(conn, newTestWriter(t, conn))

	rec, err := r.FindByCode(context.Background(), "11:22:33:44")
	if err != nil {
		t.Fatalf("FindByCode: %v", err)
	}
	if rec.Status != types.SensorBlocked {
		t.Errorf("status = %s, want BLOCKED", rec.Status)
	}
	if rec.RevokedAt == nil {
		t.Error("expected revoked_at for BLOCKED sensor")
	}
}

// ── Register / SetStatus ─────────────────────────────────────────────────────

func TestRegistry_Register_DefaultsAndDuplicate(t *testing.T) {
	conn := openTestDB(t)
	r := sqlitestore.NewRegistry(conn, newTestWriter(t, conn))
	ctx := context.Background()

	id, err := r.Register(ctx, store.SensorRecord{Code: "de:ad:be:ef", DepartmentID: 3})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	rec, err := r.FindByCode(ctx, "DE:AD:BE:EF")
	if err != nil {
		t.Fatalf("FindByCode: %v", err)
	}
	if rec.ID != id || rec.Status != types.SensorActive || rec.Kind != types.SensorCard {
		t.Errorf("registered = %+v", rec)
	}

	_, err = r.Register(ctx, store.SensorRecord{Code: "DE:AD:BE:EF", DepartmentID: 3})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("duplicate err = %v, want ErrConflict", err)
	}
}

func TestRegistry_Register_UnknownDepartment(t *testing.T) {
	conn := openTestDB(t)
	r := sqlitestore.NewRegistry(conn, newTestWriter(t, conn))

	_, err := r.Register(context.Background(), store.SensorRecord{Code: "01:02:03:04", DepartmentID: 99})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRegistry_SetStatus_StampsAndClearsRevocation(t *testing.T) {
	conn := openTestDB(t)
	r := sqlitestore.NewRegistry(conn, newTestWriter(t, conn))
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	if err := r.SetStatus(ctx, 2, types.SensorLost, at); err != nil {
		t.Fatalf("SetStatus LOST: %v", err)
	}
	var revoked sql.NullInt64
	if err := conn.QueryRow(`SELECT revoked_at_ms FROM sensors WHERE sensor_id = 2`).Scan(&revoked); err != nil {
		t.Fatalf("query: %v", err)
	}
	if !revoked.Valid || revoked.Int64 != at.UnixMilli() {
		t.Errorf("revoked_at_ms = %v, want %d", revoked, at.UnixMilli())
	}

	if err := r.SetStatus(ctx, 2, types.SensorActive, at.Add(time.Hour)); err != nil {
		t.Fatalf("SetStatus ACTIVE: %v", err)
	}
	if err := conn.QueryRow(`SELECT revoked_at_ms FROM sensors WHERE sensor_id = 2`).Scan(&revoked); err != nil {
		t.Fatalf("query: %v", err)
	}
	if revoked.Valid {
		t.Errorf("revoked_at_ms = %d, want NULL", revoked.Int64)
	}

	if err := r.SetStatus(ctx, 999, types.SensorBlocked, at); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown sensor err = %v, want ErrNotFound", err)
	}
}

// ── FindUser ─────────────────────────────────────────────────────────────────

func TestRegistry_FindUser(t *testing.T) {
	conn := openTestDB(t)
	r := sqlitestore.NewRegistry(conn, newTestWriter(t, conn))
	ctx := context.Background()

	u, err := r.FindUser(ctx, 3)
	if err != nil {
		t.Fatalf("FindUser: %v", err)
	}
	if u.Role != types.RoleAdmin || u.Status != types.UserActive {
		t.Errorf("user = %+v", u)
	}
	if u.DepartmentID == nil || *u.DepartmentID != 1 {
		t.Errorf("department = %v, want 1", u.DepartmentID)
	}

	if _, err := r.FindUser(ctx, 42); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown user err = %v, want ErrNotFound", err)
	}
}
