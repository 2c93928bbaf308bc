package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/artpar/roomkit/adapters/sqlite"
	"github.com/artpar/roomkit/ports"
)

func setupTestDB(t *testing.T) *sqlite.DB {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "roomkit-test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestMigrate_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}

	versions, err := db.Versions(ctx)
	if err != nil {
		t.Fatalf("Versions failed: %v", err)
	}
	want := []string{"001_role_assignments", "002_role_assignments_role_idx"}
	if len(versions) != len(want) {
		t.Fatalf("versions = %v, want %v", versions, want)
	}
	for i := range want {
		if versions[i] != want[i] {
			t.Errorf("versions[%d] = %s, want %s", i, versions[i], want[i])
		}
	}
}

func TestOpen_Memory(t *testing.T) {
	db, err := sqlite.Open(sqlite.MemoryDSN)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := sqlite.NewRoleStore(db).List(context.Background()); err != nil {
		t.Fatalf("List failed: %v", err)
	}
}

// -----------------------------------------------------------------------------
// RoleStore Tests
// -----------------------------------------------------------------------------

func TestRoleStore_PutAndGet(t *testing.T) {
	store := sqlite.NewRoleStore(setupTestDB(t))
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

	err := store.Put(ctx, ports.RoleAssignment{
		Auth:       "auth-a",
		Name:       "alice",
		Role:       "admin",
		AssignedBy: "login",
		AssignedAt: at,
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "auth-a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Role != "admin" || got.Name != "alice" || got.AssignedBy != "login" {
		t.Errorf("Get = %+v", got)
	}
	if !got.AssignedAt.Equal(at) {
		t.Errorf("AssignedAt = %v, want %v", got.AssignedAt, at)
	}
}

func TestRoleStore_PutReplaces(t *testing.T) {
	store := sqlite.NewRoleStore(setupTestDB(t))
	ctx := context.Background()

	_ = store.Put(ctx, ports.RoleAssignment{Auth: "auth-a", Role: "admin"})
	if err := store.Put(ctx, ports.RoleAssignment{Auth: "auth-a", Role: "host", AssignedBy: "bob"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "auth-a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Role != "host" || got.AssignedBy != "bob" {
		t.Errorf("Get = %+v", got)
	}
	if got.AssignedAt.IsZero() {
		t.Error("AssignedAt should default to now")
	}
}

func TestRoleStore_NotFound(t *testing.T) {
	store := sqlite.NewRoleStore(setupTestDB(t))
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("Get error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("Delete error = %v, want ErrNotFound", err)
	}
}

func TestRoleStore_DeleteAndList(t *testing.T) {
	store := sqlite.NewRoleStore(setupTestDB(t))
	ctx := context.Background()

	for _, auth := range []string{"c", "a", "b"} {
		if err := store.Put(ctx, ports.RoleAssignment{Auth: auth, Role: "admin"}); err != nil {
			t.Fatalf("Put %s failed: %v", auth, err)
		}
	}
	if err := store.Delete(ctx, "b"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 || list[0].Auth != "a" || list[1].Auth != "c" {
		t.Errorf("List = %+v", list)
	}
}
