package repo

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type crate struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := conn.AutoMigrate(&crate{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func TestBaseDBBindsContext(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	ctx := context.WithValue(context.Background(), struct{}{}, "value")
	withCtx := base.DB(ctx)
	if withCtx.Statement == nil || withCtx.Statement.Context != ctx {
		t.Fatalf("expected context to flow through")
	}

	if base.DB(nil) != db {
		t.Fatalf("expected nil context to return raw connection")
	}
}

func TestBaseWithTx(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	if got := base.WithTx(nil); got.db != db {
		t.Fatalf("nil tx should keep the connection")
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if got := base.WithTx(tx); got.db != tx {
			t.Fatalf("expected tx to be bound")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestFirstReturnsNilWhenMissing(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := NewBase(db)

	missing, err := First[crate](base.DB(ctx).Where("name = ?", "ladders"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil row, got %+v", missing)
	}

	if err := db.Create(&crate{Name: "ladders"}).Error; err != nil {
		t.Fatalf("insert: %v", err)
	}
	found, err := First[crate](base.DB(ctx).Where("name = ?", "ladders"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found == nil || found.Name != "ladders" {
		t.Fatalf("expected crate, got %+v", found)
	}
}
