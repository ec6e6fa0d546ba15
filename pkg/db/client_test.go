package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cactilia/cactilia-backend/pkg/config"
	"github.com/jackc/pgx/v5/pgconn"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}

	ctx := context.Background()
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to leave 1 record, got %d", count)
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

func TestNew_SQLiteDriver(t *testing.T) {
	client, err := New(context.Background(), config.DBConfig{
		DSN:    "file:db_client_test?mode=memory&cache=shared",
		Driver: config.DBDriverSQLite,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()

	if got := client.Dialect(); got != "sqlite" {
		t.Fatalf("expected sqlite dialect, got %q", got)
	}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

func TestNew_RejectsUnknownDriver(t *testing.T) {
	_, err := New(context.Background(), config.DBConfig{DSN: "whatever", Driver: "mysql"}, nil)
	if err == nil {
		t.Fatal("expected unknown driver to fail")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	err := errors.New(`ERROR: duplicate key value violates unique constraint "shipping_rules_pkey"`)
	if !IsUniqueViolation(err, "") {
		t.Fatal("expected duplicate key to be detected")
	}
	if !IsUniqueViolation(err, "shipping_rules_pkey") {
		t.Fatal("expected constraint name to match")
	}
	if IsUniqueViolation(err, "other_constraint") {
		t.Fatal("unexpected match on other constraint")
	}
	if IsUniqueViolation(nil, "") {
		t.Fatal("nil error cannot be a violation")
	}
}

func TestIsUniqueViolationTypedAndSQLite(t *testing.T) {
	pgErr := fmt.Errorf("insert rule: %w", &pgconn.PgError{Code: "23505", ConstraintName: "shipping_rules_pkey"})
	if !IsUniqueViolation(pgErr, "shipping_rules_pkey") {
		t.Fatal("expected typed pg error to match")
	}
	if IsUniqueViolation(pgErr, "other_constraint") {
		t.Fatal("typed pg error should respect the constraint name")
	}
	if !IsUniqueViolation(errors.New("UNIQUE constraint failed: shipping_rules.id"), "") {
		t.Fatal("expected sqlite unique error to match")
	}
}
