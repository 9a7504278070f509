package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

func TestClassifyStore(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{name: "record not found", err: gorm.ErrRecordNotFound, want: CodeNotFound},
		{name: "wrapped not found", err: fmt.Errorf("load: %w", gorm.ErrRecordNotFound), want: CodeNotFound},
		{name: "pgx deadlock", err: &pgconn.PgError{Code: "40P01"}, want: CodeDependency},
		{name: "pgx serialization", err: &pgconn.PgError{Code: "40001"}, want: CodeDependency},
		{name: "pgx lock timeout", err: &pgconn.PgError{Code: "55P03"}, want: CodeDependency},
		{name: "pgx connection", err: &pgconn.PgError{Code: "08006"}, want: CodeDependency},
		{name: "pq deadlock", err: &pq.Error{Code: "40P01"}, want: CodeDependency},
		{name: "pgx check violation", err: &pgconn.PgError{Code: "23514"}, want: CodeInternal},
		{name: "sqlite busy", err: stdErrors.New("database is locked (5) (SQLITE_BUSY)"), want: CodeDependency},
		{name: "deadline", err: context.DeadlineExceeded, want: CodeDependency},
		{name: "other", err: stdErrors.New("boom"), want: CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := As(ClassifyStore(tt.err, "store failure"))
			if got == nil {
				t.Fatalf("expected typed error")
			}
			if got.Code() != tt.want {
				t.Fatalf("expected %s got %s", tt.want, got.Code())
			}
			if !stdErrors.Is(got, tt.err) {
				t.Fatalf("cause not preserved")
			}
		})
	}
}

func TestClassifyStorePassesTypedErrors(t *testing.T) {
	typed := New(CodeInsufficientStock, "short")
	if got := ClassifyStore(typed, "ignored"); got != typed {
		t.Fatalf("typed error should pass through unchanged")
	}
	if ClassifyStore(nil, "nothing") != nil {
		t.Fatalf("nil should stay nil")
	}
}

func TestStoreFieldsAndChain(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_stock_reservations_order_subject", TableName: "stock_reservations"}
	err := Wrap(CodeConflict, fmt.Errorf("insert reservation: %w", pgErr), "reservation exists")

	fields := StoreFields(err)
	if fields["pg_code"] != "23505" || fields["pg_table"] != "stock_reservations" {
		t.Fatalf("unexpected pg fields %v", fields)
	}
	if StoreFields(stdErrors.New("plain")) != nil {
		t.Fatalf("plain errors carry no store fields")
	}
	if got := len(Chain(err)); got != 3 {
		t.Fatalf("expected 3 links in chain, got %d", got)
	}
}
