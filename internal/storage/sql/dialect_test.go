package sql

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPreparePlaceholders(t *testing.T) {
	tests := []struct {
		name   string
		driver Driver
		in     string
		want   string
	}{
		{
			name:   "postgres numbers placeholders",
			driver: DriverPostgres,
			in:     "SELECT * FROM apf_ru_task WHERE id = ? AND rev = ?",
			want:   "SELECT * FROM apf_ru_task WHERE id = $1 AND rev = $2",
		},
		{
			name:   "sqlserver uses named params",
			driver: DriverSQLServer,
			in:     "UPDATE apf_ru_task SET rev = rev + 1 WHERE id = ? AND rev = ?",
			want:   "UPDATE apf_ru_task SET rev = rev + 1 WHERE id = @p1 AND rev = @p2",
		},
		{
			name:   "mysql left untouched",
			driver: DriverMySQL,
			in:     "SELECT * FROM apf_ru_task WHERE id = ?",
			want:   "SELECT * FROM apf_ru_task WHERE id = ?",
		},
		{
			name:   "sqlite left untouched",
			driver: DriverSQLite,
			in:     "SELECT * FROM apf_ru_task WHERE id = ?",
			want:   "SELECT * FROM apf_ru_task WHERE id = ?",
		},
		{
			name:   "question mark inside string literal is not a placeholder",
			driver: DriverPostgres,
			in:     "SELECT * FROM apf_ru_task WHERE description = 'are you sure?' AND id = ?",
			want:   "SELECT * FROM apf_ru_task WHERE description = 'are you sure?' AND id = $1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PreparePlaceholders(tt.driver, tt.in)
			if got != tt.want {
				t.Fatalf("want %q, got %q", tt.want, got)
			}
			if got2 := PrepareQuery(tt.driver, tt.in); got2 != got {
				t.Fatalf("PrepareQuery diverged from PreparePlaceholders: %q vs %q", got2, got)
			}
		})
	}
}

func TestParseDriver(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Driver
		wantErr bool
	}{
		{name: "postgres", in: "postgres", want: DriverPostgres},
		{name: "postgresql alias", in: "PostgreSQL", want: DriverPostgres},
		{name: "pgx alias", in: "pgx", want: DriverPostgres},
		{name: "mysql", in: "mysql", want: DriverMySQL},
		{name: "sqlite", in: "sqlite", want: DriverSQLite},
		{name: "sqlite3 alias", in: "sqlite3", want: DriverSQLite},
		{name: "sqlserver", in: "sqlserver", want: DriverSQLServer},
		{name: "mssql alias", in: "mssql", want: DriverSQLServer},
		{name: "oracle", in: "oracle", want: DriverOracle},
		{name: "unknown", in: "db2", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDriver(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrNoDriver) {
					t.Fatalf("want ErrNoDriver, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("want %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRowsAffectedExactlyOne(t *testing.T) {
	db := openTestDB(t)
	res, err := db.Exec(`insert into apf_ge_bytearray (id, name, deployment_id, bytes) values ('b1', 'n', 'd1', x'00')`)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	ok, err := RowsAffectedExactlyOne(res)
	if err != nil {
		t.Fatalf("RowsAffectedExactlyOne: %v", err)
	}
	if !ok {
		t.Fatalf("want exactly one row affected")
	}

	res, err = db.Exec(`update apf_ge_bytearray set name = 'n2' where id = 'does-not-exist'`)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	ok, err = RowsAffectedExactlyOne(res)
	if err != nil {
		t.Fatalf("RowsAffectedExactlyOne: %v", err)
	}
	if ok {
		t.Fatalf("want false for a no-op update")
	}
}

func TestExecWithRetry_NonSQLiteRunsOnce(t *testing.T) {
	calls := 0
	err := ExecWithRetry(context.Background(), DriverPostgres, func() error {
		calls++
		return errors.New("database is locked")
	})
	if err == nil {
		t.Fatalf("expected the underlying error to propagate")
	}
	if calls != 1 {
		t.Fatalf("non-sqlite drivers must not retry, got %d calls", calls)
	}
}

func TestExecWithRetry_SQLiteRetriesBusyThenSucceeds(t *testing.T) {
	attempts := 0
	err := ExecWithRetry(context.Background(), DriverSQLite, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("want 3 attempts, got %d", attempts)
	}
}

func TestExecWithRetry_SQLiteGivesUpOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	err := ExecWithRetry(ctx, DriverSQLite, func() error {
		return errors.New("database is locked")
	})
	if err == nil {
		t.Fatalf("expected an error once the context is exhausted")
	}
}
