package sqliteutil

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

type codedErr int

func (c codedErr) Error() string { return "coded" }
func (c codedErr) Code() int     { return int(c) }

func TestIsBusy(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("database is locked"), true},
		{errors.New("SQLITE_BUSY: retry"), true},
		{codedErr(5), true},
		{codedErr(1), false},
		{errors.New("syntax error"), false},
	}
	for _, tc := range cases {
		if got := IsBusy(tc.err); got != tc.want {
			t.Errorf("IsBusy(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestRetryOnBusyRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := RetryOnBusy(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RetryOnBusy: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryOnBusyStopsOnOtherErrors(t *testing.T) {
	calls := 0
	want := errors.New("constraint failed")
	err := RetryOnBusy(context.Background(), func() error {
		calls++
		return want
	})
	if !errors.Is(err, want) || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestRetryOnBusyHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RetryOnBusy(ctx, func() error { return errors.New("database is locked") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestApplySchemaDetectsMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	schema := "CREATE TABLE schema_version (version INTEGER NOT NULL); CREATE TABLE things (id INTEGER PRIMARY KEY);"
	if err := ApplySchema(context.Background(), db, schema, 1); err != nil {
		t.Fatalf("ApplySchema: %v", err)
	}
	if err := ApplySchema(context.Background(), db, schema, 1); err != nil {
		t.Fatalf("second ApplySchema: %v", err)
	}
	if err := ApplySchema(context.Background(), db, schema, 2); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("err = %v, want ErrSchemaMismatch", err)
	}
}

func TestParseTime(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 8, time.UTC)
	got, err := ParseTime(FormatTime(now))
	if err != nil || !got.Equal(now) {
		t.Fatalf("ParseTime round trip = %v, %v", got, err)
	}
	if _, err := ParseTime("2026-03-04 05:06:07"); err != nil {
		t.Fatalf("ParseTime sqlite layout: %v", err)
	}
	if _, err := ParseTime(""); err == nil {
		t.Fatal("expected error for empty value")
	}
}
