package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrEthical07/authcore/store"
)

func TestMapErr(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"no rows", pgx.ErrNoRows, store.ErrNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), store.ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: codeUniqueViolation}, store.ErrDuplicate},
		{"foreign key violation", &pgconn.PgError{Code: codeForeignKeyViolation}, store.ErrNotFound},
		{"invalid uuid text", &pgconn.PgError{Code: codeInvalidText}, store.ErrNotFound},
	}
	for _, tc := range cases {
		if got := mapErr("op", tc.in); !errors.Is(got, tc.want) {
			t.Fatalf("%s: mapErr = %v, want %v", tc.name, got, tc.want)
		}
	}

	if mapErr("op", nil) != nil {
		t.Fatal("expected nil for nil error")
	}

	other := errors.New("connection reset")
	got := mapErr("find user", other)
	if !errors.Is(got, other) || got.Error() != "postgres: find user: connection reset" {
		t.Fatalf("unexpected passthrough error %v", got)
	}
}

func TestLimitOffset(t *testing.T) {
	limit, offset := limitOffset(store.All)
	if limit != nil || offset != 0 {
		t.Fatalf("All = %v, %d", limit, offset)
	}

	limit, offset = limitOffset(store.Page{Limit: 20, Offset: 40})
	if limit != 20 || offset != 40 {
		t.Fatalf("page = %v, %d", limit, offset)
	}

	_, offset = limitOffset(store.Page{Limit: 5, Offset: -3})
	if offset != 0 {
		t.Fatalf("negative offset should clamp to zero, got %d", offset)
	}
}

func TestLikePatternEscapesWildcards(t *testing.T) {
	cases := map[string]string{
		"alice":    "%alice%",
		" 50% ":    `%50\%%`,
		"a_b":      `%a\_b%`,
		`back\sl`:  `%back\\sl%`,
	}
	for in, want := range cases {
		if got := likePattern(in); got != want {
			t.Fatalf("likePattern(%q) = %q, want %q", in, got, want)
		}
	}
}
