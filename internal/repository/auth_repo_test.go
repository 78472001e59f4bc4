package repository

import (
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestUserRepository_SQLiteRoundTrip(t *testing.T) {
	t.Parallel()
	repo := newSQLiteRepo(t).Auth
	c := ctx(t)

	id, err := repo.Create(c, "operator", "$2a$hash")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected positive id, got %d", id)
	}

	u, err := repo.GetByUsername(c, "operator")
	if err != nil || u == nil {
		t.Fatalf("GetByUsername: %v, %v", u, err)
	}
	if u.ID != id || u.PasswordHash != "$2a$hash" {
		t.Fatalf("unexpected user: %+v", u)
	}

	// usernames are unique
	if _, err := repo.Create(c, "operator", "other"); err == nil {
		t.Fatal("expected duplicate username to fail")
	}

	// unknown users are (nil, nil) so sign-in can tell them from storage failures
	u, err = repo.GetByUsername(c, "nobody")
	if err != nil || u != nil {
		t.Fatalf("expected (nil, nil), got (%+v, %v)", u, err)
	}
}

func TestUserRepository_StorageErrors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		expect func(sqlmock.Sqlmock)
		call   func(*UserRepository) error
		want   string
	}{
		{
			name: "insert fails",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectExec(regexp.QuoteMeta(insertUserSQL)).
					WithArgs("bob", "h").
					WillReturnError(errors.New("disk full"))
			},
			call: func(r *UserRepository) error { _, err := r.Create(ctx(t), "bob", "h"); return err },
			want: "insert user",
		},
		{
			name: "no last insert id",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectExec(regexp.QuoteMeta(insertUserSQL)).
					WithArgs("carol", "h").
					WillReturnResult(sqlmock.NewErrorResult(errors.New("unsupported")))
			},
			call: func(r *UserRepository) error { _, err := r.Create(ctx(t), "carol", "h"); return err },
			want: "get last insert id",
		},
		{
			name: "select fails",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(regexp.QuoteMeta(selectUserByUsernameSQL)).
					WithArgs("dave").
					WillReturnError(sql.ErrConnDone)
			},
			call: func(r *UserRepository) error { _, err := r.GetByUsername(ctx(t), "dave"); return err },
			want: "select user",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("sqlmock: %v", err)
			}
			defer conn.Close()
			tc.expect(mock)

			err = tc.call(NewUserRepository(conn))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("unmet expectations: %v", err)
			}
		})
	}
}
