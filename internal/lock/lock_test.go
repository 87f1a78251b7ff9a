package lock

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestKeyFor(t *testing.T) {
	if KeyFor("app", "changelog") != "evolvex:app:changelog" {
		t.Fatal("key format mismatch")
	}
}

func TestAcquireAndRelease(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	mock.ExpectQuery("SELECT GET_LOCK").
		WithArgs("evolvex:app:changelog", 5).
		WillReturnRows(sqlmock.NewRows([]string{"r"}).AddRow(1))
	mock.ExpectQuery("SELECT RELEASE_LOCK").
		WithArgs("evolvex:app:changelog").
		WillReturnRows(sqlmock.NewRows([]string{"r"}).AddRow(1))

	a := New(KeyFor("app", "changelog"))
	if err := a.Acquire(context.Background(), db, 5*time.Second); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := a.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAcquireTimeout(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	mock.ExpectQuery("SELECT GET_LOCK").
		WillReturnRows(sqlmock.NewRows([]string{"r"}).AddRow(0))

	a := New("evolvex:app:changelog")
	err = a.Acquire(context.Background(), db, time.Second)
	if err == nil {
		t.Fatal("expected lock failure")
	}
}
