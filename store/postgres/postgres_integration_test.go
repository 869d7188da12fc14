//go:build integration

package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/authcore/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("AUTHCORE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("AUTHCORE_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := Connect(ctx, dsn, 8)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s := New(pool, 5*time.Second)
	t.Cleanup(s.Close)
	return s
}

func createUser(t *testing.T, s *Store) *store.User {
	t.Helper()
	ctx := context.Background()
	role, err := s.Roles().FindByName(ctx, store.RoleViewer)
	if errors.Is(err, store.ErrNotFound) {
		role, err = s.Roles().Create(ctx, store.RoleViewer, "")
	}
	if err != nil {
		t.Fatalf("viewer role: %v", err)
	}
	u, err := s.Users().Create(ctx, store.NewUser{
		Email:  uuid.NewString() + "@Example.com",
		Name:   "integration",
		RoleID: role.ID,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	t.Cleanup(func() { _ = s.Users().Delete(context.Background(), u.ID) })
	return u
}

func TestUserLookupIsCaseInsensitive(t *testing.T) {
	s := newIntegrationStore(t)
	u := createUser(t, s)

	got, err := s.Users().FindByEmail(context.Background(), u.Email)
	if err != nil || got.ID != u.ID {
		t.Fatalf("FindByEmail = %+v, %v", got, err)
	}
	if got.Role.Name != store.RoleViewer {
		t.Fatalf("expected joined role, got %+v", got.Role)
	}
	if _, err := s.Users().Create(context.Background(), store.NewUser{Email: u.Email, RoleID: u.RoleID}); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestConcurrentRevokeSingleWinner(t *testing.T) {
	s := newIntegrationStore(t)
	u := createUser(t, s)
	ctx := context.Background()

	rt, err := s.RefreshTokens().Create(ctx, u.ID, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("create refresh token: %v", err)
	}
	if err := s.RefreshTokens().Stamp(ctx, rt.ID, "signed-"+rt.ID); err != nil {
		t.Fatalf("stamp: %v", err)
	}

	var (
		wg      sync.WaitGroup
		winners atomic.Int32
		start   = make(chan struct{})
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := s.RefreshTokens().Revoke(ctx, rt.ID)
			if err != nil {
				t.Errorf("revoke: %v", err)
				return
			}
			if ok {
				winners.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if winners.Load() != 1 {
		t.Fatalf("expected one winner, got %d", winners.Load())
	}
}

func TestUnknownIDIsNotFound(t *testing.T) {
	s := newIntegrationStore(t)
	if _, err := s.Users().FindByID(context.Background(), "not-a-uuid"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
